package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"schedule-service/internal/model"
)

type DeviceTokenRepository interface {
	Register(ctx context.Context, userID uuid.UUID, token string) (*model.DeviceToken, error)
	ListTokens(ctx context.Context, userID uuid.UUID) ([]string, error)
}

type postgresDeviceTokenRepository struct {
	db *sqlx.DB
}

func NewPostgresDeviceTokenRepository(db *sqlx.DB) DeviceTokenRepository {
	return &postgresDeviceTokenRepository{db: db}
}

// Register stores token for userID, moving it over if another user owned it.
func (r *postgresDeviceTokenRepository) Register(ctx context.Context, userID uuid.UUID, token string) (*model.DeviceToken, error) {
	var dt model.DeviceToken
	query := `
		INSERT INTO user_device_tokens (user_id, device_token)
		VALUES ($1, $2)
		ON CONFLICT (device_token) DO UPDATE SET user_id = EXCLUDED.user_id, updated_at = now()
		RETURNING id, user_id, device_token, created_at
	`
	err := r.db.GetContext(ctx, &dt, query, userID, token)
	if err != nil {
		return nil, err
	}

	return &dt, nil
}

func (r *postgresDeviceTokenRepository) ListTokens(ctx context.Context, userID uuid.UUID) ([]string, error) {
	tokens := []string{}
	query := `SELECT device_token FROM user_device_tokens WHERE user_id = $1`
	err := r.db.SelectContext(ctx, &tokens, query, userID)
	return tokens, err
}
