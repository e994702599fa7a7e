package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"schedule-service/internal/model"
)

type PaginatedNotifications struct {
	Data []model.Notification `json:"data"`
	Meta PaginationMeta       `json:"meta"`
}

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) (*model.Notification, error)
	List(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, page, limit int) (*PaginatedNotifications, error)
	CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error)
	MarkAsRead(ctx context.Context, recipientID uuid.UUID, ids []uuid.UUID) (int64, error)
	Delete(ctx context.Context, recipientID, id uuid.UUID) (bool, error)
	DeleteAll(ctx context.Context, recipientID uuid.UUID) (int64, error)
}

type postgresNotificationRepository struct {
	db *sqlx.DB
}

func NewPostgresNotificationRepository(db *sqlx.DB) NotificationRepository {
	return &postgresNotificationRepository{db: db}
}

func (r *postgresNotificationRepository) Create(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	query := `
		INSERT INTO notifications (recipient_id, type, title, message, related_to)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, is_read, created_at
	`
	err := r.db.QueryRowxContext(ctx, query, n.RecipientID, string(n.Type), n.Title, n.Message, n.RelatedTo).
		Scan(&n.ID, &n.IsRead, &n.CreatedAt)
	if err != nil {
		return nil, err
	}

	return n, nil
}

func (r *postgresNotificationRepository) List(ctx context.Context, recipientID uuid.UUID, unreadOnly bool, page, limit int) (*PaginatedNotifications, error) {
	page, limit, offset := normalizePage(page, limit)

	where := ` WHERE recipient_id = $1`
	if unreadOnly {
		where += ` AND is_read = false`
	}

	var totalItems int
	if err := r.db.GetContext(ctx, &totalItems, `SELECT COUNT(*) FROM notifications`+where, recipientID); err != nil {
		return nil, err
	}

	query := `SELECT id, recipient_id, type, title, message, related_to, is_read, read_at, created_at FROM notifications` +
		where + ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	notifications := []model.Notification{}
	if err := r.db.SelectContext(ctx, &notifications, query, recipientID, limit, offset); err != nil {
		return nil, err
	}

	return &PaginatedNotifications{
		Data: notifications,
		Meta: newPaginationMeta(page, limit, totalItems),
	}, nil
}

func (r *postgresNotificationRepository) CountUnread(ctx context.Context, recipientID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND is_read = false`
	err := r.db.GetContext(ctx, &count, query, recipientID)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// MarkAsRead flips only unread notifications owned by recipientID, so repeated
// calls leave read_at untouched.
func (r *postgresNotificationRepository) MarkAsRead(ctx context.Context, recipientID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(`
		UPDATE notifications SET is_read = true, read_at = now()
		WHERE recipient_id = ? AND is_read = false AND id IN (?)
	`, recipientID, ids)
	if err != nil {
		return 0, err
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (r *postgresNotificationRepository) Delete(ctx context.Context, recipientID, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

func (r *postgresNotificationRepository) DeleteAll(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE recipient_id = $1`, recipientID)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
