package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"schedule-service/internal/model"
)

type MessageRepository interface {
	Create(ctx context.Context, msg *model.Message) (*model.Message, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Message, error)
	UpdateContent(ctx context.Context, id uuid.UUID, content string) (*model.Message, error)
	Delete(ctx context.Context, id uuid.UUID) error
	MarkAsRead(ctx context.Context, receiverID uuid.UUID, ids []uuid.UUID) (int64, error)
	CountUnread(ctx context.Context, receiverID uuid.UUID) (int, error)
	ListConversations(ctx context.Context, userID uuid.UUID) ([]model.Conversation, error)
	// ListBetween returns the thread oldest first and marks the messages
	// sent to userID by otherID as read.
	ListBetween(ctx context.Context, userID, otherID uuid.UUID) ([]model.Message, error)
}

type postgresMessageRepository struct {
	db *sqlx.DB
}

func NewPostgresMessageRepository(db *sqlx.DB) MessageRepository {
	return &postgresMessageRepository{db: db}
}

const messageColumns = `id, sender_id, receiver_id, content, attachments, is_read, read_at, created_at, updated_at`

func (r *postgresMessageRepository) Create(ctx context.Context, msg *model.Message) (*model.Message, error) {
	query := `
		INSERT INTO messages (sender_id, receiver_id, content, attachments)
		VALUES ($1, $2, $3, $4)
		RETURNING id, is_read, created_at, updated_at
	`
	err := r.db.QueryRowxContext(ctx, query, msg.SenderID, msg.ReceiverID, msg.Content, msg.Attachments).
		Scan(&msg.ID, &msg.IsRead, &msg.CreatedAt, &msg.UpdatedAt)
	if err != nil {
		return nil, err
	}

	return msg, nil
}

func (r *postgresMessageRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Message, error) {
	var msg model.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &msg, nil
}

func (r *postgresMessageRepository) UpdateContent(ctx context.Context, id uuid.UUID, content string) (*model.Message, error) {
	var msg model.Message
	query := `UPDATE messages SET content = $2, updated_at = now() WHERE id = $1 RETURNING ` + messageColumns
	err := r.db.GetContext(ctx, &msg, query, id, content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &msg, nil
}

func (r *postgresMessageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id)
	return err
}

func (r *postgresMessageRepository) MarkAsRead(ctx context.Context, receiverID uuid.UUID, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := sqlx.In(`
		UPDATE messages SET is_read = true, read_at = now()
		WHERE receiver_id = ? AND is_read = false AND id IN (?)
	`, receiverID, ids)
	if err != nil {
		return 0, err
	}

	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (r *postgresMessageRepository) CountUnread(ctx context.Context, receiverID uuid.UUID) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND is_read = false`
	if err := r.db.GetContext(ctx, &count, query, receiverID); err != nil {
		return 0, err
	}

	return count, nil
}

func (r *postgresMessageRepository) ListConversations(ctx context.Context, userID uuid.UUID) ([]model.Conversation, error) {
	query := `
		WITH thread AS (
			SELECT
				CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS other_id,
				content, created_at,
				(receiver_id = $1 AND is_read = false) AS unread
			FROM messages
			WHERE sender_id = $1 OR receiver_id = $1
		),
		latest AS (
			SELECT DISTINCT ON (other_id) other_id, content, created_at
			FROM thread
			ORDER BY other_id, created_at DESC
		)
		SELECT
			l.other_id AS user_id,
			COALESCE(u.name, '') AS name,
			u.avatar_url,
			l.content AS last_message,
			l.created_at AS last_message_time,
			(SELECT COUNT(*) FROM thread t WHERE t.other_id = l.other_id AND t.unread) AS unread_count
		FROM latest l
		LEFT JOIN users u ON u.id = l.other_id
		ORDER BY l.created_at DESC
	`

	conversations := []model.Conversation{}
	if err := r.db.SelectContext(ctx, &conversations, query, userID); err != nil {
		return nil, err
	}

	return conversations, nil
}

func (r *postgresMessageRepository) ListBetween(ctx context.Context, userID, otherID uuid.UUID) ([]model.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Mark first so the returned thread carries the new read state.
	mark := `
		UPDATE messages SET is_read = true, read_at = now()
		WHERE sender_id = $1 AND receiver_id = $2 AND is_read = false
	`
	if _, err := tx.ExecContext(ctx, mark, otherID, userID); err != nil {
		return nil, err
	}

	query := `SELECT ` + messageColumns + ` FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC`

	messages := []model.Message{}
	if err := tx.SelectContext(ctx, &messages, query, userID, otherID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return messages, nil
}
