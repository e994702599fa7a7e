package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"schedule-service/internal/model"
)

type PaginatedSessions struct {
	Data []model.Session `json:"data"`
	Meta PaginationMeta  `json:"meta"`
}

// SessionFilter scopes a listing to one participant seen through their role.
type SessionFilter struct {
	ParticipantID uuid.UUID
	Role          model.Role
	Statuses      []model.Status
	NewestFirst   bool
	Page          int
	Limit         int
}

type SessionRepository interface {
	// Create inserts session after guard approved the participants' overlapping
	// active sessions. Check and insert share one transaction and the database
	// exclusion constraints reject concurrent double-bookings with ErrOverlap.
	Create(ctx context.Context, session *model.Session, guard func(active []model.Session) error) (*model.Session, error)
	FindByID(ctx context.Context, id uuid.UUID) (*model.Session, error)
	// Update locks the row, lets apply mutate the session and persists the result.
	Update(ctx context.Context, id uuid.UUID, apply func(*model.Session) error) (*model.Session, error)
	// Delete locks the row and removes it if guard allows.
	Delete(ctx context.Context, id uuid.UUID, guard func(*model.Session) error) (*model.Session, error)
	List(ctx context.Context, filter SessionFilter) (*PaginatedSessions, error)
}

type postgresSessionRepository struct {
	db *sqlx.DB
}

func NewPostgresSessionRepository(db *sqlx.DB) SessionRepository {
	return &postgresSessionRepository{db: db}
}

const selectSession = `
		SELECT s.id, s.tutor_id, s.student_id, s.start_time, s.end_time, s.subject, s.meeting_type,
			s.meeting_link, s.location, s.status, s.notes, s.created_at, s.updated_at,
			f.rating AS feedback_rating, f.comment AS feedback_comment, f.created_at AS feedback_created_at
		FROM sessions s
		LEFT JOIN session_feedback f ON f.session_id = s.id`

type sessionRow struct {
	model.Session
	FeedbackRating    sql.NullInt32  `db:"feedback_rating"`
	FeedbackComment   sql.NullString `db:"feedback_comment"`
	FeedbackCreatedAt sql.NullTime   `db:"feedback_created_at"`
}

func (r sessionRow) toModel() *model.Session {
	s := r.Session
	if r.FeedbackRating.Valid {
		s.Feedback = &model.Feedback{
			Rating:    int(r.FeedbackRating.Int32),
			Comment:   r.FeedbackComment.String,
			CreatedAt: r.FeedbackCreatedAt.Time,
		}
	}
	return &s
}

func (r *postgresSessionRepository) Create(ctx context.Context, session *model.Session, guard func(active []model.Session) error) (*model.Session, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var active []model.Session
	query := `
		SELECT id, tutor_id, student_id, start_time, end_time, subject, meeting_type,
			meeting_link, location, status, notes, created_at, updated_at
		FROM sessions
		WHERE (tutor_id = $1 OR student_id = $2)
			AND status IN ('pending', 'accepted', 'upcoming')
			AND start_time < $4 AND end_time > $3
	`
	err = tx.SelectContext(ctx, &active, query, session.TutorID, session.StudentID, session.StartTime, session.EndTime)
	if err != nil {
		return nil, err
	}

	if guard != nil {
		if err := guard(active); err != nil {
			return nil, err
		}
	}

	insert := `
		INSERT INTO sessions (tutor_id, student_id, start_time, end_time, subject, meeting_type, meeting_link, location, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRowxContext(ctx, insert,
		session.TutorID, session.StudentID, session.StartTime, session.EndTime, session.Subject,
		string(session.MeetingType), session.MeetingLink, session.Location, string(session.Status), session.Notes,
	).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if pgErrorCode(err) == pgExclusionViolation {
			return nil, ErrOverlap
		}
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		if pgErrorCode(err) == pgExclusionViolation {
			return nil, ErrOverlap
		}
		return nil, err
	}

	return session, nil
}

func (r *postgresSessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	var row sessionRow
	err := r.db.GetContext(ctx, &row, selectSession+` WHERE s.id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return row.toModel(), nil
}

func (r *postgresSessionRepository) Update(ctx context.Context, id uuid.UUID, apply func(*model.Session) error) (*model.Session, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	current, err := lockSession(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	hadFeedback := current.Feedback != nil

	if err := apply(current); err != nil {
		return nil, err
	}

	update := `
		UPDATE sessions
		SET status = $2, meeting_link = $3, location = $4, notes = $5, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`
	err = tx.QueryRowxContext(ctx, update, id, string(current.Status), current.MeetingLink, current.Location, current.Notes).
		Scan(&current.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if !hadFeedback && current.Feedback != nil {
		insert := `
			INSERT INTO session_feedback (session_id, rating, comment, created_at)
			VALUES ($1, $2, $3, $4)
		`
		_, err = tx.ExecContext(ctx, insert, id, current.Feedback.Rating, current.Feedback.Comment, current.Feedback.CreatedAt)
		if err != nil {
			if pgErrorCode(err) == pgUniqueViolation {
				return nil, ErrDuplicate
			}
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return current, nil
}

func (r *postgresSessionRepository) Delete(ctx context.Context, id uuid.UUID, guard func(*model.Session) error) (*model.Session, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	current, err := lockSession(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if guard != nil {
		if err := guard(current); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return current, nil
}

func lockSession(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.Session, error) {
	var row sessionRow
	err := tx.GetContext(ctx, &row, selectSession+` WHERE s.id = $1 FOR UPDATE OF s`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toModel(), nil
}

func (r *postgresSessionRepository) List(ctx context.Context, filter SessionFilter) (*PaginatedSessions, error) {
	page, limit, offset := normalizePage(filter.Page, filter.Limit)

	column := "s.student_id"
	if filter.Role == model.RoleTutor {
		column = "s.tutor_id"
	}

	where := fmt.Sprintf(" WHERE %s = $1", column)
	args := []interface{}{filter.ParticipantID}
	argID := 2

	if len(filter.Statuses) > 0 {
		placeholders := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			placeholders = append(placeholders, fmt.Sprintf("$%d", argID))
			args = append(args, string(status))
			argID++
		}
		where += " AND s.status IN (" + strings.Join(placeholders, ", ") + ")"
	}

	var totalItems int
	err := r.db.GetContext(ctx, &totalItems, "SELECT COUNT(*) FROM sessions s"+where, args...)
	if err != nil {
		return nil, err
	}

	order := " ORDER BY s.start_time ASC"
	if filter.NewestFirst {
		order = " ORDER BY s.start_time DESC"
	}
	query := selectSession + where + order + fmt.Sprintf(" LIMIT $%d OFFSET $%d", argID, argID+1)
	args = append(args, limit, offset)

	var rows []sessionRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	sessions := make([]model.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, *row.toModel())
	}

	return &PaginatedSessions{
		Data: sessions,
		Meta: newPaginationMeta(page, limit, totalItems),
	}, nil
}

