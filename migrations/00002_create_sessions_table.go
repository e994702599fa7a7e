package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreateSessionsTable, downCreateSessionsTable)
}

// Active sessions of one tutor (or one student) may never overlap. The
// exclusion constraints are the final word when two bookings race past the
// application level check.
func upCreateSessionsTable(ctx context.Context, tx *sql.Tx) error {
	query := `
		CREATE EXTENSION IF NOT EXISTS btree_gist;

		CREATE TABLE sessions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tutor_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			student_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			start_time TIMESTAMP WITH TIME ZONE NOT NULL,
			end_time TIMESTAMP WITH TIME ZONE NOT NULL,
			subject TEXT NOT NULL,
			meeting_type TEXT NOT NULL CHECK (meeting_type IN ('online', 'offline')),
			meeting_link TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL CHECK (status IN ('pending', 'accepted', 'rejected', 'upcoming', 'completed', 'cancelled')),
			notes TEXT NOT NULL DEFAULT '' CHECK (char_length(notes) <= 500),
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			CHECK (end_time > start_time),
			CONSTRAINT sessions_tutor_no_overlap EXCLUDE USING gist (
				tutor_id WITH =,
				tstzrange(start_time, end_time, '[)') WITH &&
			) WHERE (status IN ('pending', 'accepted', 'upcoming')),
			CONSTRAINT sessions_student_no_overlap EXCLUDE USING gist (
				student_id WITH =,
				tstzrange(start_time, end_time, '[)') WITH &&
			) WHERE (status IN ('pending', 'accepted', 'upcoming'))
		);

		CREATE INDEX idx_sessions_tutor_start ON sessions(tutor_id, start_time DESC);
		CREATE INDEX idx_sessions_student_start ON sessions(student_id, start_time DESC);
		CREATE INDEX idx_sessions_status_start ON sessions(status, start_time);
	`

	_, err := tx.ExecContext(ctx, query)

	if err != nil {
		return err
	}

	return nil
}

func downCreateSessionsTable(ctx context.Context, tx *sql.Tx) error {
	query := `DROP TABLE IF EXISTS sessions;`
	_, err := tx.ExecContext(ctx, query)

	if err != nil {
		return err
	}

	return nil
}
