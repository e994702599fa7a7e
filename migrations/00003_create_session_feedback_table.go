package migrations

import (
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigration(upCreateSessionFeedbackTable, downCreateSessionFeedbackTable)
}

func upCreateSessionFeedbackTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS session_feedback (
			session_id UUID PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
			rating INT NOT NULL CHECK (rating >= 1 AND rating <= 5),
			comment TEXT NOT NULL DEFAULT '' CHECK (char_length(comment) <= 1000),
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
		);
	`)
	return err
}

func downCreateSessionFeedbackTable(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS session_feedback;`)
	return err
}
