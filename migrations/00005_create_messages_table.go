package migrations

import (
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigration(upCreateMessages, downCreateMessages)
}

func upCreateMessages(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			sender_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			receiver_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			content TEXT NOT NULL DEFAULT '',
			attachments JSONB NOT NULL DEFAULT '[]'::jsonb,
			is_read BOOLEAN NOT NULL DEFAULT false,
			read_at TIMESTAMP WITH TIME ZONE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
		);

		CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(receiver_id) WHERE is_read = false;
	`)
	return err
}

func downCreateMessages(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS messages;`)
	return err
}
