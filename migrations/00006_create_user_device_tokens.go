package migrations

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigrationContext(upCreateUserDeviceTokens, downCreateUserDeviceTokens)
}

// A device token belongs to one user at a time; registering it again from
// another account moves it.
func upCreateUserDeviceTokens(ctx context.Context, tx *sql.Tx) error {
	query := `
	CREATE TABLE user_device_tokens (
	  id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	  user_id UUID NOT NULL,
	  device_token TEXT NOT NULL,
	  created_at TIMESTAMP WITH TIME ZONE DEFAULT now(),
	  updated_at TIMESTAMP WITH TIME ZONE DEFAULT now(),
	  CONSTRAINT user_device_tokens_user_fk FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
	  CONSTRAINT user_device_tokens_token_key UNIQUE (device_token),
	  CONSTRAINT user_device_tokens_token_length CHECK (char_length(device_token) BETWEEN 1 AND 512)
	);

	CREATE INDEX idx_user_device_tokens_user ON user_device_tokens (user_id);
	`

	_, err := tx.ExecContext(ctx, query)
	return err
}

func downCreateUserDeviceTokens(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS user_device_tokens;`)
	return err
}
