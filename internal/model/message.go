package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Attachments holds object URLs stored as a JSON array.
type Attachments []string

func (a Attachments) Value() (driver.Value, error) {
	if a == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(a))
}

func (a *Attachments) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = Attachments{}
		return nil
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("attachments: unsupported source type %T", src)
	}
}

type Message struct {
	ID          uuid.UUID   `db:"id" json:"id"`
	SenderID    uuid.UUID   `db:"sender_id" json:"sender_id"`
	ReceiverID  uuid.UUID   `db:"receiver_id" json:"receiver_id"`
	Content     string      `db:"content" json:"content"`
	Attachments Attachments `db:"attachments" json:"attachments"`
	IsRead      bool        `db:"is_read" json:"is_read"`
	ReadAt      *time.Time  `db:"read_at" json:"read_at,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// Conversation summarizes the message thread between the caller and one counterpart.
type Conversation struct {
	UserID          uuid.UUID `db:"user_id" json:"user_id"`
	Name            string    `db:"name" json:"name"`
	AvatarURL       *string   `db:"avatar_url" json:"avatar_url,omitempty"`
	LastMessage     string    `db:"last_message" json:"last_message"`
	LastMessageTime time.Time `db:"last_message_time" json:"last_message_time"`
	UnreadCount     int       `db:"unread_count" json:"unread_count"`
}
