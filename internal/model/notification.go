package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationSession NotificationType = "session"
	NotificationMessage NotificationType = "message"
	NotificationSystem  NotificationType = "system"
)

func (t NotificationType) Valid() bool {
	return t == NotificationSession || t == NotificationMessage || t == NotificationSystem
}

// RelatedTo is a weak back-reference to the entity that triggered a notification.
type RelatedTo struct {
	EntityKind string     `json:"entity_kind,omitempty"`
	EntityID   *uuid.UUID `json:"entity_id,omitempty"`
}

func RelatedSession(id uuid.UUID) RelatedTo {
	return RelatedTo{EntityKind: "session", EntityID: &id}
}

func RelatedMessage(id uuid.UUID) RelatedTo {
	return RelatedTo{EntityKind: "message", EntityID: &id}
}

func (r RelatedTo) Value() (driver.Value, error) {
	return json.Marshal(r)
}

func (r *RelatedTo) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*r = RelatedTo{}
		return nil
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return fmt.Errorf("related_to: unsupported source type %T", src)
	}
}

type Notification struct {
	ID          uuid.UUID        `db:"id" json:"id"`
	RecipientID uuid.UUID        `db:"recipient_id" json:"recipient_id"`
	Type        NotificationType `db:"type" json:"type"`
	Title       string           `db:"title" json:"title"`
	Message     string           `db:"message" json:"message"`
	RelatedTo   RelatedTo        `db:"related_to" json:"related_to"`
	IsRead      bool             `db:"is_read" json:"is_read"`
	ReadAt      *time.Time       `db:"read_at" json:"read_at,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}
