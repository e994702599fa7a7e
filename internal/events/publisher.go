package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"schedule-service/internal/model"
)

const (
	SubjectNotificationCreated = "notification.created"
	SubjectEmailRequested      = "email.requested"
)

type EventPublisher interface {
	PublishNotificationCreated(n *model.Notification) error
	PublishEmailRequested(to, subject, body string) error
}

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

type NatsPublisher struct {
	conn   Conn
	logger *zap.Logger
}

func NewNatsPublisher(natsURL string, logger *zap.Logger) (*NatsPublisher, *nats.Conn, error) {
	nc, err := nats.Connect(natsURL)

	if err != nil {
		return nil, nil, err
	}

	return NewPublisher(nc, logger), nc, nil
}

func NewPublisher(conn Conn, logger *zap.Logger) *NatsPublisher {
	return &NatsPublisher{conn: conn, logger: logger.Named("events")}
}

type NotificationCreatedEvent struct {
	EventType      string                 `json:"event_type"`
	NotificationID uuid.UUID              `json:"notification_id"`
	RecipientID    uuid.UUID              `json:"recipient_id"`
	Type           model.NotificationType `json:"type"`
	Title          string                 `json:"title"`
	Message        string                 `json:"message"`
	CreatedAt      time.Time              `json:"created_at"`
}

type EmailRequestedEvent struct {
	EventType string    `json:"event_type"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	QueuedAt  time.Time `json:"queued_at"`
}

func (p *NatsPublisher) PublishNotificationCreated(n *model.Notification) error {
	event := NotificationCreatedEvent{
		EventType:      SubjectNotificationCreated,
		NotificationID: n.ID,
		RecipientID:    n.RecipientID,
		Type:           n.Type,
		Title:          n.Title,
		Message:        n.Message,
		CreatedAt:      n.CreatedAt,
	}

	return p.publish(SubjectNotificationCreated, event, zap.String("recipient_id", n.RecipientID.String()))
}

func (p *NatsPublisher) PublishEmailRequested(to, subject, body string) error {
	event := EmailRequestedEvent{
		EventType: SubjectEmailRequested,
		To:        to,
		Subject:   subject,
		Body:      body,
		QueuedAt:  time.Now(),
	}

	return p.publish(SubjectEmailRequested, event, zap.String("to", to))
}

func (p *NatsPublisher) publish(subject string, event any, fields ...zap.Field) error {
	eventJSON, err := json.Marshal(event)

	if err != nil {
		p.logger.Error("marshal event", zap.String("subject", subject), zap.Error(err))
		return err
	}

	if err := p.conn.Publish(subject, eventJSON); err != nil {
		p.logger.Error("publish to NATS", zap.String("subject", subject), zap.Error(err))
		return err
	}

	p.logger.Debug("published event", append(fields, zap.String("subject", subject))...)

	return nil
}
