package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"schedule-service/internal/dispatch"
	"schedule-service/internal/events"
	"schedule-service/internal/model"
	"schedule-service/internal/repository"
)

// Pusher delivers best-effort realtime events to a user's room.
type Pusher interface {
	Push(userID uuid.UUID, event string, payload any)
}

// SideEffects runs work after a commit without blocking the caller.
type SideEffects interface {
	Submit(name string, task dispatch.Task) error
}

// Notifier fans committed changes out to the realtime hub, the broker and the
// email side channel. Every method returns immediately; failures are logged
// by the side-effect queue and never reach the caller.
type Notifier struct {
	hub       Pusher
	effects   SideEffects
	publisher events.EventPublisher
	users     repository.UserRepository
	logger    *zap.Logger
}

func NewNotifier(hub Pusher, effects SideEffects, publisher events.EventPublisher, users repository.UserRepository, logger *zap.Logger) *Notifier {
	return &Notifier{
		hub:       hub,
		effects:   effects,
		publisher: publisher,
		users:     users,
		logger:    logger.Named("notifier"),
	}
}

func (n *Notifier) Push(userID uuid.UUID, event string, payload any) {
	n.effects.Submit("push."+event, func(ctx context.Context) error {
		n.hub.Push(userID, event, payload)
		return nil
	})
}

// Email looks up the recipient's address and requests delivery.
func (n *Notifier) Email(userID uuid.UUID, subject, body string) {
	n.effects.Submit("email", func(ctx context.Context) error {
		user, err := n.users.FindByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("look up email recipient %s: %w", userID, err)
		}
		if user == nil || user.Email == "" {
			n.logger.Debug("no email address, skipping", zap.String("user_id", userID.String()))
			return nil
		}
		return n.publisher.PublishEmailRequested(user.Email, subject, body)
	})
}

// Announce publishes a recorded notification for the device push worker.
func (n *Notifier) Announce(notification *model.Notification) {
	n.effects.Submit(events.SubjectNotificationCreated, func(ctx context.Context) error {
		return n.publisher.PublishNotificationCreated(notification)
	})
}
