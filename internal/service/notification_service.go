package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"schedule-service/internal/hub"
	"schedule-service/internal/model"
	"schedule-service/internal/repository"
)

// NotificationRecorder persists a notification for a recipient. Services call
// it after their own commit; a failure here never rolls the change back.
type NotificationRecorder interface {
	Record(ctx context.Context, recipientID uuid.UUID, typ model.NotificationType, title, message string, related model.RelatedTo) (*model.Notification, error)
}

type SystemNotificationDTO struct {
	RecipientID uuid.UUID
	Title       string
	Message     string
}

type NotificationService interface {
	NotificationRecorder
	SendSystem(ctx context.Context, actor model.Identity, dto SystemNotificationDTO) (*model.Notification, error)
	List(ctx context.Context, actor model.Identity, unreadOnly bool, page, limit int) (*repository.PaginatedNotifications, error)
	UnreadCount(ctx context.Context, actor model.Identity) (int, error)
	MarkAsRead(ctx context.Context, actor model.Identity, ids []uuid.UUID) (int64, error)
	Delete(ctx context.Context, actor model.Identity, id uuid.UUID) error
	DeleteAll(ctx context.Context, actor model.Identity) (int64, error)
}

type notificationService struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	notifier      *Notifier
	logger        *zap.Logger
}

func NewNotificationService(notifications repository.NotificationRepository, users repository.UserRepository, notifier *Notifier, logger *zap.Logger) NotificationService {
	return &notificationService{
		notifications: notifications,
		users:         users,
		notifier:      notifier,
		logger:        logger.Named("notifications"),
	}
}

func (s *notificationService) Record(ctx context.Context, recipientID uuid.UUID, typ model.NotificationType, title, message string, related model.RelatedTo) (*model.Notification, error) {
	if !typ.Valid() {
		return nil, validationf("unknown notification type %q", typ)
	}

	created, err := s.notifications.Create(ctx, &model.Notification{
		RecipientID: recipientID,
		Type:        typ,
		Title:       title,
		Message:     message,
		RelatedTo:   related,
	})
	if err != nil {
		return nil, persistence("create notification", err)
	}

	s.notifier.Announce(created)
	return created, nil
}

// SendSystem lets an administrator notify a user directly.
func (s *notificationService) SendSystem(ctx context.Context, actor model.Identity, dto SystemNotificationDTO) (*model.Notification, error) {
	if actor.Role != model.RoleAdmin {
		return nil, forbiddenf("only administrators can send system notifications")
	}
	if strings.TrimSpace(dto.Title) == "" || strings.TrimSpace(dto.Message) == "" {
		return nil, validationf("title and message are required")
	}

	recipient, err := s.users.FindByID(ctx, dto.RecipientID)
	if err != nil {
		return nil, persistence("find recipient", err)
	}
	if recipient == nil {
		return nil, notFoundf("user %s", dto.RecipientID)
	}

	created, err := s.Record(ctx, recipient.ID, model.NotificationSystem, dto.Title, dto.Message, model.RelatedTo{})
	if err != nil {
		return nil, err
	}

	s.notifier.Push(recipient.ID, hub.EventNewNotification, created)
	return created, nil
}

func (s *notificationService) List(ctx context.Context, actor model.Identity, unreadOnly bool, page, limit int) (*repository.PaginatedNotifications, error) {
	result, err := s.notifications.List(ctx, actor.CallerID, unreadOnly, page, limit)
	if err != nil {
		return nil, persistence("list notifications", err)
	}
	return result, nil
}

func (s *notificationService) UnreadCount(ctx context.Context, actor model.Identity) (int, error) {
	count, err := s.notifications.CountUnread(ctx, actor.CallerID)
	if err != nil {
		return 0, persistence("count unread notifications", err)
	}
	return count, nil
}

// MarkAsRead only touches notifications owned by the caller.
func (s *notificationService) MarkAsRead(ctx context.Context, actor model.Identity, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, validationf("at least one notification id is required")
	}
	updated, err := s.notifications.MarkAsRead(ctx, actor.CallerID, ids)
	if err != nil {
		return 0, persistence("mark notifications read", err)
	}
	return updated, nil
}

func (s *notificationService) Delete(ctx context.Context, actor model.Identity, id uuid.UUID) error {
	deleted, err := s.notifications.Delete(ctx, actor.CallerID, id)
	if err != nil {
		return persistence("delete notification", err)
	}
	if !deleted {
		return notFoundf("notification %s", id)
	}
	return nil
}

func (s *notificationService) DeleteAll(ctx context.Context, actor model.Identity) (int64, error) {
	deleted, err := s.notifications.DeleteAll(ctx, actor.CallerID)
	if err != nil {
		return 0, persistence("delete notifications", err)
	}
	return deleted, nil
}
