package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"schedule-service/internal/hub"
	"schedule-service/internal/logging"
	"schedule-service/internal/model"
	"schedule-service/internal/repository"
	"schedule-service/internal/storage"
)

const (
	maxMessageLength  = 2000
	maxAttachments    = 10
	messagePreviewLen = 80
)

// AttachmentPresigner issues upload URLs for message attachments.
type AttachmentPresigner interface {
	PresignUpload(ctx context.Context, objectKey string) (string, error)
}

type SendMessageDTO struct {
	ReceiverID  uuid.UUID
	Content     string
	Attachments []string
}

type AttachmentUpload struct {
	UploadURL string `json:"upload_url"`
	ObjectKey string `json:"object_key"`
}

type MessageService interface {
	Send(ctx context.Context, actor model.Identity, dto SendMessageDTO) (*model.Message, error)
	Update(ctx context.Context, actor model.Identity, id uuid.UUID, content string) (*model.Message, error)
	Delete(ctx context.Context, actor model.Identity, id uuid.UUID) error
	MarkAsRead(ctx context.Context, actor model.Identity, ids []uuid.UUID) (int64, error)
	UnreadCount(ctx context.Context, actor model.Identity) (int, error)
	Conversations(ctx context.Context, actor model.Identity) ([]model.Conversation, error)
	Conversation(ctx context.Context, actor model.Identity, otherID uuid.UUID) ([]model.Message, error)
	AttachmentUploadURL(ctx context.Context, actor model.Identity, fileName string) (*AttachmentUpload, error)
}

type messageService struct {
	messages  repository.MessageRepository
	users     repository.UserRepository
	recorder  NotificationRecorder
	notifier  *Notifier
	presigner AttachmentPresigner
	logger    *zap.Logger
}

// NewMessageService builds the messaging service. presigner may be nil when
// attachment storage is not configured.
func NewMessageService(
	messages repository.MessageRepository,
	users repository.UserRepository,
	recorder NotificationRecorder,
	notifier *Notifier,
	presigner AttachmentPresigner,
	logger *zap.Logger,
) MessageService {
	return &messageService{
		messages:  messages,
		users:     users,
		recorder:  recorder,
		notifier:  notifier,
		presigner: presigner,
		logger:    logger.Named("messages"),
	}
}

func (s *messageService) Send(ctx context.Context, actor model.Identity, dto SendMessageDTO) (*model.Message, error) {
	content := strings.TrimSpace(dto.Content)
	if content == "" && len(dto.Attachments) == 0 {
		return nil, validationf("message needs content or attachments")
	}
	if err := validateContent(content); err != nil {
		return nil, err
	}
	if len(dto.Attachments) > maxAttachments {
		return nil, validationf("at most %d attachments are allowed", maxAttachments)
	}
	if dto.ReceiverID == actor.CallerID {
		return nil, validationf("cannot send a message to yourself")
	}

	receiver, err := s.users.FindByID(ctx, dto.ReceiverID)
	if err != nil {
		return nil, persistence("find receiver", err)
	}
	if receiver == nil {
		return nil, notFoundf("user %s", dto.ReceiverID)
	}

	created, err := s.messages.Create(ctx, &model.Message{
		SenderID:    actor.CallerID,
		ReceiverID:  receiver.ID,
		Content:     content,
		Attachments: model.Attachments(dto.Attachments),
	})
	if err != nil {
		return nil, persistence("create message", err)
	}

	if _, err := s.recorder.Record(ctx, receiver.ID, model.NotificationMessage, "New message",
		preview(created), model.RelatedMessage(created.ID)); err != nil {
		logging.WithTrace(ctx, s.logger).Warn("record message notification",
			zap.String("message_id", created.ID.String()), zap.Error(err))
	}
	s.notifier.Push(receiver.ID, hub.EventNewMessage, created)

	return created, nil
}

func (s *messageService) Update(ctx context.Context, actor model.Identity, id uuid.UUID, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, validationf("content is required")
	}
	if err := validateContent(content); err != nil {
		return nil, err
	}

	existing, err := s.ownMessage(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.messages.UpdateContent(ctx, existing.ID, content)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundf("message %s", id)
		}
		return nil, persistence("update message", err)
	}

	s.notifier.Push(updated.ReceiverID, hub.EventMessageUpdated, updated)
	return updated, nil
}

func (s *messageService) Delete(ctx context.Context, actor model.Identity, id uuid.UUID) error {
	existing, err := s.ownMessage(ctx, actor, id)
	if err != nil {
		return err
	}

	if err := s.messages.Delete(ctx, existing.ID); err != nil {
		return persistence("delete message", err)
	}

	s.notifier.Push(existing.ReceiverID, hub.EventMessageDeleted, map[string]uuid.UUID{
		"id":        existing.ID,
		"sender_id": existing.SenderID,
	})
	return nil
}

// MarkAsRead flips only messages received by the caller. Repeating it is harmless.
func (s *messageService) MarkAsRead(ctx context.Context, actor model.Identity, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, validationf("at least one message id is required")
	}
	updated, err := s.messages.MarkAsRead(ctx, actor.CallerID, ids)
	if err != nil {
		return 0, persistence("mark messages read", err)
	}
	return updated, nil
}

func (s *messageService) UnreadCount(ctx context.Context, actor model.Identity) (int, error) {
	count, err := s.messages.CountUnread(ctx, actor.CallerID)
	if err != nil {
		return 0, persistence("count unread messages", err)
	}
	return count, nil
}

func (s *messageService) Conversations(ctx context.Context, actor model.Identity) ([]model.Conversation, error) {
	conversations, err := s.messages.ListConversations(ctx, actor.CallerID)
	if err != nil {
		return nil, persistence("list conversations", err)
	}
	return conversations, nil
}

// Conversation returns the thread with otherID and marks it read for the caller.
func (s *messageService) Conversation(ctx context.Context, actor model.Identity, otherID uuid.UUID) ([]model.Message, error) {
	if otherID == actor.CallerID {
		return nil, validationf("cannot open a conversation with yourself")
	}
	thread, err := s.messages.ListBetween(ctx, actor.CallerID, otherID)
	if err != nil {
		return nil, persistence("list conversation", err)
	}
	return thread, nil
}

func (s *messageService) AttachmentUploadURL(ctx context.Context, actor model.Identity, fileName string) (*AttachmentUpload, error) {
	if s.presigner == nil {
		return nil, ErrUnavailable
	}
	if strings.TrimSpace(fileName) == "" {
		return nil, validationf("file name is required")
	}

	key := storage.AttachmentKey(actor.CallerID, fileName)
	url, err := s.presigner.PresignUpload(ctx, key)
	if err != nil {
		return nil, persistence("presign attachment upload", err)
	}
	return &AttachmentUpload{UploadURL: url, ObjectKey: key}, nil
}

func (s *messageService) ownMessage(ctx context.Context, actor model.Identity, id uuid.UUID) (*model.Message, error) {
	msg, err := s.messages.FindByID(ctx, id)
	if err != nil {
		return nil, persistence("find message", err)
	}
	if msg == nil {
		return nil, notFoundf("message %s", id)
	}
	if msg.SenderID != actor.CallerID {
		return nil, forbiddenf("only the sender can change message %s", id)
	}
	return msg, nil
}

func validateContent(content string) error {
	if utf8.RuneCountInString(content) > maxMessageLength {
		return validationf("message must be at most %d characters", maxMessageLength)
	}
	return nil
}

func preview(msg *model.Message) string {
	if msg.Content == "" {
		return "Sent an attachment"
	}
	runes := []rune(msg.Content)
	if len(runes) <= messagePreviewLen {
		return msg.Content
	}
	return string(runes[:messagePreviewLen]) + "..."
}
