package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"schedule-service/internal/model"
	"schedule-service/internal/service"
)

const (
	socketSendMessage = "sendMessage"
	socketMarkAsRead  = "markAsRead"
)

type socketSendMessageRequest struct {
	ReceiverID  uuid.UUID `json:"receiverId" validate:"required"`
	Content     string    `json:"content"`
	Attachments []string  `json:"attachments"`
}

type socketMarkAsReadRequest struct {
	MessageIDs []uuid.UUID `json:"messageIds" validate:"required,min=1,max=100"`
}

// SocketEvents routes inbound realtime frames into the message service so
// socket and HTTP clients share one code path.
type SocketEvents struct {
	messageService service.MessageService
	logger         *zap.Logger
}

func NewSocketEvents(messageService service.MessageService, logger *zap.Logger) *SocketEvents {
	return &SocketEvents{
		messageService: messageService,
		logger:         logger.Named("api.socket"),
	}
}

func (s *SocketEvents) HandleEvent(ctx context.Context, identity model.Identity, event string, data json.RawMessage) error {
	switch event {
	case socketSendMessage:
		var request socketSendMessageRequest
		if err := decodeFrame(data, &request); err != nil {
			return err
		}
		msg, err := s.messageService.Send(ctx, identity, service.SendMessageDTO{
			ReceiverID:  request.ReceiverID,
			Content:     request.Content,
			Attachments: request.Attachments,
		})
		if err != nil {
			return err
		}
		s.logger.Debug("message sent over socket",
			zap.String("message_id", msg.ID.String()),
			zap.String("sender_id", identity.CallerID.String()))
		return nil

	case socketMarkAsRead:
		var request socketMarkAsReadRequest
		if err := decodeFrame(data, &request); err != nil {
			return err
		}
		_, err := s.messageService.MarkAsRead(ctx, identity, request.MessageIDs)
		return err

	default:
		return fmt.Errorf("%w: unsupported event %s", service.ErrValidation, event)
	}
}

func decodeFrame(data json.RawMessage, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: malformed payload: %v", service.ErrValidation, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", service.ErrValidation, err)
	}
	return nil
}
