package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"schedule-service/internal/service"
)

type MessageHandler struct {
	messageService service.MessageService
	logger         *zap.Logger
}

func NewMessageHandler(messageService service.MessageService, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		logger:         logger.Named("api.messages"),
	}
}

type SendMessageRequest struct {
	ReceiverID  uuid.UUID `json:"receiver_id" validate:"required"`
	Content     string    `json:"content"`
	Attachments []string  `json:"attachments"`
}

type UpdateMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

type AttachmentRequest struct {
	FileName string `json:"file_name" validate:"required,max=255"`
}

func (h *MessageHandler) SendMessage(c *fiber.Ctx) error {
	identity, err := IdentityFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}

	var request SendMessageRequest
	if err := parseBody(c, &request); err != nil {
		return respondError(c, h.logger, err)
	}

	msg, err := h.messageService.Send(c.UserContext(), identity, service.SendMessageDTO{
		ReceiverID:  request.ReceiverID,
		Content:     request.Content,
		Attachments: request.Attachments,
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusCreated).JSON(msg)
}

func (h *MessageHandler) UpdateMessage(c *fiber.Ctx) error {
	identity, err := IdentityFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	var request UpdateMessageRequest
	if err := parseBody(c, &request); err != nil {
		return respondError(c, h.logger, err)
	}

	msg, err := h.messageService.Update(c.UserContext(), identity, id, request.Content)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusOK).JSON(msg)
}

func (h *MessageHandler) DeleteMessage(c *fiber.Ctx) error {
	identity, err := IdentityFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	if err := h.messageService.Delete(c.UserContext(), identity, id); err != nil {
		return respondError(c, h.logger, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *MessageHandler) MarkAsRead(c *fiber.Ctx) error {
	identity, err := IdentityFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}

	var request idsRequest
	if err := parseBody(c, &request); err != nil {
		return respondError(c, h.logger, err)
	}

	updated, err := h.messageService.MarkAsRead(c.UserContext(), identity, request.IDs)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"updated": updated})
}

func (h *MessageHandler) UnreadCount(c *fiber.Ctx) error {
	identity, err := IdentityFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}

	count, err := h.messageService.UnreadCount(c.UserContext(), identity)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"count": count})
}

func (h *MessageHandler) ListConversations(c *fiber.Ctx) error {
	identity, err := IdentityFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}

	conversations, err := h.messageService.Conversations(c.UserContext(), identity)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusOK).JSON(conversations)
}

// GetConversation returns the thread with :userId and marks its incoming
// messages as read.
func (h *MessageHandler) GetConversation(c *fiber.Ctx) error {
	identity, err := IdentityFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}
	otherID, err := paramID(c, "userId")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	thread, err := h.messageService.Conversation(c.UserContext(), identity, otherID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusOK).JSON(thread)
}

func (h *MessageHandler) AttachmentUploadURL(c *fiber.Ctx) error {
	identity, err := IdentityFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}

	var request AttachmentRequest
	if err := parseBody(c, &request); err != nil {
		return respondError(c, h.logger, err)
	}

	upload, err := h.messageService.AttachmentUploadURL(c.UserContext(), identity, request.FileName)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusOK).JSON(upload)
}
