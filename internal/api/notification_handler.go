package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"schedule-service/internal/service"
)

type NotificationHandler struct {
	notificationService service.NotificationService
	logger              *zap.Logger
}

func NewNotificationHandler(notificationService service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		notificationService: notificationService,
		logger:              logger.Named("api.notifications"),
	}
}

type SystemNotificationRequest struct {
	RecipientID uuid.UUID `json:"recipient_id" validate:"required"`
	Title       string    `json:"title" validate:"required,max=200"`
	Message     string    `json:"message" validate:"required,max=2000"`
}

// ListNotifications accepts ?unread=true to return unread notifications only.
func (h *NotificationHandler) ListNotifications(c *fiber.Ctx) error {
	identity, err := IdentityFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}

	page, limit := pageParams(c)
	result, err := h.notificationService.List(c.UserContext(), identity, c.QueryBool("unread", false), page, limit)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *NotificationHandler) UnreadCount(c *fiber.Ctx) error {
	identity, err := IdentityFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}

	count, err := h.notificationService.UnreadCount(c.UserContext(), identity)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"count": count})
}

func (h *NotificationHandler) MarkAsRead(c *fiber.Ctx) error {
	identity, err := IdentityFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}

	var request idsRequest
	if err := parseBody(c, &request); err != nil {
		return respondError(c, h.logger, err)
	}

	updated, err := h.notificationService.MarkAsRead(c.UserContext(), identity, request.IDs)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"updated": updated})
}

func (h *NotificationHandler) DeleteNotification(c *fiber.Ctx) error {
	identity, err := IdentityFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	if err := h.notificationService.Delete(c.UserContext(), identity, id); err != nil {
		return respondError(c, h.logger, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *NotificationHandler) DeleteAll(c *fiber.Ctx) error {
	identity, err := IdentityFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}

	deleted, err := h.notificationService.DeleteAll(c.UserContext(), identity)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"deleted": deleted})
}

// SendSystem is restricted to admins by the service.
func (h *NotificationHandler) SendSystem(c *fiber.Ctx) error {
	identity, err := IdentityFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}

	var request SystemNotificationRequest
	if err := parseBody(c, &request); err != nil {
		return respondError(c, h.logger, err)
	}

	notification, err := h.notificationService.SendSystem(c.UserContext(), identity, service.SystemNotificationDTO{
		RecipientID: request.RecipientID,
		Title:       request.Title,
		Message:     request.Message,
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusCreated).JSON(notification)
}
