package api

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"schedule-service/internal/service"
)

type DeviceHandler struct {
	deviceService service.DeviceService
	logger        *zap.Logger
}

func NewDeviceHandler(deviceService service.DeviceService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		deviceService: deviceService,
		logger:        logger.Named("api.devices"),
	}
}

type RegisterDeviceRequest struct {
	DeviceToken string `json:"device_token" validate:"required"`
}

func (h *DeviceHandler) RegisterDevice(c *fiber.Ctx) error {
	identity, err := IdentityFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}

	var request RegisterDeviceRequest
	if err := parseBody(c, &request); err != nil {
		return respondError(c, h.logger, err)
	}

	token, err := h.deviceService.RegisterDevice(c.UserContext(), identity, request.DeviceToken)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusCreated).JSON(token)
}
