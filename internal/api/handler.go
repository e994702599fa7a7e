package api

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"schedule-service/internal/logging"
	"schedule-service/internal/repository"
	"schedule-service/internal/service"
)

var validate = validator.New()

// errorStatus maps a service error kind onto its HTTP status.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		return fiber.StatusBadRequest, "Invalid input"
	case errors.Is(err, service.ErrForbidden):
		return fiber.StatusForbidden, "Forbidden"
	case errors.Is(err, service.ErrNotFound):
		return fiber.StatusNotFound, "Not found"
	case errors.Is(err, service.ErrScheduleConflict):
		return fiber.StatusConflict, "Schedule conflict"
	case errors.Is(err, service.ErrInvalidTransition):
		return fiber.StatusConflict, "Invalid transition"
	case errors.Is(err, service.ErrFeedbackExists):
		return fiber.StatusConflict, "Feedback already exists"
	case errors.Is(err, service.ErrUnavailable):
		return fiber.StatusServiceUnavailable, "Unavailable"
	default:
		return fiber.StatusInternalServerError, "Internal server error"
	}
}

func respondError(c *fiber.Ctx, logger *zap.Logger, err error) error {
	status, title := errorStatus(err)
	if status == fiber.StatusInternalServerError {
		logging.WithTrace(c.UserContext(), logger).Error("request failed",
			zap.String("method", c.Method()), zap.String("path", c.Path()), zap.Error(err))
		return c.Status(status).JSON(fiber.Map{"error": title})
	}
	return c.Status(status).JSON(fiber.Map{"error": title, "details": err.Error()})
}

// parseBody decodes and validates the JSON body into dst.
func parseBody(c *fiber.Ctx, dst any) error {
	if err := c.BodyParser(dst); err != nil {
		return fmt.Errorf("%w: cannot parse JSON: %v", service.ErrValidation, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", service.ErrValidation, err)
	}
	return nil
}

func paramID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s format", service.ErrValidation, name)
	}
	return id, nil
}

// pageParams reads ?page and ?limit; limit is capped at repository.MaxPageSize.
func pageParams(c *fiber.Ctx) (int, int) {
	page, limit := c.QueryInt("page", 1), c.QueryInt("limit", repository.DefaultPageSize)
	if limit > repository.MaxPageSize {
		limit = repository.MaxPageSize
	}
	return page, limit
}

type idsRequest struct {
	IDs []uuid.UUID `json:"ids" validate:"required,min=1,max=100"`
}

func splitQuery(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
