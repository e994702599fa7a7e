package api

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"schedule-service/internal/model"
	"schedule-service/internal/service"
)

type SessionHandler struct {
	sessionService service.SessionService
	logger         *zap.Logger
}

func NewSessionHandler(sessionService service.SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		logger:         logger.Named("api.sessions"),
	}
}

// CreateSessionRequest names the counterpart by role: students send
// tutor_id, tutors send student_id.
type CreateSessionRequest struct {
	TutorID     *uuid.UUID `json:"tutor_id"`
	StudentID   *uuid.UUID `json:"student_id"`
	StartTime   time.Time  `json:"start_time" validate:"required"`
	EndTime     time.Time  `json:"end_time" validate:"required"`
	Subject     string     `json:"subject" validate:"required,max=200"`
	MeetingType string     `json:"meeting_type" validate:"required,oneof=online offline"`
	MeetingLink string     `json:"meeting_link" validate:"omitempty,url"`
	Location    string     `json:"location" validate:"max=300"`
	Notes       string     `json:"notes" validate:"max=500"`
}

type UpdateStatusRequest struct {
	Status      string `json:"status" validate:"required,oneof=accepted rejected completed cancelled"`
	MeetingLink string `json:"meeting_link" validate:"omitempty,url"`
	Location    string `json:"location" validate:"max=300"`
	Reason      string `json:"reason" validate:"max=500"`
}

type FeedbackRequest struct {
	Rating  int    `json:"rating" validate:"required"`
	Comment string `json:"comment"`
}

func (h *SessionHandler) CreateSession(c *fiber.Ctx) error {
	identity, err := IdentityFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}

	var request CreateSessionRequest
	if err := parseBody(c, &request); err != nil {
		return respondError(c, h.logger, err)
	}

	counterpart := request.TutorID
	if identity.Role == model.RoleTutor {
		counterpart = request.StudentID
	}
	if counterpart == nil {
		return respondError(c, h.logger, fmt.Errorf("%w: counterpart id is required", service.ErrValidation))
	}

	result, err := h.sessionService.CreateSession(c.UserContext(), identity, service.CreateSessionDTO{
		CounterpartID: *counterpart,
		StartTime:     request.StartTime,
		EndTime:       request.EndTime,
		Subject:       request.Subject,
		MeetingType:   model.MeetingType(request.MeetingType),
		MeetingLink:   request.MeetingLink,
		Location:      request.Location,
		Notes:         request.Notes,
	})
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *SessionHandler) GetSession(c *fiber.Ctx) error {
	identity, err := IdentityFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	session, err := h.sessionService.GetSession(c.UserContext(), identity, id)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusOK).JSON(session)
}

// ListSessions accepts ?status=pending,accepted to narrow the listing.
func (h *SessionHandler) ListSessions(c *fiber.Ctx) error {
	identity, err := IdentityFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}

	var statuses []model.Status
	for _, raw := range splitQuery(c.Query("status")) {
		status, ok := model.ParseStatus(raw)
		if !ok {
			return respondError(c, h.logger, fmt.Errorf("%w: unknown status %q", service.ErrValidation, raw))
		}
		statuses = append(statuses, status)
	}

	page, limit := pageParams(c)
	result, err := h.sessionService.ListSessions(c.UserContext(), identity, statuses, page, limit)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *SessionHandler) ListRequests(c *fiber.Ctx) error {
	identity, err := IdentityFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}

	page, limit := pageParams(c)
	result, err := h.sessionService.ListRequests(c.UserContext(), identity, page, limit)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *SessionHandler) ListHistory(c *fiber.Ctx) error {
	identity, err := IdentityFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}

	page, limit := pageParams(c)
	result, err := h.sessionService.ListHistory(c.UserContext(), identity, page, limit)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *SessionHandler) UpdateStatus(c *fiber.Ctx) error {
	identity, err := IdentityFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	var request UpdateStatusRequest
	if err := parseBody(c, &request); err != nil {
		return respondError(c, h.logger, err)
	}

	ctx := c.UserContext()
	var result *service.SessionResult
	switch model.Status(request.Status) {
	case model.StatusAccepted:
		result, err = h.sessionService.AcceptSession(ctx, identity, id, service.MeetingDetails{
			MeetingLink: request.MeetingLink,
			Location:    request.Location,
		})
	case model.StatusRejected:
		result, err = h.sessionService.RejectSession(ctx, identity, id, request.Reason)
	case model.StatusCompleted:
		result, err = h.sessionService.CompleteSession(ctx, identity, id)
	case model.StatusCancelled:
		result, err = h.sessionService.CancelSession(ctx, identity, id, request.Reason)
	}
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *SessionHandler) AddFeedback(c *fiber.Ctx) error {
	identity, err := IdentityFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	var request FeedbackRequest
	if err := parseBody(c, &request); err != nil {
		return respondError(c, h.logger, err)
	}

	result, err := h.sessionService.AddFeedback(c.UserContext(), identity, id, request.Rating, request.Comment)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

func (h *SessionHandler) DeleteSession(c *fiber.Ctx) error {
	identity, err := IdentityFromCtx(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid user claims"})
	}
	id, err := paramID(c, "id")
	if err != nil {
		return respondError(c, h.logger, err)
	}

	if _, err := h.sessionService.DeleteSession(c.UserContext(), identity, id); err != nil {
		return respondError(c, h.logger, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "Session deleted successfully"})
}
