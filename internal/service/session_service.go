package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"schedule-service/internal/hub"
	"schedule-service/internal/logging"
	"schedule-service/internal/model"
	"schedule-service/internal/repository"
)

// CreateSessionDTO is a booking request. CounterpartID is the tutor when a
// student books and the student when a tutor books.
type CreateSessionDTO struct {
	CounterpartID uuid.UUID
	StartTime     time.Time
	EndTime       time.Time
	Subject       string
	MeetingType   model.MeetingType
	MeetingLink   string
	Location      string
	Notes         string
}

// SessionResult is returned by every mutating operation. Notification is nil
// when the session changed but the notification could not be recorded.
type SessionResult struct {
	Session      *model.Session      `json:"schedule"`
	Notification *model.Notification `json:"notification,omitempty"`
}

// SchedulePayload is the data of newSchedule, scheduleUpdated and newFeedback pushes.
type SchedulePayload struct {
	Schedule     *model.Session      `json:"schedule"`
	Notification *model.Notification `json:"notification,omitempty"`
}

type SessionService interface {
	CreateSession(ctx context.Context, actor model.Identity, dto CreateSessionDTO) (*SessionResult, error)
	GetSession(ctx context.Context, actor model.Identity, id uuid.UUID) (*model.Session, error)
	ListSessions(ctx context.Context, actor model.Identity, statuses []model.Status, page, limit int) (*repository.PaginatedSessions, error)
	ListRequests(ctx context.Context, actor model.Identity, page, limit int) (*repository.PaginatedSessions, error)
	ListHistory(ctx context.Context, actor model.Identity, page, limit int) (*repository.PaginatedSessions, error)
	AcceptSession(ctx context.Context, actor model.Identity, id uuid.UUID, details MeetingDetails) (*SessionResult, error)
	RejectSession(ctx context.Context, actor model.Identity, id uuid.UUID, reason string) (*SessionResult, error)
	CompleteSession(ctx context.Context, actor model.Identity, id uuid.UUID) (*SessionResult, error)
	CancelSession(ctx context.Context, actor model.Identity, id uuid.UUID, reason string) (*SessionResult, error)
	AddFeedback(ctx context.Context, actor model.Identity, id uuid.UUID, rating int, comment string) (*SessionResult, error)
	DeleteSession(ctx context.Context, actor model.Identity, id uuid.UUID) (*SessionResult, error)
}

type sessionService struct {
	sessions  repository.SessionRepository
	users     repository.UserRepository
	recorder  NotificationRecorder
	notifier  *Notifier
	lifecycle *Lifecycle
	logger    *zap.Logger
}

func NewSessionService(
	sessions repository.SessionRepository,
	users repository.UserRepository,
	recorder NotificationRecorder,
	notifier *Notifier,
	lifecycle *Lifecycle,
	logger *zap.Logger,
) SessionService {
	return &sessionService{
		sessions:  sessions,
		users:     users,
		recorder:  recorder,
		notifier:  notifier,
		lifecycle: lifecycle,
		logger:    logger.Named("sessions"),
	}
}

func (s *sessionService) CreateSession(ctx context.Context, actor model.Identity, dto CreateSessionDTO) (*SessionResult, error) {
	status, err := s.lifecycle.InitialStatus(actor.Role)
	if err != nil {
		return nil, err
	}

	session := &model.Session{
		StartTime:   dto.StartTime,
		EndTime:     dto.EndTime,
		Subject:     dto.Subject,
		MeetingType: dto.MeetingType,
		MeetingLink: dto.MeetingLink,
		Location:    dto.Location,
		Notes:       dto.Notes,
		Status:      status,
	}
	counterpartRole := model.RoleTutor
	if actor.Role == model.RoleStudent {
		session.StudentID, session.TutorID = actor.CallerID, dto.CounterpartID
	} else {
		session.TutorID, session.StudentID = actor.CallerID, dto.CounterpartID
		counterpartRole = model.RoleStudent
	}

	if err := s.lifecycle.ValidateNew(session); err != nil {
		return nil, err
	}

	counterpart, err := s.users.FindByID(ctx, dto.CounterpartID)
	if err != nil {
		return nil, persistence("find counterpart", err)
	}
	if counterpart == nil {
		return nil, notFoundf("%s %s", counterpartRole, dto.CounterpartID)
	}
	if counterpart.Role != counterpartRole {
		return nil, validationf("user %s is not a %s", dto.CounterpartID, counterpartRole)
	}

	candidate := IntervalOf(session)
	created, err := s.sessions.Create(ctx, session, func(active []model.Session) error {
		if existing, found := ParticipantConflict(active, session.TutorID, candidate); found {
			return conflictWith("tutor", existing)
		}
		if existing, found := ParticipantConflict(active, session.StudentID, candidate); found {
			return conflictWith("student", existing)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrOverlap) {
			return nil, fmt.Errorf("%w: the requested time overlaps another active session", ErrScheduleConflict)
		}
		return nil, persistence("create session", err)
	}

	logging.WithTrace(ctx, s.logger).Info("session created",
		zap.String("session_id", created.ID.String()),
		zap.String("status", string(created.Status)),
		zap.String("created_by", string(actor.Role)))

	title := "New session request"
	if actor.Role == model.RoleTutor {
		title = "New session booked"
	}
	return s.afterCommit(ctx, created, dto.CounterpartID, hub.EventNewSchedule, title,
		fmt.Sprintf("%s on %s", created.Subject, formatStart(created))), nil
}

func (s *sessionService) GetSession(ctx context.Context, actor model.Identity, id uuid.UUID) (*model.Session, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		return nil, persistence("find session", err)
	}
	if session == nil {
		return nil, notFoundf("session %s", id)
	}
	if !session.IsParticipant(actor.CallerID) && actor.Role != model.RoleAdmin {
		return nil, forbiddenf("not a participant of session %s", id)
	}
	return session, nil
}

// ListSessions returns the caller's sessions as tutor or student, soonest first.
func (s *sessionService) ListSessions(ctx context.Context, actor model.Identity, statuses []model.Status, page, limit int) (*repository.PaginatedSessions, error) {
	return s.list(ctx, actor, repository.SessionFilter{Statuses: statuses, Page: page, Limit: limit})
}

// ListRequests returns the pending requests addressed to a tutor.
func (s *sessionService) ListRequests(ctx context.Context, actor model.Identity, page, limit int) (*repository.PaginatedSessions, error) {
	if actor.Role != model.RoleTutor {
		return nil, forbiddenf("only tutors have session requests")
	}
	return s.list(ctx, actor, repository.SessionFilter{
		Statuses: []model.Status{model.StatusPending},
		Page:     page,
		Limit:    limit,
	})
}

// ListHistory returns finished sessions, most recent first.
func (s *sessionService) ListHistory(ctx context.Context, actor model.Identity, page, limit int) (*repository.PaginatedSessions, error) {
	return s.list(ctx, actor, repository.SessionFilter{
		Statuses:    []model.Status{model.StatusCompleted, model.StatusCancelled, model.StatusRejected},
		NewestFirst: true,
		Page:        page,
		Limit:       limit,
	})
}

func (s *sessionService) list(ctx context.Context, actor model.Identity, filter repository.SessionFilter) (*repository.PaginatedSessions, error) {
	if actor.Role != model.RoleTutor && actor.Role != model.RoleStudent {
		return nil, forbiddenf("role %q has no timetable", actor.Role)
	}
	filter.ParticipantID = actor.CallerID
	filter.Role = actor.Role

	result, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, persistence("list sessions", err)
	}
	return result, nil
}

func (s *sessionService) AcceptSession(ctx context.Context, actor model.Identity, id uuid.UUID, details MeetingDetails) (*SessionResult, error) {
	updated, err := s.transition(ctx, id, "accept", func(session *model.Session) error {
		return s.lifecycle.Accept(session, actor, details)
	})
	if err != nil {
		return nil, err
	}
	return s.afterCommit(ctx, updated, updated.StudentID, hub.EventScheduleUpdated, "Session accepted",
		fmt.Sprintf("Your %s session on %s was accepted", updated.Subject, formatStart(updated))), nil
}

func (s *sessionService) RejectSession(ctx context.Context, actor model.Identity, id uuid.UUID, reason string) (*SessionResult, error) {
	updated, err := s.transition(ctx, id, "reject", func(session *model.Session) error {
		return s.lifecycle.Reject(session, actor, reason)
	})
	if err != nil {
		return nil, err
	}
	return s.afterCommit(ctx, updated, updated.StudentID, hub.EventScheduleUpdated, "Session rejected",
		fmt.Sprintf("Your %s session on %s was rejected", updated.Subject, formatStart(updated))), nil
}

func (s *sessionService) CompleteSession(ctx context.Context, actor model.Identity, id uuid.UUID) (*SessionResult, error) {
	updated, err := s.transition(ctx, id, "complete", func(session *model.Session) error {
		return s.lifecycle.Complete(session, actor)
	})
	if err != nil {
		return nil, err
	}
	return s.afterCommit(ctx, updated, updated.StudentID, hub.EventScheduleUpdated, "Session completed",
		fmt.Sprintf("Your %s session is complete. Leave feedback for your tutor.", updated.Subject)), nil
}

func (s *sessionService) CancelSession(ctx context.Context, actor model.Identity, id uuid.UUID, reason string) (*SessionResult, error) {
	updated, err := s.transition(ctx, id, "cancel", func(session *model.Session) error {
		return s.lifecycle.Cancel(session, actor, reason)
	})
	if err != nil {
		return nil, err
	}
	return s.afterCommit(ctx, updated, updated.Counterpart(actor.CallerID), hub.EventScheduleUpdated, "Session cancelled",
		fmt.Sprintf("%s on %s was cancelled: %s", updated.Subject, formatStart(updated), updated.Notes)), nil
}

func (s *sessionService) AddFeedback(ctx context.Context, actor model.Identity, id uuid.UUID, rating int, comment string) (*SessionResult, error) {
	updated, err := s.transition(ctx, id, "feedback", func(session *model.Session) error {
		return s.lifecycle.AddFeedback(session, actor, rating, comment)
	})
	if err != nil {
		return nil, err
	}
	return s.afterCommit(ctx, updated, updated.TutorID, hub.EventNewFeedback, "New feedback",
		fmt.Sprintf("You received a %d star rating for %s", rating, updated.Subject)), nil
}

// DeleteSession lets the tutor withdraw a request before it has been accepted.
func (s *sessionService) DeleteSession(ctx context.Context, actor model.Identity, id uuid.UUID) (*SessionResult, error) {
	deleted, err := s.sessions.Delete(ctx, id, func(session *model.Session) error {
		return s.lifecycle.CanDelete(session, actor)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundf("session %s", id)
		}
		return nil, persistence("delete session", err)
	}

	logging.WithTrace(ctx, s.logger).Info("session deleted", zap.String("session_id", id.String()))
	return s.afterCommit(ctx, deleted, deleted.StudentID, hub.EventScheduleUpdated, "Session removed",
		fmt.Sprintf("%s on %s was removed by your tutor", deleted.Subject, formatStart(deleted))), nil
}

// transition runs apply under the store's row lock so concurrent transitions
// on the same session are serialized.
func (s *sessionService) transition(ctx context.Context, id uuid.UUID, op string, apply func(*model.Session) error) (*model.Session, error) {
	var from model.Status
	updated, err := s.sessions.Update(ctx, id, func(session *model.Session) error {
		from = session.Status
		return apply(session)
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, notFoundf("session %s", id)
		case errors.Is(err, repository.ErrDuplicate):
			return nil, ErrFeedbackExists
		}
		return nil, persistence(op+" session", err)
	}

	logging.WithTrace(ctx, s.logger).Info("session transitioned",
		zap.String("session_id", id.String()),
		zap.String("op", op),
		zap.String("from", string(from)),
		zap.String("to", string(updated.Status)))
	return updated, nil
}

// afterCommit records the recipient's notification and hands the realtime
// push and email to the side-effect queue. Nothing here fails the caller.
func (s *sessionService) afterCommit(ctx context.Context, session *model.Session, recipientID uuid.UUID, event, title, message string) *SessionResult {
	notification, err := s.recorder.Record(ctx, recipientID, model.NotificationSession, title, message, model.RelatedSession(session.ID))
	if err != nil {
		logging.WithTrace(ctx, s.logger).Warn("record session notification",
			zap.String("session_id", session.ID.String()), zap.Error(err))
		notification = nil
	}

	s.notifier.Push(recipientID, event, SchedulePayload{Schedule: session, Notification: notification})
	s.notifier.Email(recipientID, title, message)

	return &SessionResult{Session: session, Notification: notification}
}

func conflictWith(participant string, existing *model.Session) error {
	return fmt.Errorf("%w: %s already has a session from %s to %s", ErrScheduleConflict, participant,
		existing.StartTime.UTC().Format(time.RFC3339), existing.EndTime.UTC().Format(time.RFC3339))
}

func formatStart(session *model.Session) string {
	return session.StartTime.UTC().Format("Mon, 02 Jan 2006 15:04 MST")
}
