package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"schedule-service/internal/api"
	"schedule-service/internal/jwt"
	"schedule-service/internal/model"
	"schedule-service/internal/repository"
	"schedule-service/internal/service"
)

const testSecret = "test-secret"

type stubSessions struct {
	actor    model.Identity
	dto      service.CreateSessionDTO
	statuses []model.Status
	limit    int
	reason   string
	called   string
	result   *service.SessionResult
	err      error
}

func (s *stubSessions) CreateSession(ctx context.Context, actor model.Identity, dto service.CreateSessionDTO) (*service.SessionResult, error) {
	s.called, s.actor, s.dto = "create", actor, dto
	return s.result, s.err
}

func (s *stubSessions) GetSession(ctx context.Context, actor model.Identity, id uuid.UUID) (*model.Session, error) {
	s.called, s.actor = "get", actor
	if s.err != nil {
		return nil, s.err
	}
	return s.result.Session, nil
}

func (s *stubSessions) ListSessions(ctx context.Context, actor model.Identity, statuses []model.Status, page, limit int) (*repository.PaginatedSessions, error) {
	s.called, s.actor, s.statuses, s.limit = "list", actor, statuses, limit
	return &repository.PaginatedSessions{Data: []model.Session{}}, s.err
}

func (s *stubSessions) ListRequests(ctx context.Context, actor model.Identity, page, limit int) (*repository.PaginatedSessions, error) {
	s.called = "requests"
	return &repository.PaginatedSessions{Data: []model.Session{}}, s.err
}

func (s *stubSessions) ListHistory(ctx context.Context, actor model.Identity, page, limit int) (*repository.PaginatedSessions, error) {
	s.called = "history"
	return &repository.PaginatedSessions{Data: []model.Session{}}, s.err
}

func (s *stubSessions) AcceptSession(ctx context.Context, actor model.Identity, id uuid.UUID, details service.MeetingDetails) (*service.SessionResult, error) {
	s.called = "accept"
	return s.result, s.err
}

func (s *stubSessions) RejectSession(ctx context.Context, actor model.Identity, id uuid.UUID, reason string) (*service.SessionResult, error) {
	s.called, s.reason = "reject", reason
	return s.result, s.err
}

func (s *stubSessions) CompleteSession(ctx context.Context, actor model.Identity, id uuid.UUID) (*service.SessionResult, error) {
	s.called = "complete"
	return s.result, s.err
}

func (s *stubSessions) CancelSession(ctx context.Context, actor model.Identity, id uuid.UUID, reason string) (*service.SessionResult, error) {
	s.called, s.reason = "cancel", reason
	return s.result, s.err
}

func (s *stubSessions) AddFeedback(ctx context.Context, actor model.Identity, id uuid.UUID, rating int, comment string) (*service.SessionResult, error) {
	s.called = "feedback"
	return s.result, s.err
}

func (s *stubSessions) DeleteSession(ctx context.Context, actor model.Identity, id uuid.UUID) (*service.SessionResult, error) {
	s.called = "delete"
	return s.result, s.err
}

func newTestApp(t *testing.T, sessions *stubSessions, messages service.MessageService) *fiber.App {
	t.Helper()
	logger := zap.NewNop()
	return api.NewApp(api.RouterConfig{ServiceName: "schedule-service", JWTSecret: testSecret}, api.Handlers{
		Sessions:      api.NewSessionHandler(sessions, logger),
		Notifications: api.NewNotificationHandler(nil, logger),
		Messages:      api.NewMessageHandler(messages, logger),
		Devices:       api.NewDeviceHandler(nil, logger),
	}, logger)
}

func bearer(t *testing.T, id uuid.UUID, role model.Role) string {
	t.Helper()
	token, err := jwt.GenerateAccessToken(testSecret, id, role, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func doRequest(t *testing.T, app *fiber.App, method, path, auth string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	decoded := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp.StatusCode, decoded
}

func sampleResult(tutorID, studentID uuid.UUID, status model.Status) *service.SessionResult {
	start := time.Now().Add(24 * time.Hour)
	return &service.SessionResult{Session: &model.Session{
		ID:          uuid.New(),
		TutorID:     tutorID,
		StudentID:   studentID,
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		Subject:     "Algebra",
		MeetingType: model.MeetingOnline,
		Status:      status,
	}}
}

func TestAuthMiddleware(t *testing.T) {
	app := newTestApp(t, &stubSessions{}, nil)

	expired, err := jwt.GenerateAccessToken(testSecret, uuid.New(), model.RoleStudent, -time.Minute)
	require.NoError(t, err)
	foreign, err := jwt.GenerateAccessToken("other-secret", uuid.New(), model.RoleStudent, time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name  string
		auth  string
		error string
	}{
		{"missing header", "", "Missing authorization header"},
		{"wrong scheme", "Token abc", "Invalid authorization header format"},
		{"expired", "Bearer " + expired, "Token has expired"},
		{"wrong secret", "Bearer " + foreign, "Invalid token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := doRequest(t, app, http.MethodGet, "/v1/sessions", tc.auth, nil)
			require.Equal(t, fiber.StatusUnauthorized, status)
			require.Equal(t, tc.error, body["error"])
		})
	}
}

func TestHealthIsPublic(t *testing.T) {
	app := newTestApp(t, &stubSessions{}, nil)

	status, body := doRequest(t, app, http.MethodGet, "/health", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "ok", body["status"])
}

func TestCreateSession_StudentBooksTutor(t *testing.T) {
	studentID, tutorID := uuid.New(), uuid.New()
	stub := &stubSessions{result: sampleResult(tutorID, studentID, model.StatusPending)}
	app := newTestApp(t, stub, nil)

	start := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	status, body := doRequest(t, app, http.MethodPost, "/v1/sessions", bearer(t, studentID, model.RoleStudent), map[string]any{
		"tutor_id":     tutorID,
		"start_time":   start,
		"end_time":     start.Add(time.Hour),
		"subject":      "Algebra",
		"meeting_type": "online",
	})

	require.Equal(t, fiber.StatusCreated, status)
	require.Equal(t, "create", stub.called)
	require.Equal(t, studentID, stub.actor.CallerID)
	require.Equal(t, tutorID, stub.dto.CounterpartID)
	require.True(t, stub.dto.StartTime.Equal(start))
	schedule, ok := body["schedule"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "pending", schedule["status"])
}

func TestCreateSession_TutorMustNameStudent(t *testing.T) {
	stub := &stubSessions{}
	app := newTestApp(t, stub, nil)

	start := time.Now().Add(48 * time.Hour)
	status, body := doRequest(t, app, http.MethodPost, "/v1/sessions", bearer(t, uuid.New(), model.RoleTutor), map[string]any{
		"tutor_id":     uuid.New(),
		"start_time":   start,
		"end_time":     start.Add(time.Hour),
		"subject":      "Algebra",
		"meeting_type": "online",
	})

	require.Equal(t, fiber.StatusBadRequest, status)
	require.Equal(t, "Invalid input", body["error"])
	require.Empty(t, stub.called)
}

func TestCreateSession_RejectsInvalidBody(t *testing.T) {
	stub := &stubSessions{}
	app := newTestApp(t, stub, nil)

	start := time.Now().Add(48 * time.Hour)
	status, _ := doRequest(t, app, http.MethodPost, "/v1/sessions", bearer(t, uuid.New(), model.RoleStudent), map[string]any{
		"tutor_id":     uuid.New(),
		"start_time":   start,
		"end_time":     start.Add(time.Hour),
		"subject":      "Algebra",
		"meeting_type": "hybrid",
	})

	require.Equal(t, fiber.StatusBadRequest, status)
	require.Empty(t, stub.called)
}

func TestUpdateStatus_ErrorMapping(t *testing.T) {
	cases := []struct {
		err        error
		status     int
		hasDetails bool
	}{
		{fmt.Errorf("%w: only the addressed tutor", service.ErrForbidden), fiber.StatusForbidden, true},
		{fmt.Errorf("%w: session", service.ErrNotFound), fiber.StatusNotFound, true},
		{fmt.Errorf("%w: tutor is busy", service.ErrScheduleConflict), fiber.StatusConflict, true},
		{fmt.Errorf("%w: completed -> accepted", service.ErrInvalidTransition), fiber.StatusConflict, true},
		{fmt.Errorf("%w: meeting link", service.ErrValidation), fiber.StatusBadRequest, true},
		{fmt.Errorf("%w: update session: %v", service.ErrPersistence, errors.New("pq: connection reset")), fiber.StatusInternalServerError, false},
	}

	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			app := newTestApp(t, &stubSessions{err: tc.err}, nil)

			status, body := doRequest(t, app, http.MethodPatch, "/v1/sessions/"+uuid.NewString()+"/status",
				bearer(t, uuid.New(), model.RoleTutor), map[string]any{"status": "accepted", "meeting_link": "https://meet.example.com/x"})

			require.Equal(t, tc.status, status)
			_, ok := body["details"]
			require.Equal(t, tc.hasDetails, ok)
		})
	}
}

func TestUpdateStatus_DispatchesByTargetStatus(t *testing.T) {
	for target, op := range map[string]string{
		"accepted":  "accept",
		"rejected":  "reject",
		"completed": "complete",
		"cancelled": "cancel",
	} {
		t.Run(target, func(t *testing.T) {
			stub := &stubSessions{result: sampleResult(uuid.New(), uuid.New(), model.Status(target))}
			app := newTestApp(t, stub, nil)

			status, _ := doRequest(t, app, http.MethodPatch, "/v1/sessions/"+uuid.NewString()+"/status",
				bearer(t, uuid.New(), model.RoleTutor), map[string]any{"status": target, "reason": "schedule changed"})

			require.Equal(t, fiber.StatusOK, status)
			require.Equal(t, op, stub.called)
		})
	}
}

func TestUpdateStatus_RejectsUnknownTarget(t *testing.T) {
	stub := &stubSessions{}
	app := newTestApp(t, stub, nil)

	status, _ := doRequest(t, app, http.MethodPatch, "/v1/sessions/"+uuid.NewString()+"/status",
		bearer(t, uuid.New(), model.RoleTutor), map[string]any{"status": "upcoming"})

	require.Equal(t, fiber.StatusBadRequest, status)
	require.Empty(t, stub.called)
}

func TestGetSession_InvalidID(t *testing.T) {
	app := newTestApp(t, &stubSessions{}, nil)

	status, body := doRequest(t, app, http.MethodGet, "/v1/sessions/not-a-uuid", bearer(t, uuid.New(), model.RoleStudent), nil)
	require.Equal(t, fiber.StatusBadRequest, status)
	require.Contains(t, body["details"], "invalid id format")
}

func TestListSessions_StatusFilter(t *testing.T) {
	stub := &stubSessions{}
	app := newTestApp(t, stub, nil)
	auth := bearer(t, uuid.New(), model.RoleTutor)

	status, _ := doRequest(t, app, http.MethodGet, "/v1/sessions?status=pending,%20accepted", auth, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, []model.Status{model.StatusPending, model.StatusAccepted}, stub.statuses)

	status, _ = doRequest(t, app, http.MethodGet, "/v1/sessions?status=archived", auth, nil)
	require.Equal(t, fiber.StatusBadRequest, status)
}

func TestStaticRoutesWinOverID(t *testing.T) {
	stub := &stubSessions{}
	app := newTestApp(t, stub, nil)
	auth := bearer(t, uuid.New(), model.RoleTutor)

	status, _ := doRequest(t, app, http.MethodGet, "/v1/sessions/requests", auth, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "requests", stub.called)

	status, _ = doRequest(t, app, http.MethodGet, "/v1/sessions/history", auth, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "history", stub.called)
}

func TestDeleteSession(t *testing.T) {
	stub := &stubSessions{result: sampleResult(uuid.New(), uuid.New(), model.StatusPending)}
	app := newTestApp(t, stub, nil)

	status, body := doRequest(t, app, http.MethodDelete, "/v1/sessions/"+uuid.NewString(), bearer(t, uuid.New(), model.RoleTutor), nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "delete", stub.called)
	require.Equal(t, "Session deleted successfully", body["message"])
}

func TestGetSession_ReturnsSchedule(t *testing.T) {
	studentID := uuid.New()
	stub := &stubSessions{result: sampleResult(uuid.New(), studentID, model.StatusUpcoming)}
	app := newTestApp(t, stub, nil)

	status, body := doRequest(t, app, http.MethodGet, "/v1/sessions/"+stub.result.Session.ID.String(), bearer(t, studentID, model.RoleStudent), nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, "get", stub.called)
	require.Equal(t, stub.result.Session.ID.String(), body["id"])
	require.Equal(t, "upcoming", body["status"])
}

func TestListSessions_CapsLimit(t *testing.T) {
	stub := &stubSessions{}
	app := newTestApp(t, stub, nil)
	auth := bearer(t, uuid.New(), model.RoleStudent)

	status, _ := doRequest(t, app, http.MethodGet, "/v1/sessions?limit=1000000", auth, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, repository.MaxPageSize, stub.limit)

	status, _ = doRequest(t, app, http.MethodGet, "/v1/sessions", auth, nil)
	require.Equal(t, fiber.StatusOK, status)
	require.Equal(t, repository.DefaultPageSize, stub.limit)
}
