package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"schedule-service/internal/dispatch"
	"schedule-service/internal/model"
	"schedule-service/internal/repository"
)

var errStoreDown = errors.New("connection refused")

// memorySessions behaves like the postgres repository: the guard and the
// overlap constraint run under one lock, and Update serializes per store.
type memorySessions struct {
	mu       sync.Mutex
	rows     map[uuid.UUID]*model.Session
	failNext error
	// blindGuard hides existing sessions from the guard so only the overlap
	// constraint can catch a double booking.
	blindGuard bool
}

func newMemorySessions() *memorySessions {
	return &memorySessions{rows: make(map[uuid.UUID]*model.Session)}
}

func (m *memorySessions) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *memorySessions) Create(ctx context.Context, session *model.Session, guard func(active []model.Session) error) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	var active []model.Session
	candidate := IntervalOf(session)
	for _, row := range m.rows {
		if !row.Status.IsActive() || !IntervalOf(row).Overlaps(candidate) {
			continue
		}
		if row.TutorID == session.TutorID || row.StudentID == session.StudentID {
			active = append(active, *row.Clone())
		}
	}

	seen := active
	if m.blindGuard {
		seen = nil
	}
	if err := guard(seen); err != nil {
		return nil, err
	}
	if len(active) > 0 && session.Status.IsActive() {
		return nil, repository.ErrOverlap
	}

	stored := session.Clone()
	stored.ID = uuid.New()
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	m.rows[stored.ID] = stored
	return stored.Clone(), nil
}

func (m *memorySessions) FindByID(ctx context.Context, id uuid.UUID) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	row, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return row.Clone(), nil
}

func (m *memorySessions) Update(ctx context.Context, id uuid.UUID, apply func(*model.Session) error) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	row, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	next := row.Clone()
	if err := apply(next); err != nil {
		return nil, err
	}
	if row.Feedback != nil && next.Feedback != nil && *row.Feedback != *next.Feedback {
		return nil, repository.ErrDuplicate
	}
	next.UpdatedAt = time.Now()
	m.rows[id] = next
	return next.Clone(), nil
}

func (m *memorySessions) Delete(ctx context.Context, id uuid.UUID, guard func(*model.Session) error) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	row, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if err := guard(row.Clone()); err != nil {
		return nil, err
	}
	delete(m.rows, id)
	return row, nil
}

func (m *memorySessions) List(ctx context.Context, filter repository.SessionFilter) (*repository.PaginatedSessions, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}

	var data []model.Session
	for _, row := range m.rows {
		owner := row.StudentID
		if filter.Role == model.RoleTutor {
			owner = row.TutorID
		}
		if owner != filter.ParticipantID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, row.Status) {
			continue
		}
		data = append(data, *row.Clone())
	}
	return &repository.PaginatedSessions{
		Data: data,
		Meta: repository.PaginationMeta{CurrentPage: 1, TotalItems: len(data)},
	}, nil
}

func (m *memorySessions) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func (m *memorySessions) get(id uuid.UUID) *model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id].Clone()
}

func (m *memorySessions) put(s *model.Session) *model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	m.rows[s.ID] = s.Clone()
	return s
}

func containsStatus(statuses []model.Status, status model.Status) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

type memoryUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*model.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: make(map[uuid.UUID]*model.User)}
}

func (m *memoryUsers) add(role model.Role) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := &model.User{ID: uuid.New(), Email: string(role) + "@example.com", Name: string(role), Role: role}
	m.users[u.ID] = u
	return u
}

func (m *memoryUsers) Create(ctx context.Context, user *model.User) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.ID = uuid.New()
	m.users[user.ID] = user
	return user.ID, nil
}

func (m *memoryUsers) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

type recordedNotification struct {
	RecipientID uuid.UUID
	Type        model.NotificationType
	Title       string
	Related     model.RelatedTo
}

type fakeRecorder struct {
	mu      sync.Mutex
	err     error
	records []recordedNotification
}

func (f *fakeRecorder) Record(ctx context.Context, recipientID uuid.UUID, typ model.NotificationType, title, message string, related model.RelatedTo) (*model.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.records = append(f.records, recordedNotification{RecipientID: recipientID, Type: typ, Title: title, Related: related})
	return &model.Notification{
		ID:          uuid.New(),
		RecipientID: recipientID,
		Type:        typ,
		Title:       title,
		Message:     message,
		RelatedTo:   related,
		CreatedAt:   time.Now(),
	}, nil
}

func (f *fakeRecorder) all() []recordedNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedNotification(nil), f.records...)
}

type push struct {
	UserID  uuid.UUID
	Event   string
	Payload any
}

type fakeHub struct {
	mu     sync.Mutex
	pushes []push
}

func (f *fakeHub) Push(userID uuid.UUID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, push{UserID: userID, Event: event, Payload: payload})
}

func (f *fakeHub) all() []push {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]push(nil), f.pushes...)
}

// inlineEffects runs side effects before Submit returns and swallows their
// errors the way the real queue does.
type inlineEffects struct {
	mu     sync.Mutex
	failed []string
}

func (e *inlineEffects) Submit(name string, task dispatch.Task) error {
	if err := task(context.Background()); err != nil {
		e.mu.Lock()
		e.failed = append(e.failed, name)
		e.mu.Unlock()
	}
	return nil
}

type fakePublisher struct {
	mu            sync.Mutex
	emailErr      error
	emails        []string
	notifications []uuid.UUID
}

func (f *fakePublisher) PublishNotificationCreated(n *model.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, n.ID)
	return nil
}

func (f *fakePublisher) PublishEmailRequested(to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emailErr != nil {
		return f.emailErr
	}
	f.emails = append(f.emails, to)
	return nil
}

func (f *fakePublisher) sentEmails() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.emails...)
}

type fixture struct {
	sessions  *memorySessions
	users     *memoryUsers
	recorder  *fakeRecorder
	hub       *fakeHub
	effects   *inlineEffects
	publisher *fakePublisher
	now       time.Time
	service   SessionService
}

func newFixture(profile Profile) *fixture {
	f := &fixture{
		sessions:  newMemorySessions(),
		users:     newMemoryUsers(),
		recorder:  &fakeRecorder{},
		hub:       &fakeHub{},
		effects:   &inlineEffects{},
		publisher: &fakePublisher{},
		now:       time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
	}
	notifier := NewNotifier(f.hub, f.effects, f.publisher, f.users, zap.NewNop())
	lifecycle := NewLifecycle(profile, func() time.Time { return f.now })
	f.service = NewSessionService(f.sessions, f.users, f.recorder, notifier, lifecycle, zap.NewNop())
	return f
}

func identityOf(u *model.User) model.Identity {
	return model.Identity{CallerID: u.ID, Role: u.Role}
}
