package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/campusdesk/appeal-service/internal/domain"
	"github.com/campusdesk/appeal-service/internal/notification"
	"github.com/campusdesk/appeal-service/internal/repository"
)

type memAppeals struct {
	mu        sync.Mutex
	rows      map[int64]domain.Appeal
	history   map[int64][]domain.AppealHistory
	nextID    int64
	nextMsgID int64
	conflicts int
	saveErr   error
	saves     int
}

func newMemAppeals() *memAppeals {
	return &memAppeals{rows: map[int64]domain.Appeal{}, history: map[int64][]domain.AppealHistory{}}
}

func cloneAppeal(a domain.Appeal) domain.Appeal {
	a.Messages = append([]domain.AppealMessage(nil), a.Messages...)
	a.Changes = nil
	return a
}

func (m *memAppeals) Create(_ context.Context, a *domain.Appeal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	a.Version = 1
	m.rows[a.ID] = cloneAppeal(*a)
	return nil
}

func (m *memAppeals) GetByID(_ context.Context, id int64) (*domain.Appeal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	a := cloneAppeal(row)
	return &a, nil
}

func (m *memAppeals) Save(_ context.Context, a *domain.Appeal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		return repository.ErrVersionConflict
	}
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.rows[a.ID].Version != a.Version {
		return repository.ErrVersionConflict
	}
	for _, msg := range a.PendingMessages() {
		m.nextMsgID++
		msg.ID = m.nextMsgID
		msg.AppealID = a.ID
	}
	m.history[a.ID] = append(m.history[a.ID], a.Changes...)
	a.Changes = nil
	a.Version++
	m.rows[a.ID] = cloneAppeal(*a)
	m.saves++
	return nil
}

func (m *memAppeals) ListWithFilter(_ context.Context, f repository.AppealFilter) ([]domain.Appeal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Appeal
	for _, a := range m.rows {
		if f.StudentID != nil && a.StudentID != *f.StudentID {
			continue
		}
		if f.UnassignedOnly && a.AssignedAdminID != nil {
			continue
		}
		out = append(out, cloneAppeal(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memAppeals) ListByAppeal(_ context.Context, appealID int64) ([]domain.AppealHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AppealHistory(nil), m.history[appealID]...), nil
}

type memUsers struct {
	mu    sync.Mutex
	users map[int64]domain.User
}

func newMemUsers(users ...domain.User) *memUsers {
	m := &memUsers{users: map[int64]domain.User{}}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUsers) Upsert(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.users[u.ID]; ok {
		existing.DisplayName = u.DisplayName
		m.users[u.ID] = existing
		*u = existing
		return nil
	}
	if u.Role == "" {
		u.Role = domain.RoleStudent
	}
	if u.Language == "" {
		u.Language = domain.DefaultLanguage
	}
	m.users[u.ID] = *u
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &u, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email != nil && *u.Email == email {
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memUsers) UpdateAccess(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[u.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	existing.Role = u.Role
	existing.Email = u.Email
	existing.PasswordHash = u.PasswordHash
	m.users[u.ID] = existing
	return nil
}

func (m *memUsers) ListByRoles(_ context.Context, roles ...domain.UserRole) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.User
	for _, u := range m.users {
		for _, r := range roles {
			if u.Role == r {
				out = append(out, u)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	requests []notification.Request
	fail     map[domain.NotificationEvent]error
	panics   map[domain.NotificationEvent]bool
}

func (r *recordingNotifier) CreateAndSend(_ context.Context, req notification.Request) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	if r.panics[req.Event] {
		panic("channel blew up")
	}
	if err := r.fail[req.Event]; err != nil {
		return nil, err
	}
	return &domain.Notification{UserID: req.UserID, Event: req.Event, Channel: req.Channel, Status: domain.NotificationSent}, nil
}

func (r *recordingNotifier) events() []domain.NotificationEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.NotificationEvent, len(r.requests))
	for i, req := range r.requests {
		out[i] = req.Event
	}
	return out
}

func (r *recordingNotifier) forEvent(e domain.NotificationEvent) []notification.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notification.Request
	for _, req := range r.requests {
		if req.Event == e {
			out = append(out, req)
		}
	}
	return out
}

var testNow = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
