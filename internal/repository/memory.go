package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quill-app/quill/internal/domain"
)

// Memory is an in-memory repository for tests and development.
type Memory struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]*domain.User
	emails   map[string]uuid.UUID   // lower(email) -> user id
	usage    map[usageKey]*domain.UsageCounters
	sessions map[string]*domain.Session // token hash -> session
	people   map[uuid.UUID]*domain.Person
}

type usageKey struct {
	userID uuid.UUID
	month  domain.MonthKey
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		users:    make(map[uuid.UUID]*domain.User),
		emails:   make(map[string]uuid.UUID),
		usage:    make(map[usageKey]*domain.UsageCounters),
		sessions: make(map[string]*domain.Session),
		people:   make(map[uuid.UUID]*domain.Person),
	}
}

var _ Repository = (*Memory)(nil)

// =============================================================================
// ProfileStore
// =============================================================================

func (m *Memory) CreateUser(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, taken := m.emails[email]; taken {
		return ErrEmailTaken
	}
	cp := *u
	cp.Email = email
	m.users[u.ID] = &cp
	m.emails[email] = u.ID
	return nil
}

func (m *Memory) GetUser(_ context.Context, id uuid.UUID) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.emails[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *Memory) GetUserByStripeCustomerID(_ context.Context, customerID string) (*domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Subscription.StripeCustomerID == customerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) EnsureProfile(_ context.Context, id uuid.UUID, email, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if u, ok := m.users[id]; ok {
		// Existing profile: refresh identity only, subscription untouched.
		delete(m.emails, u.Email)
		u.Email = strings.ToLower(email)
		u.Name = name
		u.UpdatedAt = now
		m.emails[u.Email] = id
		return nil
	}
	u := &domain.User{
		ID:    id,
		Email: strings.ToLower(email),
		Name:  name,
		Subscription: domain.Subscription{
			Plan:   domain.PlanFree,
			Status: domain.SubscriptionStatusInactive,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.users[id] = u
	m.emails[u.Email] = id
	return nil
}

func (m *Memory) MergeSubscription(_ context.Context, id uuid.UUID, patch domain.SubscriptionPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	if patch.Plan != nil {
		u.Subscription.Plan = *patch.Plan
	}
	if patch.Status != nil {
		u.Subscription.Status = *patch.Status
	}
	if patch.StripeCustomerID != nil {
		u.Subscription.StripeCustomerID = *patch.StripeCustomerID
	}
	if patch.StripeSubID != nil {
		u.Subscription.StripeSubID = *patch.StripeSubID
	}
	if patch.CurrentPeriodEnd != nil {
		t := *patch.CurrentPeriodEnd
		u.Subscription.CurrentPeriodEnd = &t
	}
	if patch.CancelAtPeriodEnd != nil {
		u.Subscription.CancelAtPeriodEnd = *patch.CancelAtPeriodEnd
	}
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) SetStripeCustomerID(_ context.Context, id uuid.UUID, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Subscription.StripeCustomerID = customerID
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) MarkFirstPayment(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return false, ErrNotFound
	}
	if u.Subscription.FirstPaymentAt != nil {
		return false, nil
	}
	t := at
	u.Subscription.FirstPaymentAt = &t
	u.UpdatedAt = time.Now().UTC()
	return true, nil
}

// =============================================================================
// UsageStore
// =============================================================================

func (m *Memory) GetMonthlyUsage(_ context.Context, userID uuid.UUID, month domain.MonthKey) (domain.UsageCounters, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if u, ok := m.usage[usageKey{userID, month}]; ok {
		return *u, nil
	}
	return domain.UsageCounters{Month: month}, nil
}

func (m *Memory) IncrementUsage(_ context.Context, userID uuid.UUID, month domain.MonthKey, counter domain.Counter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := usageKey{userID, month}
	u, ok := m.usage[key]
	if !ok {
		u = &domain.UsageCounters{Month: month}
		m.usage[key] = u
	}
	u.Add(counter, 1)
	return nil
}

// =============================================================================
// SessionStore
// =============================================================================

func (m *Memory) CreateSession(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	m.sessions[s.TokenHash] = &cp
	return nil
}

func (m *Memory) GetSessionByTokenHash(_ context.Context, tokenHash string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[tokenHash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) DeleteSessionByTokenHash(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, tokenHash)
	return nil
}

func (m *Memory) DeleteExpiredSessions(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for hash, s := range m.sessions {
		if now.After(s.ExpiresAt) {
			delete(m.sessions, hash)
		}
	}
	return nil
}

// =============================================================================
// PersonStore
// =============================================================================

func (m *Memory) CreatePerson(_ context.Context, p *domain.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	m.people[p.ID] = &cp
	return nil
}

func (m *Memory) GetPerson(_ context.Context, userID, id uuid.UUID) (*domain.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.people[id]
	if !ok || p.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) ListPeople(_ context.Context, userID uuid.UUID) ([]domain.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var people []domain.Person
	for _, p := range m.people {
		if p.UserID == userID {
			people = append(people, *p)
		}
	}
	sort.Slice(people, func(i, j int) bool {
		return people[i].CreatedAt.Before(people[j].CreatedAt)
	})
	return people, nil
}
