package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/quill-app/quill/internal/domain"
)

func newTestUser() *domain.User {
	now := time.Now().UTC()
	return &domain.User{
		ID:    uuid.New(),
		Email: "test@example.com",
		Name:  "Test User",
		Subscription: domain.Subscription{
			Plan:   domain.PlanFree,
			Status: domain.SubscriptionStatusInactive,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// =============================================================================
// ProfileStore
// =============================================================================

func TestMemory_CreateUser_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	u := newTestUser()
	if err := m.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	dup := newTestUser()
	dup.Email = "Test@Example.com" // different case, same address
	if err := m.CreateUser(ctx, dup); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
}

func TestMemory_GetUserByStripeCustomerID(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	u := newTestUser()
	u.Subscription.StripeCustomerID = "cus_123"
	if err := m.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := m.GetUserByStripeCustomerID(ctx, "cus_123")
	if err != nil {
		t.Fatalf("GetUserByStripeCustomerID: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("expected user %s, got %s", u.ID, got.ID)
	}

	if _, err := m.GetUserByStripeCustomerID(ctx, "cus_unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown customer, got %v", err)
	}
}

func TestMemory_EnsureProfile_CreatesDefault(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id := uuid.New()
	if err := m.EnsureProfile(ctx, id, "new@example.com", "New User"); err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}

	u, err := m.GetUser(ctx, id)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Subscription.Plan != domain.PlanFree {
		t.Errorf("expected free plan on new profile, got %s", u.Subscription.Plan)
	}
	if u.Subscription.Status != domain.SubscriptionStatusInactive {
		t.Errorf("expected inactive status on new profile, got %s", u.Subscription.Status)
	}
}

func TestMemory_EnsureProfile_NeverDowngradesSubscription(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	u := newTestUser()
	u.Subscription = domain.Subscription{
		Plan:             domain.PlanPro,
		Status:           domain.SubscriptionStatusActive,
		StripeCustomerID: "cus_123",
	}
	if err := m.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	// Repeat login sync with fresh identity attributes.
	if err := m.EnsureProfile(ctx, u.ID, "renamed@example.com", "Renamed"); err != nil {
		t.Fatalf("EnsureProfile: %v", err)
	}

	got, err := m.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Email != "renamed@example.com" {
		t.Errorf("expected refreshed email, got %s", got.Email)
	}
	if got.Name != "Renamed" {
		t.Errorf("expected refreshed name, got %s", got.Name)
	}
	if got.Subscription.Plan != domain.PlanPro {
		t.Errorf("subscription plan must survive identity sync, got %s", got.Subscription.Plan)
	}
	if got.Subscription.Status != domain.SubscriptionStatusActive {
		t.Errorf("subscription status must survive identity sync, got %s", got.Subscription.Status)
	}
	if got.Subscription.StripeCustomerID != "cus_123" {
		t.Errorf("customer ref must survive identity sync, got %s", got.Subscription.StripeCustomerID)
	}
}

func TestMemory_EnsureProfile_Idempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	id := uuid.New()
	for i := 0; i < 3; i++ {
		if err := m.EnsureProfile(ctx, id, "same@example.com", "Same"); err != nil {
			t.Fatalf("EnsureProfile call %d: %v", i+1, err)
		}
	}

	u, err := m.GetUser(ctx, id)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Email != "same@example.com" {
		t.Errorf("expected stable profile, got email %s", u.Email)
	}
}

func TestMemory_MergeSubscription_PreservesAbsentFields(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	periodEnd := time.Now().Add(30 * 24 * time.Hour).UTC()
	u := newTestUser()
	u.Subscription = domain.Subscription{
		Plan:             domain.PlanBasic,
		Status:           domain.SubscriptionStatusActive,
		StripeCustomerID: "cus_123",
		StripeSubID:      "sub_123",
		CurrentPeriodEnd: &periodEnd,
	}
	if err := m.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	// A status-only patch, as a renewal event would produce.
	status := domain.SubscriptionStatusPastDue
	if err := m.MergeSubscription(ctx, u.ID, domain.SubscriptionPatch{Status: &status}); err != nil {
		t.Fatalf("MergeSubscription: %v", err)
	}

	got, err := m.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Subscription.Status != domain.SubscriptionStatusPastDue {
		t.Errorf("expected patched status, got %s", got.Subscription.Status)
	}
	if got.Subscription.Plan != domain.PlanBasic {
		t.Errorf("plan should be preserved, got %s", got.Subscription.Plan)
	}
	if got.Subscription.StripeCustomerID != "cus_123" {
		t.Errorf("customer ref should be preserved, got %s", got.Subscription.StripeCustomerID)
	}
	if got.Subscription.StripeSubID != "sub_123" {
		t.Errorf("subscription ref should be preserved, got %s", got.Subscription.StripeSubID)
	}
	if got.Subscription.CurrentPeriodEnd == nil || !got.Subscription.CurrentPeriodEnd.Equal(periodEnd) {
		t.Errorf("period end should be preserved, got %v", got.Subscription.CurrentPeriodEnd)
	}
}

func TestMemory_MergeSubscription_UnknownUser(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	status := domain.SubscriptionStatusActive
	err := m.MergeSubscription(ctx, uuid.New(), domain.SubscriptionPatch{Status: &status})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemory_MarkFirstPayment_OneWay(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	u := newTestUser()
	if err := m.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	first := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	set, err := m.MarkFirstPayment(ctx, u.ID, first)
	if err != nil {
		t.Fatalf("MarkFirstPayment: %v", err)
	}
	if !set {
		t.Error("expected first call to set the flag")
	}

	// A replayed event must not move the timestamp.
	set, err = m.MarkFirstPayment(ctx, u.ID, first.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("MarkFirstPayment replay: %v", err)
	}
	if set {
		t.Error("expected replay to report already set")
	}

	got, err := m.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Subscription.FirstPaymentAt == nil || !got.Subscription.FirstPaymentAt.Equal(first) {
		t.Errorf("expected original first payment time %v, got %v", first, got.Subscription.FirstPaymentAt)
	}
}

// =============================================================================
// UsageStore
// =============================================================================

func TestMemory_GetMonthlyUsage_ZeroWhenAbsent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	month := domain.MonthKey("2026-03")
	usage, err := m.GetMonthlyUsage(ctx, uuid.New(), month)
	if err != nil {
		t.Fatalf("GetMonthlyUsage: %v", err)
	}
	if usage.Month != month {
		t.Errorf("expected month %s, got %s", month, usage.Month)
	}
	for _, c := range domain.Counters {
		if got := usage.Get(c); got != 0 {
			t.Errorf("expected zero %s for fresh month, got %d", c, got)
		}
	}
}

func TestMemory_IncrementUsage_MonthIsolation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	userID := uuid.New()

	march := domain.MonthKey("2026-03")
	april := domain.MonthKey("2026-04")

	for i := 0; i < 3; i++ {
		if err := m.IncrementUsage(ctx, userID, march, domain.CounterTranscriptions); err != nil {
			t.Fatalf("IncrementUsage: %v", err)
		}
	}
	if err := m.IncrementUsage(ctx, userID, april, domain.CounterTranscriptions); err != nil {
		t.Fatalf("IncrementUsage: %v", err)
	}

	marchUsage, err := m.GetMonthlyUsage(ctx, userID, march)
	if err != nil {
		t.Fatalf("GetMonthlyUsage: %v", err)
	}
	if got := marchUsage.Get(domain.CounterTranscriptions); got != 3 {
		t.Errorf("expected 3 in march, got %d", got)
	}

	aprilUsage, err := m.GetMonthlyUsage(ctx, userID, april)
	if err != nil {
		t.Fatalf("GetMonthlyUsage: %v", err)
	}
	if got := aprilUsage.Get(domain.CounterTranscriptions); got != 1 {
		t.Errorf("expected 1 in april, got %d", got)
	}
}

func TestMemory_IncrementUsage_Concurrent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	userID := uuid.New()
	month := domain.MonthKey("2026-03")

	const workers = 20
	const perWorker = 25

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				if err := m.IncrementUsage(ctx, userID, month, domain.CounterPersonalChatMessages); err != nil {
					t.Errorf("IncrementUsage: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	usage, err := m.GetMonthlyUsage(ctx, userID, month)
	if err != nil {
		t.Fatalf("GetMonthlyUsage: %v", err)
	}
	if got := usage.Get(domain.CounterPersonalChatMessages); got != workers*perWorker {
		t.Errorf("expected %d increments, got %d", workers*perWorker, got)
	}
}

// =============================================================================
// SessionStore
// =============================================================================

func TestMemory_DeleteExpiredSessions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	now := time.Now()
	live := &domain.Session{ID: uuid.New(), UserID: uuid.New(), TokenHash: "live", ExpiresAt: now.Add(time.Hour)}
	dead := &domain.Session{ID: uuid.New(), UserID: uuid.New(), TokenHash: "dead", ExpiresAt: now.Add(-time.Hour)}

	if err := m.CreateSession(ctx, live); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := m.CreateSession(ctx, dead); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := m.DeleteExpiredSessions(ctx); err != nil {
		t.Fatalf("DeleteExpiredSessions: %v", err)
	}

	if _, err := m.GetSessionByTokenHash(ctx, "live"); err != nil {
		t.Errorf("expected live session to survive, got %v", err)
	}
	if _, err := m.GetSessionByTokenHash(ctx, "dead"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected expired session to be removed, got %v", err)
	}
}

// =============================================================================
// PersonStore
// =============================================================================

func TestMemory_PersonOwnership(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	owner := uuid.New()
	other := uuid.New()

	p := &domain.Person{ID: uuid.New(), UserID: owner, Name: "Grandma", CreatedAt: time.Now().UTC()}
	if err := m.CreatePerson(ctx, p); err != nil {
		t.Fatalf("CreatePerson: %v", err)
	}

	if _, err := m.GetPerson(ctx, owner, p.ID); err != nil {
		t.Errorf("owner should read their person, got %v", err)
	}
	if _, err := m.GetPerson(ctx, other, p.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("other users must not see the person, got %v", err)
	}

	people, err := m.ListPeople(ctx, other)
	if err != nil {
		t.Fatalf("ListPeople: %v", err)
	}
	if len(people) != 0 {
		t.Errorf("expected empty list for other user, got %d", len(people))
	}
}

func TestMemory_ListPeople_OrderedByCreation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	owner := uuid.New()

	base := time.Now().UTC()
	names := []string{"First", "Second", "Third"}
	for i, name := range names {
		p := &domain.Person{ID: uuid.New(), UserID: owner, Name: name, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := m.CreatePerson(ctx, p); err != nil {
			t.Fatalf("CreatePerson: %v", err)
		}
	}

	people, err := m.ListPeople(ctx, owner)
	if err != nil {
		t.Fatalf("ListPeople: %v", err)
	}
	if len(people) != len(names) {
		t.Fatalf("expected %d people, got %d", len(names), len(people))
	}
	for i, name := range names {
		if people[i].Name != name {
			t.Errorf("position %d: expected %s, got %s", i, name, people[i].Name)
		}
	}
}
