// Package repository provides persistence for user profiles, sessions,
// people records, and the monthly usage ledger.
//
// Two implementations exist:
// - Postgres: production storage (pgx stdlib driver, goose migrations)
// - Memory: in-memory storage for tests and development
//
// Entitlement callers must treat any storage failure as a denial
// (fail-closed); failures are reported via ErrUnavailable so the service
// layer can distinguish them from quota denials.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/quill-app/quill/internal/domain"
)

// Errors
var (
	ErrNotFound    = errors.New("repository: not found")
	ErrEmailTaken  = errors.New("repository: email already registered")
	ErrUnavailable = errors.New("repository: store unavailable")
)

// ProfileStore persists user profiles and their subscription sub-record.
type ProfileStore interface {
	// CreateUser inserts a new user. Returns ErrEmailTaken if the email
	// is already registered.
	CreateUser(ctx context.Context, u *domain.User) error

	// GetUser fetches a user by internal id.
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetUserByEmail fetches a user by email.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetUserByStripeCustomerID is the reverse billing-ref lookup used by
	// the webhook reconciler; payloads identify the Stripe customer, not
	// the internal user id.
	GetUserByStripeCustomerID(ctx context.Context, customerID string) (*domain.User, error)

	// EnsureProfile creates a default free/inactive profile if none
	// exists for the id, and otherwise refreshes identity attributes
	// only. It never touches the subscription sub-record of an existing
	// profile, so repeated logins can never downgrade a paid user.
	EnsureProfile(ctx context.Context, id uuid.UUID, email, name string) error

	// MergeSubscription shallow-merges the non-nil patch fields over the
	// stored subscription sub-record and stamps updated_at, as a single
	// atomic store operation. Absent fields are preserved.
	MergeSubscription(ctx context.Context, id uuid.UUID, patch domain.SubscriptionPatch) error

	// SetStripeCustomerID records the billing customer ref for a user.
	SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error

	// MarkFirstPayment sets the one-way first-payment flag. Returns true
	// only when the flag was newly set; replays return false.
	MarkFirstPayment(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}

// UsageStore persists the per-user per-month usage ledger.
type UsageStore interface {
	// GetMonthlyUsage returns the counters for (user, month); a
	// zero-valued record when no usage has been recorded yet.
	GetMonthlyUsage(ctx context.Context, userID uuid.UUID, month domain.MonthKey) (domain.UsageCounters, error)

	// IncrementUsage atomically adds 1 to the named counter for the
	// month, creating the row if absent. Safe under concurrent
	// increments from the same user.
	IncrementUsage(ctx context.Context, userID uuid.UUID, month domain.MonthKey, counter domain.Counter) error
}

// SessionStore persists authenticated sessions (hashed tokens only).
type SessionStore interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	GetSessionByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	DeleteSessionByTokenHash(ctx context.Context, tokenHash string) error
	DeleteExpiredSessions(ctx context.Context) error
}

// PersonStore persists managed-person records.
type PersonStore interface {
	CreatePerson(ctx context.Context, p *domain.Person) error
	GetPerson(ctx context.Context, userID, id uuid.UUID) (*domain.Person, error)
	ListPeople(ctx context.Context, userID uuid.UUID) ([]domain.Person, error)
}

// Repository bundles all stores; both implementations satisfy it.
type Repository interface {
	ProfileStore
	UsageStore
	SessionStore
	PersonStore
}
