// Package service contains the business logic layer.
//
// Services orchestrate interactions between the repository, external
// APIs, and domain logic. They are responsible for:
// - Input validation
// - Business rule enforcement
// - Error translation (repository errors -> domain errors)
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/quill-app/quill/internal/domain"
	"github.com/quill-app/quill/internal/repository"
)

// =============================================================================
// Configuration Constants
// =============================================================================

const (
	// BcryptCost is the cost factor for bcrypt password hashing.
	// Cost 12 provides good security (~250ms on modern hardware) while
	// being fast enough for login flows.
	BcryptCost = 12

	// SessionTokenBytes is the number of random bytes for session tokens.
	// 32 bytes = 256 bits of entropy; hex-encoded to 64 characters.
	SessionTokenBytes = 32

	// SessionDuration is how long a session remains valid.
	SessionDuration = 30 * 24 * time.Hour

	// MinPasswordLength is the minimum password length.
	MinPasswordLength = 8

	// MaxPasswordLength prevents DoS via bcrypt on very long passwords.
	// bcrypt has a 72-byte limit anyway, but we cap earlier for clarity.
	MaxPasswordLength = 72
)

// =============================================================================
// Interface Definition
// =============================================================================

// UserService defines the interface for user and session operations.
type UserService interface {
	// Register creates a new user account with a free/inactive profile.
	// Returns domain.ECONFLICT if email already exists.
	// Returns domain.EINVALID for validation errors.
	Register(ctx context.Context, params domain.RegisterParams) (*domain.User, error)

	// Login authenticates a user and creates a new session.
	// Returns domain.EUNAUTHORIZED for invalid credentials.
	Login(ctx context.Context, email, password string) (*domain.LoginResult, error)

	// Logout invalidates a session by its raw token.
	// Idempotent - calling with an invalid token is not an error.
	Logout(ctx context.Context, token string) error

	// GetByID retrieves a user by their ID.
	// Returns domain.ENOTFOUND if user does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetBySessionToken retrieves a user by their session token.
	// Returns domain.EUNAUTHORIZED if token is invalid or expired.
	GetBySessionToken(ctx context.Context, token string) (*domain.User, error)

	// SyncIdentity mirrors an identity-provider event onto the profile
	// store: creates a default free profile if absent, otherwise only
	// refreshes identity attributes. Safe to call on every login; it
	// never downgrades an existing paid subscription.
	SyncIdentity(ctx context.Context, id uuid.UUID, email, name string) error

	// UpdateStripeCustomer records the Stripe customer ref for a user.
	UpdateStripeCustomer(ctx context.Context, id uuid.UUID, customerID string) error

	// DeleteExpiredSessions removes all expired sessions.
	DeleteExpiredSessions(ctx context.Context) error
}

// =============================================================================
// Implementation
// =============================================================================

type userService struct {
	repo   repository.Repository
	logger *slog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(repo repository.Repository, logger *slog.Logger) UserService {
	return &userService{repo: repo, logger: logger}
}

func (s *userService) Register(ctx context.Context, params domain.RegisterParams) (*domain.User, error) {
	const op = "user.register"

	email := strings.ToLower(strings.TrimSpace(params.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.Invalid(op, "A valid email address is required")
	}
	if len(params.Password) < MinPasswordLength {
		return nil, domain.Invalid(op, "Password must be at least 8 characters")
	}
	if len(params.Password) > MaxPasswordLength {
		return nil, domain.Invalid(op, "Password is too long")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), BcryptCost)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to hash password")
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
		Name:         strings.TrimSpace(params.Name),
		Subscription: domain.Subscription{
			Plan:   domain.PlanFree,
			Status: domain.SubscriptionStatusInactive,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, domain.Conflict(op, "An account with this email already exists")
		}
		return nil, domain.Unavailable(err, op)
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

func (s *userService) Login(ctx context.Context, email, password string) (*domain.LoginResult, error) {
	const op = "user.login"

	user, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Burn a bcrypt comparison so a missing account takes as long
			// as a wrong password.
			_ = bcrypt.CompareHashAndPassword(
				[]byte("$2a$12$000000000000000000000uGyUWdrxhJbWbp7cLvnFvyyuOqRSKxOu"),
				[]byte(password))
			return nil, domain.Unauthorized(op, "Invalid email or password")
		}
		return nil, domain.Unavailable(err, op)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.Unauthorized(op, "Invalid email or password")
	}

	token, err := generateSessionToken()
	if err != nil {
		return nil, domain.Internal(err, op, "failed to generate session token")
	}

	session := &domain.Session{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: hashToken(token),
		ExpiresAt: time.Now().Add(SessionDuration),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, domain.Unavailable(err, op)
	}

	// Identity sync on every login; preserves any paid subscription.
	if err := s.repo.EnsureProfile(ctx, user.ID, user.Email, user.Name); err != nil {
		s.logger.Warn("identity sync failed on login", "error", err, "user_id", user.ID)
	}

	return &domain.LoginResult{User: user, Token: token}, nil
}

func (s *userService) Logout(ctx context.Context, token string) error {
	const op = "user.logout"
	if err := s.repo.DeleteSessionByTokenHash(ctx, hashToken(token)); err != nil {
		return domain.Unavailable(err, op)
	}
	return nil
}

func (s *userService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	const op = "user.get"
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(op, "user", id.String())
		}
		return nil, domain.Unavailable(err, op)
	}
	return user, nil
}

func (s *userService) GetBySessionToken(ctx context.Context, token string) (*domain.User, error) {
	const op = "user.get_by_session"

	session, err := s.repo.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.Unauthorized(op, "Invalid or expired session")
		}
		return nil, domain.Unavailable(err, op)
	}
	if session.IsExpired() {
		_ = s.repo.DeleteSessionByTokenHash(ctx, session.TokenHash)
		return nil, domain.Unauthorized(op, "Invalid or expired session")
	}

	user, err := s.repo.GetUser(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.Unauthorized(op, "Invalid or expired session")
		}
		return nil, domain.Unavailable(err, op)
	}
	return user, nil
}

func (s *userService) SyncIdentity(ctx context.Context, id uuid.UUID, email, name string) error {
	const op = "user.sync_identity"
	if err := s.repo.EnsureProfile(ctx, id, email, name); err != nil {
		return domain.Unavailable(err, op)
	}
	return nil
}

func (s *userService) UpdateStripeCustomer(ctx context.Context, id uuid.UUID, customerID string) error {
	const op = "user.update_stripe_customer"
	if err := s.repo.SetStripeCustomerID(ctx, id, customerID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NotFound(op, "user", id.String())
		}
		return domain.Unavailable(err, op)
	}
	return nil
}

func (s *userService) DeleteExpiredSessions(ctx context.Context) error {
	const op = "user.delete_expired_sessions"
	if err := s.repo.DeleteExpiredSessions(ctx); err != nil {
		return domain.Unavailable(err, op)
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

// generateSessionToken creates a cryptographically secure session token.
func generateSessionToken() (string, error) {
	b := make([]byte, SessionTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// hashToken returns the SHA-256 hex digest of a raw session token.
// Only the hash is stored; a leaked sessions table reveals no tokens.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
