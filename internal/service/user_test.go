package service

import (
	"context"
	"strings"
	"testing"

	"github.com/quill-app/quill/internal/domain"
	"github.com/quill-app/quill/internal/repository"
)

func registerParams() domain.RegisterParams {
	return domain.RegisterParams{
		Email:    "ada@example.com",
		Password: "correct horse battery",
		Name:     "Ada",
	}
}

func TestUser_Register(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(repository.NewMemory(), testLogger())

	user, err := svc.Register(ctx, registerParams())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Errorf("expected normalized email, got %q", user.Email)
	}
	if user.PasswordHash == "" || user.PasswordHash == "correct horse battery" {
		t.Error("expected password to be hashed")
	}
	if user.Subscription.Plan != domain.PlanFree {
		t.Errorf("expected free plan on registration, got %s", user.Subscription.Plan)
	}
	if user.EffectivePlan() != domain.PlanFree {
		t.Errorf("expected effective free plan, got %s", user.EffectivePlan())
	}
}

func TestUser_Register_NormalizesEmail(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(repository.NewMemory(), testLogger())

	params := registerParams()
	params.Email = "  Ada@Example.COM  "
	user, err := svc.Register(ctx, params)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "ada@example.com" {
		t.Errorf("expected lowercased trimmed email, got %q", user.Email)
	}
}

func TestUser_Register_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(repository.NewMemory(), testLogger())

	if _, err := svc.Register(ctx, registerParams()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	_, err := svc.Register(ctx, registerParams())
	if domain.ErrorCode(err) != domain.ECONFLICT {
		t.Errorf("expected %s, got %v", domain.ECONFLICT, err)
	}
}

func TestUser_Register_Validation(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(repository.NewMemory(), testLogger())

	tests := []struct {
		name   string
		mutate func(*domain.RegisterParams)
	}{
		{"missing email", func(p *domain.RegisterParams) { p.Email = "" }},
		{"not an email", func(p *domain.RegisterParams) { p.Email = "nope" }},
		{"short password", func(p *domain.RegisterParams) { p.Password = "short" }},
		{"long password", func(p *domain.RegisterParams) { p.Password = strings.Repeat("x", MaxPasswordLength+1) }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			params := registerParams()
			tc.mutate(&params)
			_, err := svc.Register(ctx, params)
			if domain.ErrorCode(err) != domain.EINVALID {
				t.Errorf("expected %s, got %v", domain.EINVALID, err)
			}
		})
	}
}

func TestUser_LoginAndSession(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(repository.NewMemory(), testLogger())

	registered, err := svc.Register(ctx, registerParams())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	result, err := svc.Login(ctx, "ada@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if result.Token == "" {
		t.Fatal("expected a session token")
	}

	user, err := svc.GetBySessionToken(ctx, result.Token)
	if err != nil {
		t.Fatalf("GetBySessionToken: %v", err)
	}
	if user.ID != registered.ID {
		t.Errorf("expected session to resolve to registered user")
	}

	if err := svc.Logout(ctx, result.Token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.GetBySessionToken(ctx, result.Token); domain.ErrorCode(err) != domain.EUNAUTHORIZED {
		t.Errorf("expected %s after logout, got %v", domain.EUNAUTHORIZED, err)
	}
}

func TestUser_Login_WrongPassword(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(repository.NewMemory(), testLogger())

	if _, err := svc.Register(ctx, registerParams()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	_, err := svc.Login(ctx, "ada@example.com", "wrong password")
	if domain.ErrorCode(err) != domain.EUNAUTHORIZED {
		t.Errorf("expected %s, got %v", domain.EUNAUTHORIZED, err)
	}
}

func TestUser_Login_UnknownEmail(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(repository.NewMemory(), testLogger())

	// Unknown accounts and wrong passwords must be indistinguishable.
	_, err := svc.Login(ctx, "ghost@example.com", "whatever password")
	if domain.ErrorCode(err) != domain.EUNAUTHORIZED {
		t.Errorf("expected %s, got %v", domain.EUNAUTHORIZED, err)
	}
}

func TestUser_Logout_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc := NewUserService(repository.NewMemory(), testLogger())

	if err := svc.Logout(ctx, "never-issued-token"); err != nil {
		t.Errorf("expected logout with unknown token to succeed, got %v", err)
	}
}

func TestUser_SyncIdentity_PreservesPaidSubscription(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	svc := NewUserService(repo, testLogger())

	user, err := svc.Register(ctx, registerParams())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	pro := domain.PlanPro
	active := domain.SubscriptionStatusActive
	if err := repo.MergeSubscription(ctx, user.ID, domain.SubscriptionPatch{Plan: &pro, Status: &active}); err != nil {
		t.Fatalf("MergeSubscription: %v", err)
	}

	if err := svc.SyncIdentity(ctx, user.ID, "ada@example.com", "Ada L."); err != nil {
		t.Fatalf("SyncIdentity: %v", err)
	}

	got, err := svc.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Name != "Ada L." {
		t.Errorf("expected refreshed name, got %q", got.Name)
	}
	if got.Subscription.Plan != domain.PlanPro || got.Subscription.Status != domain.SubscriptionStatusActive {
		t.Errorf("identity sync must not downgrade subscription, got %+v", got.Subscription)
	}
}
