// Package service contains the business logic layer.
//
// This file implements the entitlement evaluator: the single authority
// on "is this user allowed to do X right now". It combines the stored
// subscription, the plan catalog, and the usage ledger.
package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/quill-app/quill/internal/domain"
	"github.com/quill-app/quill/internal/metrics"
	"github.com/quill-app/quill/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// PlanOverview bundles everything a client needs to render plan state.
type PlanOverview struct {
	Plan   domain.Plan          `json:"plan"`   // effective plan
	Stored domain.Subscription  `json:"stored"` // raw subscription record
	Limits domain.Limits        `json:"limits"`
	Usage  domain.UsageCounters `json:"usage"`
}

// EntitlementService answers entitlement questions for the current user.
//
// Gating fails closed: when the profile or usage store cannot be read,
// metered actions are denied with an EUNAVAILABLE error rather than
// allowed on a guessed plan. Handlers call Check before performing a
// metered action and UsageService.Record only after it succeeds, so a
// failed action never consumes quota.
type EntitlementService interface {
	// EffectivePlan resolves the plan the user is entitled to right now.
	// A paid plan whose subscription status is not active collapses to
	// the free tier; the stored plan value is left untouched.
	EffectivePlan(ctx context.Context, userID uuid.UUID) (domain.Plan, error)

	// CanUseFeature reports whether the effective plan includes a
	// boolean (non-metered) feature.
	CanUseFeature(ctx context.Context, userID uuid.UUID, feature domain.Feature) (bool, error)

	// Check decides whether the user may perform one more metered
	// action. Expected denials (quota exhausted, feature not in plan)
	// come back as a Decision with Allowed=false and a nil error; the
	// error is non-nil only for infrastructure failures.
	//
	// A zero cap denies without reading usage at all, so plan-level
	// exclusions keep working even when the usage store is down.
	Check(ctx context.Context, userID uuid.UUID, counter domain.Counter) (domain.Decision, error)

	// Overview returns the effective plan, its limits, and the current
	// month's usage in one call.
	Overview(ctx context.Context, userID uuid.UUID) (*PlanOverview, error)
}

// =============================================================================
// Implementation
// =============================================================================

type entitlementService struct {
	catalog domain.Catalog
	repo    repository.ProfileStore
	usage   UsageService
	logger  *slog.Logger
}

// NewEntitlementService creates a new EntitlementService.
func NewEntitlementService(catalog domain.Catalog, repo repository.ProfileStore, usage UsageService, logger *slog.Logger) EntitlementService {
	return &entitlementService{
		catalog: catalog,
		repo:    repo,
		usage:   usage,
		logger:  logger,
	}
}

func (s *entitlementService) EffectivePlan(ctx context.Context, userID uuid.UUID) (domain.Plan, error) {
	const op = "entitlement.effective_plan"

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", domain.NotFound(op, "user", userID.String())
		}
		return "", domain.Unavailable(err, op)
	}
	return user.EffectivePlan(), nil
}

func (s *entitlementService) CanUseFeature(ctx context.Context, userID uuid.UUID, feature domain.Feature) (bool, error) {
	plan, err := s.EffectivePlan(ctx, userID)
	if err != nil {
		return false, err
	}
	return s.catalog.Limits(plan).FeatureEnabled(feature), nil
}

func (s *entitlementService) Check(ctx context.Context, userID uuid.UUID, counter domain.Counter) (domain.Decision, error) {
	const op = "entitlement.check"

	if !counter.Valid() {
		return domain.Decision{Counter: counter}, domain.Invalid(op, "unknown usage counter")
	}

	plan, err := s.EffectivePlan(ctx, userID)
	if err != nil {
		return domain.Decision{Counter: counter}, err
	}
	cap := int64(s.catalog.Limits(plan).CapFor(counter))

	// Feature not in the plan: deny before touching the usage store.
	if cap == domain.QuotaDisabled {
		s.observe(counter, "denied_plan")
		return domain.Deny(counter, domain.DenyPlanNotIncluded, 0, cap), nil
	}

	// Unlimited: nothing to count against.
	if cap == domain.QuotaUnlimited {
		s.observe(counter, "allowed")
		return domain.Allow(counter, 0, cap), nil
	}

	usage, err := s.usage.GetMonthlyUsage(ctx, userID)
	if err != nil {
		s.observe(counter, "unavailable")
		return domain.Decision{Counter: counter}, err
	}

	used := usage.Get(counter)
	if used >= cap {
		s.observe(counter, "denied_quota")
		return domain.Deny(counter, domain.DenyQuotaExceeded, used, cap), nil
	}

	s.observe(counter, "allowed")
	return domain.Allow(counter, used, cap), nil
}

func (s *entitlementService) Overview(ctx context.Context, userID uuid.UUID) (*PlanOverview, error) {
	const op = "entitlement.overview"

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(op, "user", userID.String())
		}
		return nil, domain.Unavailable(err, op)
	}

	usage, err := s.usage.GetMonthlyUsage(ctx, userID)
	if err != nil {
		return nil, err
	}

	plan := user.EffectivePlan()
	return &PlanOverview{
		Plan:   plan,
		Stored: user.Subscription,
		Limits: s.catalog.Limits(plan),
		Usage:  usage,
	}, nil
}

func (s *entitlementService) observe(counter domain.Counter, outcome string) {
	metrics.EntitlementDecisions.WithLabelValues(string(counter), outcome).Inc()
}
