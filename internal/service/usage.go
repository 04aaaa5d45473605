// Package service contains the business logic layer.
//
// This file implements the usage ledger service: per-user, per-calendar-
// month counters for metered actions.
package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/quill-app/quill/internal/domain"
	"github.com/quill-app/quill/internal/metrics"
	"github.com/quill-app/quill/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// UsageService tracks monthly usage of metered actions.
//
// Increments are only ever applied after the corresponding action has
// been judged permitted and has succeeded; quota is never charged for
// rejected or failed actions. The check -> perform -> record ordering is
// the caller's responsibility.
type UsageService interface {
	// GetMonthlyUsage returns the current month's counters for a user
	// (zero-valued if nothing has been recorded yet).
	GetMonthlyUsage(ctx context.Context, userID uuid.UUID) (domain.UsageCounters, error)

	// GetUsageForMonth returns the counters for a specific month.
	GetUsageForMonth(ctx context.Context, userID uuid.UUID, month domain.MonthKey) (domain.UsageCounters, error)

	// Record adds 1 to the named counter for the current month. The
	// increment is atomic at the store level.
	Record(ctx context.Context, userID uuid.UUID, counter domain.Counter) error
}

// =============================================================================
// Implementation
// =============================================================================

type usageService struct {
	usage  repository.UsageStore
	logger *slog.Logger
}

// NewUsageService creates a new UsageService.
func NewUsageService(usage repository.UsageStore, logger *slog.Logger) UsageService {
	return &usageService{usage: usage, logger: logger}
}

func (s *usageService) GetMonthlyUsage(ctx context.Context, userID uuid.UUID) (domain.UsageCounters, error) {
	return s.GetUsageForMonth(ctx, userID, domain.CurrentMonth())
}

func (s *usageService) GetUsageForMonth(ctx context.Context, userID uuid.UUID, month domain.MonthKey) (domain.UsageCounters, error) {
	const op = "usage.get_monthly"

	counters, err := s.usage.GetMonthlyUsage(ctx, userID, month)
	if err != nil {
		return domain.UsageCounters{}, domain.Unavailable(err, op)
	}
	return counters, nil
}

func (s *usageService) Record(ctx context.Context, userID uuid.UUID, counter domain.Counter) error {
	const op = "usage.record"

	if !counter.Valid() {
		return domain.Invalid(op, "unknown usage counter")
	}
	month := domain.CurrentMonth()
	if err := s.usage.IncrementUsage(ctx, userID, month, counter); err != nil {
		return domain.Unavailable(err, op)
	}

	metrics.UsageIncrements.WithLabelValues(string(counter)).Inc()
	s.logger.Debug("usage recorded",
		"user_id", userID,
		"counter", counter,
		"month", month,
	)
	return nil
}
