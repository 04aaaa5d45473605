// Package service contains the business logic layer.
//
// This file implements diary statistics: activity summaries computed
// from the usage ledger. Viewing statistics is itself a gated, metered
// action (statistics_access).
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quill-app/quill/internal/domain"
)

// StatisticsMonths is how many trailing months a summary covers.
const StatisticsMonths = 6

// MonthActivity is one month's aggregated diary activity.
type MonthActivity struct {
	Month          domain.MonthKey `json:"month"`
	ChatMessages   int64           `json:"chatMessages"` // personal + person chat
	Transcriptions int64           `json:"transcriptions"`
	PeopleAdded    int64           `json:"peopleAdded"`
}

// Statistics is the user's activity summary.
type Statistics struct {
	Months              []MonthActivity `json:"months"` // oldest first
	TotalChatMessages   int64           `json:"totalChatMessages"`
	TotalTranscriptions int64           `json:"totalTranscriptions"`
}

// StatsService computes activity statistics for users whose plan
// includes them.
type StatsService interface {
	// Summary builds the trailing activity summary. Gated on the
	// statistics feature and metered against statistics_access.
	Summary(ctx context.Context, userID uuid.UUID) (*Statistics, error)
}

type statsService struct {
	entitlement EntitlementService
	usage       UsageService
	logger      *slog.Logger
}

// NewStatsService creates a new StatsService.
func NewStatsService(entitlement EntitlementService, usage UsageService, logger *slog.Logger) StatsService {
	return &statsService{entitlement: entitlement, usage: usage, logger: logger}
}

func (s *statsService) Summary(ctx context.Context, userID uuid.UUID) (*Statistics, error) {
	const op = "stats.summary"

	decision, err := s.entitlement.Check(ctx, userID, domain.CounterStatisticsAccess)
	if err != nil {
		return nil, err
	}
	if err := denialError(op, "Statistics", decision); err != nil {
		return nil, err
	}

	stats := &Statistics{Months: make([]MonthActivity, 0, StatisticsMonths)}
	now := time.Now().UTC()
	// Anchor to the first of the month so AddDate never normalizes a
	// short month into the wrong one.
	anchor := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for i := StatisticsMonths - 1; i >= 0; i-- {
		month := domain.MonthOf(anchor.AddDate(0, -i, 0))
		usage, err := s.usage.GetUsageForMonth(ctx, userID, month)
		if err != nil {
			return nil, err
		}

		chat := usage.PersonalChatMessages + usage.PersonChatMessages
		stats.Months = append(stats.Months, MonthActivity{
			Month:          month,
			ChatMessages:   chat,
			Transcriptions: usage.Transcriptions,
			PeopleAdded:    usage.PeopleManaged,
		})
		stats.TotalChatMessages += chat
		stats.TotalTranscriptions += usage.Transcriptions
	}

	if err := s.usage.Record(ctx, userID, domain.CounterStatisticsAccess); err != nil {
		s.logger.Error("failed to record statistics usage", "error", err, "user_id", userID)
	}
	return stats, nil
}
