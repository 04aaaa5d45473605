package service

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/quill-app/quill/internal/domain"
	"github.com/quill-app/quill/internal/repository"
)

func TestStats_Summary(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	usage := NewUsageService(repo, testLogger())
	svc := NewStatsService(allowAll(), usage, testLogger())

	userID := uuid.New()
	month := domain.CurrentMonth()
	for i := 0; i < 4; i++ {
		if err := repo.IncrementUsage(ctx, userID, month, domain.CounterPersonalChatMessages); err != nil {
			t.Fatalf("IncrementUsage: %v", err)
		}
	}
	if err := repo.IncrementUsage(ctx, userID, month, domain.CounterPersonChatMessages); err != nil {
		t.Fatalf("IncrementUsage: %v", err)
	}
	if err := repo.IncrementUsage(ctx, userID, month, domain.CounterTranscriptions); err != nil {
		t.Fatalf("IncrementUsage: %v", err)
	}

	stats, err := svc.Summary(ctx, userID)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}

	if len(stats.Months) != StatisticsMonths {
		t.Fatalf("expected %d months, got %d", StatisticsMonths, len(stats.Months))
	}

	// Oldest first, current month last.
	current := stats.Months[len(stats.Months)-1]
	if current.Month != month {
		t.Errorf("expected last entry to be %s, got %s", month, current.Month)
	}
	if current.ChatMessages != 5 {
		t.Errorf("expected 5 chat messages (personal + person), got %d", current.ChatMessages)
	}
	if current.Transcriptions != 1 {
		t.Errorf("expected 1 transcription, got %d", current.Transcriptions)
	}
	if stats.TotalChatMessages != 5 {
		t.Errorf("expected total 5 chat messages, got %d", stats.TotalChatMessages)
	}

	// Viewing statistics is itself metered.
	after, err := repo.GetMonthlyUsage(ctx, userID, month)
	if err != nil {
		t.Fatalf("GetMonthlyUsage: %v", err)
	}
	if got := after.Get(domain.CounterStatisticsAccess); got != 1 {
		t.Errorf("expected statistics access recorded, got %d", got)
	}
}

func TestStats_Summary_PlanDenied(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	usage := NewUsageService(repo, testLogger())
	entitlement := &fakeEntitlement{decision: domain.Deny(domain.CounterStatisticsAccess, domain.DenyPlanNotIncluded, 0, 0)}
	svc := NewStatsService(entitlement, usage, testLogger())

	_, err := svc.Summary(ctx, uuid.New())
	if domain.ErrorCode(err) != domain.EPAYMENT {
		t.Errorf("expected %s, got %v", domain.EPAYMENT, err)
	}
}

func TestStats_Summary_MonthsAreDistinct(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	usage := NewUsageService(repo, testLogger())
	svc := NewStatsService(allowAll(), usage, testLogger())

	stats, err := svc.Summary(ctx, uuid.New())
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}

	seen := make(map[domain.MonthKey]bool)
	for _, m := range stats.Months {
		if seen[m.Month] {
			t.Errorf("month %s appears twice in summary", m.Month)
		}
		seen[m.Month] = true
	}
}
