package service

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/quill-app/quill/internal/domain"
	"github.com/quill-app/quill/internal/repository"
)

func TestUsage_RecordAndRead(t *testing.T) {
	ctx := context.Background()
	svc := NewUsageService(repository.NewMemory(), testLogger())

	userID := uuid.New()
	for i := 0; i < 3; i++ {
		if err := svc.Record(ctx, userID, domain.CounterTranscriptions); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	usage, err := svc.GetMonthlyUsage(ctx, userID)
	if err != nil {
		t.Fatalf("GetMonthlyUsage: %v", err)
	}
	if got := usage.Get(domain.CounterTranscriptions); got != 3 {
		t.Errorf("expected 3 transcriptions, got %d", got)
	}
	if usage.Month != domain.CurrentMonth() {
		t.Errorf("expected current month, got %s", usage.Month)
	}
}

func TestUsage_RecordInvalidCounter(t *testing.T) {
	ctx := context.Background()
	svc := NewUsageService(repository.NewMemory(), testLogger())

	err := svc.Record(ctx, uuid.New(), domain.Counter("page_views"))
	if domain.ErrorCode(err) != domain.EINVALID {
		t.Errorf("expected %s, got %v", domain.EINVALID, err)
	}
}

func TestUsage_UsersAreIsolated(t *testing.T) {
	ctx := context.Background()
	svc := NewUsageService(repository.NewMemory(), testLogger())

	a := uuid.New()
	b := uuid.New()
	if err := svc.Record(ctx, a, domain.CounterPersonalChatMessages); err != nil {
		t.Fatalf("Record: %v", err)
	}

	usage, err := svc.GetMonthlyUsage(ctx, b)
	if err != nil {
		t.Fatalf("GetMonthlyUsage: %v", err)
	}
	if got := usage.Get(domain.CounterPersonalChatMessages); got != 0 {
		t.Errorf("expected no usage for other user, got %d", got)
	}
}
