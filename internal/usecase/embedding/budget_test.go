package embedding

import (
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/geoquery/internal/domain"
)

func TestBudget_Unlimited(t *testing.T) {
	b := NewBudget(0, BudgetActionReject)
	b.Record(1_000_000)
	if exceeded, err := b.Check(); exceeded || err != nil {
		t.Fatalf("zero limit must be unlimited, got %v, %v", exceeded, err)
	}
	if b.Remaining() != -1 {
		t.Errorf("expected -1 for unlimited, got %d", b.Remaining())
	}

	var nilBudget *Budget
	if _, err := nilBudget.Check(); err != nil {
		t.Errorf("nil budget must pass: %v", err)
	}
}

func TestBudget_ResetsAtDayBoundary(t *testing.T) {
	now := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	b := NewBudget(100, BudgetActionReject)
	b.now = func() time.Time { return now }
	b.dayStart = truncateToDay(now)

	b.Record(100)
	if _, err := b.Check(); !errors.Is(err, domain.ErrBudgetExceeded) {
		t.Fatalf("expected ErrBudgetExceeded, got %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := b.Check(); err != nil {
		t.Fatalf("budget should reset on a new day: %v", err)
	}
	if b.Remaining() != 100 {
		t.Errorf("expected full budget after reset, got %d", b.Remaining())
	}
}

func TestNewBudget_UnknownActionRejects(t *testing.T) {
	b := NewBudget(1, BudgetAction("ignore"))
	b.Record(1)
	if _, err := b.Check(); !errors.Is(err, domain.ErrBudgetExceeded) {
		t.Fatalf("unknown action should reject, got %v", err)
	}
}
