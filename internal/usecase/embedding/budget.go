// Package embedding meters embedding calls against a daily token budget.
package embedding

import (
	"fmt"
	"sync"
	"time"

	"github.com/kailas-cloud/geoquery/internal/domain"
)

// BudgetAction defines behavior when the token budget is exceeded.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but allows the request.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject blocks the request.
	BudgetActionReject BudgetAction = "reject"
)

// Budget tracks tokens spent in the current UTC day. A zero limit means unlimited.
type Budget struct {
	mu       sync.Mutex
	limit    int64
	used     int64
	action   BudgetAction
	dayStart time.Time
	now      func() time.Time
}

// NewBudget creates a daily budget. Unknown actions fall back to reject.
func NewBudget(limit int64, action BudgetAction) *Budget {
	if action != BudgetActionWarn {
		action = BudgetActionReject
	}
	b := &Budget{limit: limit, action: action, now: time.Now}
	b.dayStart = truncateToDay(b.now())
	return b
}

// Check returns ErrBudgetExceeded when the day's tokens are spent and the
// action is reject. Exceeded reports the overrun regardless of action.
func (b *Budget) Check() (exceeded bool, err error) {
	if b == nil || b.limit <= 0 {
		return false, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()

	if b.used < b.limit {
		return false, nil
	}
	if b.action == BudgetActionWarn {
		return true, nil
	}
	return true, fmt.Errorf("%d of %d daily tokens used: %w", b.used, b.limit, domain.ErrBudgetExceeded)
}

// Record adds spent tokens.
func (b *Budget) Record(tokens int64) {
	if b == nil || tokens <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	b.used += tokens
}

// Remaining returns the tokens left today, or -1 when unlimited.
func (b *Budget) Remaining() int64 {
	if b == nil || b.limit <= 0 {
		return -1
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollLocked()
	return max(b.limit-b.used, 0)
}

func (b *Budget) rollLocked() {
	day := truncateToDay(b.now())
	if day.After(b.dayStart) {
		b.dayStart = day
		b.used = 0
	}
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
