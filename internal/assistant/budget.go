package assistant

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BudgetStatus represents the current budget state
type BudgetStatus int

const (
	// BudgetHealthy is normal operation under the hourly limit
	BudgetHealthy BudgetStatus = iota
	// BudgetWarning means usage passed the alert threshold
	BudgetWarning
	// BudgetExceeded means the hourly limit is used up
	BudgetExceeded
)

func (s BudgetStatus) String() string {
	switch s {
	case BudgetHealthy:
		return "HEALTHY"
	case BudgetWarning:
		return "WARNING"
	case BudgetExceeded:
		return "EXCEEDED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// ErrBudgetExceeded is returned when the hourly token budget is used up
var ErrBudgetExceeded = errors.New("hourly token budget exceeded")

// BudgetStats is a snapshot of token usage
type BudgetStats struct {
	Status       BudgetStatus
	HourlyTokens int64
	HourlyLimit  int64
	TotalTokens  int64
	WindowStart  time.Time
}

// Budget caps the tokens all conversations of a process may spend per
// hour. A limit of zero disables it.
type Budget struct {
	mu  sync.Mutex
	log *zap.SugaredLogger
	now func() time.Time

	maxTokensPerHour int64
	alertThreshold   float64
	window           time.Duration

	windowStart  time.Time
	hourlyTokens int64
	totalTokens  int64
	warned       bool
}

// NewBudget creates a budget of maxTokensPerHour input plus output tokens
func NewBudget(maxTokensPerHour int64, log *zap.SugaredLogger) *Budget {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	b := &Budget{
		log:              log,
		now:              time.Now,
		maxTokensPerHour: maxTokensPerHour,
		alertThreshold:   0.8,
		window:           time.Hour,
	}
	b.windowStart = b.now()
	return b
}

// CanProceed returns ErrBudgetExceeded while the current window is used up
func (b *Budget) CanProceed() error {
	if b.maxTokensPerHour <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkAndResetWindow()
	if b.statusLocked() == BudgetExceeded {
		return fmt.Errorf("%w: %d of %d tokens used since %s", ErrBudgetExceeded,
			b.hourlyTokens, b.maxTokensPerHour, b.windowStart.Format(time.Kitchen))
	}
	return nil
}

// Record adds the tokens of one API call and returns the resulting status
func (b *Budget) Record(inputTokens, outputTokens int64) BudgetStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.checkAndResetWindow()
	used := inputTokens + outputTokens
	b.hourlyTokens += used
	b.totalTokens += used

	status := b.statusLocked()
	switch status {
	case BudgetWarning:
		if !b.warned {
			b.warned = true
			b.log.Warnw("assistant token budget nearly used", "used", b.hourlyTokens, "limit", b.maxTokensPerHour)
		}
	case BudgetExceeded:
		b.log.Warnw("assistant token budget exceeded", "used", b.hourlyTokens, "limit", b.maxTokensPerHour,
			"resets_at", b.windowStart.Add(b.window))
	}
	return status
}

// Stats returns the current usage
func (b *Budget) Stats() BudgetStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checkAndResetWindow()
	return BudgetStats{
		Status:       b.statusLocked(),
		HourlyTokens: b.hourlyTokens,
		HourlyLimit:  b.maxTokensPerHour,
		TotalTokens:  b.totalTokens,
		WindowStart:  b.windowStart,
	}
}

func (b *Budget) statusLocked() BudgetStatus {
	if b.maxTokensPerHour <= 0 {
		return BudgetHealthy
	}
	switch {
	case b.hourlyTokens >= b.maxTokensPerHour:
		return BudgetExceeded
	case float64(b.hourlyTokens) >= float64(b.maxTokensPerHour)*b.alertThreshold:
		return BudgetWarning
	default:
		return BudgetHealthy
	}
}

// must be called with lock held
func (b *Budget) checkAndResetWindow() {
	now := b.now()
	if now.Sub(b.windowStart) < b.window {
		return
	}
	if b.hourlyTokens > 0 {
		b.log.Debugw("assistant token budget window reset", "used", b.hourlyTokens)
	}
	b.windowStart = now
	b.hourlyTokens = 0
	b.warned = false
}
