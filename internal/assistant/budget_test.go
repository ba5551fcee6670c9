package assistant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBudgetStatus(t *testing.T) {
	b := NewBudget(1000, nil)
	require.NoError(t, b.CanProceed())

	assert.Equal(t, BudgetHealthy, b.Record(300, 200))
	assert.Equal(t, BudgetWarning, b.Record(250, 50))
	require.NoError(t, b.CanProceed())

	assert.Equal(t, BudgetExceeded, b.Record(150, 50))
	assert.ErrorIs(t, b.CanProceed(), ErrBudgetExceeded)

	stats := b.Stats()
	assert.Equal(t, int64(1000), stats.HourlyTokens)
	assert.Equal(t, int64(1000), stats.TotalTokens)
}

func TestBudgetWindowResets(t *testing.T) {
	now := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	b := NewBudget(100, nil)
	b.now = func() time.Time { return now }
	b.windowStart = now

	b.Record(80, 40)
	assert.ErrorIs(t, b.CanProceed(), ErrBudgetExceeded)

	now = now.Add(59 * time.Minute)
	assert.ErrorIs(t, b.CanProceed(), ErrBudgetExceeded)

	now = now.Add(2 * time.Minute)
	require.NoError(t, b.CanProceed())
	stats := b.Stats()
	assert.Equal(t, BudgetHealthy, stats.Status)
	assert.Zero(t, stats.HourlyTokens)
	assert.Equal(t, int64(120), stats.TotalTokens)
}

func TestUnlimitedBudget(t *testing.T) {
	b := NewBudget(0, nil)
	assert.Equal(t, BudgetHealthy, b.Record(1_000_000, 1_000_000))
	assert.NoError(t, b.CanProceed())
}

func TestBudgetStatusString(t *testing.T) {
	assert.Equal(t, "HEALTHY", BudgetHealthy.String())
	assert.Equal(t, "WARNING", BudgetWarning.String())
	assert.Equal(t, "EXCEEDED", BudgetExceeded.String())
	assert.Equal(t, "UNKNOWN(7)", BudgetStatus(7).String())
}
