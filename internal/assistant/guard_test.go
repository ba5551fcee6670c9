package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func apiError(status int) error {
	return &anthropic.Error{
		StatusCode: status,
		Request:    httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil),
		Response:   &http.Response{StatusCode: status},
	}
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2,
		Timeout:           time.Second,
		FailureThreshold:  5,
		SuccessThreshold:  2,
		OpenTimeout:       time.Minute,
	}
}

func TestIsRetriableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", apiError(429), true},
		{"overloaded", apiError(529), true},
		{"server error", fmt.Errorf("wrapped: %w", apiError(502)), true},
		{"unauthorized", apiError(401), false},
		{"bad request", apiError(400), false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"unknown", errors.New("something odd"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetriableError(tt.err))
		})
	}
}

func TestGuardRetriesTransientErrors(t *testing.T) {
	g := NewGuard(fastRetry(), 1, 0, nil)
	calls := 0
	err := g.Do(context.Background(), "test", func(context.Context) error {
		calls++
		if calls < 3 {
			return apiError(503)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, CircuitClosed, g.Breaker().State())
}

func TestGuardStopsOnPermanentErrors(t *testing.T) {
	g := NewGuard(fastRetry(), 0, 0, nil)
	calls := 0
	err := g.Do(context.Background(), "test", func(context.Context) error {
		calls++
		return apiError(401)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestGuardGivesUpAfterMaxRetries(t *testing.T) {
	cfg := fastRetry()
	cfg.MaxRetries = 2
	g := NewGuard(cfg, 0, 0, nil)
	calls := 0
	err := g.Do(context.Background(), "test", func(context.Context) error {
		calls++
		return apiError(500)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	now := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(2, 1, time.Minute, nil)
	cb.now = func() time.Time { return now }

	require.NoError(t, cb.Allow())
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State())
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.ErrorIs(t, cb.Allow(), ErrCircuitOpen)

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Allow())
	assert.Equal(t, CircuitHalfOpen, cb.State())

	// a failed probe reopens
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestGuardFailsFastWhenOpen(t *testing.T) {
	cfg := fastRetry()
	cfg.FailureThreshold = 1
	cfg.MaxRetries = 0
	g := NewGuard(cfg, 0, 0, nil)

	require.Error(t, g.Do(context.Background(), "test", func(context.Context) error { return apiError(503) }))
	called := false
	err := g.Do(context.Background(), "test", func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "CLOSED", CircuitClosed.String())
	assert.Equal(t, "HALF_OPEN", CircuitHalfOpen.String())
	assert.Equal(t, "OPEN", CircuitOpen.String())
	assert.Equal(t, "UNKNOWN", CircuitState(9).String())
}
