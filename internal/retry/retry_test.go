package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSleep replaces the package sleep with a recorder for the duration of
// one test.
func stubSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var delays []time.Duration
	orig := sleep
	sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	t.Cleanup(func() { sleep = orig })
	return &delays
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	delays := stubSleep(t)

	calls := 0
	err := Do(context.Background(), "test_op", DefaultPolicy(), func(ctx context.Context) error {
		calls++
		if calls <= 2 {
			return errors.New("ThrottlingException: slow down")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls, "two failures then a success is three invocations")
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, *delays)
}

func TestDoNonRetryableFailsImmediately(t *testing.T) {
	delays := stubSleep(t)

	calls := 0
	terminal := errors.New("401 unauthorized")
	err := Do(context.Background(), "test_op", DefaultPolicy(), func(ctx context.Context) error {
		calls++
		return terminal
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "non-retryable errors must not consume retry budget")
	assert.Equal(t, terminal, err, "the original error is returned unwrapped")
	assert.Empty(t, *delays)
}

func TestDoExhaustionReturnsLastError(t *testing.T) {
	delays := stubSleep(t)

	policy := DefaultPolicy()
	policy.MaxRetries = 2

	calls := 0
	last := errors.New("503 service unavailable (final)")
	err := Do(context.Background(), "test_op", policy, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("503 service unavailable (attempt %d)", calls)
		}
		return last
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, last, "exhaustion surfaces the last observed failure")
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Len(t, *delays, 2)
}

func TestDoBackoffSequence(t *testing.T) {
	// Retry policy {maxRetries: 2, base: 1s, max: 8s} on a
	// twice-failing-then-succeeding throttled call waits 1s then 2s.
	delays := stubSleep(t)

	policy := Policy{
		MaxRetries:      2,
		BaseDelay:       1000 * time.Millisecond,
		MaxDelay:        8000 * time.Millisecond,
		RetryableTokens: DefaultPolicy().RetryableTokens,
	}

	calls := 0
	err := Do(context.Background(), "throttled", policy, func(ctx context.Context) error {
		calls++
		if calls <= 2 {
			return errors.New("rate limit exceeded")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{1000 * time.Millisecond, 2000 * time.Millisecond}, *delays)
}

func TestDoContextCanceledDuringBackoff(t *testing.T) {
	orig := sleep
	sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}
	t.Cleanup(func() { sleep = orig })

	calls := 0
	err := Do(context.Background(), "test_op", DefaultPolicy(), func(ctx context.Context) error {
		calls++
		return errors.New("timeout talking to upstream")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDelay(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 8 * time.Second}, // capped
		{10, 8 * time.Second},
		{63, 8 * time.Second}, // would overflow without the cap check
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt_%d", tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.expected, Delay(tt.attempt, 1*time.Second, 8*time.Second))
		})
	}
}

func TestRetryable(t *testing.T) {
	tokens := DefaultPolicy().RetryableTokens

	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil error", nil, false},
		{"throttling exception", errors.New("ThrottlingException: rate exceeded"), true},
		{"service unavailable", errors.New("503 Service Unavailable"), true},
		{"rate limit text", errors.New("API rate limit hit"), true},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true},
		{"timeout", errors.New("request timeout after 60s"), true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("call failed: %w", context.DeadlineExceeded), true},
		{"unauthorized", errors.New("401 unauthorized"), false},
		{"validation", errors.New("invalid request body"), false},
		{"not found", errors.New("404 issue not found"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, Retryable(tt.err, tokens))
		})
	}
}
