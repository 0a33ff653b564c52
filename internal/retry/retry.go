// Package retry provides exponential-backoff retry for remote calls.
//
// Every operation passed to Do must be safe to invoke more than once with
// the same observable effect as invoking it once. Do does not enforce this;
// it is a caller obligation, and callers that cannot meet it accept
// duplicate side effects under retry.
package retry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Policy configures retry behavior for one call site. A Policy is stateless:
// every Do invocation starts with a fresh attempt counter and nothing is
// retained between invocations.
type Policy struct {
	MaxRetries      int           // Retries after the first attempt (default: 3)
	BaseDelay       time.Duration // First backoff delay (default: 1s)
	MaxDelay        time.Duration // Backoff ceiling (default: 8s)
	RetryableTokens []string      // Substrings that mark an error transient
}

// DefaultPolicy returns the policy applied to all remote calls unless a
// call site overrides it: 3 retries, 1s base delay, 8s ceiling, and the
// standard throttling/unavailable/connection-reset/timeout signatures.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   8 * time.Second,
		RetryableTokens: []string{
			"ThrottlingException",
			"ServiceUnavailable",
			"service unavailable",
			"rate limit",
			"429",
			"500",
			"502",
			"503",
			"504",
			"bad gateway",
			"gateway timeout",
			"internal server error",
			"connection reset",
			"connection refused",
			"timeout",
			"temporary failure",
		},
	}
}

// sleep waits for d or until ctx is canceled. Swapped out in tests to
// observe backoff delays without real waiting.
var sleep = func(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do executes fn up to policy.MaxRetries+1 times, backing off exponentially
// between attempts. Non-retryable failures are returned immediately without
// consuming retry budget: a malformed request will not become well-formed by
// waiting. When every attempt fails, the last observed error is returned
// wrapped with the attempt count, not an aggregate.
func Do(ctx context.Context, operation string, policy Policy, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				fmt.Printf("%s succeeded after %d retries\n", operation, attempt)
			}
			return nil
		}
		lastErr = err

		if !Retryable(err, policy.RetryableTokens) {
			fmt.Fprintf(os.Stderr, "%s failed with non-retryable error: %v\n", operation, err)
			return err
		}

		if attempt == policy.MaxRetries {
			break
		}

		if ctx.Err() != nil {
			return fmt.Errorf("%s: context canceled: %w", operation, ctx.Err())
		}

		delay := Delay(attempt, policy.BaseDelay, policy.MaxDelay)
		fmt.Printf("%s failed (attempt %d/%d), retrying in %v: %v\n",
			operation, attempt+1, policy.MaxRetries+1, delay, err)

		if err := sleep(ctx, delay); err != nil {
			return fmt.Errorf("%s: context canceled during backoff: %w", operation, err)
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, policy.MaxRetries+1, lastErr)
}

// Delay computes min(base * 2^attempt, max). Attempt indexes from 0, so the
// first wait equals base.
func Delay(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max || d <= 0 {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Retryable reports whether err carries any of the transient-failure tokens
// in its string representation (case-insensitive). Context deadline
// expiration counts as transient. Everything else is terminal and must
// surface immediately.
func Retryable(err error, tokens []string) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, token := range tokens {
		if strings.Contains(msg, strings.ToLower(token)) {
			return true
		}
	}
	return false
}
