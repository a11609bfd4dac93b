package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Retry defaults.
const (
	DefaultAttempts  = 3
	DefaultBaseDelay = 500 * time.Millisecond
)

// permanentError marks an error as non-retryable.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string {
	return e.err.Error()
}

func (e *permanentError) Unwrap() error {
	return e.err
}

// Permanent wraps err so [Retry] stops immediately instead of retrying.
// Use it for failures that cannot be cured by waiting, like a malformed
// request or a missing record.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retry runs fn up to attempts times, sleeping base, 2*base, 4*base, ...
// between attempts. It stops early when fn succeeds, returns a
// [Permanent] error, or ctx is cancelled. Zero attempts or base fall back
// to [DefaultAttempts] and [DefaultBaseDelay].
//
// The returned error is the last attempt's error, wrapped with the attempt
// count.
func Retry(ctx context.Context, name string, attempts int, base time.Duration, fn func(context.Context) error) error {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	if base <= 0 {
		base = DefaultBaseDelay
	}

	var lastErr error
	delay := base
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("resilience: %s: %w", name, err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if attempt == attempts {
			break
		}

		slog.Warn("retrying after failure",
			"name", name,
			"attempt", attempt,
			"delay", delay,
			"error", lastErr,
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("resilience: %s: %w", name, ctx.Err())
		}
		delay *= 2
	}

	return fmt.Errorf("resilience: %s failed after %d attempts: %w", name, attempts, lastErr)
}
