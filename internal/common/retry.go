package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Veraticus/the-rent-must-flow/internal/service"
)

// ErrMaxRetries indicates that all retry attempts have been exhausted.
var ErrMaxRetries = errors.New("max retries exceeded")

// RetryableError marks an error as retryable or not, overriding IsRetryable.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string {
	return e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// backoff yields the wait before each retry.
type backoff struct {
	next       time.Duration
	max        time.Duration
	multiplier float64
}

func newBackoff(opts service.RetryOptions) backoff {
	b := backoff{next: opts.InitialDelay, max: opts.MaxDelay, multiplier: opts.Multiplier}
	if b.next <= 0 {
		b.next = 50 * time.Millisecond
	}
	if b.max <= 0 {
		b.max = time.Second
	}
	if b.multiplier <= 0 {
		b.multiplier = 2
	}
	return b
}

func (b *backoff) wait() time.Duration {
	d := min(b.next, b.max)
	b.next = time.Duration(float64(b.next) * b.multiplier)
	return d
}

// WithRetry runs operation until it succeeds, fails with an error IsRetryable
// rejects, or opts.MaxAttempts (default 2: one retry) is reached. Storage writes
// are re-run whole, so operation must re-read what it writes.
func WithRetry(ctx context.Context, operation func() error, opts service.RetryOptions) error {
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = 2
	}
	b := newBackoff(opts)

	var err error
	for attempt := 1; ; attempt++ {
		if err = operation(); err == nil || !IsRetryable(err) {
			return err
		}
		if attempt == attempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, attempts, err)
		}

		delay := b.wait()
		slog.Warn("Storage write failed, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(ctx.Err(), err)
		case <-timer.C:
		}
	}
}
