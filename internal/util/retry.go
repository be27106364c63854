package util

import (
	"context"
	"fmt"
	"time"
)

// Backoff retries an operation with exponentially growing delays. Delays
// double from BaseDelay up to MaxDelay; a zero MaxDelay leaves them uncapped.
type Backoff struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// Do runs fn until it succeeds or Attempts is exhausted, sleeping between
// failures. Cancelling ctx during a sleep aborts with ctx.Err(). On
// exhaustion the returned error wraps the last failure.
func (b Backoff) Do(ctx context.Context, fn func() error) error {
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := b.BaseDelay

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if b.MaxDelay > 0 && delay > b.MaxDelay {
			delay = b.MaxDelay
		}
	}
	return fmt.Errorf("after %d attempts: %w", attempts, err)
}

// Retry runs fn with uncapped exponential backoff starting at baseDelay.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	return Backoff{Attempts: maxAttempts, BaseDelay: baseDelay}.Do(ctx, fn)
}
