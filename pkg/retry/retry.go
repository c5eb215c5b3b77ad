// Package retry implements the backoff policy shared by every remote call
// in the pipeline: Figma API requests, asset downloads, and bucket uploads.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Retryable is implemented by errors that know whether another attempt
// can succeed. Errors that do not implement it are treated as permanent.
type Retryable interface {
	Retryable() bool
}

// Policy describes an exponential backoff schedule.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int

	// BaseDelay is the delay before the second attempt. Each further
	// attempt doubles it, capped at MaxDelay.
	BaseDelay time.Duration

	// MaxDelay caps the backoff. Zero means 30s.
	MaxDelay time.Duration
}

// Default returns the policy used when the caller configures nothing:
// 3 attempts starting at one second, capped at 30 seconds.
func Default() Policy {
	return Policy{Attempts: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Do runs op until it succeeds, returns a permanent error, or the policy
// is exhausted. The last error is returned as-is so callers can inspect
// its type.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := p.sleep(ctx, attempt-1); err != nil {
				return err
			}
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}

		var r Retryable
		if !errors.As(lastErr, &r) || !r.Retryable() {
			return lastErr
		}
	}

	return lastErr
}

// sleep waits for the backoff of the given attempt with 0.5–1.5 jitter,
// or returns early if the context is cancelled.
func (p Policy) sleep(ctx context.Context, attempt int) error {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	max := p.MaxDelay
	if max <= 0 {
		max = 30 * time.Second
	}

	backoff := base * time.Duration(1<<uint(attempt-1))
	if backoff > max {
		backoff = max
	}
	jitter := time.Duration(float64(backoff) * (0.5 + rand.Float64()))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(jitter):
		return nil
	}
}
