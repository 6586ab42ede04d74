// Package resilience implements the retry policy and circuit breaker
// shared by the outbound aggregator calls (§4.8).
package resilience

import (
	"context"
	"math/rand"
	"time"
)

// RetryFunc is one attempt. Its error, if any, is classified via
// ShouldRetry to decide whether another attempt is made.
type RetryFunc func(ctx context.Context, attempt int) error

// RetryConfig mirrors the teacher's Config shape (internal/retry),
// narrowed to the exact jitter/backoff semantics §4.8 and §8 require.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// ShouldRetry classifies an attempt's error as retryable. Nil means
	// "always retryable" (callers normally pass perror's Retryable()).
	ShouldRetry func(err error) bool
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    60 * time.Second,
	}
}

// Do runs fn up to cfg.MaxAttempts times. A MaxAttempts of 1 never
// sleeps: the loop body makes exactly one call and returns its result
// without consulting ShouldRetry or sleeping.
func Do(ctx context.Context, cfg RetryConfig, fn RetryFunc) error {
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == cfg.MaxAttempts {
			break
		}
		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(lastErr) {
			return lastErr
		}
		delay := calculateDelay(attempt, cfg)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// calculateDelay is base_delay*2^(attempt-1), jittered uniformly in
// ±25%, floored at 1ms. Per §8's boundary test, jitter is exactly zero
// only when base_delay < 4ms (a ±25% window narrower than 1ms rounds to
// no perceptible jitter at time.Duration's nanosecond resolution once
// clamped to the 1ms floor — expressed here as an explicit skip rather
// than relying on integer truncation).
func calculateDelay(attempt int, cfg RetryConfig) time.Duration {
	base := cfg.BaseDelay * time.Duration(1<<uint(attempt-1))
	if cfg.MaxDelay > 0 && base > cfg.MaxDelay {
		base = cfg.MaxDelay
	}
	if base < time.Millisecond {
		base = time.Millisecond
	}

	if cfg.BaseDelay < 4*time.Millisecond {
		return base
	}

	window := base / 4
	// uniform in [-window, +window]
	jitter := time.Duration(rand.Int63n(int64(2*window+1))) - window
	d := base + jitter
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return d
}
