// Package retry provides exponential backoff for calls to the LLM and
// deployment providers.
package retry

import (
	"context"
	"math/rand"
	"time"

	perrors "github.com/blogsmith/blogsmith/internal/errors"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// DefaultConfig returns the defaults used by the stage executors. Provider
// calls take tens of seconds and rate-limit responses clear slowly, so the
// backoff starts at seconds rather than milliseconds.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
		Jitter:      true,
	}
}

// Backoff returns the delay before the given zero-based retry attempt:
// BaseDelay doubled per attempt, capped at MaxDelay, with optional jitter
// keeping 50-100% of the computed delay.
func (cfg Config) Backoff(attempt int) time.Duration {
	delay := cfg.BaseDelay << attempt
	if delay > cfg.MaxDelay || delay < cfg.BaseDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter {
		delay = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
	}
	return delay
}

// Do executes fn with exponential backoff. Only retryable errors (provider
// 429s and 5xx responses) are retried; everything else returns immediately.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !perrors.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Backoff(attempt)):
		}
	}
	return lastErr
}
