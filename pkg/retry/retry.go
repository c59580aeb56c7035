package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Config controls capped exponential backoff.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultConfig suits reconnect-style work such as the chat transport
// dial: a handful of quick attempts, then give up and let the caller
// decide what to do.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     15 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Do runs fn until it succeeds, the attempts run out, or ctx is done.
// The wait between attempts grows by Multiplier up to MaxDelay.
func Do[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("retry aborted: %w", err)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-time.After(cfg.delay(attempt)):
		}
	}

	return zero, fmt.Errorf("%d attempts failed: %w", cfg.MaxAttempts, lastErr)
}

// delay returns the wait after the given zero-based attempt. Jitter
// shaves up to a quarter off so restarting instances spread out.
func (cfg Config) delay(attempt int) time.Duration {
	d := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt))
	if d > float64(cfg.MaxDelay) {
		d = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		d -= d / 4 * rand.Float64()
	}
	return time.Duration(d)
}
