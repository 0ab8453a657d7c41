// Package backoff provides retry delay strategies for queue operations,
// job fetches and distribution publishing. Strategies are stateless and safe
// for concurrent use.
package backoff

import (
	"context"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	Delay(attempt int) time.Duration
}

// Constant always returns the same delay.
type Constant struct {
	Interval time.Duration
}

// Delay returns the fixed interval.
func (c Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Uniform returns a random delay in [Min, Max] regardless of attempt number.
type Uniform struct {
	Min time.Duration
	Max time.Duration
}

// QueueJitter is the bounded jitter used when consume/release must be retried.
var QueueJitter = Uniform{Min: 100 * time.Millisecond, Max: 5 * time.Second}

// Delay returns a random duration in [Min, Max].
func (u Uniform) Delay(_ int) time.Duration {
	if u.Max <= u.Min {
		return u.Min
	}
	span := u.Max - u.Min
	return u.Min + time.Duration(rand.Int64N(int64(span)+1)) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// Sleep waits for d or until ctx is done, returning ctx.Err() in the latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
