// Package ratelimiter throttles operations against remote shares.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter paces transport operations with a token bucket.
//
// A nil *Limiter never blocks, so shares can hold an optional limiter
// without nil checks at every call site.
//
// Thread safety:
// All methods are safe for concurrent use.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing opsPerSecond sustained operations with
// bursts of up to burst. opsPerSecond == 0 returns nil (unlimited).
// A burst of 0 defaults to opsPerSecond.
//
// Example:
//
//	// at most 50 SFTP round trips per second, 100 in a burst
//	limiter := New(50, 100)
func New(opsPerSecond, burst uint) *Limiter {
	if opsPerSecond == 0 {
		return nil
	}
	if burst == 0 {
		burst = opsPerSecond
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(opsPerSecond), int(burst))}
}

// Wait blocks until an operation may proceed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}
	return l.limiter.Wait(ctx)
}

// Allow reports whether an operation may proceed right now, consuming a
// token if so.
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.limiter.Allow()
}

// Limit returns the sustained rate, or 0 when unlimited.
func (l *Limiter) Limit() float64 {
	if l == nil {
		return 0
	}
	return float64(l.limiter.Limit())
}
