// Package ratelimit wraps golang.org/x/time/rate to throttle outbound
// calls to the LLM adapter to a configured requests-per-minute budget
// (spec §4.4's HARD CORE concurrency-and-rate-limit requirement).
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles callers to rpm requests per minute with a small
// burst allowance so a cold pool doesn't stall on its first request.
type Limiter struct {
	l *rate.Limiter
}

func NewLimiter(rpm int, burst int) *Limiter {
	if rpm <= 0 {
		return &Limiter{l: rate.NewLimiter(rate.Inf, 0)}
	}
	perSecond := rate.Limit(float64(rpm) / 60.0)
	return &Limiter{l: rate.NewLimiter(perSecond, burst)}
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *Limiter) Wait(ctx context.Context) error {
	return r.l.Wait(ctx)
}

// Reserve returns how long the caller must wait before its next
// request would be allowed, without blocking.
func (r *Limiter) Reserve() time.Duration {
	res := r.l.Reserve()
	if !res.OK() {
		return 0
	}
	delay := res.Delay()
	return delay
}
