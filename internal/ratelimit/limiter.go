// Package ratelimit throttles how fast actors start transitions across the
// whole run.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a token bucket shared by every actor.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter admitting perSecond transitions with the given burst.
// A non-positive rate means unlimited.
func New(perSecond float64, burst int) *Limiter {
	if perSecond <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until a transition may start or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Limit returns the configured rate in transitions per second, or 0 when
// unlimited.
func (l *Limiter) Limit() float64 {
	if l.limiter.Limit() == rate.Inf {
		return 0
	}
	return float64(l.limiter.Limit())
}
