package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter paces operations with a token bucket: tokens refill at a
// constant rate and each operation takes one, so bursts up to the bucket
// size pass immediately and the sustained rate is capped.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing perSecond operations per second with
// bursts of up to burst. A zero perSecond disables limiting. A zero burst
// defaults to perSecond.
func New(perSecond float64, burst int) *RateLimiter {
	if perSecond <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst <= 0 {
		burst = max(int(perSecond), 1)
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Unlimited reports whether the limiter lets everything through.
func (r *RateLimiter) Unlimited() bool {
	return r.limiter.Limit() == rate.Inf
}
