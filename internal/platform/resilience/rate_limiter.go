package resilience

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket per upstream. It halves its rate when the
// upstream reports throttling and climbs back after a run of successes.
type RateLimiter struct {
	lim *rate.Limiter

	mu             sync.Mutex
	baseRate       rate.Limit
	minRate        rate.Limit
	recoveryWindow int
	successes      int
}

// NewRateLimiter allows rps requests per second with the given burst.
// A non-positive rps disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		lim:            rate.NewLimiter(limit, burst),
		baseRate:       limit,
		minRate:        limit / 8,
		recoveryWindow: 10,
	}
}

// Wait blocks until a request may proceed or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return nil
	}
	if err := r.lim.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}
	return nil
}

// Limit returns the current requests-per-second limit.
func (r *RateLimiter) Limit() float64 {
	return float64(r.lim.Limit())
}

// Observe feeds a call outcome back into the limiter.
func (r *RateLimiter) Observe(appErr *AppError) {
	if r == nil || r.baseRate == rate.Inf {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if appErr != nil && appErr.Kind == KindRateLimit {
		r.successes = 0
		next := r.lim.Limit() / 2
		if next < r.minRate {
			next = r.minRate
		}
		r.lim.SetLimit(next)
		return
	}
	if appErr != nil {
		return
	}

	r.successes++
	if r.successes < r.recoveryWindow || r.lim.Limit() >= r.baseRate {
		return
	}
	r.successes = 0
	next := r.lim.Limit() * 2
	if next > r.baseRate {
		next = r.baseRate
	}
	r.lim.SetLimit(next)
}
