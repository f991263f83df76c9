package memory

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tableloom/internal/domain/models"
)

// RateLimiter is an in-memory RateLimiter test double backed by
// golang.org/x/time/rate token buckets, one per (endpoint, clientKey) pair.
// A token bucket approximates the Redis sliding-window backend closely
// enough for deterministic unit tests; exact sliding-window semantics are
// not required by SPEC_FULL.md §4.2.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRateLimiter constructs an empty in-memory rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{limiters: make(map[string]*rate.Limiter)}
}

func (r *RateLimiter) Check(ctx context.Context, endpoint models.RateEndpoint, clientKey string) (models.RateDecision, error) {
	limit := models.RateLimitConfig[endpoint]
	if limit <= 0 {
		limit = 60
	}

	key := string(endpoint) + ":" + clientKey

	r.mu.Lock()
	lim, ok := r.limiters[key]
	if !ok {
		// burst == limit: one full window's worth of requests may arrive
		// immediately, then refill at limit-per-minute.
		lim = rate.NewLimiter(rate.Limit(float64(limit)/models.RateWindow.Seconds()), limit)
		r.limiters[key] = lim
	}
	allowed := lim.Allow()
	tokens := int(lim.Tokens())
	r.mu.Unlock()

	remaining := tokens
	if remaining < 0 {
		remaining = 0
	}
	if remaining > limit {
		remaining = limit
	}

	return models.RateDecision{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: remaining,
		ResetIn:   models.RateWindow,
	}, nil
}
