package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tableloom/internal/domain/models"
)

// RateLimiter is a Redis-backed sliding-window repositories.RateLimiter.
// Each (endpoint, clientKey) pair is a sorted set of request timestamps;
// stale entries are trimmed on every check, giving an approximately-correct
// sliding window (exact boundary correctness is not required per
// SPEC_FULL.md §4.2).
type RateLimiter struct {
	client *redis.Client
}

// NewRateLimiter wraps an existing Redis client.
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

func rateKey(endpoint models.RateEndpoint, clientKey string) string {
	return fmt.Sprintf("ratelimit:%s:%s", endpoint, clientKey)
}

func (r *RateLimiter) Check(ctx context.Context, endpoint models.RateEndpoint, clientKey string) (models.RateDecision, error) {
	limit := models.RateLimitConfig[endpoint]
	if limit <= 0 {
		limit = 60
	}

	key := rateKey(endpoint, clientKey)
	now := time.Now()
	windowStart := now.Add(-models.RateWindow)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	pipe.Expire(ctx, key, models.RateWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return models.RateDecision{}, err
	}

	// countCmd reflects the count *before* this request's own entry was
	// added, so the current request is included in "used" by adding one.
	used := int(countCmd.Val()) + 1
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	return models.RateDecision{
		Allowed:   used <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetIn:   models.RateWindow,
	}, nil
}
