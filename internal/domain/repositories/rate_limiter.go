package repositories

import (
	"context"

	"tableloom/internal/domain/models"
)

// RateLimiter admits or rejects a request under a per-endpoint sliding
// window, keyed by client. Backend failures must fail open: callers treat a
// non-nil error as "allow, but log and count" rather than deny.
type RateLimiter interface {
	Check(ctx context.Context, endpoint models.RateEndpoint, clientKey string) (models.RateDecision, error)
}
