package repositories

import (
	"context"

	"tableloom/internal/domain/models"
)

// QuotaAccountant tracks per-user token usage against a period-bounded
// limit. Record must tolerate concurrent increments for the same user.
type QuotaAccountant interface {
	Check(ctx context.Context, userID string) (models.QuotaDecision, error)
	Record(ctx context.Context, userID string, tokens int64) error
}
