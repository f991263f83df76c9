package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tableloom/internal/domain/models"
	"tableloom/internal/domain/repositories"
)

// QuotaPeriod is the duration a token_usage row's window covers before it
// rolls over.
const QuotaPeriod = 30 * 24 * time.Hour

// QuotaStore is a Postgres-backed repositories.QuotaAccountant. Unlike the
// Session Store and Rate Limiter, quota is the one subsystem this core owns
// durably (SPEC_FULL.md §3): it must survive process restarts and session
// TTL expiry, so it lives in Postgres rather than Redis.
type QuotaStore struct {
	pool   *pgxpool.Pool
	tables *TableNames
	tx     repositories.TransactionManager
	limit  int64
}

// NewQuotaStore constructs a QuotaStore. defaultLimit is the token_limit
// assigned to a user on first use.
func NewQuotaStore(pool *pgxpool.Pool, tables *TableNames, tx repositories.TransactionManager, defaultLimit int64) *QuotaStore {
	return &QuotaStore{pool: pool, tables: tables, tx: tx, limit: defaultLimit}
}

func (q *QuotaStore) Check(ctx context.Context, userID string) (models.QuotaDecision, error) {
	if err := q.ensureCurrentPeriod(ctx, userID); err != nil {
		return models.QuotaDecision{}, err
	}

	executor := GetExecutor(ctx, q.pool)
	query := fmt.Sprintf(
		`SELECT tokens_used, token_limit, period_end FROM %s WHERE user_id = $1`,
		q.tables.TokenUsage,
	)

	var usage models.TokenUsage
	row := executor.QueryRow(ctx, query, userID)
	if err := row.Scan(&usage.TokensUsed, &usage.TokenLimit, &usage.PeriodEnd); err != nil {
		if IsPgNoRowsError(err) {
			return models.QuotaDecision{}, fmt.Errorf("quota row missing after ensure for user %s: %w", userID, err)
		}
		return models.QuotaDecision{}, err
	}

	return models.QuotaDecision{
		Allowed:   usage.TokensUsed < usage.TokenLimit,
		Used:      usage.TokensUsed,
		Limit:     usage.TokenLimit,
		PeriodEnd: usage.PeriodEnd,
	}, nil
}

func (q *QuotaStore) Record(ctx context.Context, userID string, tokens int64) error {
	if tokens <= 0 {
		return nil
	}
	if err := q.ensureCurrentPeriod(ctx, userID); err != nil {
		return err
	}

	executor := GetExecutor(ctx, q.pool)
	query := fmt.Sprintf(
		`UPDATE %s SET tokens_used = tokens_used + $1 WHERE user_id = $2`,
		q.tables.TokenUsage,
	)
	_, err := executor.Exec(ctx, query, tokens, userID)
	return err
}

// ensureCurrentPeriod creates the user's row on first use, and rolls the
// period over (resetting tokens_used) when the current period has elapsed.
// Both paths run inside ExecTx so the read-check-write sequence is atomic
// against concurrent callers for the same user.
func (q *QuotaStore) ensureCurrentPeriod(ctx context.Context, userID string) error {
	return q.tx.ExecTx(ctx, func(ctx context.Context) error {
		executor := GetExecutor(ctx, q.pool)

		var periodEnd time.Time
		query := fmt.Sprintf(`SELECT period_end FROM %s WHERE user_id = $1 FOR UPDATE`, q.tables.TokenUsage)
		err := executor.QueryRow(ctx, query, userID).Scan(&periodEnd)

		now := time.Now()
		switch {
		case IsPgNoRowsError(err):
			insert := fmt.Sprintf(
				`INSERT INTO %s (user_id, tokens_used, token_limit, period_start, period_end)
				 VALUES ($1, 0, $2, $3, $4)
				 ON CONFLICT (user_id) DO NOTHING`,
				q.tables.TokenUsage,
			)
			_, err := executor.Exec(ctx, insert, userID, q.limit, now, now.Add(QuotaPeriod))
			return err
		case err != nil:
			return err
		case now.After(periodEnd):
			rollover := fmt.Sprintf(
				`UPDATE %s SET tokens_used = 0, period_start = $1, period_end = $2 WHERE user_id = $3`,
				q.tables.TokenUsage,
			)
			_, err := executor.Exec(ctx, rollover, now, now.Add(QuotaPeriod), userID)
			return err
		default:
			return nil
		}
	})
}
