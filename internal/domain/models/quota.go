package models

import "time"

// TokenUsage is the durable, Postgres-owned per-user quota record.
type TokenUsage struct {
	UserID      string    `json:"user_id"`
	TokensUsed  int64     `json:"tokens_used"`
	TokenLimit  int64     `json:"token_limit"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// QuotaDecision is the result of a Quota Accountant check.
type QuotaDecision struct {
	Allowed   bool      `json:"allowed"`
	Used      int64     `json:"tokensUsed"`
	Limit     int64     `json:"tokenLimit"`
	PeriodEnd time.Time `json:"periodEnd"`
}
