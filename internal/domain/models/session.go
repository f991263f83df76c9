package models

import (
	"strconv"
	"time"
)

// MaxIterations bounds the number of LLM turns a single session may take
// before the turn loop refuses to continue and emits a terminal error.
const MaxIterations = 15

// ModelTier selects an LLM configuration by name rather than by raw model id,
// so that session state and API query params never embed a provider-specific
// identifier directly.
type ModelTier string

const (
	TierLow  ModelTier = "low"
	TierHigh ModelTier = "high"
)

// ParseModelTier maps an arbitrary query-param string to a ModelTier,
// defaulting to TierLow on anything unrecognised (per §4.9: "model from
// query param with invalid -> low").
func ParseModelTier(s string) ModelTier {
	if ModelTier(s) == TierHigh {
		return TierHigh
	}
	return TierLow
}

// TableInfo describes one client-side table available to the agent.
type TableInfo struct {
	TableName  string           `json:"table_name"`
	Columns    []string         `json:"columns"`
	SampleRows []map[string]any `json:"sample_rows"`
	RowCount   int              `json:"row_count"`
}

// StepRecord is the per-step trace of one browser-executed tool invocation,
// surfaced in the final AnalysisResult for display in the reasoning trace.
type StepRecord struct {
	Index   int            `json:"index"`
	Thought string         `json:"thought"`
	Tool    string         `json:"tool"`
	Input   map[string]any `json:"input"`
	Result  any            `json:"result,omitempty"`
	Err     string         `json:"error,omitempty"`
}

// Session is the unit of conversational state owned by the Session Store.
// It is mutated only by the turn loop and by tool-result ingestion; those
// two are mutually exclusive by the AwaitingToolResult flag (§4.8).
type Session struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`

	ModelTier   ModelTier `json:"model_tier"`
	UseThinking bool      `json:"use_thinking"`

	Query  string      `json:"query"`
	Schema []TableInfo `json:"schema"`

	Messages []Message `json:"messages"`

	// QueryResults maps "step_N" to the row array returned by the Nth
	// browser-executed tool invocation.
	QueryResults map[string]any `json:"query_results"`
	StepIndex    int            `json:"step_index"`
	Steps        []StepRecord   `json:"steps"`

	Iteration int `json:"iteration"`

	PendingToolID      string `json:"pending_tool_id,omitempty"`
	AwaitingToolResult bool   `json:"awaiting_tool_result"`
}

// StepKey returns the query_results key for the given step index.
func StepKey(index int) string {
	return "step_" + strconv.Itoa(index)
}

// CheckInvariants validates the pending-tool and step-accounting consistency
// rules described in SPEC_FULL.md §3. It is a standalone check: neither the
// handlers nor the turn loop call it.
func (s *Session) CheckInvariants() bool {
	hasPendingMatch := false
	if len(s.Messages) > 0 {
		last := s.Messages[len(s.Messages)-1]
		if last.Role == RoleAssistant {
			if tu, ok := last.FirstToolUse(); ok && tu.ToolUseID == s.PendingToolID {
				hasPendingMatch = true
			}
		}
	}
	awaitingConsistent := s.AwaitingToolResult == (s.PendingToolID != "")
	if s.PendingToolID != "" && !hasPendingMatch {
		awaitingConsistent = false
	}
	if !awaitingConsistent {
		return false
	}
	for i := 0; i < s.StepIndex; i++ {
		if _, ok := s.QueryResults[StepKey(i)]; !ok {
			return false
		}
	}
	return s.Iteration <= MaxIterations
}
