package turn

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"tableloom/internal/domain/models"
	"tableloom/internal/events"
	"tableloom/internal/llm"
	"tableloom/internal/modeltier"
	"tableloom/internal/repository/memory"
	"tableloom/internal/tools"
)

// fakeLLM returns a scripted sequence of responses, one per call.
type fakeLLM struct {
	responses []*llm.Response
	errs      []error
	calls     int
}

func (f *fakeLLM) Call(ctx context.Context, messages []models.Message, system string, catalog []tools.Tool, tier modeltier.Tier, thinking *llm.ThinkingConfig) (*llm.Response, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.responses) {
		return nil, &llm.Error{Message: "fakeLLM: no scripted response"}
	}
	return f.responses[i], nil
}

type fakeQuota struct {
	recorded []int64
	failNext bool
}

func (q *fakeQuota) Check(ctx context.Context, userID string) (models.QuotaDecision, error) {
	return models.QuotaDecision{Allowed: true}, nil
}

func (q *fakeQuota) Record(ctx context.Context, userID string, tokens int64) error {
	if q.failNext {
		q.failNext = false
		return context.DeadlineExceeded
	}
	q.recorded = append(q.recorded, tokens)
	return nil
}

func testRegistry(t *testing.T) *modeltier.Registry {
	t.Helper()
	r, err := modeltier.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return r
}

func newTestStream() (*events.Stream, func() []events.Event) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stream := events.NewStream(w, logger)
	return stream, func() []events.Event {
		var out []events.Event
		for _, frame := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n\n") {
			if frame == "" || strings.HasPrefix(frame, ":") {
				continue
			}
			payload := strings.TrimPrefix(frame, "data: ")
			var e events.Event
			if err := json.Unmarshal([]byte(payload), &e); err != nil {
				continue
			}
			out = append(out, e)
		}
		return out
	}
}

func newSession(query string) *models.Session {
	return &models.Session{
		ID:        "sess-1",
		UserID:    "user-1",
		ModelTier: models.TierLow,
		Query:     query,
		Schema: []models.TableInfo{
			{TableName: "orders", Columns: []string{"id", "total"}, RowCount: 3},
		},
	}
}

func toolUseBlock(id, name string, input map[string]any) models.ContentBlock {
	raw, _ := json.Marshal(input)
	return models.ContentBlock{Type: models.BlockTypeToolUse, ToolUseID: id, ToolName: name, ToolInput: raw}
}

// TestLoop_SingleTurnFinalAnswer covers the case where the model answers
// directly with no browser-executed tool call.
func TestLoop_SingleTurnFinalAnswer(t *testing.T) {
	store := memory.NewSessionStore()
	session := newSession("what is the total revenue?")
	if err := store.Create(context.Background(), session); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	llmFake := &fakeLLM{responses: []*llm.Response{
		{
			ContentBlocks: []models.ContentBlock{
				{Type: models.BlockTypeText, Text: "Let me compute that."},
				toolUseBlock("t1", tools.FinalAnswer, map[string]any{
					"thought": "done", "answer": "Revenue is $42.", "chartType": "table",
				}),
			},
			Usage: llm.Usage{InputTokens: 10, OutputTokens: 5},
		},
	}}
	quota := &fakeQuota{}
	loop := NewLoop(llmFake, store, quota, testRegistry(t), slog.New(slog.NewTextHandler(io.Discard, nil)))

	stream, frames := newTestStream()
	if err := loop.Run(context.Background(), session, stream); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got := frames()
	if len(got) != 3 {
		t.Fatalf("got %d frames, want 3: %+v", len(got), got)
	}
	if got[0].Type != "thinking" || got[1].Type != "answer" || got[2].Type != "done" {
		t.Errorf("unexpected frame order: %+v", got)
	}
	if session.AwaitingToolResult {
		t.Error("AwaitingToolResult should be false after final_answer")
	}
	if len(quota.recorded) != 1 || quota.recorded[0] != 15 {
		t.Errorf("quota.recorded = %+v, want [15]", quota.recorded)
	}
}

// TestLoop_SuspendsForBrowserExecutedTool covers the case where one
// browser-executed tool call suspends the loop without emitting done.
func TestLoop_SuspendsForBrowserExecutedTool(t *testing.T) {
	store := memory.NewSessionStore()
	session := newSession("show me the top rows")
	_ = store.Create(context.Background(), session)

	llmFake := &fakeLLM{responses: []*llm.Response{
		{
			ContentBlocks: []models.ContentBlock{
				toolUseBlock("t1", tools.RunQuery, map[string]any{
					"thought": "need data", "sql": "SELECT * FROM orders LIMIT 10",
				}),
			},
			Usage: llm.Usage{InputTokens: 8, OutputTokens: 4},
		},
	}}
	quota := &fakeQuota{}
	loop := NewLoop(llmFake, store, quota, testRegistry(t), slog.New(slog.NewTextHandler(io.Discard, nil)))

	stream, frames := newTestStream()
	if err := loop.Run(context.Background(), session, stream); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	got := frames()
	if len(got) != 1 || got[0].Type != "tool_call" {
		t.Fatalf("expected a single tool_call frame, got %+v", got)
	}
	if !session.AwaitingToolResult || session.PendingToolID != "t1" {
		t.Errorf("session not suspended correctly: %+v", session)
	}

	persisted, err := store.Get(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !persisted.AwaitingToolResult {
		t.Error("suspended state was not committed to the session store")
	}
}

// TestLoop_IterationCapEmitsError covers the case where a session already at
// MaxIterations refuses to continue.
func TestLoop_IterationCapEmitsError(t *testing.T) {
	store := memory.NewSessionStore()
	session := newSession("keep going")
	session.Iteration = models.MaxIterations
	_ = store.Create(context.Background(), session)

	loop := NewLoop(&fakeLLM{}, store, &fakeQuota{}, testRegistry(t), slog.New(slog.NewTextHandler(io.Discard, nil)))

	stream, frames := newTestStream()
	if err := loop.Run(context.Background(), session, stream); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	got := frames()
	if len(got) != 2 || got[0].Type != "error" || got[1].Type != "done" {
		t.Fatalf("expected error+done, got %+v", got)
	}
}

// TestLoop_LLMFailureEmitsErrorAndDone covers the case where the LLM call
// itself fails mid-flow.
func TestLoop_LLMFailureEmitsErrorAndDone(t *testing.T) {
	store := memory.NewSessionStore()
	session := newSession("anything")
	_ = store.Create(context.Background(), session)

	llmFake := &fakeLLM{errs: []error{&llm.Error{Message: "upstream unavailable"}}}
	loop := NewLoop(llmFake, store, &fakeQuota{}, testRegistry(t), slog.New(slog.NewTextHandler(io.Discard, nil)))

	stream, frames := newTestStream()
	if err := loop.Run(context.Background(), session, stream); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	got := frames()
	if len(got) != 2 || got[0].Type != "error" || got[1].Type != "done" {
		t.Fatalf("expected error+done, got %+v", got)
	}
}

// TestLoop_ResumeContinuesFromToolResult covers the case where, after a tool
// result is appended externally, a fresh Run continues the conversation and
// concludes.
func TestLoop_ResumeContinuesFromToolResult(t *testing.T) {
	store := memory.NewSessionStore()
	session := newSession("what's in the data?")
	session.Messages = []models.Message{
		{Role: models.RoleUser, Content: []models.ContentBlock{{Type: models.BlockTypeText, Text: "what's in the data?"}}},
		{Role: models.RoleAssistant, Content: []models.ContentBlock{
			toolUseBlock("t1", tools.RunQuery, map[string]any{"thought": "peek", "sql": "SELECT * FROM orders"}),
		}},
		{Role: models.RoleUser, Content: []models.ContentBlock{
			{Type: models.BlockTypeToolResult, ToolResultID: "t1", ToolResultContent: json.RawMessage(`[{"id":1,"total":9}]`)},
		}},
	}
	session.Iteration = 1
	_ = store.Create(context.Background(), session)

	llmFake := &fakeLLM{responses: []*llm.Response{
		{
			ContentBlocks: []models.ContentBlock{
				toolUseBlock("t2", tools.FinalAnswer, map[string]any{
					"thought": "enough", "answer": "One order totalling $9.", "chartType": "table",
				}),
			},
			Usage: llm.Usage{InputTokens: 6, OutputTokens: 3},
		},
	}}
	quota := &fakeQuota{}
	loop := NewLoop(llmFake, store, quota, testRegistry(t), slog.New(slog.NewTextHandler(io.Discard, nil)))

	stream, frames := newTestStream()
	if err := loop.Run(context.Background(), session, stream); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	got := frames()
	if len(got) != 2 || got[0].Type != "answer" || got[1].Type != "done" {
		t.Fatalf("expected answer+done, got %+v", got)
	}
	if session.Iteration != 2 {
		t.Errorf("Iteration = %d, want 2", session.Iteration)
	}
	if len(quota.recorded) != 1 || quota.recorded[0] != 9 {
		t.Errorf("quota.recorded = %+v, want [9]", quota.recorded)
	}
}

// TestLoop_QuotaRecordFailureIsLoggedNotSurfaced covers §4.8 step 4: a
// Record failure must not interrupt the turn.
func TestLoop_QuotaRecordFailureIsLoggedNotSurfaced(t *testing.T) {
	store := memory.NewSessionStore()
	session := newSession("anything")
	_ = store.Create(context.Background(), session)

	llmFake := &fakeLLM{responses: []*llm.Response{
		{
			ContentBlocks: []models.ContentBlock{
				toolUseBlock("t1", tools.FinalAnswer, map[string]any{
					"thought": "ok", "answer": "done", "chartType": "table",
				}),
			},
			Usage: llm.Usage{InputTokens: 1, OutputTokens: 1},
		},
	}}
	quota := &fakeQuota{failNext: true}
	loop := NewLoop(llmFake, store, quota, testRegistry(t), slog.New(slog.NewTextHandler(io.Discard, nil)))

	stream, frames := newTestStream()
	if err := loop.Run(context.Background(), session, stream); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	got := frames()
	if len(got) != 2 || got[1].Type != "done" {
		t.Fatalf("expected a normal completion despite quota failure, got %+v", got)
	}
}
