package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"tableloom/internal/domain"
	"tableloom/internal/domain/models"
	"tableloom/internal/llm"
	"tableloom/internal/modeltier"
	"tableloom/internal/repository/memory"
	"tableloom/internal/tools"
)

type fakeLLM struct {
	responses []*llm.Response
	calls     int
}

func (f *fakeLLM) Call(ctx context.Context, messages []models.Message, system string, catalog []tools.Tool, tier modeltier.Tier, thinking *llm.ThinkingConfig) (*llm.Response, error) {
	i := f.calls
	f.calls++
	if i >= len(f.responses) {
		return nil, &llm.Error{Message: "fakeLLM: no scripted response"}
	}
	return f.responses[i], nil
}

type fakeQuota struct {
	decision models.QuotaDecision
	err      error
}

func (q *fakeQuota) Check(ctx context.Context, userID string) (models.QuotaDecision, error) {
	return q.decision, q.err
}

func (q *fakeQuota) Record(ctx context.Context, userID string, tokens int64) error {
	return nil
}

type fakeLock struct {
	locked bool
	err    error
}

func (l *fakeLock) Acquire(ctx context.Context, sessionID string) (func(), error) {
	if l.locked {
		return nil, domain.ErrSessionLocked
	}
	if l.err != nil {
		return nil, l.err
	}
	return func() {}, nil
}

func testRegistry(t *testing.T) *modeltier.Registry {
	t.Helper()
	r, err := modeltier.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return r
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// withClaims injects fixed claims into every request, standing in for
// middleware.AuthMiddleware in these handler-level tests.
func withClaims(app *fiber.App, userID, entitlement string) {
	app.Use(func(c *fiber.Ctx) error {
		claims := &models.Claims{Role: "authenticated", Entitlement: entitlement}
		claims.Subject = userID
		c.Locals("claims", claims)
		c.Locals("userID", userID)
		return c.Next()
	})
}

func decodeSSE(body string) []map[string]any {
	var out []map[string]any
	for _, frame := range strings.Split(strings.TrimRight(body, "\n"), "\n\n") {
		if frame == "" || strings.HasPrefix(frame, ":") {
			continue
		}
		payload := strings.TrimPrefix(frame, "data: ")
		var e map[string]any
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out
}

func TestStart_StreamsFinalAnswer(t *testing.T) {
	h := &Handler{
		Sessions: memory.NewSessionStore(),
		Quota:    &fakeQuota{decision: models.QuotaDecision{Allowed: true, Limit: 1000, Used: 10}},
		Locks:    &fakeLock{},
		LLM: &fakeLLM{responses: []*llm.Response{{
			ContentBlocks: []models.ContentBlock{
				toolUseBlockFor(t, "t1", tools.FinalAnswer, map[string]any{
					"thought": "done", "answer": "42", "chartType": "table",
				}),
			},
			Usage: llm.Usage{InputTokens: 5, OutputTokens: 2},
		}}},
		Tiers:  testRegistry(t),
		Logger: testLogger(),
	}

	app := fiber.New()
	withClaims(app, "user-1", "")
	app.Get("/api/analyze", h.Start)

	schema, _ := json.Marshal([]models.TableInfo{
		{TableName: "orders", Columns: []string{"id", "total"}, RowCount: 2},
	})
	q := url.Values{
		"query":  {"what is total revenue?"},
		"schema": {string(schema)},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/analyze?"+q.Encode(), nil)

	resp, err := app.Test(req, 2000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	frames := decodeSSE(string(body))
	if len(frames) < 3 {
		t.Fatalf("expected at least 3 frames (session, answer, done), got %+v", frames)
	}
	if frames[0]["type"] != "session" {
		t.Errorf("frames[0].type = %v, want session", frames[0]["type"])
	}
	if frames[len(frames)-1]["type"] != "done" {
		t.Errorf("last frame type = %v, want done", frames[len(frames)-1]["type"])
	}
}

// countingStore wraps the in-memory store to count Create calls.
type countingStore struct {
	*memory.SessionStore
	creates int
}

func (s *countingStore) Create(ctx context.Context, session *models.Session) error {
	s.creates++
	return s.SessionStore.Create(ctx, session)
}

func TestStart_QuotaExceededReturns429WithoutCreatingSession(t *testing.T) {
	store := &countingStore{SessionStore: memory.NewSessionStore()}
	h := &Handler{
		Sessions: store,
		Quota: &fakeQuota{decision: models.QuotaDecision{
			Allowed: false, Limit: 1000, Used: 1000,
		}},
		Locks:  &fakeLock{},
		LLM:    &fakeLLM{},
		Tiers:  testRegistry(t),
		Logger: testLogger(),
	}

	app := fiber.New()
	withClaims(app, "user-1", "")
	app.Get("/api/analyze", h.Start)

	schema, _ := json.Marshal([]models.TableInfo{{TableName: "orders", Columns: []string{"id"}}})
	q := url.Values{"query": {"anything"}, "schema": {string(schema)}}
	req := httptest.NewRequest(http.MethodGet, "/api/analyze?"+q.Encode(), nil)

	resp, err := app.Test(req, 2000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusTooManyRequests)
	}
	if store.creates != 0 {
		t.Errorf("session Create called %d times, want 0", store.creates)
	}
}

func TestStart_HighTierWithoutEntitlementReturns403(t *testing.T) {
	h := &Handler{
		Sessions: memory.NewSessionStore(),
		Quota:    &fakeQuota{decision: models.QuotaDecision{Allowed: true}},
		Locks:    &fakeLock{},
		LLM:      &fakeLLM{},
		Tiers:    testRegistry(t),
		Logger:   testLogger(),
	}

	app := fiber.New()
	withClaims(app, "user-1", "")
	app.Get("/api/analyze", h.Start)

	schema, _ := json.Marshal([]models.TableInfo{{TableName: "orders", Columns: []string{"id"}}})
	q := url.Values{"query": {"anything"}, "schema": {string(schema)}, "model": {"high"}}
	req := httptest.NewRequest(http.MethodGet, "/api/analyze?"+q.Encode(), nil)

	resp, err := app.Test(req, 2000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusForbidden {
		t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusForbidden)
	}
}

func TestStart_LockBackendFailureProceedsWithoutLock(t *testing.T) {
	h := &Handler{
		Sessions: memory.NewSessionStore(),
		Quota:    &fakeQuota{decision: models.QuotaDecision{Allowed: true, Limit: 1000, Used: 10}},
		Locks:    &fakeLock{err: errors.New("redis unavailable")},
		LLM: &fakeLLM{responses: []*llm.Response{{
			ContentBlocks: []models.ContentBlock{
				toolUseBlockFor(t, "t1", tools.FinalAnswer, map[string]any{
					"thought": "done", "answer": "42", "chartType": "table",
				}),
			},
			Usage: llm.Usage{InputTokens: 5, OutputTokens: 2},
		}}},
		Tiers:  testRegistry(t),
		Logger: testLogger(),
	}

	app := fiber.New()
	withClaims(app, "user-1", "")
	app.Get("/api/analyze", h.Start)

	schema, _ := json.Marshal([]models.TableInfo{{TableName: "orders", Columns: []string{"id"}}})
	q := url.Values{"query": {"anything"}, "schema": {string(schema)}}
	req := httptest.NewRequest(http.MethodGet, "/api/analyze?"+q.Encode(), nil)

	resp, err := app.Test(req, 2000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("status = %d, want %d (lock backend failures fail open)", resp.StatusCode, fiber.StatusOK)
	}
}

func TestToolResult_MismatchedPendingToolReturns400(t *testing.T) {
	store := memory.NewSessionStore()
	session := &models.Session{
		ID:                 "sess-1",
		UserID:             "user-1",
		AwaitingToolResult: true,
		PendingToolID:      "t1",
		QueryResults:       map[string]any{},
	}
	_ = store.Create(context.Background(), session)

	h := &Handler{Sessions: store, Logger: testLogger()}

	app := fiber.New()
	withClaims(app, "user-1", "")
	app.Post("/api/analyze/tool-result", h.ToolResult)

	body, _ := json.Marshal(map[string]any{"sessionId": "sess-1", "toolId": "wrong-id", "result": []any{}})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze/tool-result", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 2000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, fiber.StatusBadRequest)
	}
}

func TestToolResult_PersistsResultAndClearsPendingState(t *testing.T) {
	store := memory.NewSessionStore()
	session := &models.Session{
		ID:                 "sess-1",
		UserID:             "user-1",
		AwaitingToolResult: true,
		PendingToolID:      "t1",
		QueryResults:       map[string]any{},
		Messages: []models.Message{
			{Role: models.RoleAssistant, Content: []models.ContentBlock{
				toolUseBlockFor(t, "t1", tools.RunQuery, map[string]any{"thought": "peek", "sql": "SELECT 1"}),
			}},
		},
	}
	_ = store.Create(context.Background(), session)

	h := &Handler{Sessions: store, Logger: testLogger()}

	app := fiber.New()
	withClaims(app, "user-1", "")
	app.Post("/api/analyze/tool-result", h.ToolResult)

	body, _ := json.Marshal(map[string]any{
		"sessionId": "sess-1",
		"toolId":    "t1",
		"result":    []any{map[string]any{"id": float64(1)}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze/tool-result", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, 2000)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, fiber.StatusOK)
	}

	updated, err := store.Get(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if updated.AwaitingToolResult || updated.PendingToolID != "" {
		t.Errorf("pending state not cleared: %+v", updated)
	}
	if updated.StepIndex != 1 {
		t.Errorf("StepIndex = %d, want 1", updated.StepIndex)
	}
	if len(updated.Steps) != 1 || updated.Steps[0].Tool != tools.RunQuery {
		t.Errorf("Steps = %+v, want one step for %s", updated.Steps, tools.RunQuery)
	}
	if updated.Steps[0].Thought != "peek" {
		t.Errorf("Steps[0].Thought = %q, want %q", updated.Steps[0].Thought, "peek")
	}
	if _, ok := updated.QueryResults["step_0"]; !ok {
		t.Error("QueryResults missing step_0")
	}
}

func toolUseBlockFor(t *testing.T, id, name string, input map[string]any) models.ContentBlock {
	t.Helper()
	raw, err := json.Marshal(input)
	if err != nil {
		t.Fatalf("marshal input: %v", err)
	}
	return models.ContentBlock{Type: models.BlockTypeToolUse, ToolUseID: id, ToolName: name, ToolInput: raw}
}
