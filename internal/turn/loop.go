// Package turn implements the core state machine of SPEC_FULL.md §4.8: given
// a session, run one LLM turn, emit the resulting events in order, and
// either suspend on a browser-executed tool call, conclude on final_answer,
// or finish plainly. Each invocation of Run is one ordinary blocking
// function call — no goroutine or subscriber registry survives across the
// HTTP request that invoked it; a suspended session is resumed by a fresh
// call to Run against a freshly loaded Session.
package turn

import (
	"context"
	"encoding/json"
	"log/slog"

	"tableloom/internal/domain/models"
	"tableloom/internal/domain/repositories"
	"tableloom/internal/events"
	"tableloom/internal/llm"
	"tableloom/internal/modeltier"
	"tableloom/internal/prompt"
	"tableloom/internal/tools"
)

// LLMCaller is the subset of *llm.Client the turn loop depends on, so tests
// can supply a fake without constructing a real Anthropic client.
type LLMCaller interface {
	Call(ctx context.Context, messages []models.Message, system string, catalog []tools.Tool, tier modeltier.Tier, thinking *llm.ThinkingConfig) (*llm.Response, error)
}

// Loop runs the turn-loop state machine against the shared components it is
// constructed with.
type Loop struct {
	LLM     LLMCaller
	Store   repositories.SessionStore
	Quota   repositories.QuotaAccountant
	Tiers   *modeltier.Registry
	Logger  *slog.Logger
	Catalog []tools.Tool
}

// NewLoop constructs a Loop with the default tool catalog.
func NewLoop(llmClient LLMCaller, store repositories.SessionStore, quota repositories.QuotaAccountant, tiers *modeltier.Registry, logger *slog.Logger) *Loop {
	return &Loop{
		LLM:     llmClient,
		Store:   store,
		Quota:   quota,
		Tiers:   tiers,
		Logger:  logger,
		Catalog: tools.Catalog(),
	}
}

// Run executes the state machine described in SPEC_FULL.md §4.8 against
// session, writing events to stream as they are produced. It returns only
// on suspension (tool_call emitted, no done), on a terminal event (done
// emitted), or on an unrecoverable local error (stream write failure,
// session-store commit failure) that the caller must log; in all cases the
// caller is responsible for closing the underlying HTTP response.
func (l *Loop) Run(ctx context.Context, session *models.Session, stream *events.Stream) error {
	// 1. Iteration guard.
	if session.Iteration >= models.MaxIterations {
		if err := stream.Error("Maximum analysis iterations reached"); err != nil {
			return err
		}
		if err := stream.Done(); err != nil {
			return err
		}
		return l.commit(ctx, session)
	}

	tier, err := l.Tiers.Resolve(session.ModelTier)
	if err != nil {
		l.Logger.Error("unknown model tier", "tier", session.ModelTier, "error", err)
		if werr := stream.Error("internal configuration error"); werr != nil {
			return werr
		}
		if werr := stream.Done(); werr != nil {
			return werr
		}
		return l.commit(ctx, session)
	}

	// 2. Build LLM request. If this is the first turn (no messages yet),
	// construct the initial user message via the Prompt Builder.
	system := ""
	if len(session.Messages) == 0 {
		sys, userMessage := prompt.Build(session.Query, session.Schema)
		system = sys
		session.Messages = append(session.Messages, models.Message{
			Role:    models.RoleUser,
			Content: []models.ContentBlock{{Type: models.BlockTypeText, Text: userMessage}},
		})
	} else {
		sys, _ := prompt.Build(session.Query, session.Schema)
		system = sys
	}

	var thinking *llm.ThinkingConfig
	if session.UseThinking && tier.SupportsThinking {
		thinking = &llm.ThinkingConfig{BudgetTokens: tier.ThinkingBudgetTokens}
	}

	// 3. Invoke LLM.
	response, err := l.LLM.Call(ctx, session.Messages, system, l.Catalog, tier, thinking)
	if err != nil {
		if werr := stream.Error(err.Error()); werr != nil {
			return werr
		}
		if werr := stream.Done(); werr != nil {
			return werr
		}
		return l.commit(ctx, session)
	}

	// 4. Record usage. Failures here are logged, not surfaced (§4.8 step 4).
	if err := l.Quota.Record(ctx, session.UserID, response.Usage.Total()); err != nil {
		l.Logger.Warn("quota record failed", "user_id", session.UserID, "error", err)
	}

	// 5. Append assistant message; increment iteration.
	session.Messages = append(session.Messages, models.Message{
		Role:    models.RoleAssistant,
		Content: response.ContentBlocks,
	})
	session.Iteration++

	// 6. Emit content events in order, skipping tool-use blocks (handled in
	// step 7).
	for _, block := range response.ContentBlocks {
		switch block.Type {
		case models.BlockTypeText:
			if err := stream.Thinking(block.Text); err != nil {
				return err
			}
		case models.BlockTypeThinking:
			if err := stream.ExtendedThinking(block.Thinking); err != nil {
				return err
			}
		}
	}

	// 7. Dispatch tool use.
	toolUse, found := lastMessage(session).FirstToolUse()
	if !found {
		if err := stream.Done(); err != nil {
			return err
		}
		return l.commit(ctx, session)
	}

	if tools.IsServerTerminal(toolUse.ToolName) {
		return l.finishWithAnswer(ctx, session, stream, toolUse)
	}

	return l.suspendForTool(ctx, session, stream, toolUse)
}

func lastMessage(session *models.Session) models.Message {
	return session.Messages[len(session.Messages)-1]
}

func (l *Loop) finishWithAnswer(ctx context.Context, session *models.Session, stream *events.Stream, toolUse models.ContentBlock) error {
	var input models.FinalAnswerInput
	if err := json.Unmarshal(toolUse.ToolInput, &input); err != nil {
		l.Logger.Error("failed to decode final_answer input", "error", err)
		if werr := stream.Error("failed to parse final answer"); werr != nil {
			return werr
		}
		if werr := stream.Done(); werr != nil {
			return werr
		}
		return l.commit(ctx, session)
	}

	result := models.AnalysisResult{
		Answer:    input.Answer,
		ChartType: input.ChartType,
		ChartData: []any{},
		Axes:      input.Axes,
		Steps:     session.Steps,
	}

	session.PendingToolID = ""
	session.AwaitingToolResult = false

	if err := stream.Answer(result); err != nil {
		return err
	}
	if err := stream.Done(); err != nil {
		return err
	}
	return l.commit(ctx, session)
}

func (l *Loop) suspendForTool(ctx context.Context, session *models.Session, stream *events.Stream, toolUse models.ContentBlock) error {
	session.PendingToolID = toolUse.ToolUseID
	session.AwaitingToolResult = true

	if err := l.commit(ctx, session); err != nil {
		return err
	}

	var input any
	if len(toolUse.ToolInput) > 0 {
		_ = json.Unmarshal(toolUse.ToolInput, &input)
	}

	// Stream closes without Done per §4.7 — the client executes the tool
	// and resumes.
	return stream.ToolCall(toolUse.ToolUseID, toolUse.ToolName, input)
}

func (l *Loop) commit(ctx context.Context, session *models.Session) error {
	if err := l.Store.Update(ctx, session); err != nil {
		l.Logger.Error("session commit failed", "session_id", session.ID, "error", err)
		return err
	}
	return nil
}
