// Package llm wraps the Anthropic SDK behind the single-method contract
// SPEC_FULL.md §4.4 requires of the LLM Client: one non-streaming call that
// returns a fully-typed response, never an untyped provider payload.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"tableloom/internal/domain/models"
	"tableloom/internal/modeltier"
	"tableloom/internal/tools"
)

// StopReason mirrors the provider's terminal-state enum.
type StopReason string

const (
	StopEndTurn   StopReason = "end_turn"
	StopToolUse   StopReason = "tool_use"
	StopMaxTokens StopReason = "max_tokens"
	StopOther     StopReason = "other"
)

// Usage carries the provider-reported token accounting for one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Total returns the combined token count recorded against quota.
func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// Response is the LLM Client's typed, provider-agnostic response shape.
type Response struct {
	ContentBlocks []models.ContentBlock
	StopReason    StopReason
	Usage         Usage
}

// Error wraps any provider, network, or decode failure the turn loop must
// surface as a stream error event.
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Cause }

// ThinkingConfig requests extended thinking with the given token budget.
type ThinkingConfig struct {
	BudgetTokens int
}

// Client calls the Anthropic Messages API.
type Client struct {
	sdk *anthropic.Client
}

// NewClient creates an LLM client backed by the given Anthropic API key.
func NewClient(apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &Client{sdk: &c}, nil
}

// Call issues a single, non-streaming turn against the model resolved from
// tier. thinking may be nil to disable extended thinking.
func (c *Client) Call(
	ctx context.Context,
	messages []models.Message,
	system string,
	catalog []tools.Tool,
	tier modeltier.Tier,
	thinking *ThinkingConfig,
) (*Response, error) {
	apiMessages, err := toAnthropicMessages(messages)
	if err != nil {
		return nil, &Error{Message: "failed to encode conversation", Cause: err}
	}

	maxTokens := int64(tier.MaxTokens)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(tier.ModelID),
		Messages:  apiMessages,
		MaxTokens: maxTokens,
	}

	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}

	if len(catalog) > 0 {
		params.Tools = toAnthropicTools(catalog)
	}

	if thinking != nil && tier.SupportsThinking && thinking.BudgetTokens > 0 {
		budget := thinking.BudgetTokens
		if int64(budget)+1024 > maxTokens {
			params.MaxTokens = int64(budget) + 1024
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(int64(budget))
	}

	message, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return nil, &Error{Message: err.Error(), Cause: err}
	}

	return fromAnthropicMessage(message)
}

func toAnthropicMessages(messages []models.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Content))
		for _, b := range m.Content {
			block, err := toAnthropicBlock(b)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, block)
		}

		switch m.Role {
		case models.RoleUser:
			out = append(out, anthropic.NewUserMessage(blocks...))
		case models.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("unknown message role: %s", m.Role)
		}
	}
	return out, nil
}

func toAnthropicBlock(b models.ContentBlock) (anthropic.ContentBlockParamUnion, error) {
	switch b.Type {
	case models.BlockTypeText:
		return anthropic.NewTextBlock(b.Text), nil
	case models.BlockTypeToolUse:
		var input any
		if len(b.ToolInput) > 0 {
			if err := json.Unmarshal(b.ToolInput, &input); err != nil {
				return anthropic.ContentBlockParamUnion{}, err
			}
		}
		return anthropic.NewToolUseBlock(b.ToolUseID, input, b.ToolName), nil
	case models.BlockTypeToolResult:
		if b.ToolResultError != "" {
			return anthropic.NewToolResultBlock(b.ToolResultID, b.ToolResultError, true), nil
		}
		return anthropic.NewToolResultBlock(b.ToolResultID, string(b.ToolResultContent), false), nil
	default:
		return anthropic.ContentBlockParamUnion{}, fmt.Errorf("unsupported content block type for request: %s", b.Type)
	}
}

func toAnthropicTools(catalog []tools.Tool) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(catalog))
	for _, t := range catalog {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: t.InputSchema,
			},
		})
	}
	return out
}

func fromAnthropicMessage(message *anthropic.Message) (*Response, error) {
	blocks := make([]models.ContentBlock, 0, len(message.Content))
	for _, block := range message.Content {
		switch block.Type {
		case "text":
			blocks = append(blocks, models.ContentBlock{Type: models.BlockTypeText, Text: block.Text})
		case "thinking":
			blocks = append(blocks, models.ContentBlock{Type: models.BlockTypeThinking, Thinking: block.Thinking})
		case "tool_use":
			input, err := json.Marshal(block.Input)
			if err != nil {
				return nil, &Error{Message: "failed to decode tool_use input", Cause: err}
			}
			blocks = append(blocks, models.ContentBlock{
				Type:      models.BlockTypeToolUse,
				ToolUseID: block.ID,
				ToolName:  block.Name,
				ToolInput: input,
			})
		default:
			// Unknown block types (e.g. redacted_thinking) are skipped rather
			// than surfaced as an untyped passthrough, per §9's design note.
		}
	}

	stop := StopOther
	switch message.StopReason {
	case "end_turn":
		stop = StopEndTurn
	case "tool_use":
		stop = StopToolUse
	case "max_tokens":
		stop = StopMaxTokens
	}

	return &Response{
		ContentBlocks: blocks,
		StopReason:    stop,
		Usage: Usage{
			InputTokens:  message.Usage.InputTokens,
			OutputTokens: message.Usage.OutputTokens,
		},
	}, nil
}
