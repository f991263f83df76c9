package models

import "encoding/json"

// BlockType discriminates the tagged variant carried by ContentBlock.
type BlockType string

const (
	BlockTypeText     BlockType = "text"
	BlockTypeThinking BlockType = "thinking"
	BlockTypeToolUse  BlockType = "tool_use"
	BlockTypeToolResult BlockType = "tool_result"
)

// ContentBlock is a tagged variant over the shapes an LLM turn or a tool-result
// message can carry. Only the fields relevant to Type are populated; the rest
// are left at zero value. Parsing provider-specific wire shapes into this type
// happens once, at the LLM Client boundary — nothing downstream handles an
// untyped block.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// Text holds the visible text for BlockTypeText.
	Text string `json:"text,omitempty"`

	// Thinking holds the model's internal reasoning for BlockTypeThinking.
	Thinking string `json:"thinking,omitempty"`

	// ToolUseID/ToolName/ToolInput populate BlockTypeToolUse.
	ToolUseID string          `json:"id,omitempty"`
	ToolName  string          `json:"name,omitempty"`
	ToolInput json.RawMessage `json:"input,omitempty"`

	// ToolResultID/ToolResultContent/ToolResultError populate BlockTypeToolResult.
	ToolResultID      string          `json:"tool_use_id,omitempty"`
	ToolResultContent json.RawMessage `json:"content,omitempty"`
	ToolResultError   string          `json:"error,omitempty"`
}

// IsToolUse reports whether the block is a tool invocation.
func (b ContentBlock) IsToolUse() bool {
	return b.Type == BlockTypeToolUse
}

// MessageRole is the role of a Message within Session.Messages.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one turn of conversation history, in the LLM provider's
// role/content-blocks shape.
type Message struct {
	Role    MessageRole    `json:"role"`
	Content []ContentBlock `json:"content"`
}

// FirstToolUse returns the first tool-use block in the message, if any.
// At most one tool-use block is meaningful per assistant turn; others are
// ignored per the turn loop's dispatch rule.
func (m Message) FirstToolUse() (ContentBlock, bool) {
	for _, b := range m.Content {
		if b.IsToolUse() {
			return b, true
		}
	}
	return ContentBlock{}, false
}
