package handler

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"

	"tableloom/internal/config"
	"tableloom/internal/domain"
	"tableloom/internal/domain/models"
)

// ToolResult handles POST /api/analyze/tool-result: writes a browser-executed
// tool's result back into the session and clears the pending-tool state, per
// SPEC_FULL.md §4.10. It is not idempotent by toolId — see SPEC_FULL.md §9's
// resolved Open Questions.
func (h *Handler) ToolResult(c *fiber.Ctx) error {
	claims := claimsFromContext(c)

	var req toolResultRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}
	if err := req.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	session, err := h.Sessions.Get(c.Context(), req.SessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "session not found")
		}
		h.Logger.Error("session lookup failed", "session_id", req.SessionID, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load session")
	}

	if session.UserID != claims.UserID() {
		return fiber.NewError(fiber.StatusForbidden, "session belongs to a different user")
	}

	if !session.AwaitingToolResult || session.PendingToolID != req.ToolID {
		return fiber.NewError(fiber.StatusBadRequest, "tool result does not match pending tool")
	}

	pendingTool, pendingInput, pendingThought := findPendingToolUse(session, req.ToolID)

	req.Result = truncateRows(req.Result)

	resultContent, err := json.Marshal(req.Result)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "result is not valid JSON")
	}

	block := models.ContentBlock{
		Type:              models.BlockTypeToolResult,
		ToolResultID:      req.ToolID,
		ToolResultContent: resultContent,
		ToolResultError:   req.Error,
	}
	session.Messages = append(session.Messages, models.Message{
		Role:    models.RoleUser,
		Content: []models.ContentBlock{block},
	})

	stepKey := models.StepKey(session.StepIndex)
	session.QueryResults[stepKey] = req.Result

	step := models.StepRecord{
		Index:   session.StepIndex,
		Thought: pendingThought,
		Tool:    pendingTool,
		Input:   pendingInput,
	}
	if req.Error != "" {
		step.Err = req.Error
	} else {
		step.Result = req.Result
	}
	session.Steps = append(session.Steps, step)

	session.StepIndex++
	session.PendingToolID = ""
	session.AwaitingToolResult = false

	if err := h.Sessions.Update(c.Context(), session); err != nil {
		h.Logger.Error("session update failed", "session_id", session.ID, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to persist tool result")
	}

	return c.JSON(fiber.Map{"ok": true})
}

// findPendingToolUse locates the assistant tool-use block matching toolID, so
// the step record can carry the tool's name, input, and thought alongside its
// result. Every tool's input schema requires a "thought" field (see
// internal/tools/schema.go's withThought), which is surfaced separately here
// since callers display it independently from the rest of the input.
func findPendingToolUse(session *models.Session, toolID string) (toolName string, input map[string]any, thought string) {
	for i := len(session.Messages) - 1; i >= 0; i-- {
		msg := session.Messages[i]
		if msg.Role != models.RoleAssistant {
			continue
		}
		for _, block := range msg.Content {
			if block.IsToolUse() && block.ToolUseID == toolID {
				var decoded map[string]any
				_ = json.Unmarshal(block.ToolInput, &decoded)
				if t, ok := decoded["thought"].(string); ok {
					thought = t
				}
				return block.ToolName, decoded, thought
			}
		}
	}
	return "", nil, ""
}

// truncateRows caps a tool result's row array at config.MaxToolResultRows
// (SPEC_FULL.md §9), passing through unchanged any result that isn't a row
// array (e.g. a scalar aggregate).
func truncateRows(result any) any {
	rows, ok := result.([]any)
	if !ok || len(rows) <= config.MaxToolResultRows {
		return result
	}
	return rows[:config.MaxToolResultRows]
}
