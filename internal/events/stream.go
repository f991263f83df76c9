// Package events frames the typed SSE event sequence described in
// SPEC_FULL.md §4.7 over a Fiber streaming response body, and drives the
// keep-alive ticker while a slow LLM call is in flight.
package events

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
)

// Event is one of the wire-typed events the turn loop emits.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type sessionData struct {
	SessionID string `json:"sessionId"`
}

type thinkingData struct {
	Content string `json:"content"`
}

type toolCallData struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Input any    `json:"input"`
}

type answerData struct {
	Result any `json:"result"`
}

type errorData struct {
	Message string `json:"message"`
}

// Stream writes framed SSE events to an underlying *bufio.Writer via Fiber's
// SetBodyStreamWriter. It is not safe for concurrent use — exactly one turn
// loop invocation writes to a Stream.
type Stream struct {
	w      *bufio.Writer
	logger *slog.Logger

	// doneEmitted tracks whether Done has already been written: no event may
	// be written after done.
	doneEmitted bool
	closed      bool
}

// NewStream wraps a Fiber body-stream writer.
func NewStream(w *bufio.Writer, logger *slog.Logger) *Stream {
	return &Stream{w: w, logger: logger}
}

func (s *Stream) write(eventType string, data any) error {
	if s.doneEmitted {
		return fmt.Errorf("events: attempted to write %q after done", eventType)
	}

	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return s.w.Flush()
}

// Session emits the session event. Must be the first event of a start
// stream, and must never appear on a resume stream.
func (s *Stream) Session(sessionID string) error {
	return s.write("session", sessionData{SessionID: sessionID})
}

// Thinking emits visible model text.
func (s *Stream) Thinking(content string) error {
	return s.write("thinking", thinkingData{Content: content})
}

// ExtendedThinking emits the model's internal reasoning.
func (s *Stream) ExtendedThinking(content string) error {
	return s.write("extended_thinking", thinkingData{Content: content})
}

// ToolCall emits a browser-executed tool invocation. The caller must not
// emit Done afterwards — the stream closes without it, per §4.7.
func (s *Stream) ToolCall(id, name string, input any) error {
	return s.write("tool_call", toolCallData{ID: id, Name: name, Input: input})
}

// Answer emits the synthesised result of a final_answer tool call.
func (s *Stream) Answer(result any) error {
	return s.write("answer", answerData{Result: result})
}

// Error emits an error event. Callers must follow with Done.
func (s *Stream) Error(message string) error {
	return s.write("error", errorData{Message: message})
}

// Done emits the terminal event. After Done, no further writes are valid.
func (s *Stream) Done() error {
	err := s.write("done", struct{}{})
	s.doneEmitted = true
	return err
}

// WriteKeepAlive implements events.KeepAliveWriter, writing an SSE comment
// line that EventSource clients silently ignore.
func (s *Stream) WriteKeepAlive() error {
	if _, err := fmt.Fprint(s.w, ": keepalive\n\n"); err != nil {
		return err
	}
	return s.w.Flush()
}
