package handler

import (
	"context"
	"log/slog"

	"tableloom/internal/domain/models"
	"tableloom/internal/events"
	"tableloom/internal/llm"
	"tableloom/internal/modeltier"
	"tableloom/internal/tools"
	"tableloom/internal/turn"
)

// keepAliveLLM wraps a turn.LLMCaller so a keep-alive ticker runs only while
// the actual LLM request is in flight, never concurrently with the Event
// Stream's own content writes (the Stream is not safe for concurrent use).
type keepAliveLLM struct {
	inner  turn.LLMCaller
	writer events.KeepAliveWriter
	logger *slog.Logger
}

func newKeepAliveLLM(inner turn.LLMCaller, writer events.KeepAliveWriter, logger *slog.Logger) *keepAliveLLM {
	return &keepAliveLLM{inner: inner, writer: writer, logger: logger}
}

func (k *keepAliveLLM) Call(ctx context.Context, messages []models.Message, system string, catalog []tools.Tool, tier modeltier.Tier, thinking *llm.ThinkingConfig) (*llm.Response, error) {
	strategy := events.NewTickerKeepAlive(keepAliveInterval)
	stopped := strategy.Start(k.writer, k.logger)
	defer func() {
		strategy.Stop()
		<-stopped
	}()

	return k.inner.Call(ctx, messages, system, catalog, tier, thinking)
}
