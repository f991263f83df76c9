// Package handler implements the three HTTP endpoints described in
// SPEC_FULL.md §4.9-§4.10: the streaming start/resume endpoints and the
// tool-result ingestion endpoint, all thin admission wrappers around the
// Turn Loop and its repository dependencies.
package handler

import (
	"log/slog"
	"strconv"

	"tableloom/internal/domain/models"
	"tableloom/internal/domain/repositories"
	"tableloom/internal/events"
	"tableloom/internal/modeltier"
	"tableloom/internal/turn"
)

// Handler bundles the repository and engine dependencies every analyze
// endpoint needs. A fresh turn.Loop is built per request (see newLoop) so its
// LLM caller can be wrapped with a keep-alive ticker bound to that request's
// own Event Stream.
type Handler struct {
	Sessions repositories.SessionStore
	Quota    repositories.QuotaAccountant
	Locks    repositories.SessionLock
	LLM      turn.LLMCaller
	Tiers    *modeltier.Registry
	Logger   *slog.Logger
}

func (h *Handler) newLoop(writer events.KeepAliveWriter) *turn.Loop {
	wrapped := newKeepAliveLLM(h.LLM, writer, h.Logger)
	return turn.NewLoop(wrapped, h.Sessions, h.Quota, h.Tiers, h.Logger)
}

func attachQuotaHeaders(c quotaHeaderSetter, decision models.QuotaDecision) {
	c.Set("X-Token-Limit", strconv.FormatInt(decision.Limit, 10))
	c.Set("X-Token-Used", strconv.FormatInt(decision.Used, 10))
	c.Set("X-Token-Remaining", strconv.FormatInt(decision.Limit-decision.Used, 10))
	c.Set("X-Period-End", decision.PeriodEnd.Format("2006-01-02T15:04:05Z07:00"))
}

// quotaHeaderSetter is the subset of *fiber.Ctx used to attach headers,
// narrowed so attachQuotaHeaders doesn't need to import fiber.
type quotaHeaderSetter interface {
	Set(key, value string)
}
