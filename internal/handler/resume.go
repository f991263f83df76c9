package handler

import (
	"bufio"
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"tableloom/internal/domain"
	"tableloom/internal/events"
)

// Resume handles GET /api/analyze/resume: reattaches to an existing session
// and re-enters the Turn Loop. No session event is emitted (§4.7).
func (h *Handler) Resume(c *fiber.Ctx) error {
	claims := claimsFromContext(c)

	sessionID := c.Query("sessionId")
	if sessionID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "sessionId is required")
	}

	session, err := h.Sessions.Get(c.Context(), sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "Session not found")
		}
		h.Logger.Error("session lookup failed", "session_id", sessionID, "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to load session")
	}

	if session.UserID != claims.UserID() {
		return fiber.NewError(fiber.StatusForbidden, "session belongs to a different user")
	}

	decision, err := h.Quota.Check(c.Context(), claims.UserID())
	if err != nil {
		h.Logger.Error("quota check failed", "user_id", claims.UserID(), "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "quota check failed")
	}
	attachQuotaHeaders(c, decision)
	if !decision.Allowed {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":      "Token limit exceeded for the current period",
			"tokensUsed": decision.Used,
			"tokenLimit": decision.Limit,
			"periodEnd":  decision.PeriodEnd,
		})
	}

	release, err := h.Locks.Acquire(c.Context(), sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionLocked) {
			return fiber.NewError(fiber.StatusConflict, "session is locked by another request")
		}
		h.Logger.Warn("session lock backend failed, proceeding without a lock", "session_id", sessionID, "error", err)
		release = func() {}
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	logger := h.Logger

	c.Status(fiber.StatusOK).Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer release()

		// See Start for why this must be context.Background() rather than
		// c.Context(): the Fiber request context is invalid by the time this
		// goroutine runs.
		ctx := context.Background()

		stream := events.NewStream(w, logger)
		loop := h.newLoop(stream)
		if err := loop.Run(ctx, session, stream); err != nil {
			logger.Warn("turn loop ended with write error", "session_id", sessionID, "error", err)
		}
	})

	return nil
}
