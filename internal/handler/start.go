package handler

import (
	"bufio"
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"tableloom/internal/domain"
	"tableloom/internal/domain/models"
	"tableloom/internal/events"
	"tableloom/internal/modeltier"
)

const keepAliveInterval = 15 * time.Second

// Start handles GET /api/analyze: validates the question and schema,
// creates a new session, and streams the first turn.
func (h *Handler) Start(c *fiber.Ctx) error {
	claims := claimsFromContext(c)

	query := c.Query("query")
	if err := validateQuery(query); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	schema, err := parseSchema(c.Query("schema"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	tier := models.ParseModelTier(c.Query("model"))
	if tier == models.TierHigh && !claims.HasEntitlement(modeltier.RequiredEntitlementHighTier) {
		return fiber.NewError(fiber.StatusForbidden, "the requested model tier requires a paid entitlement")
	}

	useThinking := c.Query("thinking", "true") != "false"

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

	session := &models.Session{
		ID:           uuid.NewString(),
		UserID:       claims.UserID(),
		CreatedAt:    time.Now(),
		LastActivity: time.Now(),
		ModelTier:    tier,
		UseThinking:  useThinking,
		Query:        query,
		Schema:       schema,
		QueryResults: map[string]any{},
	}

	if err := h.Sessions.Create(c.Context(), session); err != nil {
		h.Logger.Error("session create failed", "error", err)
		return fiber.NewError(fiber.StatusInternalServerError, "failed to create session")
	}

	release, err := h.Locks.Acquire(c.Context(), session.ID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionLocked) {
			return fiber.NewError(fiber.StatusConflict, "session is locked by another request")
		}
		h.Logger.Warn("session lock backend failed, proceeding without a lock", "session_id", session.ID, "error", err)
		release = func() {}
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	logger := h.Logger
	sessionID := session.ID

	c.Status(fiber.StatusOK).Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer release()

		// The Fiber request context is invalid once this stream-writer
		// goroutine runs, since it can outlive the request that spawned it;
		// using c.Context() here causes a nil pointer dereference. The turn
		// loop (and in particular its LLM call) runs against an independent,
		// longer-lived context instead, so a client disconnect never cancels
		// an in-flight LLM request.
		ctx := context.Background()

		stream := events.NewStream(w, logger)
		if err := stream.Session(sessionID); err != nil {
			logger.Info("client disconnected before session event", "session_id", sessionID, "error", err)
			return
		}

		loop := h.newLoop(stream)
		if err := loop.Run(ctx, session, stream); err != nil {
			logger.Warn("turn loop ended with write error", "session_id", sessionID, "error", err)
		}
	})

	return nil
}
