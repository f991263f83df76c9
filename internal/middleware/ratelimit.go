package middleware

import (
	"log/slog"
	"math"
	"net"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/gofiber/fiber/v2"

	"tableloom/internal/domain/models"
	"tableloom/internal/domain/repositories"
)

// RateLimitBackendErrors counts rate-limiter backend failures that
// RateLimitMiddleware failed open on.
var RateLimitBackendErrors atomic.Int64

// RateLimitMiddleware admits requests under endpoint's sliding-window limit,
// keyed by the authenticated user id set upstream by AuthMiddleware. A
// backend failure fails open (§4.2): the request proceeds, logged as a
// warning and counted in RateLimitBackendErrors, with no rate-limit headers
// attached.
func RateLimitMiddleware(limiter repositories.RateLimiter, endpoint models.RateEndpoint, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		clientKey := "ip:" + clientIP(c)
		if userID, _ := c.Locals("userID").(string); userID != "" {
			clientKey = "user:" + userID
		}

		decision, err := limiter.Check(c.Context(), endpoint, clientKey)
		if err != nil {
			RateLimitBackendErrors.Add(1)
			logger.Warn("rate limiter check failed, failing open", "endpoint", endpoint, "error", err)
			return c.Next()
		}

		c.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Set("X-RateLimit-Reset", strconv.Itoa(int(math.Ceil(decision.ResetIn.Seconds()))))

		if !decision.Allowed {
			return fiber.NewError(fiber.StatusTooManyRequests, "rate limit exceeded")
		}

		return c.Next()
	}
}

// clientIP resolves the caller's address for unauthenticated routes (e.g.
// login), preferring the first valid address recorded in X-Forwarded-For,
// then a valid X-Real-IP, and falling back to Fiber's own socket-derived
// c.IP(). Entries that do not parse as an IP address are skipped.
func clientIP(c *fiber.Ctx) string {
	if fwd := c.Get("X-Forwarded-For"); fwd != "" {
		for _, hop := range strings.Split(fwd, ",") {
			if ip := net.ParseIP(strings.TrimSpace(hop)); ip != nil {
				return ip.String()
			}
		}
	}
	if ip := net.ParseIP(strings.TrimSpace(c.Get("X-Real-IP"))); ip != nil {
		return ip.String()
	}
	return c.IP()
}
