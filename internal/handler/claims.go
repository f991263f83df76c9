package handler

import (
	"github.com/gofiber/fiber/v2"

	"tableloom/internal/domain/models"
)

// claimsFromContext retrieves the verified claims middleware.AuthMiddleware
// stored in c.Locals. Handlers are only ever mounted behind that middleware,
// so a missing value indicates a wiring bug, not a runtime condition worth a
// recoverable error path.
func claimsFromContext(c *fiber.Ctx) *models.Claims {
	return c.Locals("claims").(*models.Claims)
}
