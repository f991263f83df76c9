package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"tableloom/internal/auth"
)

// AuthMiddleware validates the bearer token on every request with
// auth.JWTVerifier and stores the resulting claims in c.Locals("claims") for
// downstream handlers.
func AuthMiddleware(verifier auth.JWTVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing authorization header")
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "authorization header must be a bearer token")
		}

		claims, err := verifier.VerifyToken(token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		c.Locals("claims", claims)
		c.Locals("userID", claims.UserID())
		return c.Next()
	}
}
