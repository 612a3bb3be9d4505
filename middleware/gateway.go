package middleware

import (
	"crypto/subtle"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ServiceTokenMiddleware guards admin routes with a shared service token. The
// optional X-Admin-Actor header names the reviewer for audit fields.
func ServiceTokenMiddleware(expectedToken string) fiber.Handler {
	if expectedToken == "" {
		log.Fatal("❌ ADMIN_SERVICE_TOKEN is not set, admin routes cannot authenticate")
	}

	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			log.Printf("🚫 [ADMIN_AUTH] Missing Authorization header for %s", c.Path())
			authRejections.WithLabelValues("admin_missing_token").Inc()
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "service token missing",
			})
		}

		// Parse "Bearer <token>", falling back to the raw value
		token := strings.TrimPrefix(authHeader, "Bearer ")

		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			log.Printf("❌ [ADMIN_AUTH] Invalid token for %s", c.Path())
			authRejections.WithLabelValues("admin_invalid_token").Inc()
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid service token",
			})
		}

		actor := strings.TrimSpace(c.Get("X-Admin-Actor"))
		if actor == "" {
			actor = "service"
		}
		c.Locals("admin_actor", actor)
		return c.Next()
	}
}
