package middleware

import (
	"context"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// SessionVerifier resolves a session token to the identity subject.
type SessionVerifier interface {
	VerifySession(ctx context.Context, token string) (string, error)
}

// ClerkAuthMiddleware validates the Bearer session token and attaches the
// subject as user_id.
func ClerkAuthMiddleware(verifier SessionVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			authRejections.WithLabelValues("missing_token").Inc()
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "authorization header required",
			})
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			authRejections.WithLabelValues("bad_format").Inc()
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid authorization format, use 'Bearer <token>'",
			})
		}

		userID, err := verifier.VerifySession(c.UserContext(), token)
		if err != nil || userID == "" {
			log.Printf("❌ [AUTH] session verification failed for %s: %v", c.Path(), err)
			authRejections.WithLabelValues("invalid_token").Inc()
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid or expired session",
			})
		}

		c.Locals("user_id", userID)
		return c.Next()
	}
}

// UserID returns the authenticated subject set by the auth middlewares.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals("user_id").(string)
	return id
}
