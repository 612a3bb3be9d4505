package middleware

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// SSEAuthMiddleware validates the `token` query parameter, since EventSource
// cannot send an Authorization header.
//
// Usage:
//
//	app.Get("/feed/stream", middleware.SSEAuthMiddleware(identity), activitySvc.StreamActivitySSE)
func SSEAuthMiddleware(verifier SessionVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accessToken := strings.TrimSpace(c.Query("token"))
		if accessToken == "" {
			log.Printf("[SSEAuth] ❌ missing token query param on %s", c.Path())
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Missing token in query",
			})
		}

		userID, err := verifier.VerifySession(c.UserContext(), accessToken)
		if err != nil || userID == "" {
			log.Printf("[SSEAuth] ❌ validation failed for token (prefix: %s...): %v",
				accessToken[:min(10, len(accessToken))], err)
			authRejections.WithLabelValues("sse_invalid_token").Inc()
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		c.Locals("user_id", userID)
		log.Printf("[SSEAuth] ✅ authenticated user %s", userID)
		return c.Next()
	}
}
