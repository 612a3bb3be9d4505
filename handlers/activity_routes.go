// handlers/activity_routes.go
package handlers

import (
	"strconv"
	"time"

	"blackpass-api/services"

	"github.com/gofiber/fiber/v2"
)

// SetupActivityRoutes registers the feed endpoints. The stream takes its token from
// the query string because EventSource cannot set headers.
func SetupActivityRoutes(app fiber.Router, auth, sseAuth fiber.Handler, activity *services.ActivityService, countries *services.CountryActivityService) {
	app.Get("/feed", auth, func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		limit, _ := strconv.Atoi(c.Query("limit", strconv.Itoa(services.DefaultFeedLimit)))

		var before *time.Time
		if raw := c.Query("before"); raw != "" {
			t, err := time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "before must be an RFC3339 timestamp"})
			}
			before = &t
		}

		events, err := activity.Recent(c.UserContext(), userID, limit, before)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(events)
	})

	app.Get("/feed/stream", sseAuth, activity.StreamActivitySSE)

	// Heatmap data is public
	app.Get("/countries/activity", func(c *fiber.Ctx) error {
		rows, err := countries.List(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(rows)
	})
}
