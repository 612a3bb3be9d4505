// handlers/progression_routes.go
package handlers

import (
	"strconv"

	"blackpass-api/services"

	"github.com/gofiber/fiber/v2"
)

func SetupProgressionRoutes(secured fiber.Router, ledger *services.LedgerService, wallets *services.WalletService, lessons *services.LessonService) {
	// Loading the board creates any missing pending rows
	secured.Get("/missions/dashboard", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		dash, err := ledger.Dashboard(c.UserContext(), userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(dash)
	})

	secured.Post("/missions/:id/complete", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		result, err := ledger.CompleteMission(c.UserContext(), userID, c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(result)
	})

	// Top ten plus five places either side of the caller
	secured.Get("/leaderboard", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		board, err := ledger.Leaderboard(c.UserContext(), userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(board)
	})

	secured.Get("/user/progress", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		dash, err := ledger.Dashboard(c.UserContext(), userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(dash.Profile)
	})

	secured.Get("/wallet", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		balances, err := wallets.Balances(c.UserContext(), userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(balances)
	})

	secured.Get("/wallet/history", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		limit, _ := strconv.Atoi(c.Query("limit", "20"))
		rows, err := wallets.History(c.UserContext(), userID, limit)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(rows)
	})

	secured.Get("/lessons", func(c *fiber.Ctx) error {
		rows, err := lessons.ListLessons(c.UserContext(), c.Query("course_id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(rows)
	})

	secured.Get("/lessons/progress", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		rows, err := lessons.Progress(c.UserContext(), userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(rows)
	})

	secured.Put("/lessons/:id/progress", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		var req struct {
			ProgressPercent int `json:"progress_percent"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		result, err := lessons.UpdateProgress(c.UserContext(), userID, c.Params("id"), req.ProgressPercent)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(result)
	})
}
