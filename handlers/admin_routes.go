// handlers/admin_routes.go
package handlers

import (
	"strconv"

	"blackpass-api/models"
	"blackpass-api/services"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type AdminServices struct {
	Ledger       *services.LedgerService
	Wallets      *services.WalletService
	Verification *services.VerificationService
	Registration *services.RegistrationService
}

func SetupAdminRoutes(app fiber.Router, auth fiber.Handler, svc AdminServices) {
	admin := app.Group("/admin", auth)

	admin.Get("/missions", func(c *fiber.Ctx) error {
		missions, err := svc.Ledger.ListMissions(c.UserContext(), true)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(missions)
	})

	admin.Post("/missions", func(c *fiber.Ctx) error {
		var in services.MissionInput
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		m, err := svc.Ledger.CreateMission(c.UserContext(), in)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(m)
	})

	admin.Put("/missions/:id", func(c *fiber.Ctx) error {
		var in services.MissionInput
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		m, err := svc.Ledger.UpdateMission(c.UserContext(), c.Params("id"), in)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(m)
	})

	// Review queue for proof-of-payment uploads
	admin.Get("/payments", func(c *fiber.Ctx) error {
		limit, _ := strconv.Atoi(c.Query("limit", "50"))
		rows, err := svc.Verification.ReviewQueue(c.UserContext(), models.PaymentStatus(c.Query("status")), limit)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(rows)
	})

	admin.Post("/payments/:id/verify", func(c *fiber.Ctx) error {
		var req struct {
			Approved bool   `json:"approved"`
			Notes    string `json:"notes"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		outcome := models.PaymentFailed
		if req.Approved {
			outcome = models.PaymentCompleted
		}
		tx, err := svc.Verification.Verify(c.UserContext(), services.VerifyInput{
			TransactionID: c.Params("id"),
			Outcome:       outcome,
			VerifiedBy:    "admin:" + c.Locals("admin_actor").(string),
			Notes:         req.Notes,
		})
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(tx)
	})

	admin.Post("/xp", func(c *fiber.Ctx) error {
		var req struct {
			UserID      string          `json:"user_id"`
			Amount      int64           `json:"amount"`
			Source      models.XPSource `json:"source"`
			Description string          `json:"description"`
			ReferenceID string          `json:"reference_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		award, err := svc.Ledger.AwardXP(c.UserContext(), req.UserID, req.Amount, req.Source, req.Description, req.ReferenceID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(award)
	})

	walletMove := func(debit bool) fiber.Handler {
		return func(c *fiber.Ctx) error {
			var req struct {
				UserID      string          `json:"user_id"`
				Symbol      string          `json:"symbol"`
				Amount      decimal.Decimal `json:"amount"`
				Description string          `json:"description"`
				ReferenceID string          `json:"reference_id"`
			}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
			}
			m := services.WalletMovement{
				UserID:      req.UserID,
				Symbol:      req.Symbol,
				Amount:      req.Amount,
				Type:        models.WalletCreditAdjustment,
				Description: req.Description,
				ReferenceID: req.ReferenceID,
			}
			var (
				entry *models.WalletTransaction
				err   error
			)
			if debit {
				m.Type = models.WalletDebitPurchase
				entry, err = svc.Wallets.Debit(c.UserContext(), m)
			} else {
				entry, err = svc.Wallets.Credit(c.UserContext(), m)
			}
			if err != nil {
				return respondError(c, err)
			}
			return c.JSON(entry)
		}
	}
	admin.Post("/wallet/credit", walletMove(false))
	admin.Post("/wallet/debit", walletMove(true))

	admin.Get("/profiles", svc.Registration.SearchProfiles)
}
