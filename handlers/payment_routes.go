// handlers/payment_routes.go
package handlers

import (
	"encoding/json"
	"io"
	"strings"

	"blackpass-api/services"
	"blackpass-api/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

func SetupPaymentRoutes(secured fiber.Router, payments *services.PaymentService, limiter fiber.Handler) {
	// Where a signed-in user resumes sign-up
	secured.Get("/onboarding/status", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		flow, err := payments.OnboardingState(c.UserContext(), userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(flow)
	})

	group := secured.Group("/payments")

	// Accepts JSON, or multipart with a "proof" file for manual transfers
	group.Post("/", limiter, func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)

		decl, err := parseDeclaration(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}

		if decl.Proof != nil {
			if closer, ok := decl.Proof.Body.(io.Closer); ok {
				defer closer.Close()
			}
		}

		result, err := payments.Capture(c.UserContext(), userID, *decl)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(result)
	})

	group.Get("/", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		rows, err := payments.ListTransactions(c.UserContext(), userID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(rows)
	})

	group.Get("/:id", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		tx, err := payments.Get(c.UserContext(), userID, c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(tx)
	})

	group.Post("/:id/cancel", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		tx, err := payments.Cancel(c.UserContext(), userID, c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(tx)
	})
}

func parseDeclaration(c *fiber.Ctx) (*services.Declaration, error) {
	var decl services.Declaration
	if !strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		if err := c.BodyParser(&decl); err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		return &decl, nil
	}

	amount, err := decimal.NewFromString(c.FormValue("amount"))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "amount must be a number")
	}
	decl.Amount = amount
	decl.Currency = c.FormValue("currency")
	decl.Method = c.FormValue("payment_method")
	decl.TransactionType = c.FormValue("transaction_type")
	decl.PaymentReference = c.FormValue("payment_reference")
	decl.ProofURL = c.FormValue("screenshot_url")
	if raw := c.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &decl.Metadata); err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "metadata must be a JSON object")
		}
	}

	if fh, err := c.FormFile("proof"); err == nil {
		if fh.Size > utils.MaxProofSize {
			return nil, fiber.NewError(fiber.StatusBadRequest, "proof file is too large")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, "failed to read proof file")
		}
		decl.Proof = &services.ProofUpload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
		}
	}
	return &decl, nil
}
