// handlers/webhook_routes.go
package handlers

import (
	"encoding/json"
	"log"
	"strconv"
	"time"

	"blackpass-api/models"
	"blackpass-api/services"

	paddle "github.com/PaddleHQ/paddle-go-sdk"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/shopspring/decimal"
)

// WebhookSecrets holds the signing secrets of each sender.
type WebhookSecrets struct {
	Paystack string
	Paddle   string
	Clerk    string
}

func SetupWebhookRoutes(app fiber.Router, verifier *services.VerificationService, broker *services.Broker, secrets WebhookSecrets) {
	hooks := app.Group("/webhooks")

	hooks.Post("/paystack", func(c *fiber.Ctx) error {
		body := c.Body()
		if !services.VerifyPaystackSignature(secrets.Paystack, body, c.Get("x-paystack-signature")) {
			log.Printf("🚫 [Webhook] paystack signature rejected")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid signature"})
		}

		var event services.PaystackEvent
		if err := json.Unmarshal(body, &event); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
		}

		in := services.VerifyInput{
			GatewayReference: event.Data.Reference,
			Currency:         event.Data.Currency,
			VerifiedBy:       "paystack",
			Notes:            event.Data.Message,
		}
		switch event.Event {
		case "charge.success":
			in.Outcome = models.PaymentCompleted
			amount, err := services.FromMinorUnits(event.Data.Amount, event.Data.Currency)
			if err != nil {
				return respondError(c, err)
			}
			in.Amount = &amount
		case "charge.failed":
			in.Outcome = models.PaymentFailed
		default:
			log.Printf("[Webhook] paystack event %s ignored", event.Event)
			return c.SendStatus(fiber.StatusOK)
		}

		return acknowledge(c, verifier, in)
	})

	hooks.Post("/paddle", func(c *fiber.Ctx) error {
		req, err := adaptor.ConvertRequest(c, false)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unreadable request"})
		}
		valid, err := paddle.NewWebhookVerifier(secrets.Paddle).Verify(req)
		if err != nil || !valid {
			log.Printf("🚫 [Webhook] paddle signature rejected: %v", err)
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "invalid signature"})
		}

		var event paddleEvent
		if err := json.Unmarshal(c.Body(), &event); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
		}

		in := services.VerifyInput{
			GatewayReference: event.Data.ID,
			Currency:         event.Data.CurrencyCode,
			VerifiedBy:       "paddle",
		}
		switch event.EventType {
		case paddle.EventTypeNameTransactionCompleted:
			in.Outcome = models.PaymentCompleted
			amount, err := event.settled()
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid paddle totals"})
			}
			in.Amount = &amount
		case paddle.EventTypeNameTransactionPaymentFailed:
			in.Outcome = models.PaymentFailed
		default:
			log.Printf("[Webhook] paddle event %s ignored", event.EventType)
			return c.SendStatus(fiber.StatusOK)
		}

		return acknowledge(c, verifier, in)
	})

	hooks.Post("/clerk", func(c *fiber.Ctx) error {
		if !services.VerifySvixSignature(secrets.Clerk, c.Get("svix-id"), c.Get("svix-timestamp"), c.Body(), c.Get("svix-signature"), time.Now()) {
			log.Println("🚫 [Webhook] clerk signature rejected")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid signature"})
		}

		var event services.IdentityEvent
		if err := json.Unmarshal(c.Body(), &event); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid payload"})
		}

		if event.EndsSession() {
			subject := event.SubjectOf()
			closed := broker.CloseUser(subject)
			log.Printf("👋 [Webhook] %s for %s closed %d stream(s)", event.Type, subject, closed)
		} else {
			log.Printf("[Webhook] clerk event %s ignored", event.Type)
		}
		return c.JSON(fiber.Map{"success": true})
	})
}

// paddleEvent is the part of a Paddle transaction notification the verifier
// needs. Totals are strings in minor units.
type paddleEvent struct {
	EventType paddle.EventTypeName `json:"event_type"`
	Data      struct {
		ID           string `json:"id"`
		CurrencyCode string `json:"currency_code"`
		Details      struct {
			Totals struct {
				Subtotal string `json:"subtotal"`
				Discount string `json:"discount"`
			} `json:"totals"`
		} `json:"details"`
	} `json:"data"`
}

// settled is the net price charged before tax: subtotal less discount.
func (e paddleEvent) settled() (decimal.Decimal, error) {
	totals := e.Data.Details.Totals
	subtotal, err := strconv.ParseInt(totals.Subtotal, 10, 64)
	if err != nil {
		return decimal.Zero, err
	}
	var discount int64
	if totals.Discount != "" {
		if discount, err = strconv.ParseInt(totals.Discount, 10, 64); err != nil {
			return decimal.Zero, err
		}
	}
	return services.FromMinorUnits(subtotal-discount, e.Data.CurrencyCode)
}

// acknowledge applies a verdict. Unknown or already resolved transactions are
// acknowledged so the gateway stops retrying; anything else is retried.
func acknowledge(c *fiber.Ctx, verifier *services.VerificationService, in services.VerifyInput) error {
	tx, err := verifier.Verify(c.UserContext(), in)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"id": tx.ID, "status": tx.Status})
	case services.IsKind(err, services.KindConflict), services.IsKind(err, services.KindNotFound):
		log.Printf("[Webhook] %s reference %s not applied: %v", in.VerifiedBy, in.GatewayReference, err)
		return c.JSON(fiber.Map{"ignored": true, "reason": err.Error()})
	default:
		return respondError(c, err)
	}
}
