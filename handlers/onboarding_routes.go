// handlers/onboarding_routes.go
package handlers

import (
	"blackpass-api/services"

	"github.com/gofiber/fiber/v2"
)

func SetupOnboardingRoutes(app fiber.Router, pricing *services.PricingService, registration *services.RegistrationService, limiter fiber.Handler) {
	onboarding := app.Group("/onboarding", limiter)

	// Intro step: classify the visitor and show their fee schedule
	onboarding.Get("/detect-country", func(c *fiber.Ctx) error {
		detection, row, err := pricing.DetectAndResolve(c.UserContext(), headerGetter(c), c.Context().RemoteAddr().String())
		if err != nil {
			return respondError(c, err)
		}
		flow := services.NewOnboarding()
		if err := flow.Start(detection); err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{
			"detected_ip":  detection.DetectedIP,
			"country_code": detection.CountryCode,
			"source":       detection.Source,
			"pricing":      row,
			"next_step":    flow.Step,
		})
	})

	onboarding.Post("/password-strength", func(c *fiber.Ctx) error {
		var req struct {
			Password string `json:"password"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		score := services.ScorePassword(req.Password)
		return c.JSON(fiber.Map{
			"score":    score,
			"label":    services.PasswordLabel(score),
			"accepted": score >= services.MinPasswordScore,
		})
	})

	// Form step: create identity and profile, then hand over to payment
	onboarding.Post("/register", func(c *fiber.Ctx) error {
		var form services.RegistrationForm
		if err := c.BodyParser(&form); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body", "cause": err.Error()})
		}

		detection := pricing.DetectCountry(c.UserContext(), headerGetter(c), c.Context().RemoteAddr().String())
		result, err := registration.Register(c.UserContext(), form, detection)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(result)
	})

	app.Get("/pricing", func(c *fiber.Ctx) error {
		rows, err := pricing.ListPricing(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(rows)
	})

	app.Get("/pricing/:code", func(c *fiber.Ctx) error {
		row, err := pricing.Resolve(c.UserContext(), c.Params("code"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(row)
	})

	app.Get("/plans", func(c *fiber.Ctx) error {
		plans, err := pricing.ListPlans(c.UserContext())
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(plans)
	})
}
