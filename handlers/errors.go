package handlers

import (
	"errors"
	"log"

	"blackpass-api/services"

	"github.com/gofiber/fiber/v2"
)

// respondError maps service error kinds onto HTTP statuses.
func respondError(c *fiber.Ctx, err error) error {
	var se *services.Error
	if !errors.As(err, &se) {
		log.Printf("❌ [HTTP] %s %s: %v", c.Method(), c.Path(), err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
			"cause": err.Error(),
		})
	}

	body := fiber.Map{"error": se.Message, "kind": se.Kind.String()}
	if se.ResourceID != "" {
		body["resource_id"] = se.ResourceID
	}

	status := fiber.StatusInternalServerError
	switch se.Kind {
	case services.KindValidation:
		status = fiber.StatusBadRequest
	case services.KindNotFound:
		status = fiber.StatusNotFound
	case services.KindConflict:
		status = fiber.StatusConflict
	case services.KindExternal:
		status = fiber.StatusBadGateway
		if se.Retryable {
			status = fiber.StatusServiceUnavailable
		}
		body["retryable"] = se.Retryable
		if se.Err != nil {
			log.Printf("❌ [HTTP] %s %s upstream failure: %v", c.Method(), c.Path(), se.Err)
		}
	}
	return c.Status(status).JSON(body)
}

func headerGetter(c *fiber.Ctx) services.HeaderGetter {
	return func(key string) string { return c.Get(key) }
}
