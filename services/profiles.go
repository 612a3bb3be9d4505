// services/profiles.go
package services

import (
	"strconv"
	"strings"

	"blackpass-api/models"

	"github.com/gofiber/fiber/v2"
)

// SearchProfiles searches profiles by name or email for the admin console.
func (s *RegistrationService) SearchProfiles(c *fiber.Ctx) error {
	query := c.Query("q", "")
	limitStr := c.Query("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 || limit > 100 {
		limit = 50
	}

	var profiles []models.Profile
	db := s.DB.WithContext(c.UserContext()).Model(&models.Profile{}).Order("created_at DESC").Limit(limit)

	if query != "" {
		searchTerm := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
		db = db.Where(
			"LOWER(full_name) LIKE ? OR LOWER(email) LIKE ?",
			searchTerm, searchTerm,
		)
	}
	if country := strings.ToUpper(c.Query("country")); country != "" {
		db = db.Where("country_code = ?", country)
	}
	if c.Query("unpaid") == "true" {
		db = db.Where("payment_verified = ?", false)
	}

	if err := db.Find(&profiles).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "search failed", "cause": err.Error()})
	}

	type ProfileSummary struct {
		ID              string             `json:"id"`
		Email           string             `json:"email"`
		FullName        string             `json:"full_name"`
		CountryCode     string             `json:"country_code"`
		AccountTier     models.AccountTier `json:"account_tier"`
		PaymentVerified bool               `json:"payment_verified"`
		TotalXP         int64              `json:"total_xp"`
	}

	res := make([]ProfileSummary, len(profiles))
	for i, p := range profiles {
		res[i] = ProfileSummary{
			ID:              p.ID,
			Email:           p.Email,
			FullName:        p.FullName,
			CountryCode:     p.CountryCode,
			AccountTier:     p.AccountTier,
			PaymentVerified: p.PaymentVerified,
			TotalXP:         p.TotalXP,
		}
	}

	return c.JSON(res)
}
