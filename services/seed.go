package services

import (
	"fmt"
	"log"
	"strings"

	"blackpass-api/models"

	"github.com/gosimple/slug"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Migrate creates the schema plus the partial index that keeps at most one
// unresolved payment per user and transaction type.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_unresolved
		ON payment_transactions (user_id, transaction_type)
		WHERE status IN ('pending', 'processing')`).Error; err != nil {
		return fmt.Errorf("create unresolved payment index: %w", err)
	}
	return nil
}

// SeedReferenceData inserts the predefined pricing rows, tokens and missions.
// Existing rows are left untouched so admin edits survive restarts.
func SeedReferenceData(db *gorm.DB, coinSymbol string) error {
	pricing := make([]models.CountryPricing, len(models.DefaultCountryPricing))
	copy(pricing, models.DefaultCountryPricing)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "country_code"}},
		DoNothing: true,
	}).Create(&pricing).Error; err != nil {
		return fmt.Errorf("seed pricing: %w", err)
	}

	tokens := make([]models.Token, len(models.DefaultTokens))
	copy(tokens, models.DefaultTokens)
	if coinSymbol != "" && !hasToken(tokens, coinSymbol) {
		tokens = append(tokens, models.Token{Symbol: strings.ToUpper(coinSymbol), Name: strings.ToUpper(coinSymbol), Decimals: 2, IsActive: true})
	}
	for i := range tokens {
		tokens[i].IsActive = true
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoNothing: true,
	}).Create(&tokens).Error; err != nil {
		return fmt.Errorf("seed tokens: %w", err)
	}

	missions := make([]models.Mission, len(models.DefaultMissions))
	copy(missions, models.DefaultMissions)
	for i := range missions {
		if missions[i].Slug == "" {
			missions[i].Slug = slug.Make(missions[i].Title)
		}
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoNothing: true,
	}).Create(&missions).Error; err != nil {
		return fmt.Errorf("seed missions: %w", err)
	}

	log.Printf("🌱 [Seed] reference data ready (%d countries, %d tokens, %d missions)", len(pricing), len(tokens), len(missions))
	return nil
}

func hasToken(tokens []models.Token, symbol string) bool {
	for _, t := range tokens {
		if strings.EqualFold(t.Symbol, symbol) {
			return true
		}
	}
	return false
}
