package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"blackpass-api/models"

	"github.com/gosimple/unidecode"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultRegion = "General"

// CountryActivityService maintains the per-country heatmap aggregate.
type CountryActivityService struct {
	DB *gorm.DB
}

func NewCountryActivityService(db *gorm.DB) *CountryActivityService {
	return &CountryActivityService{DB: db}
}

// normaliseRegion folds accents and whitespace so "Lagos " and "Lagós" share a row.
func normaliseRegion(region string) string {
	region = strings.Join(strings.Fields(unidecode.Unidecode(region)), " ")
	if region == "" {
		return defaultRegion
	}
	return region
}

// Record folds one milestone into the (country, region) row, creating it on
// first use. The newest milestone goes first and only the last ten are kept.
func (s *CountryActivityService) Record(ctx context.Context, m MilestoneEvent) error {
	code := strings.ToUpper(strings.TrimSpace(m.CountryCode))
	if code == "" {
		return validationError("country_code is required")
	}
	if m.Type == "" {
		return validationError("milestone type is required")
	}
	region := normaliseRegion(m.Region)
	at := m.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := models.CountryActivity{
			CountryCode:      code,
			Region:           region,
			CountryName:      m.CountryName,
			RecentMilestones: []models.Milestone{},
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "country_code"}, {Name: "region"}},
			DoNothing: true,
		}).Create(&seed)
		if res.Error != nil {
			return fmt.Errorf("failed to open country activity row: %w", res.Error)
		}
		created := res.RowsAffected == 1

		var row models.CountryActivity
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("country_code = ? AND region = ?", code, region).
			First(&row).Error; err != nil {
			return fmt.Errorf("failed to load country activity: %w", err)
		}

		milestones := append([]models.Milestone{{
			Type:        m.Type,
			Description: m.Description,
			Timestamp:   at,
		}}, row.RecentMilestones...)
		if len(milestones) > models.MaxRecentMilestones {
			milestones = milestones[:models.MaxRecentMilestones]
		}

		updates := map[string]any{
			"total_xp":          gorm.Expr("total_xp + ?", max(m.XPGained, 0)),
			"recent_milestones": datatypes.JSONSlice[models.Milestone](milestones),
		}
		if created || m.Type == models.ActivityRegistration {
			updates["active_users"] = gorm.Expr("active_users + 1")
		}
		if row.CountryName == "" && m.CountryName != "" {
			updates["country_name"] = m.CountryName
		}
		return tx.Model(&models.CountryActivity{}).Where("id = ?", row.ID).Updates(updates).Error
	})
}

// List returns every aggregate row, busiest first.
func (s *CountryActivityService) List(ctx context.Context) ([]models.CountryActivity, error) {
	var rows []models.CountryActivity
	err := s.DB.WithContext(ctx).
		Order("total_xp DESC").
		Order("active_users DESC").
		Find(&rows).Error
	return rows, err
}
