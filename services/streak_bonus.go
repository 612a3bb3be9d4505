package services

import (
	"fmt"

	"blackpass-api/models"

	"gorm.io/gorm"
)

// StreakBonus pays extra XP the day a streak reaches Days.
type StreakBonus struct {
	Days int
	XP   int64
}

var StreakBonuses = []StreakBonus{
	{Days: 3, XP: 15},
	{Days: 7, XP: 50},
	{Days: 14, XP: 120},
	{Days: 30, XP: 300},
}

func streakBonusFor(previous, current int) int64 {
	if current <= previous {
		return 0
	}
	for _, b := range StreakBonuses {
		if b.Days == current {
			return b.XP
		}
	}
	return 0
}

// applyStreakBonus credits the bonus for crossing into a bonus day inside tx.
func applyStreakBonus(tx *gorm.DB, userID string, previous, current int) (int64, error) {
	bonus := streakBonusFor(previous, current)
	if bonus == 0 {
		return 0, nil
	}
	if err := tx.Model(&models.Profile{}).Where("id = ?", userID).
		Update("total_xp", gorm.Expr("total_xp + ?", bonus)).Error; err != nil {
		return 0, fmt.Errorf("failed to credit streak bonus: %w", err)
	}
	desc := fmt.Sprintf("%d-day streak", current)
	if err := tx.Create(&models.XPTransaction{
		UserID:      userID,
		Amount:      bonus,
		Source:      models.XPStreakBonus,
		Description: &desc,
	}).Error; err != nil {
		return 0, fmt.Errorf("failed to record streak bonus: %w", err)
	}
	return bonus, nil
}
