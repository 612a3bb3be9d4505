package models

import (
	"time"

	"github.com/google/uuid"
)

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime;index"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

// All returns every model owned by this service, in migration order.
func All() []any {
	return []any{
		&Profile{},
		&Mission{},
		&UserMission{},
		&PaymentTransaction{},
		&Token{},
		&UserWallet{},
		&WalletTransaction{},
		&XPTransaction{},
		&ActivityEvent{},
		&CountryPricing{},
		&CountryActivity{},
		&PremiumPlan{},
		&Lesson{},
		&LessonProgress{},
	}
}
