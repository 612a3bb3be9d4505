package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// PremiumPlan is the subscription catalog. Read-only from this service.
type PremiumPlan struct {
	ID            string                      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Name          string                      `gorm:"not null" json:"name"`
	BillingPeriod string                      `gorm:"type:varchar(16);not null" json:"billing_period"`
	PriceUSD      decimal.Decimal             `gorm:"type:numeric(10,2)" json:"price_usd"`
	PriceNGN      decimal.Decimal             `gorm:"type:numeric(12,2)" json:"price_ngn"`
	Features      datatypes.JSONSlice[string] `json:"features"`
	IsActive      bool                        `gorm:"default:true" json:"is_active"`
	OrderIndex    int                         `gorm:"default:0" json:"order_index"`

	Timestamps
}

func (p *PremiumPlan) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
