package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultCountryCode is the sentinel used when detection fails and the key of
// the fallback pricing row.
const DefaultCountryCode = "DEFAULT"

// CountryPricing is read-only reference data consulted at registration time.
type CountryPricing struct {
	ID                    string                      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CountryCode           string                      `gorm:"uniqueIndex;type:varchar(16);not null" json:"country_code"`
	CountryName           string                      `gorm:"not null" json:"country_name"`
	Region                string                      `gorm:"not null" json:"region"`
	Currency              string                      `gorm:"type:varchar(3);not null" json:"currency"`
	StudentFee            decimal.Decimal             `gorm:"type:numeric(14,2);not null" json:"student_fee"`
	InvestorFee           decimal.Decimal             `gorm:"type:numeric(14,2);not null" json:"investor_fee"`
	AllowedPaymentMethods datatypes.JSONSlice[string] `json:"allowed_payment_methods"`

	Timestamps
}

func (CountryPricing) TableName() string {
	return "country_pricing"
}

func (c *CountryPricing) BeforeCreate(tx *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// Fee returns the registration fee for the given tier.
func (c *CountryPricing) Fee(tier AccountTier) decimal.Decimal {
	if tier == TierInvestor {
		return c.InvestorFee
	}
	return c.StudentFee
}

// AllowsMethod reports whether method is accepted in this country. An empty
// list allows every method.
func (c *CountryPricing) AllowsMethod(method string) bool {
	if len(c.AllowedPaymentMethods) == 0 {
		return true
	}
	for _, m := range c.AllowedPaymentMethods {
		if m == method {
			return true
		}
	}
	return false
}

// Milestone is one entry of CountryActivity.RecentMilestones.
type Milestone struct {
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// MaxRecentMilestones bounds CountryActivity.RecentMilestones.
const MaxRecentMilestones = 10

// CountryActivity aggregates registrations and XP per country and region for
// the heatmap.
type CountryActivity struct {
	ID               string                         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CountryCode      string                         `gorm:"type:varchar(16);not null;uniqueIndex:idx_country_region" json:"country_code"`
	Region           string                         `gorm:"not null;uniqueIndex:idx_country_region" json:"region"`
	CountryName      string                         `json:"country_name"`
	ActiveUsers      int64                          `gorm:"default:0" json:"active_users"`
	TotalXP          int64                          `gorm:"default:0" json:"total_xp"`
	RecentMilestones datatypes.JSONSlice[Milestone] `json:"recent_milestones"`

	Timestamps
}

func (CountryActivity) TableName() string {
	return "country_activity"
}

func (c *CountryActivity) BeforeCreate(tx *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
