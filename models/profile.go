package models

import "time"

type AccountTier string

const (
	TierStudent  AccountTier = "student"
	TierInvestor AccountTier = "investor"
)

func (t AccountTier) Valid() bool {
	return t == TierStudent || t == TierInvestor
}

type KYCStatus string

const (
	KYCNotStarted KYCStatus = "not_started"
	KYCPending    KYCStatus = "pending"
	KYCVerified   KYCStatus = "verified"
	KYCRejected   KYCStatus = "rejected"
)

// Profile is the local record of an identity-provider user. The ID is the
// provider's subject, so it is never generated here.
// Profiles are never deleted; state changes are soft (flags and statuses).
type Profile struct {
	ID                 string      `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Email              string      `gorm:"uniqueIndex;not null" json:"email"`
	FullName           string      `json:"full_name"`
	Phone              string      `json:"phone,omitempty"`
	ReferralCode       string      `json:"referral_code,omitempty"`
	CountryCode        string      `gorm:"type:varchar(16);index" json:"country_code"`
	CountryName        string      `json:"country_name"`
	DetectedRegion     string      `json:"detected_region"`
	CurrencyPreference string      `gorm:"type:varchar(3)" json:"currency_preference"`
	AccountTier        AccountTier `gorm:"type:varchar(16);default:'student'" json:"account_tier"`

	TotalXP          int64      `gorm:"default:0" json:"total_xp"`
	CurrentStreak    int        `gorm:"default:0" json:"current_streak"`
	LongestStreak    int        `gorm:"default:0" json:"longest_streak"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"`

	IsPremium             bool       `gorm:"default:false" json:"is_premium"`
	KYCStatus             KYCStatus  `gorm:"type:varchar(16);default:'not_started'" json:"kyc_status"`
	KYCCompletedAt        *time.Time `json:"kyc_completed_at,omitempty"`
	PaymentVerified       bool       `gorm:"default:false" json:"payment_verified"`
	OnboardingCompleted   bool       `gorm:"default:false" json:"onboarding_completed"`
	RegistrationPaymentID *string    `gorm:"type:varchar(36)" json:"registration_payment_id,omitempty"`

	Timestamps
}
