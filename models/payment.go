package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentCancelled  PaymentStatus = "cancelled"
)

// Unresolved reports whether the transaction still awaits a verifier.
func (s PaymentStatus) Unresolved() bool {
	return s == PaymentPending || s == PaymentProcessing
}

const (
	TransactionRegistrationFee = "registration_fee"
	TransactionPremium         = "premium_purchase"
)

const (
	MethodPaystack     = "paystack"
	MethodPaddle       = "paddle"
	MethodBankTransfer = "bank_transfer"
	MethodCrypto       = "crypto"
)

// PaymentTransaction records one payment attempt. Clients create it as
// pending or processing; only verifiers move it to completed.
type PaymentTransaction struct {
	ID               string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID           string            `gorm:"type:varchar(64);not null;index" json:"user_id"`
	TransactionType  string            `gorm:"type:varchar(32);not null;default:'registration_fee'" json:"transaction_type"`
	Amount           decimal.Decimal   `gorm:"type:numeric(14,2);not null" json:"amount"`
	Currency         string            `gorm:"type:varchar(3);not null" json:"currency"`
	PaymentMethod    string            `gorm:"type:varchar(32);not null" json:"payment_method"`
	Status           PaymentStatus     `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	ScreenshotURL    *string           `gorm:"type:text" json:"screenshot_url,omitempty"`
	PaymentReference *string           `json:"payment_reference,omitempty"`
	GatewayReference *string           `gorm:"uniqueIndex" json:"gateway_reference,omitempty"`
	CheckoutURL      *string           `gorm:"type:text" json:"checkout_url,omitempty"`
	Metadata         datatypes.JSONMap `json:"metadata,omitempty"`

	PaymentProofVerified bool       `gorm:"default:false" json:"payment_proof_verified"`
	VerificationNotes    *string    `gorm:"type:text" json:"verification_notes,omitempty"`
	VerifiedBy           *string    `json:"verified_by,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`

	Timestamps
}

func (p *PaymentTransaction) BeforeCreate(tx *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
