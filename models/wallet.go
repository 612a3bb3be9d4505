package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Token is a wallet currency such as BlackCoin.
type Token struct {
	ID       string `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Symbol   string `gorm:"uniqueIndex;type:varchar(16);not null" json:"symbol"`
	Name     string `gorm:"not null" json:"name"`
	Decimals int    `gorm:"default:2" json:"decimals"`
	IconURL  string `json:"icon_url,omitempty"`
	IsActive bool   `gorm:"default:true" json:"is_active"`

	Timestamps
}

func (t *Token) BeforeCreate(tx *gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// UserWallet holds a per-user balance for one token. Balances move only
// through WalletService credit and debit.
type UserWallet struct {
	ID            string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID        string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_wallet_owner" json:"user_id"`
	TokenID       string          `gorm:"type:varchar(36);not null;uniqueIndex:idx_wallet_owner" json:"token_id"`
	Balance       decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"balance"`
	LockedBalance decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"locked_balance"`

	Token Token `gorm:"foreignKey:TokenID" json:"token"`

	Timestamps
}

func (w *UserWallet) BeforeCreate(tx *gorm.DB) error {
	ensureID(&w.ID)
	return nil
}

type WalletTransactionType string

const (
	WalletCreditMissionReward WalletTransactionType = "mission_reward"
	WalletCreditAdjustment    WalletTransactionType = "adjustment"
	WalletDebitPurchase       WalletTransactionType = "purchase"
)

// WalletTransaction is the append-only trail behind every balance change.
type WalletTransaction struct {
	ID              string                `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID          string                `gorm:"type:varchar(64);not null;index" json:"user_id"`
	TokenID         string                `gorm:"type:varchar(36);not null" json:"token_id"`
	Amount          decimal.Decimal       `gorm:"type:numeric(20,2);not null" json:"amount"`
	TransactionType WalletTransactionType `gorm:"type:varchar(32);not null" json:"transaction_type"`
	Description     string                `json:"description,omitempty"`
	ReferenceID     *string               `gorm:"type:varchar(64)" json:"reference_id,omitempty"`
	BalanceAfter    decimal.Decimal       `gorm:"type:numeric(20,2);not null" json:"balance_after"`

	Timestamps
}

func (w *WalletTransaction) BeforeCreate(tx *gorm.DB) error {
	ensureID(&w.ID)
	return nil
}
