package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"blackpass-api/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WalletService owns every balance mutation. Balances change only through
// credit and debit, each leaving a wallet_transactions row.
type WalletService struct {
	DB     *gorm.DB
	Broker *Broker
}

func NewWalletService(db *gorm.DB, broker *Broker) *WalletService {
	return &WalletService{DB: db, Broker: broker}
}

// WalletMovement describes one credit or debit.
type WalletMovement struct {
	UserID      string
	Symbol      string
	Amount      decimal.Decimal
	Type        models.WalletTransactionType
	Description string
	ReferenceID string
}

func tokenBySymbol(tx *gorm.DB, symbol string) (*models.Token, error) {
	var token models.Token
	err := tx.Where("symbol = ? AND is_active = ?", strings.ToUpper(symbol), true).First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundError(fmt.Sprintf("token %s not found", symbol))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	return &token, nil
}

func ensureWallet(tx *gorm.DB, userID, tokenID string) error {
	w := models.UserWallet{
		UserID:        userID,
		TokenID:       tokenID,
		Balance:       decimal.Zero,
		LockedBalance: decimal.Zero,
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "token_id"}},
		DoNothing: true,
	}).Create(&w).Error
}

func recordMovement(tx *gorm.DB, m WalletMovement, tokenID string, signed decimal.Decimal) (*models.WalletTransaction, error) {
	var wallet models.UserWallet
	if err := tx.Where("user_id = ? AND token_id = ?", m.UserID, tokenID).First(&wallet).Error; err != nil {
		return nil, fmt.Errorf("failed to reload wallet: %w", err)
	}

	entry := models.WalletTransaction{
		UserID:          m.UserID,
		TokenID:         tokenID,
		Amount:          signed,
		TransactionType: m.Type,
		Description:     m.Description,
		BalanceAfter:    wallet.Balance,
	}
	if m.ReferenceID != "" {
		entry.ReferenceID = &m.ReferenceID
	}
	if err := tx.Create(&entry).Error; err != nil {
		return nil, fmt.Errorf("failed to record wallet transaction: %w", err)
	}
	return &entry, nil
}

// credit adds m.Amount inside tx.
func credit(tx *gorm.DB, m WalletMovement) (*models.WalletTransaction, error) {
	if !m.Amount.IsPositive() {
		return nil, validationError("credit amount must be positive")
	}
	token, err := tokenBySymbol(tx, m.Symbol)
	if err != nil {
		return nil, err
	}
	if err := ensureWallet(tx, m.UserID, token.ID); err != nil {
		return nil, fmt.Errorf("failed to open wallet: %w", err)
	}
	if err := tx.Model(&models.UserWallet{}).
		Where("user_id = ? AND token_id = ?", m.UserID, token.ID).
		Update("balance", gorm.Expr("balance + ?", m.Amount)).Error; err != nil {
		return nil, fmt.Errorf("failed to credit wallet: %w", err)
	}
	return recordMovement(tx, m, token.ID, m.Amount)
}

// debit subtracts m.Amount inside tx. The guard lives in the UPDATE so two
// concurrent debits cannot both pass a stale balance check.
func debit(tx *gorm.DB, m WalletMovement) (*models.WalletTransaction, error) {
	if !m.Amount.IsPositive() {
		return nil, validationError("debit amount must be positive")
	}
	token, err := tokenBySymbol(tx, m.Symbol)
	if err != nil {
		return nil, err
	}
	if err := ensureWallet(tx, m.UserID, token.ID); err != nil {
		return nil, fmt.Errorf("failed to open wallet: %w", err)
	}
	res := tx.Model(&models.UserWallet{}).
		Where("user_id = ? AND token_id = ? AND balance >= ?", m.UserID, token.ID, m.Amount).
		Update("balance", gorm.Expr("balance - ?", m.Amount))
	if res.Error != nil {
		return nil, fmt.Errorf("failed to debit wallet: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrInsufficientFunds
	}
	return recordMovement(tx, m, token.ID, m.Amount.Neg())
}

func (s *WalletService) publish(userID, recordID string) {
	if s.Broker != nil {
		s.Broker.Publish(Change{Table: "user_wallets", Kind: ChangeUpdate, UserID: userID, RecordID: recordID})
	}
}

// Credit adds to a balance in its own transaction.
func (s *WalletService) Credit(ctx context.Context, m WalletMovement) (*models.WalletTransaction, error) {
	var entry *models.WalletTransaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = credit(tx, m)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(m.UserID, entry.ID)
	return entry, nil
}

// Debit removes from a balance, refusing to go below zero.
func (s *WalletService) Debit(ctx context.Context, m WalletMovement) (*models.WalletTransaction, error) {
	var entry *models.WalletTransaction
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = debit(tx, m)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(m.UserID, entry.ID)
	return entry, nil
}

// Balances lists the user's wallets with token details.
func (s *WalletService) Balances(ctx context.Context, userID string) ([]models.UserWallet, error) {
	var wallets []models.UserWallet
	err := s.DB.WithContext(ctx).
		Preload("Token").
		Where("user_id = ?", userID).
		Find(&wallets).Error
	return wallets, err
}

// History returns the most recent wallet movements, newest first.
func (s *WalletService) History(ctx context.Context, userID string, limit int) ([]models.WalletTransaction, error) {
	if limit <= 0 || limit > MaxFeedLimit {
		limit = DefaultFeedLimit
	}
	var rows []models.WalletTransaction
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
