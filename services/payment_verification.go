package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"blackpass-api/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var unresolvedStatuses = []models.PaymentStatus{models.PaymentPending, models.PaymentProcessing}

// VerifyInput is a verdict on one transaction, addressed either by id (admin
// review) or by the reference the gateway issued at checkout (webhooks).
type VerifyInput struct {
	TransactionID    string
	GatewayReference string
	Outcome          models.PaymentStatus
	// Amount and Currency are what the gateway says it settled, when known.
	Amount     *decimal.Decimal
	Currency   string
	VerifiedBy string
	Notes      string
}

// VerificationService is the only writer of completed and failed payments.
type VerificationService struct {
	DB     *gorm.DB
	Broker *Broker
	Now    func() time.Time
}

func NewVerificationService(db *gorm.DB, broker *Broker) *VerificationService {
	return &VerificationService{
		DB:     db,
		Broker: broker,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *VerificationService) find(tx *gorm.DB, in VerifyInput) (*models.PaymentTransaction, error) {
	q := tx
	switch {
	case in.TransactionID != "":
		q = q.Where("id = ?", in.TransactionID)
	case in.GatewayReference != "":
		q = q.Where("gateway_reference = ?", in.GatewayReference)
	default:
		return nil, validationError("transaction id or gateway reference is required")
	}
	var row models.PaymentTransaction
	if err := q.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return &row, nil
}

// Verify moves an unresolved transaction to completed or failed. A gateway
// completion must report what it settled; an amount or currency that
// disagrees with the recorded one fails the payment.
// A transaction that is already resolved yields a Conflict.
func (s *VerificationService) Verify(ctx context.Context, in VerifyInput) (*models.PaymentTransaction, error) {
	if in.Outcome != models.PaymentCompleted && in.Outcome != models.PaymentFailed {
		return nil, validationError("outcome must be completed or failed")
	}

	now := s.Now()
	var (
		result   models.PaymentTransaction
		activity *models.ActivityEvent
	)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := s.find(tx, in)
		if err != nil {
			return err
		}
		if !row.Status.Unresolved() {
			return conflictError(fmt.Sprintf("payment already %s", row.Status), row.ID)
		}

		outcome := in.Outcome
		notes := strings.TrimSpace(in.Notes)
		if outcome == models.PaymentCompleted && in.TransactionID == "" && in.Amount == nil {
			return validationError("gateway completions must report the settled amount")
		}
		if outcome == models.PaymentCompleted && in.Amount != nil {
			if !in.Amount.Equal(row.Amount) || (in.Currency != "" && !strings.EqualFold(in.Currency, row.Currency)) {
				outcome = models.PaymentFailed
				notes = fmt.Sprintf("settled %s %s does not match declared %s %s",
					in.Amount.StringFixed(2), strings.ToUpper(in.Currency), row.Amount.StringFixed(2), row.Currency)
			}
		}

		updates := map[string]any{
			"status":      outcome,
			"verified_by": in.VerifiedBy,
		}
		if notes != "" {
			updates["verification_notes"] = notes
		}
		if outcome == models.PaymentCompleted {
			updates["completed_at"] = now
			if row.ScreenshotURL != nil {
				updates["payment_proof_verified"] = true
			}
		}

		res := tx.Model(&models.PaymentTransaction{}).
			Where("id = ? AND status IN ?", row.ID, unresolvedStatuses).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("failed to resolve payment: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return conflictError("payment was resolved concurrently", row.ID)
		}

		if outcome == models.PaymentCompleted {
			if err := s.applyEntitlement(tx, row); err != nil {
				return err
			}
			activity = newActivity(row.UserID, models.ActivityPaymentVerified, "Payment verified", "",
				map[string]any{
					"transaction_id":   row.ID,
					"transaction_type": row.TransactionType,
					"amount":           row.Amount.StringFixed(2),
					"currency":         row.Currency,
				})
			if err := appendActivity(tx, activity); err != nil {
				return err
			}
		}

		return tx.Where("id = ?", row.ID).First(&result).Error
	})
	if err != nil {
		return nil, err
	}

	paymentsVerified.WithLabelValues(string(result.Status), verifierLabel(in.VerifiedBy)).Inc()
	publishActivity(s.Broker, activity)
	if s.Broker != nil {
		s.Broker.Publish(Change{Table: "payment_transactions", Kind: ChangeUpdate, UserID: result.UserID, RecordID: result.ID})
	}
	log.Printf("🧾 [Verification] %s → %s by %s", result.ID, result.Status, in.VerifiedBy)
	return &result, nil
}

func verifierLabel(verifiedBy string) string {
	if i := strings.Index(verifiedBy, ":"); i > 0 {
		return verifiedBy[:i]
	}
	if verifiedBy == "" {
		return "unknown"
	}
	return verifiedBy
}

func (s *VerificationService) applyEntitlement(tx *gorm.DB, row *models.PaymentTransaction) error {
	var updates map[string]any
	switch row.TransactionType {
	case models.TransactionRegistrationFee:
		updates = map[string]any{
			"payment_verified":        true,
			"onboarding_completed":    true,
			"registration_payment_id": row.ID,
		}
	case models.TransactionPremium:
		updates = map[string]any{"is_premium": true}
	default:
		return nil
	}
	if err := tx.Model(&models.Profile{}).Where("id = ?", row.UserID).Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update profile entitlement: %w", err)
	}
	return nil
}

// ExpireStale cancels pending transactions created before cutoff. Processing
// ones carry a proof and wait for a reviewer regardless of age.
func (s *VerificationService) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Model(&models.PaymentTransaction{}).
		Where("status = ? AND created_at < ?", models.PaymentPending, cutoff).
		Updates(map[string]any{
			"status":             models.PaymentCancelled,
			"verification_notes": "expired without confirmation",
		})
	return res.RowsAffected, res.Error
}

// ReviewQueue lists transactions awaiting a decision, oldest first.
func (s *VerificationService) ReviewQueue(ctx context.Context, status models.PaymentStatus, limit int) ([]models.PaymentTransaction, error) {
	if limit <= 0 || limit > MaxFeedLimit {
		limit = 50
	}
	q := s.DB.WithContext(ctx).Order("created_at ASC").Limit(limit)
	if status != "" {
		q = q.Where("status = ?", status)
	} else {
		q = q.Where("status IN ?", unresolvedStatuses)
	}
	var rows []models.PaymentTransaction
	err := q.Find(&rows).Error
	return rows, err
}
