package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"blackpass-api/models"
	"blackpass-api/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	msgProofReceived    = "Payment received. Awaiting verification (usually within 10-30 minutes)."
	msgPaymentInitiated = "Payment initiated. Complete payment to proceed."
)

// ProofStore keeps proof-of-payment files and returns a retrievable URL.
type ProofStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// ProofUpload is a proof-of-payment file attached to a declaration.
type ProofUpload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// Declaration is what the client states about a payment it made or is about
// to make. PaymentReference is the client's own note (a bank transfer
// narration, a wallet tx hash) and is never used to match gateway verdicts.
type Declaration struct {
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Method           string          `json:"payment_method"`
	TransactionType  string          `json:"transaction_type"`
	ProofURL         string          `json:"screenshot_url"`
	PaymentReference string          `json:"payment_reference"`
	Metadata         map[string]any  `json:"metadata"`

	Proof *ProofUpload `json:"-"`
}

// CaptureResult is the created transaction plus the message shown to the user.
// Next is set for registration fees.
type CaptureResult struct {
	Transaction *models.PaymentTransaction `json:"transaction"`
	Message     string                     `json:"message"`
	Next        OnboardingStep             `json:"next_step,omitempty"`
}

var knownMethods = map[string]bool{
	models.MethodPaystack:     true,
	models.MethodPaddle:       true,
	models.MethodBankTransfer: true,
	models.MethodCrypto:       true,
}

// PaymentService records payment attempts. It only ever writes pending or
// processing; completion belongs to VerificationService.
type PaymentService struct {
	DB             *gorm.DB
	Pricing        *PricingService
	Proofs         ProofStore
	Gateways       map[string]Gateway
	GatewayTimeout time.Duration
	Now            func() time.Time
}

func NewPaymentService(db *gorm.DB, pricing *PricingService, proofs ProofStore, gatewayTimeout time.Duration, gateways ...Gateway) *PaymentService {
	byName := make(map[string]Gateway, len(gateways))
	for _, g := range gateways {
		if g != nil {
			byName[g.Name()] = g
		}
	}
	if gatewayTimeout <= 0 {
		gatewayTimeout = 10 * time.Second
	}
	return &PaymentService{
		DB:             db,
		Pricing:        pricing,
		Proofs:         proofs,
		Gateways:       byName,
		GatewayTimeout: gatewayTimeout,
		Now:            func() time.Time { return time.Now().UTC() },
	}
}

func (d *Declaration) normalise() error {
	d.Currency = strings.ToUpper(strings.TrimSpace(d.Currency))
	d.Method = strings.ToLower(strings.TrimSpace(d.Method))
	d.TransactionType = strings.TrimSpace(d.TransactionType)
	if d.TransactionType == "" {
		d.TransactionType = models.TransactionRegistrationFee
	}

	if !d.Amount.IsPositive() {
		return validationError("amount must be greater than zero")
	}
	if _, err := parseCurrency(d.Currency); err != nil {
		return err
	}
	if !knownMethods[d.Method] {
		return validationError(fmt.Sprintf("unsupported payment method %q", d.Method))
	}
	return nil
}

func (d *Declaration) hasProof() bool {
	return d.Proof != nil || strings.TrimSpace(d.ProofURL) != ""
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// Capture validates a declaration and records it. With a proof attached the
// transaction starts as processing, otherwise pending. A registration fee
// must match the country pricing for the user's tier exactly.
func (s *PaymentService) Capture(ctx context.Context, userID string, d Declaration) (*CaptureResult, error) {
	if err := d.normalise(); err != nil {
		return nil, err
	}

	profile, err := loadProfile(s.DB.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}

	var flow *Onboarding
	if d.TransactionType == models.TransactionRegistrationFee {
		if flow = ResumeOnboarding(profile, nil); flow.Step != StepPayment {
			resourceID := ""
			if profile.RegistrationPaymentID != nil {
				resourceID = *profile.RegistrationPaymentID
			}
			return nil, conflictError("registration is already paid", resourceID)
		}
	}

	if err := s.checkPricing(ctx, profile, &d); err != nil {
		return nil, err
	}

	if existing, err := s.unresolved(ctx, userID, d.TransactionType); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, conflictError("a payment is already awaiting verification", existing.ID)
	}

	now := s.Now()
	tx := models.PaymentTransaction{
		ID:               uuid.NewString(),
		UserID:           userID,
		TransactionType:  d.TransactionType,
		Amount:           d.Amount,
		Currency:         d.Currency,
		PaymentMethod:    d.Method,
		Status:           models.PaymentPending,
		PaymentReference: optional(d.PaymentReference),
		Metadata:         d.Metadata,
	}
	message := msgPaymentInitiated

	if d.hasProof() {
		url := strings.TrimSpace(d.ProofURL)
		if d.Proof != nil {
			if url, err = s.storeProof(ctx, userID, d.Proof, now); err != nil {
				return nil, err
			}
		}
		tx.ScreenshotURL = &url
		tx.Status = models.PaymentProcessing
		message = msgProofReceived
	} else if gw, ok := s.Gateways[d.Method]; ok {
		session, err := s.initiate(ctx, gw, CheckoutRequest{
			TransactionID: tx.ID,
			UserID:        userID,
			Email:         profile.Email,
			Amount:        d.Amount,
			Currency:      d.Currency,
		})
		if err != nil {
			return nil, err
		}
		tx.GatewayReference = optional(session.GatewayReference)
		tx.CheckoutURL = optional(session.CheckoutURL)
		if tx.PaymentReference == nil {
			tx.PaymentReference = optional(session.GatewayReference)
		}
	}

	if err := s.DB.WithContext(ctx).Create(&tx).Error; err != nil {
		if isUniqueViolation(err) {
			if existing, _ := s.unresolved(ctx, userID, d.TransactionType); existing != nil {
				return nil, conflictError("a payment is already awaiting verification", existing.ID)
			}
			return nil, conflictError("duplicate payment reference", "")
		}
		return nil, externalError("failed to record payment", err, true)
	}
	paymentsCaptured.WithLabelValues(string(tx.Status), tx.PaymentMethod).Inc()

	// The profile link is informational and not in the insert's transaction:
	// a failure here leaves the transaction without a back-reference.
	if tx.TransactionType == models.TransactionRegistrationFee {
		if err := s.DB.WithContext(ctx).Model(&models.Profile{}).
			Where("id = ?", userID).
			Update("registration_payment_id", tx.ID).Error; err != nil {
			log.Printf("⚠️ [Payments] failed to link transaction %s to profile %s: %v", tx.ID, userID, err)
		}
	}

	result := &CaptureResult{Transaction: &tx, Message: message}
	if flow != nil && flow.PaymentSubmitted(&tx) == nil {
		result.Next = flow.Step
	}

	log.Printf("💳 [Payments] %s recorded %s %s via %s (%s)", userID, tx.Amount.StringFixed(2), tx.Currency, tx.PaymentMethod, tx.Status)
	return result, nil
}

// OnboardingState reports where a registered user stands in sign-up, based
// on the profile and their latest live registration payment.
func (s *PaymentService) OnboardingState(ctx context.Context, userID string) (*Onboarding, error) {
	db := s.DB.WithContext(ctx)
	profile, err := loadProfile(db, userID)
	if err != nil {
		return nil, err
	}

	var rows []models.PaymentTransaction
	err = db.Where("user_id = ? AND transaction_type = ? AND status IN ?", userID, models.TransactionRegistrationFee,
		[]models.PaymentStatus{models.PaymentPending, models.PaymentProcessing, models.PaymentCompleted}).
		Order("created_at DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load registration payment: %w", err)
	}

	var payment *models.PaymentTransaction
	if len(rows) > 0 {
		payment = &rows[0]
	}
	return ResumeOnboarding(profile, payment), nil
}

func (s *PaymentService) checkPricing(ctx context.Context, profile *models.Profile, d *Declaration) error {
	if s.Pricing == nil {
		if d.TransactionType == models.TransactionRegistrationFee {
			return externalError("pricing unavailable", nil, false)
		}
		return nil
	}

	pricing, err := s.Pricing.Resolve(ctx, profile.CountryCode)
	if err != nil {
		return externalError("pricing unavailable", err, true)
	}
	if !pricing.AllowsMethod(d.Method) {
		return validationError(fmt.Sprintf("%s is not available in %s", d.Method, pricing.CountryName))
	}
	if d.TransactionType == models.TransactionRegistrationFee {
		fee := pricing.Fee(profile.AccountTier)
		if d.Currency != pricing.Currency || !d.Amount.Equal(fee) {
			return validationError(fmt.Sprintf("the %s registration fee in %s is %s %s",
				profile.AccountTier, pricing.CountryName, fee.StringFixed(2), pricing.Currency))
		}
	}
	return nil
}

func (s *PaymentService) initiate(ctx context.Context, gw Gateway, req CheckoutRequest) (*CheckoutSession, error) {
	ctx, cancel := context.WithTimeout(ctx, s.GatewayTimeout)
	defer cancel()

	session, err := gw.InitiateCheckout(ctx, req)
	if err != nil {
		var svcErr *Error
		if errors.As(err, &svcErr) {
			return nil, err
		}
		log.Printf("❌ [Payments] %s checkout failed for %s: %v", gw.Name(), req.UserID, err)
		return nil, externalError(fmt.Sprintf("%s is unavailable, please try again", gw.Name()), err, true)
	}
	return session, nil
}

func (s *PaymentService) storeProof(ctx context.Context, userID string, proof *ProofUpload, now time.Time) (string, error) {
	if s.Proofs == nil {
		return "", externalError("proof uploads are not available", nil, false)
	}
	ext, err := utils.ProofExtension(proof.Filename, proof.ContentType)
	if err != nil {
		return "", validationError(err.Error())
	}
	url, err := s.Proofs.Put(ctx, utils.ProofKey(userID, ext, now), proof.ContentType, proof.Body)
	if err != nil {
		return "", externalError("failed to store proof of payment", err, true)
	}
	return url, nil
}

func (s *PaymentService) unresolved(ctx context.Context, userID, transactionType string) (*models.PaymentTransaction, error) {
	var rows []models.PaymentTransaction
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND transaction_type = ? AND status IN ?", userID, transactionType,
			[]models.PaymentStatus{models.PaymentPending, models.PaymentProcessing}).
		Order("created_at DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to check open payments: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Cancel lets the owner abandon a pending transaction. Processing ones have a
// proof under review and stay put.
func (s *PaymentService) Cancel(ctx context.Context, userID, transactionID string) (*models.PaymentTransaction, error) {
	db := s.DB.WithContext(ctx)
	res := db.Model(&models.PaymentTransaction{}).
		Where("id = ? AND user_id = ? AND status = ?", transactionID, userID, models.PaymentPending).
		Update("status", models.PaymentCancelled)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to cancel payment: %w", res.Error)
	}

	tx, err := s.Get(ctx, userID, transactionID)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, conflictError(fmt.Sprintf("payment is %s and cannot be cancelled", tx.Status), tx.ID)
	}
	return tx, nil
}

// Get returns one of the user's transactions.
func (s *PaymentService) Get(ctx context.Context, userID, transactionID string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	err := s.DB.WithContext(ctx).Where("id = ? AND user_id = ?", transactionID, userID).First(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// ListTransactions returns the user's payments, newest first.
func (s *PaymentService) ListTransactions(ctx context.Context, userID string) ([]models.PaymentTransaction, error) {
	var rows []models.PaymentTransaction
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}
