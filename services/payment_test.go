package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"blackpass-api/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	name    string
	ref     string
	block   bool
	err     error
	calls   int
	lastReq CheckoutRequest
}

func (g *fakeGateway) Name() string { return g.name }

func (g *fakeGateway) InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	g.calls++
	g.lastReq = req
	if g.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if g.err != nil {
		return nil, g.err
	}
	return &CheckoutSession{GatewayReference: g.ref, CheckoutURL: "https://checkout.example/" + g.ref}, nil
}

type memoryProofs struct {
	keys []string
	data []byte
}

func (m *memoryProofs) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	m.keys = append(m.keys, key)
	m.data, _ = io.ReadAll(body)
	return "https://cdn.example/" + key, nil
}

type paymentFixture struct {
	payments *PaymentService
	verifier *VerificationService
	gateway  *fakeGateway
	proofs   *memoryProofs
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	db := newTestDB(t)
	gw := &fakeGateway{name: models.MethodPaystack, ref: "BP-user_ng-1741597200000"}
	proofs := &memoryProofs{}
	payments := NewPaymentService(db, NewPricingService(db, nil), proofs, time.Second, gw)
	payments.Now = fixedClock(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC))
	return &paymentFixture{
		payments: payments,
		verifier: NewVerificationService(db, NewBroker()),
		gateway:  gw,
		proofs:   proofs,
	}
}

func TestCaptureWithProofIsProcessing(t *testing.T) {
	f := newPaymentFixture(t)
	createProfile(t, f.payments.DB, "user_ng", "NG")

	res, err := f.payments.Capture(context.Background(), "user_ng", Declaration{
		Amount:   dec("25000"),
		Currency: "ngn",
		Method:   "bank_transfer",
		Proof:    &ProofUpload{Filename: "receipt.PNG", ContentType: "image/png", Body: bytes.NewReader([]byte("png-bytes"))},
	})
	require.NoError(t, err)

	tx := res.Transaction
	assert.Equal(t, models.PaymentProcessing, tx.Status)
	assert.Equal(t, models.TransactionRegistrationFee, tx.TransactionType)
	assert.Equal(t, "NGN", tx.Currency)
	assert.Equal(t, msgProofReceived, res.Message)
	require.NotNil(t, tx.ScreenshotURL)
	assert.True(t, strings.HasSuffix(*tx.ScreenshotURL, ".png"))
	require.Len(t, f.proofs.keys, 1)
	assert.True(t, strings.HasPrefix(f.proofs.keys[0], "payment-proofs/user_ng/payment-"))
	assert.Equal(t, []byte("png-bytes"), f.proofs.data)
	assert.Zero(t, f.gateway.calls)

	var profile models.Profile
	require.NoError(t, f.payments.DB.First(&profile, "id = ?", "user_ng").Error)
	require.NotNil(t, profile.RegistrationPaymentID)
	assert.Equal(t, tx.ID, *profile.RegistrationPaymentID)
	assert.False(t, profile.PaymentVerified)
}

func TestCaptureWithoutProofIsPendingAndOpensCheckout(t *testing.T) {
	f := newPaymentFixture(t)
	createProfile(t, f.payments.DB, "user_ng", "NG")

	res, err := f.payments.Capture(context.Background(), "user_ng", Declaration{
		Amount: dec("25000"), Currency: "NGN", Method: "paystack",
	})
	require.NoError(t, err)

	tx := res.Transaction
	assert.Equal(t, models.PaymentPending, tx.Status)
	assert.Equal(t, msgPaymentInitiated, res.Message)
	assert.Nil(t, tx.ScreenshotURL)
	require.NotNil(t, tx.GatewayReference)
	assert.Equal(t, f.gateway.ref, *tx.GatewayReference)
	require.NotNil(t, tx.CheckoutURL)
	assert.Equal(t, 1, f.gateway.calls)
	assert.Equal(t, tx.ID, f.gateway.lastReq.TransactionID)
	assert.Equal(t, "user_ng@example.com", f.gateway.lastReq.Email)
}

func TestCaptureValidation(t *testing.T) {
	f := newPaymentFixture(t)
	createProfile(t, f.payments.DB, "user_ng", "NG")
	ctx := context.Background()

	tests := []struct {
		name string
		decl Declaration
	}{
		{"zero amount", Declaration{Amount: decimal.Zero, Currency: "NGN", Method: "paystack"}},
		{"bad currency", Declaration{Amount: dec("25000"), Currency: "XYZ1", Method: "paystack"}},
		{"unknown method", Declaration{Amount: dec("25000"), Currency: "NGN", Method: "cheque"}},
		{"method not offered in country", Declaration{Amount: dec("25000"), Currency: "NGN", Method: "paddle"}},
		{"fee below country pricing", Declaration{Amount: dec("1"), Currency: "NGN", Method: "paystack"}},
		{"fee above country pricing", Declaration{Amount: dec("75000"), Currency: "NGN", Method: "paystack"}},
		{"fee in another currency", Declaration{Amount: dec("25000"), Currency: "USD", Method: "paystack"}},
		{"bad proof type", Declaration{Amount: dec("25000"), Currency: "NGN", Method: "bank_transfer",
			Proof: &ProofUpload{Filename: "evil.exe", ContentType: "application/octet-stream", Body: strings.NewReader("x")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.payments.Capture(ctx, "user_ng", tt.decl)
			assert.True(t, IsKind(err, KindValidation), "got %v", err)
		})
	}

	_, err := f.payments.Capture(ctx, "ghost", Declaration{Amount: dec("10"), Currency: "NGN", Method: "paystack"})
	assert.ErrorIs(t, err, ErrProfileNotFound)
	assert.Zero(t, f.gateway.calls)
}

func TestCaptureChargesTheTierFee(t *testing.T) {
	f := newPaymentFixture(t)
	investor := createProfile(t, f.payments.DB, "user_inv", "NG")
	require.NoError(t, f.payments.DB.Model(investor).Update("account_tier", models.TierInvestor).Error)
	ctx := context.Background()

	_, err := f.payments.Capture(ctx, "user_inv", Declaration{Amount: dec("25000"), Currency: "NGN", Method: "paystack"})
	require.True(t, IsKind(err, KindValidation), "got %v", err)
	assert.Contains(t, err.Error(), "75000.00 NGN")

	res, err := f.payments.Capture(ctx, "user_inv", Declaration{Amount: dec("75000"), Currency: "NGN", Method: "paystack"})
	require.NoError(t, err)
	assert.True(t, f.gateway.lastReq.Amount.Equal(dec("75000")))
	assert.Equal(t, "NGN", f.gateway.lastReq.Currency)
	assert.Equal(t, models.PaymentPending, res.Transaction.Status)
}

func TestCaptureRejectsSecondUnresolvedPayment(t *testing.T) {
	f := newPaymentFixture(t)
	createProfile(t, f.payments.DB, "user_ng", "NG")
	ctx := context.Background()

	first, err := f.payments.Capture(ctx, "user_ng", Declaration{Amount: dec("25000"), Currency: "NGN", Method: "bank_transfer", ProofURL: "https://cdn.example/p.png"})
	require.NoError(t, err)

	_, err = f.payments.Capture(ctx, "user_ng", Declaration{Amount: dec("25000"), Currency: "NGN", Method: "bank_transfer", ProofURL: "https://cdn.example/q.png"})
	require.True(t, IsKind(err, KindConflict))
	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, first.Transaction.ID, svcErr.ResourceID)

	// a different transaction type is independent
	_, err = f.payments.Capture(ctx, "user_ng", Declaration{Amount: dec("5000"), Currency: "NGN", Method: "bank_transfer", TransactionType: models.TransactionPremium, ProofURL: "https://cdn.example/r.png"})
	require.NoError(t, err)
}

func TestCaptureGatewayTimeoutIsRetryable(t *testing.T) {
	f := newPaymentFixture(t)
	createProfile(t, f.payments.DB, "user_ng", "NG")
	f.gateway.block = true
	f.payments.GatewayTimeout = 20 * time.Millisecond

	start := time.Now()
	_, err := f.payments.Capture(context.Background(), "user_ng", Declaration{Amount: dec("25000"), Currency: "NGN", Method: "paystack"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, KindExternal, svcErr.Kind)
	assert.True(t, svcErr.Retryable)

	txs, err := f.payments.ListTransactions(context.Background(), "user_ng")
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestCancelOnlyPending(t *testing.T) {
	f := newPaymentFixture(t)
	createProfile(t, f.payments.DB, "user_ng", "NG")
	ctx := context.Background()

	pending, err := f.payments.Capture(ctx, "user_ng", Declaration{Amount: dec("25000"), Currency: "NGN", Method: "paystack"})
	require.NoError(t, err)

	cancelled, err := f.payments.Cancel(ctx, "user_ng", pending.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCancelled, cancelled.Status)

	_, err = f.payments.Cancel(ctx, "user_ng", pending.Transaction.ID)
	assert.True(t, IsKind(err, KindConflict))

	_, err = f.payments.Cancel(ctx, "someone_else", pending.Transaction.ID)
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestNigerianRegistrationIsVerifiedByWebhook(t *testing.T) {
	f := newPaymentFixture(t)
	createProfile(t, f.payments.DB, "user_ng", "NG")
	ctx := context.Background()

	state, err := f.payments.OnboardingState(ctx, "user_ng")
	require.NoError(t, err)
	assert.Equal(t, StepPayment, state.Step)

	captured, err := f.payments.Capture(ctx, "user_ng", Declaration{Amount: dec("25000"), Currency: "NGN", Method: "paystack"})
	require.NoError(t, err)
	assert.Equal(t, StepComplete, captured.Next)

	// a gateway completion that does not say what it settled is refused
	_, err = f.verifier.Verify(ctx, VerifyInput{GatewayReference: f.gateway.ref, Outcome: models.PaymentCompleted, VerifiedBy: "paystack:webhook"})
	require.True(t, IsKind(err, KindValidation), "got %v", err)

	settled := dec("25000")
	tx, err := f.verifier.Verify(ctx, VerifyInput{
		GatewayReference: f.gateway.ref,
		Outcome:          models.PaymentCompleted,
		Amount:           &settled,
		Currency:         "NGN",
		VerifiedBy:       "paystack:webhook",
	})
	require.NoError(t, err)
	assert.Equal(t, captured.Transaction.ID, tx.ID)
	assert.Equal(t, models.PaymentCompleted, tx.Status)
	require.NotNil(t, tx.CompletedAt)

	var profile models.Profile
	require.NoError(t, f.payments.DB.First(&profile, "id = ?", "user_ng").Error)
	assert.True(t, profile.PaymentVerified)
	assert.True(t, profile.OnboardingCompleted)
	require.NotNil(t, profile.RegistrationPaymentID)
	assert.Equal(t, tx.ID, *profile.RegistrationPaymentID)

	var activities int64
	f.payments.DB.Model(&models.ActivityEvent{}).Where("user_id = ? AND activity_type = ?", "user_ng", models.ActivityPaymentVerified).Count(&activities)
	assert.EqualValues(t, 1, activities)

	// webhook retries are conflicts, not second completions
	_, err = f.verifier.Verify(ctx, VerifyInput{GatewayReference: f.gateway.ref, Outcome: models.PaymentCompleted, VerifiedBy: "paystack:webhook"})
	assert.True(t, IsKind(err, KindConflict))

	// onboarding is over; the registration fee cannot be paid twice
	_, err = f.payments.Capture(ctx, "user_ng", Declaration{Amount: dec("25000"), Currency: "NGN", Method: "bank_transfer", ProofURL: "https://cdn.example/p.png"})
	require.True(t, IsKind(err, KindConflict), "got %v", err)
	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, tx.ID, svcErr.ResourceID)

	state, err = f.payments.OnboardingState(ctx, "user_ng")
	require.NoError(t, err)
	assert.Equal(t, StepComplete, state.Step)
	require.NotNil(t, state.Payment)
	assert.Equal(t, tx.ID, state.Payment.ID)
}

func TestGatewayVerdictMatchesOnlyTheIssuedReference(t *testing.T) {
	f := newPaymentFixture(t)
	createProfile(t, f.payments.DB, "user_ng", "NG")
	createProfile(t, f.payments.DB, "user_other", "NG")
	ctx := context.Background()

	victim, err := f.payments.Capture(ctx, "user_ng", Declaration{Amount: dec("25000"), Currency: "NGN", Method: "paystack"})
	require.NoError(t, err)

	// the other user quotes the same reference on a transfer of their own
	other, err := f.payments.Capture(ctx, "user_other", Declaration{
		Amount: dec("25000"), Currency: "NGN", Method: "bank_transfer", PaymentReference: f.gateway.ref,
	})
	require.NoError(t, err)
	assert.Nil(t, other.Transaction.GatewayReference)

	settled := dec("25000")
	for i := 0; i < 5; i++ {
		tx, err := f.verifier.Verify(ctx, VerifyInput{
			GatewayReference: f.gateway.ref, Outcome: models.PaymentCompleted,
			Amount: &settled, Currency: "NGN", VerifiedBy: "paystack",
		})
		if i == 0 {
			require.NoError(t, err)
			assert.Equal(t, victim.Transaction.ID, tx.ID)
		} else {
			assert.True(t, IsKind(err, KindConflict), "got %v", err)
		}
	}

	got, err := f.payments.Get(ctx, "user_other", other.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, got.Status)

	var profile models.Profile
	require.NoError(t, f.payments.DB.First(&profile, "id = ?", "user_other").Error)
	assert.False(t, profile.PaymentVerified)
	assert.False(t, profile.OnboardingCompleted)
}

func TestVerifyFailsOnAmountMismatch(t *testing.T) {
	f := newPaymentFixture(t)
	createProfile(t, f.payments.DB, "user_ng", "NG")
	ctx := context.Background()

	captured, err := f.payments.Capture(ctx, "user_ng", Declaration{Amount: dec("25000"), Currency: "NGN", Method: "paystack"})
	require.NoError(t, err)

	short := dec("250")
	tx, err := f.verifier.Verify(ctx, VerifyInput{TransactionID: captured.Transaction.ID, Outcome: models.PaymentCompleted, Amount: &short, Currency: "NGN", VerifiedBy: "paystack:webhook"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, tx.Status)
	require.NotNil(t, tx.VerificationNotes)
	assert.Contains(t, *tx.VerificationNotes, "does not match")

	var profile models.Profile
	require.NoError(t, f.payments.DB.First(&profile, "id = ?", "user_ng").Error)
	assert.False(t, profile.PaymentVerified)
}

func TestVerifyInputValidation(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	_, err := f.verifier.Verify(ctx, VerifyInput{TransactionID: "x", Outcome: models.PaymentPending})
	assert.True(t, IsKind(err, KindValidation))

	_, err = f.verifier.Verify(ctx, VerifyInput{Outcome: models.PaymentCompleted})
	assert.True(t, IsKind(err, KindValidation))

	_, err = f.verifier.Verify(ctx, VerifyInput{GatewayReference: "missing", Outcome: models.PaymentCompleted})
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestExpireStaleLeavesProcessingAlone(t *testing.T) {
	f := newPaymentFixture(t)
	createProfile(t, f.payments.DB, "user_ng", "NG")
	ctx := context.Background()

	pending, err := f.payments.Capture(ctx, "user_ng", Declaration{Amount: dec("25000"), Currency: "NGN", Method: "paystack"})
	require.NoError(t, err)
	processing, err := f.payments.Capture(ctx, "user_ng", Declaration{Amount: dec("5000"), Currency: "NGN", Method: "bank_transfer", TransactionType: models.TransactionPremium, ProofURL: "https://cdn.example/p.png"})
	require.NoError(t, err)

	n, err := f.verifier.ExpireStale(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := f.payments.Get(ctx, "user_ng", pending.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCancelled, got.Status)

	got, err = f.payments.Get(ctx, "user_ng", processing.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentProcessing, got.Status)

	queue, err := f.verifier.ReviewQueue(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, processing.Transaction.ID, queue[0].ID)
}

func TestMinorUnits(t *testing.T) {
	kobo, err := ToMinorUnits(dec("25000"), "NGN")
	require.NoError(t, err)
	assert.EqualValues(t, 2500000, kobo)

	yen, err := ToMinorUnits(dec("1500"), "JPY")
	require.NoError(t, err)
	assert.EqualValues(t, 1500, yen)

	back, err := FromMinorUnits(2500050, "NGN")
	require.NoError(t, err)
	assert.True(t, back.Equal(dec("25000.5")))

	_, err = ToMinorUnits(dec("1"), "??")
	assert.True(t, IsKind(err, KindValidation))
}
