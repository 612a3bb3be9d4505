package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"blackpass-api/middleware"
	"blackpass-api/models"
	"blackpass-api/services"
	"blackpass-api/workers"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	paystackSecret = "sk_test_webhook"
	paddleSecret   = "pdl_ntfset_test"
	adminToken     = "admin-token"
)

var clerkSecret = "whsec_" + base64.StdEncoding.EncodeToString([]byte("clerk-webhook-secret"))

// stubGateway issues a reference derived from the user, like a hosted checkout would.
type stubGateway struct {
	name   string
	format string
}

func (g stubGateway) Name() string { return g.name }

func (g stubGateway) InitiateCheckout(ctx context.Context, req services.CheckoutRequest) (*services.CheckoutSession, error) {
	ref := fmt.Sprintf(g.format, req.UserID)
	return &services.CheckoutSession{GatewayReference: ref, CheckoutURL: "https://checkout.example/" + ref}, nil
}

type testIdentity struct {
	next string
}

func (i *testIdentity) CreateUser(ctx context.Context, in services.NewIdentity) (string, error) {
	return i.next, nil
}

func (i *testIdentity) DeleteUser(ctx context.Context, subject string) error { return nil }

// VerifySession accepts "token-<subject>".
func (i *testIdentity) VerifySession(ctx context.Context, token string) (string, error) {
	if sub, ok := strings.CutPrefix(token, "token-"); ok && sub != "" {
		return sub, nil
	}
	return "", services.ErrUnauthenticated
}

type memoryProofs struct{}

func (memoryProofs) Put(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	io.Copy(io.Discard, body)
	return "https://cdn.example/" + key, nil
}

type testServer struct {
	app      *fiber.App
	db       *gorm.DB
	identity *testIdentity
	broker   *services.Broker
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, nil)
}

func newTestServerWith(t *testing.T, milestones services.MilestoneSink) *testServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, services.Migrate(db))
	require.NoError(t, services.SeedReferenceData(db, "BLC"))

	identity := &testIdentity{next: "user_ng"}
	broker := services.NewBroker()
	pricing := services.NewPricingService(db, nil)
	registration := services.NewRegistrationService(db, identity, pricing, broker, milestones)
	payments := services.NewPaymentService(db, pricing, memoryProofs{}, time.Second,
		stubGateway{name: models.MethodPaystack, format: "BP-%s-1741597200000"},
		stubGateway{name: models.MethodPaddle, format: "txn_%s"})
	verification := services.NewVerificationService(db, broker)
	wallets := services.NewWalletService(db, broker)
	ledger := services.NewLedgerService(db, broker, nil, "BLC")
	lessons := services.NewLessonService(db, broker)
	activity := services.NewActivityService(db, broker, time.Second)
	countries := services.NewCountryActivityService(db)

	app := fiber.New()
	noLimit := func(c *fiber.Ctx) error { return c.Next() }
	auth := middleware.ClerkAuthMiddleware(identity)

	SetupOnboardingRoutes(app, pricing, registration, noLimit)
	SetupWebhookRoutes(app, verification, broker, WebhookSecrets{Paystack: paystackSecret, Paddle: paddleSecret, Clerk: clerkSecret})
	SetupAdminRoutes(app, middleware.ServiceTokenMiddleware(adminToken), AdminServices{
		Ledger: ledger, Wallets: wallets, Verification: verification, Registration: registration,
	})
	SetupActivityRoutes(app, auth, middleware.SSEAuthMiddleware(identity), activity, countries)
	secured := app.Group("/", auth)
	SetupPaymentRoutes(secured, payments, noLimit)
	SetupProgressionRoutes(secured, ledger, wallets, lessons)

	return &testServer{app: app, db: db, identity: identity, broker: broker}
}

func (s *testServer) do(t *testing.T, method, path, user string, body any, headers ...string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer token-"+user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := s.app.Test(req, 5000)
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func registerUser(t *testing.T, s *testServer, subject, email, country string) {
	t.Helper()
	s.identity.next = subject
	resp, body := s.do(t, "POST", "/onboarding/register", "", map[string]any{
		"email":            email,
		"full_name":        "Test User",
		"password":         "Str0ngP@ssword123",
		"confirm_password": "Str0ngP@ssword123",
		"account_tier":     "student",
	}, "CF-IPCountry", country)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)
}

func TestDetectCountryAndPasswordStrength(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, "GET", "/onboarding/detect-country", "", nil, "CF-IPCountry", "GH")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "GH", body["country_code"])
	assert.Equal(t, services.DetectionHeader, body["source"])
	assert.Equal(t, "GHS", body["pricing"].(map[string]any)["currency"])

	resp, body = s.do(t, "POST", "/onboarding/password-strength", "", map[string]string{"password": "short"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Weak", body["label"])
	assert.Equal(t, false, body["accepted"])

	resp, body = s.do(t, "GET", "/pricing/ZZ", "", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, models.DefaultCountryCode, body["country_code"])
}

func TestRegisterRejectsMismatchedPasswords(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, "POST", "/onboarding/register", "", map[string]any{
		"email": "a@example.com", "full_name": "A", "password": "Str0ngP@ssword123",
		"confirm_password": "different", "account_tier": "student",
	})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "validation", body["kind"])
}

func TestSecuredRoutesRequireSession(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, "GET", "/missions/dashboard", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(t, "GET", "/feed", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// public routes stay open
	resp, _ = s.do(t, "GET", "/countries/activity", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestPaymentCaptureAndConflict(t *testing.T) {
	s := newTestServer(t)
	registerUser(t, s, "user_ng", "ng@example.com", "NG")

	decl := map[string]any{
		"amount":         "25000",
		"currency":       "NGN",
		"payment_method": "bank_transfer",
		"screenshot_url": "https://cdn.example/proof.png",
	}
	resp, body := s.do(t, "POST", "/payments/", "user_ng", decl)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)
	tx := body["transaction"].(map[string]any)
	assert.Equal(t, "processing", tx["status"])
	assert.Contains(t, body["message"], "Awaiting verification")

	resp, body = s.do(t, "POST", "/payments/", "user_ng", decl)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, tx["id"], body["resource_id"])

	resp, body = s.do(t, "POST", "/payments/"+tx["id"].(string)+"/cancel", "user_ng", nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode, body)
}

func TestPaymentCaptureMultipartProof(t *testing.T) {
	s := newTestServer(t)
	registerUser(t, s, "user_ng", "ng@example.com", "NG")

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	w.WriteField("amount", "25000")
	w.WriteField("currency", "NGN")
	w.WriteField("payment_method", "bank_transfer")
	part, err := w.CreateFormFile("proof", "receipt.png")
	require.NoError(t, err)
	part.Write([]byte("\x89PNG fake"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/payments/", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer token-user_ng")
	resp, body := s.send(t, req)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)

	tx := body["transaction"].(map[string]any)
	assert.Equal(t, "processing", tx["status"])
	assert.Contains(t, tx["screenshot_url"], "payment-proofs/user_ng/payment-")
}

func signPaystack(body []byte) string {
	mac := hmac.New(sha512.New, []byte(paystackSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPaystackWebhookCompletesRegistration(t *testing.T) {
	s := newTestServer(t)
	registerUser(t, s, "user_ng", "ng@example.com", "NG")

	resp, body := s.do(t, "POST", "/payments/", "user_ng", map[string]any{
		"amount":            "25000",
		"currency":          "NGN",
		"payment_method":    "paystack",
		"gateway_reference": "ignored-from-clients",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)
	tx := body["transaction"].(map[string]any)
	assert.Equal(t, "pending", tx["status"])
	assert.Equal(t, "BP-user_ng-1741597200000", tx["gateway_reference"])
	assert.Equal(t, "complete", body["next_step"])

	event := []byte(`{"event":"charge.success","data":{"reference":"BP-user_ng-1741597200000","status":"success","amount":2500000,"currency":"NGN"}}`)

	req := httptest.NewRequest("POST", "/webhooks/paystack", bytes.NewReader(event))
	req.Header.Set("x-paystack-signature", "deadbeef")
	resp, _ = s.send(t, req)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("POST", "/webhooks/paystack", bytes.NewReader(event))
	req.Header.Set("x-paystack-signature", signPaystack(event))
	resp, body = s.send(t, req)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "completed", body["status"])

	// a retried delivery is acknowledged without a second completion
	req = httptest.NewRequest("POST", "/webhooks/paystack", bytes.NewReader(event))
	req.Header.Set("x-paystack-signature", signPaystack(event))
	resp, body = s.send(t, req)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ignored"])

	var profile models.Profile
	require.NoError(t, s.db.First(&profile, "id = ?", "user_ng").Error)
	assert.True(t, profile.PaymentVerified)
	assert.True(t, profile.OnboardingCompleted)

	resp, body = s.do(t, "GET", "/onboarding/status", "user_ng", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "complete", body["step"])

	// a paid registration cannot be paid again
	resp, body = s.do(t, "POST", "/payments/", "user_ng", map[string]any{
		"amount": "25000", "currency": "NGN", "payment_method": "paystack",
	})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode, body)
}

func TestPaystackWebhookUnderpaymentFails(t *testing.T) {
	s := newTestServer(t)
	registerUser(t, s, "user_ng", "ng@example.com", "NG")

	resp, body := s.do(t, "POST", "/payments/", "user_ng", map[string]any{
		"amount": "1", "currency": "NGN", "payment_method": "paystack",
	})
	require.Equal(t, fiber.StatusBadRequest, resp.StatusCode, body)

	resp, body = s.do(t, "POST", "/payments/", "user_ng", map[string]any{
		"amount": "25000", "currency": "NGN", "payment_method": "paystack",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)

	event := []byte(`{"event":"charge.success","data":{"reference":"BP-user_ng-1741597200000","status":"success","amount":100,"currency":"NGN"}}`)
	req := httptest.NewRequest("POST", "/webhooks/paystack", bytes.NewReader(event))
	req.Header.Set("x-paystack-signature", signPaystack(event))
	resp, body = s.send(t, req)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "failed", body["status"])

	var profile models.Profile
	require.NoError(t, s.db.First(&profile, "id = ?", "user_ng").Error)
	assert.False(t, profile.PaymentVerified)
}

func signPaddle(body []byte) string {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, []byte(paddleSecret))
	mac.Write([]byte(ts + ":"))
	mac.Write(body)
	return "ts=" + ts + ";h1=" + hex.EncodeToString(mac.Sum(nil))
}

func postPaddle(t *testing.T, s *testServer, event string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("POST", "/webhooks/paddle", strings.NewReader(event))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Paddle-Signature", signPaddle([]byte(event)))
	return s.send(t, req)
}

func TestPaddleWebhookChecksSettledTotals(t *testing.T) {
	s := newTestServer(t)
	registerUser(t, s, "user_us", "us@example.com", "US")
	registerUser(t, s, "user_us2", "us2@example.com", "US")

	for _, user := range []string{"user_us", "user_us2"} {
		resp, body := s.do(t, "POST", "/payments/", user, map[string]any{
			"amount": "50", "currency": "USD", "payment_method": "paddle",
		})
		require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)
		assert.Equal(t, "txn_"+user, body["transaction"].(map[string]any)["gateway_reference"])
	}

	// unsigned deliveries are refused
	req := httptest.NewRequest("POST", "/webhooks/paddle", strings.NewReader(`{}`))
	req.Header.Set("Paddle-Signature", "ts=1;h1=00")
	resp, _ := s.send(t, req)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, body := postPaddle(t, s, `{"event_type":"transaction.completed","data":{"id":"txn_user_us","currency_code":"USD","details":{"totals":{"subtotal":"5000","discount":"0"}}}}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "completed", body["status"])

	// a discounted checkout settles below the fee
	resp, body = postPaddle(t, s, `{"event_type":"transaction.completed","data":{"id":"txn_user_us2","currency_code":"USD","details":{"totals":{"subtotal":"5000","discount":"4900"}}}}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "failed", body["status"])

	var paid, unpaid models.Profile
	require.NoError(t, s.db.First(&paid, "id = ?", "user_us").Error)
	require.NoError(t, s.db.First(&unpaid, "id = ?", "user_us2").Error)
	assert.True(t, paid.PaymentVerified)
	assert.False(t, unpaid.PaymentVerified)
}

func TestClerkSessionEndedClosesStreams(t *testing.T) {
	s := newTestServer(t)
	sub := s.broker.Subscribe("user_a", "*", services.ChangeAny)

	body := []byte(`{"type":"session.ended","data":{"user_id":"user_a"}}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(clerkSecret, "whsec_"))
	require.NoError(t, err)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte("msg_1." + ts + "."))
	mac.Write(body)
	signature := "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req := httptest.NewRequest("POST", "/webhooks/clerk", bytes.NewReader(body))
	req.Header.Set("svix-id", "msg_1")
	req.Header.Set("svix-timestamp", ts)
	req.Header.Set("svix-signature", "v1,forged")
	resp, _ := s.send(t, req)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("POST", "/webhooks/clerk", bytes.NewReader(body))
	req.Header.Set("svix-id", "msg_1")
	req.Header.Set("svix-timestamp", ts)
	req.Header.Set("svix-signature", signature)
	resp, out := s.send(t, req)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, out)

	select {
	case _, ok := <-sub.C:
		assert.False(t, ok, "stream should be closed")
	case <-time.After(time.Second):
		t.Fatal("stream was not closed")
	}
}

type failingRecorder struct{}

func (failingRecorder) Record(ctx context.Context, m services.MilestoneEvent) error {
	return errors.New("country_activity unavailable")
}

func TestRegistrationSurvivesMilestoneFailures(t *testing.T) {
	worker := workers.NewMilestoneWorker(failingRecorder{}, 1)
	s := newTestServerWith(t, worker)

	// the queue is full: the first registration's milestone is dropped
	require.True(t, worker.Enqueue(services.MilestoneEvent{CountryCode: "GH", Type: "registration"}))
	registerUser(t, s, "user_gh", "gh@example.com", "GH")

	// the recorder fails for the second one
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return worker.Pending() == 0 }, time.Second, 5*time.Millisecond)
	registerUser(t, s, "user_ng", "ng@example.com", "NG")
	require.Eventually(t, func() bool { return worker.Pending() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	for _, id := range []string{"user_gh", "user_ng"} {
		var profile models.Profile
		require.NoError(t, s.db.First(&profile, "id = ?", id).Error)
		var events int64
		s.db.Model(&models.ActivityEvent{}).Where("user_id = ? AND activity_type = ?", id, models.ActivityRegistration).Count(&events)
		assert.EqualValues(t, 1, events, id)
	}

	var countries int64
	s.db.Model(&models.CountryActivity{}).Count(&countries)
	assert.Zero(t, countries)
}

func TestAdminVerifiesProof(t *testing.T) {
	s := newTestServer(t)
	registerUser(t, s, "user_ng", "ng@example.com", "NG")

	resp, body := s.do(t, "POST", "/payments/", "user_ng", map[string]any{
		"amount": "25000", "currency": "NGN", "payment_method": "bank_transfer",
		"screenshot_url": "https://cdn.example/proof.png",
	})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, body)
	id := body["transaction"].(map[string]any)["id"].(string)

	resp, _ = s.do(t, "POST", "/admin/payments/"+id+"/verify", "", map[string]any{"approved": true})
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, body = s.do(t, "POST", "/admin/payments/"+id+"/verify", "", map[string]any{"approved": true, "notes": "matches bank statement"},
		"Authorization", "Bearer "+adminToken, "X-Admin-Actor", "ops@blackpass")
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "admin:ops@blackpass", body["verified_by"])
	assert.Equal(t, true, body["payment_proof_verified"])
}

func TestMissionCompletionOverHTTP(t *testing.T) {
	s := newTestServer(t)
	registerUser(t, s, "user_ng", "ng@example.com", "NG")

	resp, body := s.do(t, "GET", "/missions/dashboard", "user_ng", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	missions := body["missions"].([]any)
	require.NotEmpty(t, missions)
	missionID := missions[0].(map[string]any)["mission_id"].(string)

	resp, body = s.do(t, "POST", "/missions/"+missionID+"/complete", "user_ng", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 50, body["xp_awarded"])

	resp, body = s.do(t, "POST", "/missions/"+missionID+"/complete", "user_ng", nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode, body)

	resp, body = s.do(t, "GET", "/leaderboard", "user_ng", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
	assert.EqualValues(t, 1, body["rank"])
	top := body["top"].([]any)
	require.Len(t, top, 1)
	assert.EqualValues(t, 50, top[0].(map[string]any)["xp"])
	assert.Equal(t, true, top[0].(map[string]any)["is_you"])

	resp, _ = s.do(t, "GET", "/feed?limit=5", "user_ng", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body = s.do(t, "GET", "/feed?before=yesterday", "user_ng", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, body)
}

func TestRespondErrorMapping(t *testing.T) {
	app := fiber.New()
	app.Get("/:case", func(c *fiber.Ctx) error {
		switch c.Params("case") {
		case "retry":
			return respondError(c, &services.Error{Kind: services.KindExternal, Message: "down", Retryable: true})
		case "gateway":
			return respondError(c, &services.Error{Kind: services.KindExternal, Message: "rejected"})
		case "missing":
			return respondError(c, services.ErrPaymentNotFound)
		default:
			return respondError(c, errors.New("boom"))
		}
	})

	for path, want := range map[string]int{
		"/retry":   fiber.StatusServiceUnavailable,
		"/gateway": fiber.StatusBadGateway,
		"/missing": fiber.StatusNotFound,
		"/other":   fiber.StatusInternalServerError,
	} {
		resp, err := app.Test(httptest.NewRequest("GET", path, nil))
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, path)
	}
}
