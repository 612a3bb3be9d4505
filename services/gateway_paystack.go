package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// PaystackGateway talks to the Paystack REST API.
type PaystackGateway struct {
	BaseURL     string
	SecretKey   string
	CallbackURL string
	Client      *http.Client
	Now         func() time.Time
}

func NewPaystackGateway(baseURL, secretKey, callbackURL string, client *http.Client) *PaystackGateway {
	return &PaystackGateway{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		SecretKey:   secretKey,
		CallbackURL: callbackURL,
		Client:      client,
		Now:         time.Now,
	}
}

func (g *PaystackGateway) Name() string { return "paystack" }

// PaystackReference builds the merchant reference BP-<first 8 of user>-<unix ms>.
func PaystackReference(userID string, t time.Time) string {
	prefix := userID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("BP-%s-%d", prefix, t.UnixMilli())
}

type paystackInitResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	} `json:"data"`
}

func (g *PaystackGateway) InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	minor, err := ToMinorUnits(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}
	reference := PaystackReference(req.UserID, g.Now())

	body := map[string]any{
		"email":     req.Email,
		"amount":    minor,
		"currency":  strings.ToUpper(req.Currency),
		"reference": reference,
		"metadata": map[string]any{
			"transaction_id": req.TransactionID,
			"user_id":        req.UserID,
		},
	}
	if g.CallbackURL != "" {
		body["callback_url"] = g.CallbackURL
	}
	jsonData, _ := json.Marshal(body)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+"/transaction/initialize", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.SecretKey)

	resp, err := g.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("paystack initialize failed: %w", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		log.Printf("[Paystack] initialize returned %d: %s", resp.StatusCode, string(raw))
		return nil, fmt.Errorf("paystack initialize returned status %d", resp.StatusCode)
	}

	var out paystackInitResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode paystack response: %w", err)
	}
	if !out.Status {
		return nil, fmt.Errorf("paystack rejected checkout: %s", out.Message)
	}
	if out.Data.Reference != "" {
		reference = out.Data.Reference
	}

	return &CheckoutSession{
		GatewayReference: reference,
		CheckoutURL:      out.Data.AuthorizationURL,
	}, nil
}

// PaystackEvent is the subset of a Paystack webhook this service reads.
type PaystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		Message   string `json:"gateway_response"`
	} `json:"data"`
}

// VerifyPaystackSignature checks x-paystack-signature, the hex HMAC-SHA512 of
// the raw body keyed with the secret key.
func VerifyPaystackSignature(secretKey string, body []byte, signature string) bool {
	if secretKey == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
