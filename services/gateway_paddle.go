package services

import (
	"context"
	"fmt"
	"strings"

	paddle "github.com/PaddleHQ/paddle-go-sdk"
	"github.com/shopspring/decimal"
)

// PaddleTransactions is the slice of the Paddle SDK the gateway calls.
type PaddleTransactions interface {
	CreateTransaction(ctx context.Context, req *paddle.CreateTransactionRequest) (*paddle.Transaction, error)
}

// PaddleGateway opens Paddle checkouts. Paddle charges catalog prices, so
// each fee the service can ask for needs a configured price id keyed by
// PaddlePriceKey.
type PaddleGateway struct {
	Client  PaddleTransactions
	Prices  map[string]string
	Sandbox bool
}

// PaddlePriceKey is the lookup key for a fee, for example "USD-50.00".
func PaddlePriceKey(currency string, amount decimal.Decimal) string {
	return fmt.Sprintf("%s-%s", strings.ToUpper(currency), amount.StringFixed(2))
}

func NewPaddleGateway(apiKey string, prices map[string]string, sandbox bool) (*PaddleGateway, error) {
	baseURL := paddle.ProductionBaseURL
	if sandbox {
		baseURL = paddle.SandboxBaseURL
	}
	client, err := paddle.New(apiKey, paddle.WithBaseURL(baseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}
	return &PaddleGateway{Client: client, Prices: prices, Sandbox: sandbox}, nil
}

func (g *PaddleGateway) Name() string { return "paddle" }

func (g *PaddleGateway) InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	key := PaddlePriceKey(req.Currency, req.Amount)
	priceID := g.Prices[key]
	if priceID == "" {
		return nil, externalError(fmt.Sprintf("no paddle price is configured for %s", key), nil, false)
	}

	tx, err := g.Client.CreateTransaction(ctx, &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{
			*paddle.NewCreateTransactionItemsCatalogItem(&paddle.CatalogItem{
				Quantity: 1,
				PriceID:  priceID,
			}),
		},
		CustomData: paddle.CustomData{
			"transaction_id": req.TransactionID,
			"user_id":        req.UserID,
		},
		CollectionMode: paddle.PtrTo(paddle.CollectionModeAutomatic),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle transaction: %w", err)
	}

	checkoutURL := ""
	if tx.Checkout != nil && tx.Checkout.URL != nil {
		checkoutURL = *tx.Checkout.URL
	}
	if checkoutURL == "" {
		env := "checkout"
		if g.Sandbox {
			env = "sandbox-checkout"
		}
		checkoutURL = fmt.Sprintf("https://%s.paddle.com/checkout/custom?_ptxn=%s", env, tx.ID)
	}

	return &CheckoutSession{GatewayReference: tx.ID, CheckoutURL: checkoutURL}, nil
}
