package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// CheckoutRequest asks a gateway to open a hosted checkout.
type CheckoutRequest struct {
	TransactionID string
	UserID        string
	Email         string
	Amount        decimal.Decimal
	Currency      string
}

// CheckoutSession is what the gateway hands back.
type CheckoutSession struct {
	// GatewayReference identifies the payment in the gateway's webhooks.
	GatewayReference string
	CheckoutURL      string
}

// Gateway initiates hosted checkouts. Confirmation arrives later through a
// verified webhook, never through this call.
type Gateway interface {
	Name() string
	InitiateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// parseCurrency validates an ISO-4217 code.
func parseCurrency(code string) (currency.Unit, error) {
	unit, err := currency.ParseISO(strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return currency.Unit{}, validationError(fmt.Sprintf("unsupported currency %q", code))
	}
	return unit, nil
}

// ToMinorUnits converts amount to the currency's smallest unit (kobo for NGN).
func ToMinorUnits(amount decimal.Decimal, code string) (int64, error) {
	unit, err := parseCurrency(code)
	if err != nil {
		return 0, err
	}
	scale, _ := currency.Standard.Rounding(unit)
	return amount.Shift(int32(scale)).Round(0).IntPart(), nil
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(minor int64, code string) (decimal.Decimal, error) {
	unit, err := parseCurrency(code)
	if err != nil {
		return decimal.Zero, err
	}
	scale, _ := currency.Standard.Rounding(unit)
	return decimal.New(minor, -int32(scale)), nil
}
