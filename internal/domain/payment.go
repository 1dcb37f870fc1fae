package domain

import "github.com/shopspring/decimal"

// PaymentHandshake is what the payment provider's checkout needs to open for
// an order that the backend has already created.
type PaymentHandshake struct {
	OrderNumber     string
	KeyID           string
	ProviderOrderID string
	AmountMinor     int64
	Currency        string
}

// PaymentCallback is the provider's success callback as relayed by the view.
type PaymentCallback struct {
	OrderNumber       string
	ProviderOrderID   string
	ProviderPaymentID string
	Signature         string
}

// MinorUnits converts an amount to the currency's minor unit (paise for INR).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
