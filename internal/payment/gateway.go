package payment

import (
	"context"
	"errors"
	"fmt"

	"turfbook/internal/config"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownOrder     = errors.New("unknown payment order")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrRefundFailed     = errors.New("refund failed")
)

// Webhook event kinds the booking flow reacts to.
const (
	WebhookPaymentSucceeded = "payment_succeeded"
	WebhookPaymentFailed    = "payment_failed"
	WebhookIgnored          = "ignored"
)

// Order is a payment the customer still has to complete.
type Order struct {
	ID           string          `json:"id"`
	ClientSecret string          `json:"client_secret,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Provider     string          `json:"provider"`
}

type Verification struct {
	OrderID   string
	PaymentID string
	Status    string
	Paid      bool
}

type WebhookEvent struct {
	Kind      string
	OrderID   string
	PaymentID string
}

type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, reference string, amount decimal.Decimal, currency string) (*Order, error)
	VerifyPayment(ctx context.Context, orderID string) (*Verification, error)
	Refund(ctx context.Context, orderID string, amount decimal.Decimal) (string, error)
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)
}

// New builds the gateway selected by cfg.Provider.
func New(cfg config.PaymentsConfig, logger *zerolog.Logger) (Gateway, error) {
	switch cfg.Provider {
	case "stripe":
		return NewStripeGateway(cfg, nil, logger), nil
	case "offline", "":
		return NewOfflineGateway(cfg.WebhookSecret), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
	}
}

// minorUnits converts an amount to the smallest currency unit (paise, cents).
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func fromMinorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}
