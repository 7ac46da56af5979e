package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"turfbook/internal/config"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeGateway works with PaymentIntents. The booking reference is the idempotency key.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	timeout       time.Duration
	logger        zerolog.Logger
}

// NewStripeGateway creates the gateway; backends may be nil to talk to api.stripe.com.
func NewStripeGateway(cfg config.PaymentsConfig, backends *stripe.Backends, logger *zerolog.Logger) *StripeGateway {
	api := &client.API{}
	api.Init(cfg.SecretKey, backends)

	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "stripe").Logger()
	}
	return &StripeGateway{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		timeout:       cfg.Timeout,
		logger:        l,
	}
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *StripeGateway) CreateOrder(ctx context.Context, reference string, amount decimal.Decimal, currency string) (*Order, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(minorUnits(amount)),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("booking_reference", reference)
	params.SetIdempotencyKey("order-" + reference)

	pi, err := g.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	g.logger.Info().Str("order_id", pi.ID).Str("reference", reference).Msg("payment intent created")
	return &Order{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       fromMinorUnits(pi.Amount),
		Currency:     string(pi.Currency),
		Provider:     g.Name(),
	}, nil
}

func (g *StripeGateway) VerifyPayment(ctx context.Context, orderID string) (*Verification, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Get(orderID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return nil, fmt.Errorf("%s: %w", orderID, ErrUnknownOrder)
		}
		return nil, fmt.Errorf("get payment intent: %w", err)
	}
	return verificationOf(pi), nil
}

func verificationOf(pi *stripe.PaymentIntent) *Verification {
	v := &Verification{
		OrderID: pi.ID,
		Status:  string(pi.Status),
		Paid:    pi.Status == stripe.PaymentIntentStatusSucceeded,
	}
	if pi.LatestCharge != nil {
		v.PaymentID = pi.LatestCharge.ID
	}
	if v.PaymentID == "" {
		v.PaymentID = pi.ID
	}
	return v
}

func (g *StripeGateway) Refund(ctx context.Context, orderID string, amount decimal.Decimal) (string, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(orderID),
	}
	if amount.IsPositive() {
		params.Amount = stripe.Int64(minorUnits(amount))
	}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + orderID)

	r, err := g.api.Refunds.New(params)
	if err != nil {
		return "", fmt.Errorf("create refund: %w", err)
	}
	if r.Status == stripe.RefundStatusFailed || r.Status == stripe.RefundStatusCanceled {
		return "", fmt.Errorf("%s: %w", r.ID, ErrRefundFailed)
	}
	g.logger.Info().Str("order_id", orderID).Str("refund_id", r.ID).Msg("refund created")
	return r.ID, nil
}

// ParseWebhook checks the Stripe-Signature header and maps payment intent events.
func (g *StripeGateway) ParseWebhook(payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var kind string
	switch event.Type {
	case "payment_intent.succeeded":
		kind = WebhookPaymentSucceeded
	case "payment_intent.payment_failed":
		kind = WebhookPaymentFailed
	default:
		return &WebhookEvent{Kind: WebhookIgnored}, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}
	v := verificationOf(&pi)
	return &WebhookEvent{Kind: kind, OrderID: v.OrderID, PaymentID: v.PaymentID}, nil
}
