package payment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"turfbook/internal/config"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const testWebhookSecret = "whsec_test"

func newTestStripe(t *testing.T, handler http.Handler) *StripeGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
		MaxNetworkRetries: stripe.Int64(0),
	})
	logger := zerolog.New(io.Discard)
	return NewStripeGateway(config.PaymentsConfig{
		Provider:      "stripe",
		SecretKey:     "sk_test_123",
		WebhookSecret: testWebhookSecret,
		Timeout:       5 * time.Second,
	}, &stripe.Backends{API: backend, Connect: backend, Uploads: backend}, &logger)
}

func TestStripeGateway_CreateOrder(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/payment_intents", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "130050", r.PostForm.Get("amount"))
		assert.Equal(t, "inr", r.PostForm.Get("currency"))
		assert.Equal(t, "ref-1", r.PostForm.Get("metadata[booking_reference]"))
		assert.Equal(t, "order-ref-1", r.Header.Get("Idempotency-Key"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"pi_1","object":"payment_intent","amount":130050,"currency":"inr",
			"status":"requires_payment_method","client_secret":"pi_1_secret_x"}`)
	})

	g := newTestStripe(t, mux)
	order, err := g.CreateOrder(context.Background(), "ref-1", decimal.RequireFromString("1300.50"), "INR")
	require.NoError(t, err)
	assert.Equal(t, "pi_1", order.ID)
	assert.Equal(t, "pi_1_secret_x", order.ClientSecret)
	assert.Equal(t, "1300.5", order.Amount.String())
	assert.Equal(t, "stripe", order.Provider)
}

func TestStripeGateway_VerifyPayment(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/payment_intents/pi_paid", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"pi_paid","object":"payment_intent","status":"succeeded","latest_charge":"ch_9"}`)
	})
	mux.HandleFunc("GET /v1/payment_intents/pi_open", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"pi_open","object":"payment_intent","status":"requires_payment_method"}`)
	})
	mux.HandleFunc("GET /v1/payment_intents/pi_missing", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such payment_intent"}}`)
	})

	g := newTestStripe(t, mux)
	ctx := context.Background()

	v, err := g.VerifyPayment(ctx, "pi_paid")
	require.NoError(t, err)
	assert.True(t, v.Paid)
	assert.Equal(t, "ch_9", v.PaymentID)

	v, err = g.VerifyPayment(ctx, "pi_open")
	require.NoError(t, err)
	assert.False(t, v.Paid)
	assert.Equal(t, "requires_payment_method", v.Status)

	_, err = g.VerifyPayment(ctx, "pi_missing")
	assert.ErrorIs(t, err, ErrUnknownOrder)
}

func TestStripeGateway_Refund(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/refunds", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("payment_intent") == "pi_bad" {
			fmt.Fprint(w, `{"id":"re_bad","object":"refund","status":"failed"}`)
			return
		}
		assert.Equal(t, "100000", r.PostForm.Get("amount"))
		fmt.Fprint(w, `{"id":"re_1","object":"refund","status":"succeeded"}`)
	})

	g := newTestStripe(t, mux)
	id, err := g.Refund(context.Background(), "pi_1", decimal.NewFromInt(1000))
	require.NoError(t, err)
	assert.Equal(t, "re_1", id)

	_, err = g.Refund(context.Background(), "pi_bad", decimal.NewFromInt(1000))
	assert.ErrorIs(t, err, ErrRefundFailed)
}

func TestStripeGateway_ParseWebhook(t *testing.T) {
	g := newTestStripe(t, http.NewServeMux())

	sign := func(payload string) (string, []byte) {
		signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
			Payload: []byte(payload),
			Secret:  testWebhookSecret,
		})
		return signed.Header, signed.Payload
	}

	header, body := sign(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded",
		"data":{"object":{"id":"pi_1","object":"payment_intent","status":"succeeded","latest_charge":"ch_1"}}}`)
	ev, err := g.ParseWebhook(body, header)
	require.NoError(t, err)
	assert.Equal(t, WebhookPaymentSucceeded, ev.Kind)
	assert.Equal(t, "pi_1", ev.OrderID)
	assert.Equal(t, "ch_1", ev.PaymentID)

	header, body = sign(`{"id":"evt_2","object":"event","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)
	ev, err = g.ParseWebhook(body, header)
	require.NoError(t, err)
	assert.Equal(t, WebhookIgnored, ev.Kind)

	_, err = g.ParseWebhook(body, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)
}
