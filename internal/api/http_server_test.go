package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"turfbook/internal/config"
	"turfbook/internal/models"
	"turfbook/internal/payment"
	"turfbook/internal/service"
	"turfbook/internal/slots"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthz(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestReadyz(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		env := newAPIEnv(t)
		resp := env.do(t, http.MethodGet, "/readyz", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var body struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}
		decodeBody(t, resp, &body)
		assert.Equal(t, "ready", body.Status)
		assert.Equal(t, "ok", body.Checks["database"])
	})

	t.Run("redis down", func(t *testing.T) {
		env := newAPIEnv(t, func(_ *config.APIConfig, svc *Services) {
			svc.Health.Add("redis", func(context.Context) error { return errors.New("connection refused") })
		})
		resp := env.do(t, http.MethodGet, "/readyz", nil, nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})

	t.Run("database closed", func(t *testing.T) {
		env := newAPIEnv(t)
		require.NoError(t, env.db.Close())
		resp := env.do(t, http.MethodGet, "/readyz", nil, nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	})
}

func TestCORSPreflight(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.do(t, http.MethodOptions, "/api/v1/bookings", nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRequestID(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.do(t, http.MethodGet, "/healthz", nil, map[string]string{"X-Request-ID": "req-42"})
	assert.Equal(t, "req-42", resp.Header.Get("X-Request-ID"))

	resp = env.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.do(t, http.MethodGet, "/api/v1/nothing", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/v1/venues", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "method not allowed", errorMessage(t, resp))

	resp = env.do(t, http.MethodPut, "/api/v1/bookings", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp = env.admin(t, http.MethodPatch, "/bookings", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp = env.admin(t, http.MethodGet, "/nothing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not found", errorMessage(t, resp))

	resp = env.do(t, http.MethodGet, "/elsewhere", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestVenues(t *testing.T) {
	env := newAPIEnv(t)
	ctx := context.Background()

	closed := &models.Venue{
		Name:      "Old Court",
		OpenTime:  slots.MustParseClock("08:00"),
		CloseTime: slots.MustParseClock("20:00"),
		IsActive:  false,
	}
	require.NoError(t, env.venues.CreateVenue(ctx, closed))

	resp := env.do(t, http.MethodGet, "/api/v1/venues", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Venues []models.Venue `json:"venues"`
	}
	decodeBody(t, resp, &list)
	require.Len(t, list.Venues, 1)
	assert.Equal(t, "Arena 5", list.Venues[0].Name)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/venues/%d", env.venue.ID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var venue models.Venue
	decodeBody(t, resp, &venue)
	assert.Equal(t, slots.MustParseClock("23:00"), venue.CloseTime)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/venues/%d", closed.ID), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/venues/999", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDaySlots(t *testing.T) {
	env := newAPIEnv(t)
	booked := env.createBooking(t, "18:00", 60)
	require.Equal(t, models.StatusPending, booked.Booking.Status)

	path := fmt.Sprintf("/api/v1/venues/%d/slots?date=%s", env.venue.ID, env.date)
	resp := env.do(t, http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var day service.DayAvailability
	decodeBody(t, resp, &day)
	assert.Equal(t, env.date, day.Date)
	assert.Equal(t, 60, day.Granularity)
	assert.Equal(t, "inr", day.Currency)
	require.Len(t, day.Slots, 17)
	assert.Equal(t, slots.MustParseClock("06:00"), day.Slots[0].Start)
	assert.Equal(t, slots.StatusBooked, day.Slots[12].Status)
	assert.Equal(t, slots.StatusBookable, day.Slots[13].Status)
	assert.True(t, decimal.NewFromInt(1000).Equal(day.Slots[0].Price))

	t.Run("granularity override", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, path+"&granularity=30", nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var day service.DayAvailability
		decodeBody(t, resp, &day)
		assert.Len(t, day.Slots, 34)
		assert.True(t, decimal.NewFromInt(500).Equal(day.Slots[0].Price))
	})

	t.Run("explicit now marks earlier slots past", func(t *testing.T) {
		now := env.date + "T12:00:00Z"
		resp := env.do(t, http.MethodGet, path+"&now="+now, nil, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var day service.DayAvailability
		decodeBody(t, resp, &day)
		assert.Equal(t, slots.StatusPast, day.Slots[0].Status)
	})

	t.Run("bad input", func(t *testing.T) {
		for _, q := range []string{"", "?date=tomorrow", "?date=" + env.date + "&granularity=x", "?date=" + env.date + "&now=noon"} {
			resp := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/venues/%d/slots%s", env.venue.ID, q), nil, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
		}
	})

	t.Run("unknown venue", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/v1/venues/999/slots?date="+env.date, nil, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestDaySlots_MisconfiguredVenue(t *testing.T) {
	env := newAPIEnv(t)
	// без базовой цены и правил прайс не посчитать
	unpriced := &models.Venue{
		Name:      "No Price Arena",
		OpenTime:  slots.MustParseClock("08:00"),
		CloseTime: slots.MustParseClock("10:00"),
		IsActive:  true,
	}
	require.NoError(t, env.venues.CreateVenue(context.Background(), unpriced))

	resp := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/venues/%d/slots?date=%s", unpriced.ID, env.date), nil, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "venue is misconfigured", errorMessage(t, resp))
}

func TestQuotePrice(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/venues/%d/price?date=%s&start=19:00", env.venue.ID, env.date), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		HourlyRate decimal.Decimal `json:"hourly_rate"`
		Currency   string          `json:"currency"`
		Start      slots.Clock     `json:"start"`
	}
	decodeBody(t, resp, &body)
	assert.True(t, decimal.NewFromInt(1000).Equal(body.HourlyRate))
	assert.Equal(t, "inr", body.Currency)
	assert.Equal(t, slots.MustParseClock("19:00"), body.Start)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/venues/%d/price?date=%s&start=23:30", env.venue.ID, env.date), nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/venues/%d/price?date=%s", env.venue.ID, env.date), nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBookingLifecycle(t *testing.T) {
	env := newAPIEnv(t)

	res := env.createBooking(t, "18:00", 120)
	require.NotNil(t, res.Order)
	assert.Equal(t, "offline", res.Order.Provider)
	assert.True(t, decimal.NewFromInt(2000).Equal(res.Booking.Amount))
	ref := res.Booking.Reference

	t.Run("overlap conflicts", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/v1/bookings", map[string]any{
			"venue_id": env.venue.ID, "date": env.date, "start_time": "19:00", "duration_minutes": 60,
			"customer_name": "Anil", "customer_phone": "+911234567890",
		}, nil)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	resp := env.do(t, http.MethodGet, "/api/v1/bookings/"+ref, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got models.Booking
	decodeBody(t, resp, &got)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, slots.MustParseClock("18:00"), got.StartTime)

	resp = env.do(t, http.MethodPost, "/api/v1/bookings/"+ref+"/verify", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &got)
	assert.Equal(t, models.StatusConfirmed, got.Status)

	// повторная проверка оплаты ничего не меняет
	resp = env.do(t, http.MethodPost, "/api/v1/bookings/"+ref+"/verify", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/bookings/"+ref+"/cancel", map[string]string{"reason": "rain"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &got)
	assert.Equal(t, models.StatusRefunded, got.Status)
	assert.NotEmpty(t, got.RefundID)

	resp = env.do(t, http.MethodPost, "/api/v1/bookings/"+ref+"/cancel", nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/bookings/unknown-ref", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateBooking_BadRequests(t *testing.T) {
	env := newAPIEnv(t)
	past := time.Now().UTC().AddDate(0, 0, -2).Format(time.DateOnly)
	far := time.Now().UTC().AddDate(0, 0, 90).Format(time.DateOnly)

	tests := []struct {
		name string
		body any
	}{
		{name: "not json", body: "{"},
		{name: "unknown field", body: map[string]any{"venue_id": env.venue.ID, "court": 1}},
		{name: "missing venue", body: map[string]any{"date": env.date, "start_time": "10:00", "duration_minutes": 60, "customer_name": "A", "customer_phone": "1"}},
		{name: "bad start", body: map[string]any{"venue_id": env.venue.ID, "date": env.date, "start_time": "10am", "duration_minutes": 60, "customer_name": "A", "customer_phone": "1"}},
		{name: "past date", body: map[string]any{"venue_id": env.venue.ID, "date": past, "start_time": "10:00", "duration_minutes": 60, "customer_name": "A", "customer_phone": "1"}},
		{name: "too far", body: map[string]any{"venue_id": env.venue.ID, "date": far, "start_time": "10:00", "duration_minutes": 60, "customer_name": "A", "customer_phone": "1"}},
		{name: "no contact", body: map[string]any{"venue_id": env.venue.ID, "date": env.date, "start_time": "10:00", "duration_minutes": 60, "customer_name": "A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/v1/bookings", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestPaymentWebhook(t *testing.T) {
	env := newAPIEnv(t)
	res := env.createBooking(t, "07:00", 60)

	payload := []byte(fmt.Sprintf(`{"kind":%q,"order_id":%q}`, payment.WebhookPaymentSucceeded, res.Order.ID))

	resp := env.do(t, http.MethodPost, "/api/v1/payments/webhook", payload, map[string]string{"X-Webhook-Signature": "forged"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/payments/webhook", payload, map[string]string{"X-Webhook-Signature": env.gateway.Sign(payload)})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	b, err := env.bookings.GetBookingByReference(context.Background(), res.Booking.Reference)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, b.Status)

	// повторная доставка
	resp = env.do(t, http.MethodPost, "/api/v1/payments/webhook", payload, map[string]string{"X-Webhook-Signature": env.gateway.Sign(payload)})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	unknown := []byte(fmt.Sprintf(`{"kind":%q,"order_id":"offline_missing"}`, payment.WebhookPaymentSucceeded))
	resp = env.do(t, http.MethodPost, "/api/v1/payments/webhook", unknown, map[string]string{"X-Webhook-Signature": env.gateway.Sign(unknown)})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("venue 1: %w", service.ErrNotFound), http.StatusNotFound},
		{service.ErrVenueInactive, http.StatusNotFound},
		{fmt.Errorf("%w: 18:00", service.ErrSlotUnavailable), http.StatusConflict},
		{service.ErrVersionConflict, http.StatusConflict},
		{service.ErrInvalidTransition, http.StatusConflict},
		{service.ErrPastDate, http.StatusBadRequest},
		{service.ErrDateTooFar, http.StatusBadRequest},
		{payment.ErrInvalidSignature, http.StatusBadRequest},
		{&slots.ConfigurationError{VenueID: 1, Field: "hours"}, http.StatusUnprocessableEntity},
		{service.ErrPaymentIncomplete, http.StatusPaymentRequired},
		{fmt.Errorf("%w: refund: %w", service.ErrPaymentGateway, payment.ErrRefundFailed), http.StatusBadGateway},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestHTTPServer_Shutdown(t *testing.T) {
	srv := NewHTTPServer(config.APIConfig{}, Services{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
}
