package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"turfbook/internal/config"
	"turfbook/internal/database"
	"turfbook/internal/export"
	"turfbook/internal/models"
	"turfbook/internal/payment"
	"turfbook/internal/repository"
	"turfbook/internal/service"
	"turfbook/internal/slots"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	testAdminKey     = "admin-key"
	testReadKey      = "reader-key"
	testWebhookToken = "whsec_test"
)

type apiEnv struct {
	ts       *httptest.Server
	server   *HTTPServer
	db       *database.DB
	venues   *service.VenueService
	bookings *service.BookingService
	gateway  *payment.OfflineGateway
	venue    *models.Venue
	// завтрашняя дата: все слоты ещё в будущем
	date string
}

type envOption func(*config.APIConfig, *Services)

func newAPIEnv(t *testing.T, opts ...envOption) *apiEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)

	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gateway := payment.NewOfflineGateway(testWebhookToken)
	availability := service.NewAvailabilityService(db, db, repository.NewMemoryAvailabilityCache(time.Minute), 30, "inr", &logger)
	bookings := service.NewBookingService(db, availability, repository.NewMemorySlotLocker(), gateway, nil, nil,
		service.BookingOptions{MaxBookingDays: 30, Currency: "inr"}, &logger)
	venues := service.NewVenueService(db, availability, &logger)

	base := decimal.NewFromInt(1000)
	venue := &models.Venue{
		Name:         "Arena 5",
		Sport:        "football",
		OpenTime:     slots.MustParseClock("06:00"),
		CloseTime:    slots.MustParseClock("23:00"),
		SlotMinutes:  60,
		PricePerHour: &base,
		IsActive:     true,
	}
	require.NoError(t, venues.CreateVenue(context.Background(), venue))

	health := NewHealth(time.Second)
	health.Add("database", db.PingContext)

	cfg := config.APIConfig{
		Auth: config.APIAuthConfig{
			Enabled: true,
			APIKeys: []config.APIClientKey{
				{Key: testAdminKey, Name: "backoffice", Permissions: []string{permAdmin}},
				{Key: testReadKey, Name: "dashboard", Permissions: []string{permReadHealth}},
			},
		},
	}
	svc := Services{
		Venues:       venues,
		Availability: availability,
		Bookings:     bookings,
		Exporter:     export.NewExporter(bookings, t.TempDir(), &logger),
		Health:       health,
	}
	for _, opt := range opts {
		opt(&cfg, &svc)
	}

	server := NewHTTPServer(cfg, svc, &logger)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &apiEnv{
		ts:       ts,
		server:   server,
		db:       db,
		venues:   venues,
		bookings: bookings,
		gateway:  gateway,
		venue:    venue,
		date:     time.Now().UTC().AddDate(0, 0, 1).Format(time.DateOnly),
	}
}

func (e *apiEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *apiEnv) admin(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	return e.do(t, method, "/api/v1/admin"+path, body, map[string]string{"X-API-Key": testAdminKey})
}

func (e *apiEnv) createBooking(t *testing.T, start string, minutes int) service.BookingResult {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/bookings", map[string]any{
		"venue_id":         e.venue.ID,
		"date":             e.date,
		"start_time":       start,
		"duration_minutes": minutes,
		"customer_name":    "Ravi",
		"customer_email":   "ravi@example.com",
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var res service.BookingResult
	decodeBody(t, resp, &res)
	return res
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func errorMessage(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body map[string]string
	decodeBody(t, resp, &body)
	return body["error"]
}
