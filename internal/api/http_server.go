package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"turfbook/internal/config"
	"turfbook/internal/export"
	"turfbook/internal/models"
	"turfbook/internal/service"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// SyncRequeuer возвращает упавшие задачи синхронизации листа в очередь.
type SyncRequeuer interface {
	RequeueFailed(ctx context.Context) (int64, error)
}

// SheetReplacer перезаписывает лист бронирований целиком.
type SheetReplacer interface {
	ReplaceBookings(ctx context.Context, bookings []*models.Booking) error
}

// Services зависимости HTTP-обработчиков. SyncQueue и Sheets равны nil,
// если синхронизация с Google Sheets выключена.
type Services struct {
	Venues       *service.VenueService
	Availability *service.AvailabilityService
	Bookings     *service.BookingService
	Exporter     *export.Exporter
	SyncQueue    SyncRequeuer
	Sheets       SheetReplacer
	Health       *Health
}

// HTTPServer отдает публичный API бронирования и админский API.
type HTTPServer struct {
	cfg    config.APIConfig
	svc    Services
	server *http.Server
	auth   *HTTPAuth
	log    zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, logger *zerolog.Logger) *HTTPServer {
	log := zerolog.Nop()
	if logger != nil {
		log = logger.With().Str("component", "http").Logger()
	}
	if svc.Health == nil {
		svc.Health = NewHealth(0)
	}

	srv := &HTTPServer{
		cfg:  cfg,
		svc:  svc,
		auth: NewHTTPAuth(cfg, newRateLimiter(cfg.RateLimit)),
		log:  log,
	}
	if !cfg.Auth.Enabled {
		log.Warn().Msg("api auth is disabled, admin routes are open")
	}

	var handler http.Handler = srv.routes()
	handler = srv.auth.RateLimit(handler)
	handler = corsMiddleware(handler)
	handler = requestIDMiddleware(handler)
	handler = recoverMiddleware(log)(handler)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	return srv
}

func (s *HTTPServer) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(observeMiddleware(s.log))
	withFallbacks(r)

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)

	v1 := withFallbacks(r.PathPrefix("/api/v1").Subrouter())
	v1.HandleFunc("/venues", s.handleListVenues).Methods(http.MethodGet)
	v1.HandleFunc("/venues/{id:[0-9]+}", s.handleGetVenue).Methods(http.MethodGet)
	v1.HandleFunc("/venues/{id:[0-9]+}/slots", s.handleDaySlots).Methods(http.MethodGet)
	v1.HandleFunc("/venues/{id:[0-9]+}/price", s.handleQuotePrice).Methods(http.MethodGet)
	v1.HandleFunc("/bookings", s.handleCreateBooking).Methods(http.MethodPost)
	v1.HandleFunc("/bookings/{ref}", s.handleGetBooking).Methods(http.MethodGet)
	v1.HandleFunc("/bookings/{ref}/verify", s.handleVerifyPayment).Methods(http.MethodPost)
	v1.HandleFunc("/bookings/{ref}/cancel", s.handleCancelBooking).Methods(http.MethodPost)
	v1.HandleFunc("/payments/webhook", s.handlePaymentWebhook).Methods(http.MethodPost)

	admin := withFallbacks(v1.PathPrefix("/admin").Subrouter())
	admin.Use(s.auth.Require(permAdmin))
	admin.HandleFunc("/venues", s.handleAdminListVenues).Methods(http.MethodGet)
	admin.HandleFunc("/venues", s.handleCreateVenue).Methods(http.MethodPost)
	admin.HandleFunc("/venues/{id:[0-9]+}", s.handleUpdateVenue).Methods(http.MethodPut)
	admin.HandleFunc("/venues/{id:[0-9]+}/blocks", s.handleListBlocks).Methods(http.MethodGet)
	admin.HandleFunc("/venues/{id:[0-9]+}/blocks", s.handleCreateBlock).Methods(http.MethodPost)
	admin.HandleFunc("/venues/{id:[0-9]+}/blocks/{blockID:[0-9]+}", s.handleDeleteBlock).Methods(http.MethodDelete)
	admin.HandleFunc("/venues/{id:[0-9]+}/peak-rules", s.handleListPeakRules).Methods(http.MethodGet)
	admin.HandleFunc("/venues/{id:[0-9]+}/peak-rules", s.handleCreatePeakRule).Methods(http.MethodPost)
	admin.HandleFunc("/venues/{id:[0-9]+}/peak-rules/{ruleID:[0-9]+}", s.handleDeletePeakRule).Methods(http.MethodDelete)
	admin.HandleFunc("/bookings", s.handleListBookings).Methods(http.MethodGet)
	admin.HandleFunc("/bookings/{bookingID:[0-9]+}/reject", s.handleRejectBooking).Methods(http.MethodPost)
	admin.HandleFunc("/bookings/{bookingID:[0-9]+}/complete", s.handleCompleteBooking).Methods(http.MethodPost)
	admin.HandleFunc("/bookings/{bookingID:[0-9]+}/refund", s.handleRefundBooking).Methods(http.MethodPost)
	admin.HandleFunc("/reports/bookings.xlsx", s.handleBookingsReport).Methods(http.MethodGet)
	admin.HandleFunc("/sync/requeue", s.handleRequeueSync).Methods(http.MethodPost)
	admin.HandleFunc("/sheets/resync", s.handleResyncSheet).Methods(http.MethodPost)

	return r
}

// withFallbacks ставит JSON-обработчики 404/405. У саброутера они свои:
// mux не передает несовпадение метода в обработчики родителя.
func withFallbacks(r *mux.Router) *mux.Router {
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// Handler возвращает обработчик со всеми middleware, для тестов и встраивания.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks, healthy := s.svc.Health.Run(r.Context())
	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": checks})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "checks": checks})
}
