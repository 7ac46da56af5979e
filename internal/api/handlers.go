package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"turfbook/internal/payment"
	"turfbook/internal/service"
	"turfbook/internal/slots"

	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", service.ErrInvalidRequest, fmt.Sprintf(format, args...))
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("%s must be a positive integer", name)
	}
	return id, nil
}

// parseDate читает YYYY-MM-DD как полночь UTC.
func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, badRequest("%s is required", field)
	}
	d, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, badRequest("invalid %s format; expected YYYY-MM-DD", field)
	}
	return d, nil
}

func parseOptionalDate(field, raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := parseDate(field, raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func parseOptionalInt(field, raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, badRequest("%s must be an integer", field)
	}
	return v, nil
}

// decodeJSON читает тело запроса в v. Пустое тело допустимо при allowEmpty.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return badRequest("invalid JSON body: %v", err)
	}
	return nil
}

func (s *HTTPServer) handleListVenues(w http.ResponseWriter, r *http.Request) {
	venues, err := s.svc.Venues.ListVenues(r.Context(), true)
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"venues": venues})
}

func (s *HTTPServer) handleGetVenue(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	venue, err := s.svc.Venues.GetVenue(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	if !venue.IsActive {
		writeServiceError(w, r, s.log, fmt.Errorf("venue %d: %w", id, service.ErrVenueInactive))
		return
	}
	writeJSON(w, http.StatusOK, venue)
}

func (s *HTTPServer) handleDaySlots(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	q := r.URL.Query()
	date, err := parseDate("date", q.Get("date"))
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	granularity, err := parseOptionalInt("granularity", q.Get("granularity"))
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}

	now := s.svc.Bookings.Now()
	if raw := strings.TrimSpace(q.Get("now")); raw != "" {
		now, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			writeServiceError(w, r, s.log, badRequest("invalid now format; expected RFC3339"))
			return
		}
	}

	day, err := s.svc.Availability.DaySlots(r.Context(), id, date, granularity, now)
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

func (s *HTTPServer) handleQuotePrice(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	q := r.URL.Query()
	date, err := parseDate("date", q.Get("date"))
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	start, err := slots.ParseClock(strings.TrimSpace(q.Get("start")))
	if err != nil {
		writeServiceError(w, r, s.log, badRequest("invalid start: %v", err))
		return
	}

	rate, err := s.svc.Availability.QuotePrice(r.Context(), id, date, start)
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"venue_id":    id,
		"date":        date.Format(time.DateOnly),
		"start":       start,
		"hourly_rate": rate,
		"currency":    s.svc.Availability.Currency(),
	})
}

type createBookingRequest struct {
	VenueID         int64  `json:"venue_id"`
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
	CustomerName    string `json:"customer_name"`
	CustomerEmail   string `json:"customer_email"`
	CustomerPhone   string `json:"customer_phone"`
	Comment         string `json:"comment"`
}

func (req createBookingRequest) toService() (service.CreateBookingRequest, error) {
	if req.VenueID <= 0 {
		return service.CreateBookingRequest{}, badRequest("venue_id is required")
	}
	date, err := parseDate("date", req.Date)
	if err != nil {
		return service.CreateBookingRequest{}, err
	}
	start, err := slots.ParseClock(strings.TrimSpace(req.StartTime))
	if err != nil {
		return service.CreateBookingRequest{}, badRequest("invalid start_time: %v", err)
	}
	return service.CreateBookingRequest{
		VenueID:         req.VenueID,
		Date:            date,
		StartTime:       start,
		DurationMinutes: req.DurationMinutes,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		Comment:         req.Comment,
	}, nil
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var body createBookingRequest
	if err := decodeJSON(w, r, &body, false); err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	req, err := body.toService()
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}

	res, err := s.svc.Bookings.CreateBooking(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	booking, err := s.svc.Bookings.GetBookingByReference(r.Context(), mux.Vars(r)["ref"])
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	booking, err := s.svc.Bookings.VerifyPayment(r.Context(), mux.Vars(r)["ref"])
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	var body reasonRequest
	if err := decodeJSON(w, r, &body, true); err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	reason := strings.TrimSpace(body.Reason)
	if reason == "" {
		reason = "cancelled by customer"
	}

	booking, err := s.svc.Bookings.CancelBooking(r.Context(), mux.Vars(r)["ref"], reason)
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// webhookSignature берет заголовок Stripe, затем общий заголовок офлайн-шлюза.
func webhookSignature(r *http.Request) string {
	if sig := r.Header.Get("Stripe-Signature"); sig != "" {
		return sig
	}
	return r.Header.Get("X-Webhook-Signature")
}

func (s *HTTPServer) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}

	err = s.svc.Bookings.HandlePaymentWebhook(r.Context(), payload, webhookSignature(r))
	switch {
	case err == nil:
	case errors.Is(err, payment.ErrInvalidSignature):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, service.ErrNotFound):
		// заказ не наш, повтор от провайдера не поможет
		s.log.Warn().Err(err).Msg("webhook for unknown order acknowledged")
	default:
		// на ошибку сервера провайдер повторит доставку
		writeServiceError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}
