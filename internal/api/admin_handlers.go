package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"turfbook/internal/export"
	"turfbook/internal/models"
	"turfbook/internal/service"
	"turfbook/internal/slots"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	// горизонт списка блокировок, если "to" не задан
	defaultBlockWindowDays = 30
)

func (s *HTTPServer) handleAdminListVenues(w http.ResponseWriter, r *http.Request) {
	venues, err := s.svc.Venues.ListVenues(r.Context(), false)
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"venues": venues})
}

func (s *HTTPServer) handleCreateVenue(w http.ResponseWriter, r *http.Request) {
	var venue models.Venue
	if err := decodeJSON(w, r, &venue, false); err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	venue.ID = 0
	if err := s.svc.Venues.CreateVenue(r.Context(), &venue); err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	s.audit(r, "venue created").Int64("venue_id", venue.ID).Msg("admin action")
	writeJSON(w, http.StatusCreated, venue)
}

func (s *HTTPServer) handleUpdateVenue(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	var venue models.Venue
	if err := decodeJSON(w, r, &venue, false); err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	venue.ID = id
	if err := s.svc.Venues.UpdateVenue(r.Context(), &venue); err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	s.audit(r, "venue updated").Int64("venue_id", id).Msg("admin action")

	updated, err := s.svc.Venues.GetVenue(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type blockRequest struct {
	StartDate string            `json:"start_date"`
	EndDate   string            `json:"end_date"`
	Ranges    []slots.TimeRange `json:"ranges"`
	Reason    string            `json:"reason"`
}

func (s *HTTPServer) handleCreateBlock(w http.ResponseWriter, r *http.Request) {
	venueID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	var body blockRequest
	if err := decodeJSON(w, r, &body, false); err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	start, err := parseDate("start_date", body.StartDate)
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	end, err := parseOptionalDate("end_date", body.EndDate)
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}

	block := &models.Block{
		VenueID:   venueID,
		StartDate: start,
		EndDate:   end,
		Ranges:    body.Ranges,
		Reason:    strings.TrimSpace(body.Reason),
	}
	if err := s.svc.Venues.CreateBlock(r.Context(), block); err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	s.audit(r, "block created").Int64("venue_id", venueID).Int64("block_id", block.ID).Msg("admin action")
	writeJSON(w, http.StatusCreated, block)
}

func (s *HTTPServer) handleListBlocks(w http.ResponseWriter, r *http.Request) {
	venueID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	from, to, err := s.dateWindow(r, defaultBlockWindowDays)
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}

	blocks, err := s.svc.Venues.ListBlocks(r.Context(), venueID, from, to)
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blocks": blocks})
}

func (s *HTTPServer) handleDeleteBlock(w http.ResponseWriter, r *http.Request) {
	venueID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	blockID, err := pathID(r, "blockID")
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	if err := s.svc.Venues.DeleteBlock(r.Context(), venueID, blockID); err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	s.audit(r, "block deleted").Int64("venue_id", venueID).Int64("block_id", blockID).Msg("admin action")
	w.WriteHeader(http.StatusNoContent)
}

type peakRuleRequest struct {
	Kind      string          `json:"kind"`
	Weekdays  []int           `json:"weekdays"`
	Date      string          `json:"date"`
	StartTime slots.Clock     `json:"start_time"`
	EndTime   slots.Clock     `json:"end_time"`
	Price     decimal.Decimal `json:"price"`
}

func (s *HTTPServer) handleCreatePeakRule(w http.ResponseWriter, r *http.Request) {
	venueID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	var body peakRuleRequest
	if err := decodeJSON(w, r, &body, false); err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	date, err := parseOptionalDate("date", body.Date)
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}

	rule := &models.PeakHourRule{
		VenueID:   venueID,
		Kind:      body.Kind,
		Weekdays:  body.Weekdays,
		Date:      date,
		StartTime: body.StartTime,
		EndTime:   body.EndTime,
		Price:     body.Price,
	}
	if err := s.svc.Venues.CreatePeakRule(r.Context(), rule); err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	s.audit(r, "peak rule created").Int64("venue_id", venueID).Int64("rule_id", rule.ID).Msg("admin action")
	writeJSON(w, http.StatusCreated, rule)
}

func (s *HTTPServer) handleListPeakRules(w http.ResponseWriter, r *http.Request) {
	venueID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	rules, err := s.svc.Venues.ListPeakRules(r.Context(), venueID)
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"peak_rules": rules})
}

func (s *HTTPServer) handleDeletePeakRule(w http.ResponseWriter, r *http.Request) {
	venueID, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	ruleID, err := pathID(r, "ruleID")
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	if err := s.svc.Venues.DeletePeakRule(r.Context(), venueID, ruleID); err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	s.audit(r, "peak rule deleted").Int64("venue_id", venueID).Int64("rule_id", ruleID).Msg("admin action")
	w.WriteHeader(http.StatusNoContent)
}

// bookingFilter читает venue_id, from, to, status (через запятую или повтором), email, limit, offset.
func bookingFilter(r *http.Request) (models.BookingFilter, error) {
	q := r.URL.Query()
	var f models.BookingFilter
	venueID, err := parseOptionalInt("venue_id", q.Get("venue_id"))
	if err != nil {
		return f, err
	}
	f.VenueID = int64(venueID)
	if f.From, err = parseOptionalDate("from", q.Get("from")); err != nil {
		return f, err
	}
	if f.To, err = parseOptionalDate("to", q.Get("to")); err != nil {
		return f, err
	}
	for _, raw := range q["status"] {
		for _, st := range strings.Split(raw, ",") {
			if st = strings.TrimSpace(st); st != "" {
				f.Statuses = append(f.Statuses, st)
			}
		}
	}
	f.CustomerEmail = strings.ToLower(strings.TrimSpace(q.Get("email")))
	if f.Limit, err = parseOptionalInt("limit", q.Get("limit")); err != nil {
		return f, err
	}
	if f.Limit < 0 {
		return f, badRequest("limit must not be negative")
	}
	if f.Offset, err = parseOptionalInt("offset", q.Get("offset")); err != nil {
		return f, err
	}
	return f, nil
}

func (s *HTTPServer) handleListBookings(w http.ResponseWriter, r *http.Request) {
	f, err := bookingFilter(r)
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	bookings, err := s.svc.Bookings.ListBookings(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bookings": bookings,
		"count":    len(bookings),
		"revenue":  service.Revenue(bookings),
	})
}

type transitionRequest struct {
	Version int64  `json:"version"`
	Reason  string `json:"reason"`
}

func (s *HTTPServer) handleRejectBooking(w http.ResponseWriter, r *http.Request) {
	s.transitionBooking(w, r, "booking rejected", func(id int64, body transitionRequest) (*models.Booking, error) {
		reason := strings.TrimSpace(body.Reason)
		if reason == "" {
			reason = "rejected by venue"
		}
		return s.svc.Bookings.RejectBooking(r.Context(), id, body.Version, reason)
	})
}

func (s *HTTPServer) handleCompleteBooking(w http.ResponseWriter, r *http.Request) {
	s.transitionBooking(w, r, "booking completed", func(id int64, body transitionRequest) (*models.Booking, error) {
		return s.svc.Bookings.CompleteBooking(r.Context(), id, body.Version)
	})
}

func (s *HTTPServer) handleRefundBooking(w http.ResponseWriter, r *http.Request) {
	s.transitionBooking(w, r, "booking refunded", func(id int64, body transitionRequest) (*models.Booking, error) {
		return s.svc.Bookings.RefundBooking(r.Context(), id, body.Version)
	})
}

// transitionBooking читает необязательное тело {version, reason} и применяет переход.
func (s *HTTPServer) transitionBooking(w http.ResponseWriter, r *http.Request, action string,
	apply func(id int64, body transitionRequest) (*models.Booking, error),
) {
	id, err := pathID(r, "bookingID")
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	var body transitionRequest
	if err := decodeJSON(w, r, &body, true); err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	if body.Version < 0 {
		writeServiceError(w, r, s.log, badRequest("version must not be negative"))
		return
	}

	booking, err := apply(id, body)
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	s.audit(r, action).Int64("booking_id", id).Str("status", booking.Status).Msg("admin action")
	writeJSON(w, http.StatusOK, booking)
}

// dateWindow читает from/to: from по умолчанию сегодня в поясе площадки, to это from+days.
func (s *HTTPServer) dateWindow(r *http.Request, days int) (time.Time, time.Time, error) {
	q := r.URL.Query()
	from, err := parseOptionalDate("from", q.Get("from"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if from == nil {
		now := s.svc.Bookings.Now()
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		from = &today
	}
	to, err := parseOptionalDate("to", q.Get("to"))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if to == nil {
		end := from.AddDate(0, 0, days)
		to = &end
	}
	return *from, *to, nil
}

func (s *HTTPServer) handleBookingsReport(w http.ResponseWriter, r *http.Request) {
	if s.svc.Exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "reports are not configured")
		return
	}
	q := r.URL.Query()
	from, err := parseDate("from", q.Get("from"))
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	to, err := parseDate("to", q.Get("to"))
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	if to.Before(from) {
		writeServiceError(w, r, s.log, badRequest("to is before from"))
		return
	}
	venueID, err := parseOptionalInt("venue_id", q.Get("venue_id"))
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}

	// собираем в буфер, чтобы ошибка ушла JSON-ом, а не обрывком файла
	var buf bytes.Buffer
	if err := s.svc.Exporter.Write(r.Context(), &buf, from, to, int64(venueID)); err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(from, to)))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *HTTPServer) handleRequeueSync(w http.ResponseWriter, r *http.Request) {
	if s.svc.SyncQueue == nil {
		writeError(w, http.StatusServiceUnavailable, "sheets sync is disabled")
		return
	}
	n, err := s.svc.SyncQueue.RequeueFailed(r.Context())
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	s.audit(r, "sync tasks requeued").Int64("count", n).Msg("admin action")
	writeJSON(w, http.StatusOK, map[string]any{"requeued": n})
}

// handleResyncSheet перезаписывает лист всеми бронями, исправляя расхождения после упавших задач.
func (s *HTTPServer) handleResyncSheet(w http.ResponseWriter, r *http.Request) {
	if s.svc.Sheets == nil {
		writeError(w, http.StatusServiceUnavailable, "sheets sync is disabled")
		return
	}
	bookings, err := s.svc.Bookings.ListBookings(r.Context(), models.BookingFilter{Limit: -1})
	if err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	if err := s.svc.Sheets.ReplaceBookings(r.Context(), bookings); err != nil {
		writeServiceError(w, r, s.log, err)
		return
	}
	s.audit(r, "sheet resynced").Int("rows", len(bookings)).Msg("admin action")
	writeJSON(w, http.StatusOK, map[string]any{"rows": len(bookings)})
}

// audit начинает запись журнала об изменении с именем клиента.
func (s *HTTPServer) audit(r *http.Request, action string) *zerolog.Event {
	return s.log.Info().
		Str("action", action).
		Str("client", clientFromContext(r.Context())).
		Str("request_id", requestIDFromContext(r.Context()))
}
