package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"turfbook/internal/payment"
	"turfbook/internal/service"

	"github.com/rs/zerolog"
)

// statusFor сопоставляет ошибки сервисов с HTTP-кодами.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNotFound), errors.Is(err, service.ErrVenueInactive):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSlotUnavailable),
		errors.Is(err, service.ErrVersionConflict),
		errors.Is(err, service.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrPastDate),
		errors.Is(err, service.ErrDateTooFar),
		errors.Is(err, payment.ErrInvalidSignature):
		return http.StatusBadRequest
	case service.IsConfigurationError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrPaymentIncomplete):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrPaymentGateway), errors.Is(err, payment.ErrRefundFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError отвечает соответствующим кодом. Детали 5xx остаются в логе.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	code := statusFor(err)
	msg := err.Error()
	switch code {
	case http.StatusUnprocessableEntity:
		msg = "venue is misconfigured"
		logger.Warn().Err(err).Str("path", r.URL.Path).Msg("venue configuration error")
	case http.StatusInternalServerError:
		msg = "internal error"
		logger.Error().Err(err).Str("request_id", requestIDFromContext(r.Context())).Str("path", r.URL.Path).Msg("request failed")
	case http.StatusBadGateway:
		msg = "payment provider unavailable"
		logger.Error().Err(err).Str("request_id", requestIDFromContext(r.Context())).Str("path", r.URL.Path).Msg("payment gateway error")
	}
	writeError(w, code, msg)
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
