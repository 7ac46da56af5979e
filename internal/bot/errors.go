package bot

import (
	"errors"

	"turfbook/internal/service"
)

// errorMessage превращает ошибку сервиса в ответ персоналу.
func errorMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, service.ErrNotFound):
		return "⚠️ Not found."
	case errors.Is(err, service.ErrVenueInactive):
		return "⚠️ The venue is not active."
	case errors.Is(err, service.ErrVersionConflict):
		return "⚠️ The booking was changed meanwhile. Open it again and retry."
	case errors.Is(err, service.ErrInvalidTransition):
		return "⚠️ This action is not allowed in the booking's current status."
	case errors.Is(err, service.ErrInvalidRequest):
		return "⚠️ " + err.Error()
	case service.IsConfigurationError(err):
		return "⚠️ The venue is misconfigured: " + err.Error()
	}
	return "❌ Something went wrong. Please try again later."
}
