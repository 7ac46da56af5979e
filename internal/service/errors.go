package service

import (
	"errors"

	"turfbook/internal/database"
)

var (
	ErrSlotUnavailable   = errors.New("requested slots are not available")
	ErrPastDate          = errors.New("date is in the past")
	ErrDateTooFar        = errors.New("date is too far in the future")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrVenueInactive     = errors.New("venue is not active")
	ErrPaymentIncomplete = errors.New("payment is not completed")
	ErrPaymentGateway    = errors.New("payment gateway error")
	ErrVersionConflict   = database.ErrConcurrentModification
	ErrInvalidTransition = database.ErrInvalidTransition
	ErrNotFound          = database.ErrNotFound
)
