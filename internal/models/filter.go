package models

import "time"

// BookingFilter сужает выборку броней. Нулевые значения игнорируются.
// Limit < 0 снимает ограничение, 0 означает DefaultListLimit.
type BookingFilter struct {
	VenueID       int64      `json:"venue_id,omitempty"`
	From          *time.Time `json:"from,omitempty"`
	To            *time.Time `json:"to,omitempty"`
	Statuses      []string   `json:"statuses,omitempty"`
	CustomerEmail string     `json:"customer_email,omitempty"`
	Limit         int        `json:"limit,omitempty"`
	Offset        int        `json:"offset,omitempty"`
}
