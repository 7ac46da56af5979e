package models

import (
	"time"

	"turfbook/internal/slots"
)

// DaySnapshot данные одного дня площадки для расчета слотов:
// брони, занимающие слоты, и блокировки на эту дату.
type DaySnapshot struct {
	VenueID  int64      `json:"venue_id"`
	Date     time.Time  `json:"date"`
	Bookings []*Booking `json:"bookings"`
	Blocks   []*Block   `json:"blocks"`
	TakenAt  time.Time  `json:"taken_at"`
}

func (s *DaySnapshot) Reservations() []slots.Reservation {
	out := make([]slots.Reservation, 0, len(s.Bookings))
	for _, b := range s.Bookings {
		if b.IsActive() {
			out = append(out, b.Reservation())
		}
	}
	return out
}

func (s *DaySnapshot) EngineBlocks() []slots.Block {
	out := make([]slots.Block, 0, len(s.Blocks))
	for _, b := range s.Blocks {
		out = append(out, b.Engine())
	}
	return out
}
