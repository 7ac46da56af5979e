package models

import (
	"time"

	"turfbook/internal/slots"

	"github.com/shopspring/decimal"
)

type Booking struct {
	ID              int64           `json:"id"`
	Reference       string          `json:"reference"`
	VenueID         int64           `json:"venue_id"`
	VenueName       string          `json:"venue_name,omitempty"`
	Date            time.Time       `json:"date"`
	StartTime       slots.Clock     `json:"start_time"`
	DurationMinutes int             `json:"duration_minutes"`
	CustomerName    string          `json:"customer_name"`
	CustomerEmail   string          `json:"customer_email"`
	CustomerPhone   string          `json:"customer_phone"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"` // pending, confirmed, completed, cancelled, rejected, refunded, expired
	PaymentOrderID  string          `json:"payment_order_id,omitempty"`
	PaymentID       string          `json:"payment_id,omitempty"`
	RefundID        string          `json:"refund_id,omitempty"`
	Comment         string          `json:"comment,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	Version         int64           `json:"version"`
}

// EndTime конец интервала брони (не включительно), не позже полуночи.
func (b *Booking) EndTime() slots.Clock {
	end := b.StartTime.Add(b.DurationMinutes)
	if end > slots.Midnight {
		return slots.Midnight
	}
	return end
}

// IsActive сообщает, занимает ли бронь слоты.
func (b *Booking) IsActive() bool {
	return IsActiveStatus(b.Status)
}

// Reservation превращает бронь в запись занятости для движка слотов.
func (b *Booking) Reservation() slots.Reservation {
	return slots.Reservation{
		ID:              b.ID,
		Date:            b.Date,
		Start:           b.StartTime,
		DurationMinutes: b.DurationMinutes,
	}
}

// Overlaps сообщает, пересекаются ли брони одной площадки в один день.
func (b *Booking) Overlaps(other *Booking) bool {
	if b.VenueID != other.VenueID || !slots.SameDay(b.Date, other.Date) {
		return false
	}
	return b.StartTime < other.EndTime() && other.StartTime < b.EndTime()
}
