package models

import (
	"time"

	"turfbook/internal/slots"
)

// Block закрывает площадку на дату или диапазон дат, целиком или по интервалам.
type Block struct {
	ID        int64             `json:"id"`
	VenueID   int64             `json:"venue_id"`
	StartDate time.Time         `json:"start_date"`
	EndDate   *time.Time        `json:"end_date,omitempty"`
	Ranges    []slots.TimeRange `json:"ranges,omitempty"`
	Reason    string            `json:"reason"`
	CreatedAt time.Time         `json:"created_at"`
}

func (b *Block) Engine() slots.Block {
	return slots.Block{
		ID:        b.ID,
		StartDate: b.StartDate,
		EndDate:   b.EndDate,
		Ranges:    b.Ranges,
		Reason:    b.Reason,
	}
}

// LastDate возвращает последний день блокировки (включительно).
func (b *Block) LastDate() time.Time {
	if b.EndDate != nil {
		return *b.EndDate
	}
	return b.StartDate
}
