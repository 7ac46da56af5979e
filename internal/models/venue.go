package models

import (
	"time"

	"turfbook/internal/slots"

	"github.com/shopspring/decimal"
)

// DayPartPricing цены утро/вечер для будней или выходных.
type DayPartPricing struct {
	Enabled      bool             `json:"enabled"`
	MorningStart *slots.Clock     `json:"morning_start,omitempty"`
	EveningStart *slots.Clock     `json:"evening_start,omitempty"`
	MorningPrice *decimal.Decimal `json:"morning_price,omitempty"`
	EveningPrice *decimal.Decimal `json:"evening_price,omitempty"`
}

type Venue struct {
	ID              int64            `json:"id"`
	Name            string           `json:"name"`
	Location        string           `json:"location"`
	Sport           string           `json:"sport"`
	Description     string           `json:"description,omitempty"`
	OpenTime        slots.Clock      `json:"open_time"`
	CloseTime       slots.Clock      `json:"close_time"`
	SlotMinutes     int              `json:"slot_minutes"`
	PartialLastSlot bool             `json:"partial_last_slot"`
	PricePerHour    *decimal.Decimal `json:"price_per_hour"`
	WeekdayPricing  DayPartPricing   `json:"weekday_pricing"`
	WeekendPricing  DayPartPricing   `json:"weekend_pricing"`
	IsActive        bool             `json:"is_active"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Engine переводит площадку в конфигурацию движка слотов.
func (v *Venue) Engine() slots.Venue {
	return slots.Venue{
		ID:              v.ID,
		OpenTime:        v.OpenTime,
		CloseTime:       v.CloseTime,
		SlotMinutes:     v.SlotMinutes,
		PartialLastSlot: v.PartialLastSlot,
		PricePerHour:    v.PricePerHour,
		Weekday:         v.WeekdayPricing.engine(),
		Weekend:         v.WeekendPricing.engine(),
	}
}

func (p DayPartPricing) engine() slots.DayPartPricing {
	return slots.DayPartPricing{
		Enabled:      p.Enabled,
		MorningStart: p.MorningStart,
		EveningStart: p.EveningStart,
		MorningPrice: p.MorningPrice,
		EveningPrice: p.EveningPrice,
	}
}
