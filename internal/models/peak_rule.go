package models

import (
	"time"

	"turfbook/internal/slots"

	"github.com/shopspring/decimal"
)

const (
	RuleKindDayOfWeek    = string(slots.RuleKindWeekday)
	RuleKindSpecificDate = string(slots.RuleKindDate)
)

// PeakHourRule переопределяет почасовую цену в [StartTime, EndTime).
// Weekdays в нумерации time.Weekday (воскресенье = 0).
type PeakHourRule struct {
	ID        int64           `json:"id"`
	VenueID   int64           `json:"venue_id"`
	Kind      string          `json:"kind"`
	Weekdays  []int           `json:"weekdays,omitempty"`
	Date      *time.Time      `json:"date,omitempty"`
	StartTime slots.Clock     `json:"start_time"`
	EndTime   slots.Clock     `json:"end_time"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
}

func (r *PeakHourRule) Engine() slots.PeakRule {
	rule := slots.PeakRule{
		ID:    r.ID,
		Kind:  slots.RuleKind(r.Kind),
		Start: r.StartTime,
		End:   r.EndTime,
		Price: r.Price,
	}
	if r.Date != nil {
		rule.Date = *r.Date
	}
	for _, d := range r.Weekdays {
		rule.Weekdays = append(rule.Weekdays, time.Weekday(d))
	}
	return rule
}

// EngineRules переводит правила площадки для калькулятора цены.
func EngineRules(rules []*PeakHourRule) []slots.PeakRule {
	out := make([]slots.PeakRule, 0, len(rules))
	for _, r := range rules {
		out = append(out, r.Engine())
	}
	return out
}
