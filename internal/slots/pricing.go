package slots

import (
	"cmp"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	DefaultMorningStart = NewClock(6, 0)
	DefaultEveningStart = NewClock(18, 0)
)

// Calculator resolves the hourly rate of a slot. It holds no state besides its logger.
type Calculator struct {
	logger zerolog.Logger
}

// NewCalculator returns a calculator that reports ambiguous rule matches to logger. A nil logger discards them.
func NewCalculator(logger *zerolog.Logger) *Calculator {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "pricing").Logger()
	}
	return &Calculator{logger: l}
}

var defaultCalculator = NewCalculator(nil)

// PriceForSlot is Calculator.PriceForSlot with a silent logger.
func PriceForSlot(v Venue, date time.Time, start Clock, rules []PeakRule) (decimal.Decimal, error) {
	return defaultCalculator.PriceForSlot(v, date, start, rules)
}

// PriceForSlot returns the hourly rate for a slot starting at start on date.
//
// Order: specific-date peak rule, weekday peak rule, day-part tier, venue base price.
// The base price is only required when nothing earlier matches.
func (c *Calculator) PriceForSlot(v Venue, date time.Time, start Clock, rules []PeakRule) (decimal.Decimal, error) {
	if rule, ok := c.matchRule(v.ID, date, start, rules, RuleKindDate); ok {
		return rule.Price, nil
	}
	if rule, ok := c.matchRule(v.ID, date, start, rules, RuleKindWeekday); ok {
		return rule.Price, nil
	}
	if price, ok := dayPartPrice(v, date, start); ok {
		return price, nil
	}
	if v.PricePerHour == nil {
		return decimal.Zero, configError(v.ID, "price_per_hour", "no base price and no other rule matched %s", start)
	}
	return *v.PricePerHour, nil
}

func (c *Calculator) matchRule(venueID int64, date time.Time, start Clock, rules []PeakRule, kind RuleKind) (PeakRule, bool) {
	var matched []PeakRule
	for _, r := range rules {
		if r.Kind == kind && r.Matches(date, start) {
			matched = append(matched, r)
		}
	}
	switch len(matched) {
	case 0:
		return PeakRule{}, false
	case 1:
		return matched[0], true
	}

	slices.SortFunc(matched, func(a, b PeakRule) int {
		if n := cmp.Compare(a.Start, b.Start); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})

	ids := make([]int64, len(matched))
	for i, r := range matched {
		ids[i] = r.ID
	}
	c.logger.Warn().
		Int64("venue_id", venueID).
		Str("kind", string(kind)).
		Str("date", date.Format(time.DateOnly)).
		Str("start", start.String()).
		Ints64("rule_ids", ids).
		Int64("chosen_rule_id", matched[0].ID).
		Msg("overlapping peak rules")
	return matched[0], true
}

func dayPartPrice(v Venue, date time.Time, start Clock) (decimal.Decimal, bool) {
	tier := v.Weekday
	if IsWeekend(date) {
		tier = v.Weekend
	}
	if !tier.Enabled {
		return decimal.Zero, false
	}

	morning, evening := DefaultMorningStart, DefaultEveningStart
	if tier.MorningStart != nil {
		morning = *tier.MorningStart
	}
	if tier.EveningStart != nil {
		evening = *tier.EveningStart
	}

	price := tier.EveningPrice
	if morning <= start && start < evening {
		price = tier.MorningPrice
	}
	if price == nil {
		return decimal.Zero, false
	}
	return *price, true
}

// ScaleToDuration converts an hourly rate to the price of minutes, rounded to cents.
func ScaleToDuration(hourly decimal.Decimal, minutes int) decimal.Decimal {
	return hourly.Mul(decimal.NewFromInt(int64(minutes))).Div(decimal.NewFromInt(60)).Round(2)
}
