package slots

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// MinutesPerDay is the length of one operating day.
	MinutesPerDay = 24 * 60

	// DefaultGranularity is used when neither the request nor the venue sets a slot size.
	DefaultGranularity = 30
)

// Clock is a time of day in minutes since midnight. 24:00 is valid as a closing time.
type Clock int

// Midnight is the end of the operating day (24:00).
const Midnight Clock = MinutesPerDay

// NewClock builds a Clock from hours and minutes.
func NewClock(hour, minute int) Clock {
	return Clock(hour*60 + minute)
}

// ParseClock parses "HH:MM" or "HH:MM:SS" (seconds must be zero).
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q: %w", s, err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q: %w", s, err)
	}
	if len(parts) == 3 {
		sec, err := strconv.Atoi(parts[2])
		if err != nil || sec != 0 {
			return 0, fmt.Errorf("invalid seconds in %q", s)
		}
	}

	if hour < 0 || hour > 24 || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return NewClock(hour, minute), nil
}

// MustParseClock is ParseClock for constants and tests.
func MustParseClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockOf returns the time of day of t, truncated to the minute.
func ClockOf(t time.Time) Clock {
	return NewClock(t.Hour(), t.Minute())
}

// Minutes returns the number of minutes since midnight.
func (c Clock) Minutes() int {
	return int(c)
}

// Add returns c shifted by minutes. It does not wrap around midnight.
func (c Clock) Add(minutes int) Clock {
	return c + Clock(minutes)
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// Valid reports whether c lies within [00:00, 24:00].
func (c Clock) Valid() bool {
	return c >= 0 && c <= Midnight
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("clock must be a string: %w", err)
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value stores the clock as HH:MM text.
func (c Clock) Value() (driver.Value, error) {
	return c.String(), nil
}

func (c *Clock) Scan(src any) error {
	switch v := src.(type) {
	case string:
		parsed, err := ParseClock(v)
		if err != nil {
			return err
		}
		*c = parsed
	case []byte:
		parsed, err := ParseClock(string(v))
		if err != nil {
			return err
		}
		*c = parsed
	case int64:
		*c = Clock(v)
	default:
		return fmt.Errorf("cannot scan %T into Clock", src)
	}
	return nil
}

// TimeRange is a half-open interval [Start, End) within one day.
type TimeRange struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
}

// Contains reports whether c lies in [Start, End).
func (r TimeRange) Contains(c Clock) bool {
	return r.Start <= c && c < r.End
}

// Status is the bookability of one slot.
type Status string

const (
	StatusBookable Status = "bookable"
	StatusBooked   Status = "booked"
	StatusBlocked  Status = "blocked"
	StatusPast     Status = "past"
)

// Slot is one candidate start time of a venue's day.
type Slot struct {
	Start  Clock  `json:"start_time"`
	End    Clock  `json:"end_time"`
	Status Status `json:"status"`
}

// Minutes returns the slot length.
func (s Slot) Minutes() int {
	return int(s.End - s.Start)
}

// Bookable reports whether no disqualifying condition applies.
func (s Slot) Bookable() bool {
	return s.Status == StatusBookable
}

// DayPartPricing splits a day into morning and evening tiers.
// Nil boundaries fall back to DefaultMorningStart and DefaultEveningStart.
type DayPartPricing struct {
	Enabled      bool
	MorningStart *Clock
	EveningStart *Clock
	MorningPrice *decimal.Decimal
	EveningPrice *decimal.Decimal
}

// Venue is the operating-hours and pricing configuration the engine reads.
type Venue struct {
	ID        int64
	OpenTime  Clock
	CloseTime Clock

	// SlotMinutes is the venue-level granularity; zero means unset.
	SlotMinutes int

	// PartialLastSlot keeps a trailing slot shorter than the granularity, ending at CloseTime.
	PartialLastSlot bool

	// PricePerHour is the unconditional fallback rate.
	PricePerHour *decimal.Decimal

	Weekday DayPartPricing
	Weekend DayPartPricing
}

// Granularity picks the effective slot size: requested, then venue, then DefaultGranularity.
func (v Venue) Granularity(requested int) int {
	if requested != 0 {
		return requested
	}
	if v.SlotMinutes != 0 {
		return v.SlotMinutes
	}
	return DefaultGranularity
}

// Reservation is an active booking occupying [Start, Start+DurationMinutes).
// A zero Date means the reservation belongs to the queried date.
type Reservation struct {
	ID              int64
	Date            time.Time
	Start           Clock
	DurationMinutes int
}

// Block is an admin-imposed unavailability window.
// A nil EndDate means a single day; no Ranges means the whole day.
type Block struct {
	ID        int64
	StartDate time.Time
	EndDate   *time.Time
	Ranges    []TimeRange
	Reason    string
}

// Covers reports whether the block's inclusive date range contains date.
func (b Block) Covers(date time.Time) bool {
	day := dayKey(date)
	if day < dayKey(b.StartDate) {
		return false
	}
	end := b.StartDate
	if b.EndDate != nil {
		end = *b.EndDate
	}
	return day <= dayKey(end)
}

// WholeDay reports whether the block has no time sub-ranges.
func (b Block) WholeDay() bool {
	return len(b.Ranges) == 0
}

// RuleKind distinguishes recurring and one-off peak rules.
type RuleKind string

const (
	RuleKindWeekday RuleKind = "day_of_week"
	RuleKindDate    RuleKind = "specific_date"
)

// PeakRule overrides the hourly rate within [Start, End).
type PeakRule struct {
	ID       int64
	Kind     RuleKind
	Weekdays []time.Weekday
	Date     time.Time
	Start    Clock
	End      Clock
	Price    decimal.Decimal
}

// Matches reports whether the rule applies to a slot starting at start on date.
func (r PeakRule) Matches(date time.Time, start Clock) bool {
	if !(TimeRange{Start: r.Start, End: r.End}).Contains(start) {
		return false
	}
	switch r.Kind {
	case RuleKindDate:
		return SameDay(r.Date, date)
	case RuleKindWeekday:
		wd := date.Weekday()
		for _, d := range r.Weekdays {
			if d == wd {
				return true
			}
		}
	}
	return false
}

// SameDay compares calendar dates, ignoring time of day and location.
func SameDay(a, b time.Time) bool {
	return dayKey(a) == dayKey(b)
}

// IsWeekend reports Saturday and Sunday.
func IsWeekend(date time.Time) bool {
	wd := date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func dayKey(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}
