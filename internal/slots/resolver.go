package slots

import (
	"iter"
	"time"
)

type interval struct {
	start Clock
	end   Clock
}

func (iv interval) overlaps(s Slot) bool {
	return s.Start < iv.end && iv.start < s.End
}

// ValidateHours checks that the venue has a non-empty operating day inside 00:00-24:00.
func (v Venue) ValidateHours() error {
	if !v.OpenTime.Valid() || !v.CloseTime.Valid() {
		return configError(v.ID, "hours", "opening %s / closing %s outside 00:00-24:00", v.OpenTime, v.CloseTime)
	}
	if v.OpenTime >= v.CloseTime {
		return configError(v.ID, "hours", "opening %s is not before closing %s", v.OpenTime, v.CloseTime)
	}
	return nil
}

// Candidates returns the venue's slot start times for one day as a restartable sequence.
// Slots never pass CloseTime: a trailing short slot is dropped unless PartialLastSlot is set,
// in which case its end is clamped to CloseTime.
func Candidates(v Venue, granularity int) (iter.Seq[Slot], error) {
	if err := v.ValidateHours(); err != nil {
		return nil, err
	}
	if granularity <= 0 {
		return nil, configError(v.ID, "granularity", "must be positive, got %d", granularity)
	}

	return func(yield func(Slot) bool) {
		for start := v.OpenTime; start < v.CloseTime; start = start.Add(granularity) {
			end := start.Add(granularity)
			if end > v.CloseTime {
				if !v.PartialLastSlot {
					return
				}
				end = v.CloseTime
			}
			if !yield(Slot{Start: start, End: end}) {
				return
			}
		}
	}, nil
}

// ResolveSlots lists every slot of date with its status.
//
// reservations must already be filtered to active holds; blocks are checked against date here.
// now is the caller's local time: slots starting at or before it on the same date, and every slot
// of an earlier date, are reported as past. Precedence is past, blocked, booked.
func ResolveSlots(
	v Venue,
	date time.Time,
	granularity int,
	reservations []Reservation,
	blocks []Block,
	now time.Time,
) ([]Slot, error) {
	seq, err := Candidates(v, granularity)
	if err != nil {
		return nil, err
	}

	busy := reservationIntervals(date, reservations, granularity)
	wholeDay, blockedRanges := blockIntervals(date, blocks)

	day, today := dayKey(date), dayKey(now)
	nowSeconds := now.Hour()*3600 + now.Minute()*60 + now.Second()

	out := make([]Slot, 0, (v.CloseTime-v.OpenTime).Minutes()/granularity+1)
	for s := range seq {
		switch {
		case day < today || (day == today && s.Start.Minutes()*60 <= nowSeconds):
			s.Status = StatusPast
		case wholeDay || overlapsAny(s, blockedRanges):
			s.Status = StatusBlocked
		case overlapsAny(s, busy):
			s.Status = StatusBooked
		default:
			s.Status = StatusBookable
		}
		out = append(out, s)
	}
	return out, nil
}

func reservationIntervals(date time.Time, reservations []Reservation, granularity int) []interval {
	out := make([]interval, 0, len(reservations))
	for _, r := range reservations {
		if !r.Date.IsZero() && !SameDay(r.Date, date) {
			continue
		}
		duration := r.DurationMinutes
		if duration <= 0 {
			duration = granularity
		}
		end := r.Start.Add(duration)
		if end > Midnight {
			end = Midnight
		}
		out = append(out, interval{start: r.Start, end: end})
	}
	return out
}

func blockIntervals(date time.Time, blocks []Block) (bool, []interval) {
	var ranges []interval
	for _, b := range blocks {
		if !b.Covers(date) {
			continue
		}
		if b.WholeDay() {
			return true, nil
		}
		for _, r := range b.Ranges {
			if r.End <= r.Start {
				continue
			}
			ranges = append(ranges, interval{start: r.Start, end: r.End})
		}
	}
	return false, ranges
}

func overlapsAny(s Slot, ivs []interval) bool {
	for _, iv := range ivs {
		if iv.overlaps(s) {
			return true
		}
	}
	return false
}
