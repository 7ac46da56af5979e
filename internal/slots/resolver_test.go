package slots

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-10-21 is a Wednesday.
var wednesday = time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC)

func testVenue() Venue {
	base := decimal.NewFromInt(1000)
	return Venue{
		ID:           1,
		OpenTime:     MustParseClock("06:00"),
		CloseTime:    MustParseClock("22:00"),
		SlotMinutes:  60,
		PricePerHour: &base,
	}
}

// dayBefore makes now a day earlier than date so nothing on date is past.
func dayBefore(date time.Time) time.Time {
	return date.AddDate(0, 0, -1).Add(12 * time.Hour)
}

func statuses(slots []Slot) map[string]Status {
	out := make(map[string]Status, len(slots))
	for _, s := range slots {
		out[s.Start.String()] = s.Status
	}
	return out
}

func TestResolveSlots_OpenDay(t *testing.T) {
	got, err := ResolveSlots(testVenue(), wednesday, 60, nil, nil, dayBefore(wednesday))
	require.NoError(t, err)
	require.Len(t, got, 16)

	assert.Equal(t, "06:00", got[0].Start.String())
	assert.Equal(t, "07:00", got[0].End.String())
	assert.Equal(t, "21:00", got[15].Start.String())
	assert.Equal(t, "22:00", got[15].End.String())

	for i, s := range got {
		assert.Equal(t, StatusBookable, s.Status, "slot %s", s.Start)
		assert.Equal(t, 60, s.Minutes())
		if i > 0 {
			assert.Less(t, got[i-1].Start, s.Start)
		}
	}
}

func TestResolveSlots_Reservation(t *testing.T) {
	reservations := []Reservation{{ID: 7, Date: wednesday, Start: MustParseClock("14:00"), DurationMinutes: 60}}

	got, err := ResolveSlots(testVenue(), wednesday, 60, reservations, nil, dayBefore(wednesday))
	require.NoError(t, err)

	for start, status := range statuses(got) {
		if start == "14:00" {
			assert.Equal(t, StatusBooked, status)
			continue
		}
		assert.Equal(t, StatusBookable, status, "slot %s", start)
	}
}

func TestResolveSlots_ReservationOverlap(t *testing.T) {
	t.Run("partial overlap books both granules", func(t *testing.T) {
		reservations := []Reservation{{Start: MustParseClock("14:30"), DurationMinutes: 60}}
		got, err := ResolveSlots(testVenue(), wednesday, 60, reservations, nil, dayBefore(wednesday))
		require.NoError(t, err)

		st := statuses(got)
		assert.Equal(t, StatusBooked, st["14:00"])
		assert.Equal(t, StatusBooked, st["15:00"])
		assert.Equal(t, StatusBookable, st["16:00"])
	})

	t.Run("touching intervals do not overlap", func(t *testing.T) {
		reservations := []Reservation{{Start: MustParseClock("15:00"), DurationMinutes: 60}}
		got, err := ResolveSlots(testVenue(), wednesday, 30, reservations, nil, dayBefore(wednesday))
		require.NoError(t, err)

		st := statuses(got)
		assert.Equal(t, StatusBookable, st["14:30"])
		assert.Equal(t, StatusBooked, st["15:00"])
		assert.Equal(t, StatusBooked, st["15:30"])
		assert.Equal(t, StatusBookable, st["16:00"])
	})

	t.Run("other dates are ignored", func(t *testing.T) {
		reservations := []Reservation{{Date: wednesday.AddDate(0, 0, 1), Start: MustParseClock("10:00"), DurationMinutes: 60}}
		got, err := ResolveSlots(testVenue(), wednesday, 60, reservations, nil, dayBefore(wednesday))
		require.NoError(t, err)
		assert.Equal(t, StatusBookable, statuses(got)["10:00"])
	})

	t.Run("zero duration occupies one granule", func(t *testing.T) {
		reservations := []Reservation{{Start: MustParseClock("10:00")}}
		got, err := ResolveSlots(testVenue(), wednesday, 60, reservations, nil, dayBefore(wednesday))
		require.NoError(t, err)

		st := statuses(got)
		assert.Equal(t, StatusBooked, st["10:00"])
		assert.Equal(t, StatusBookable, st["11:00"])
	})

	t.Run("reservation past midnight is clamped", func(t *testing.T) {
		v := testVenue()
		v.CloseTime = Midnight
		reservations := []Reservation{{Start: MustParseClock("23:00"), DurationMinutes: 180}}
		got, err := ResolveSlots(v, wednesday, 60, reservations, nil, dayBefore(wednesday))
		require.NoError(t, err)

		last := got[len(got)-1]
		assert.Equal(t, "23:00", last.Start.String())
		assert.Equal(t, "24:00", last.End.String())
		assert.Equal(t, StatusBooked, last.Status)
	})
}

func TestResolveSlots_WholeDayBlock(t *testing.T) {
	blocks := []Block{{ID: 1, StartDate: wednesday, Reason: "Maintenance"}}

	got, err := ResolveSlots(testVenue(), wednesday, 60, nil, blocks, dayBefore(wednesday))
	require.NoError(t, err)
	require.Len(t, got, 16)
	for _, s := range got {
		assert.Equal(t, StatusBlocked, s.Status)
	}
}

func TestResolveSlots_BlockRanges(t *testing.T) {
	end := wednesday.AddDate(0, 0, 2)
	blocks := []Block{{
		StartDate: wednesday.AddDate(0, 0, -1),
		EndDate:   &end,
		Ranges: []TimeRange{
			{Start: MustParseClock("08:30"), End: MustParseClock("09:00")},
			{Start: MustParseClock("12:00"), End: MustParseClock("11:00")},
		},
	}}
	reservations := []Reservation{{Start: MustParseClock("08:00"), DurationMinutes: 60}}

	got, err := ResolveSlots(testVenue(), wednesday, 60, reservations, blocks, dayBefore(wednesday))
	require.NoError(t, err)

	st := statuses(got)
	assert.Equal(t, StatusBlocked, st["08:00"], "blocked wins over booked")
	assert.Equal(t, StatusBookable, st["09:00"])
	assert.Equal(t, StatusBookable, st["11:00"], "inverted range is ignored")
}

func TestResolveSlots_BlockOutsideRange(t *testing.T) {
	blocks := []Block{
		{StartDate: wednesday.AddDate(0, 0, 1)},
		{StartDate: wednesday.AddDate(0, 0, -3)},
	}
	got, err := ResolveSlots(testVenue(), wednesday, 60, nil, blocks, dayBefore(wednesday))
	require.NoError(t, err)
	for _, s := range got {
		assert.Equal(t, StatusBookable, s.Status)
	}
}

func TestResolveSlots_Past(t *testing.T) {
	reservations := []Reservation{{Start: MustParseClock("09:00"), DurationMinutes: 60}}
	blocks := []Block{{StartDate: wednesday, Ranges: []TimeRange{{Start: MustParseClock("07:00"), End: MustParseClock("08:00")}}}}

	t.Run("today before and at now", func(t *testing.T) {
		now := wednesday.Add(10*time.Hour + 30*time.Second)
		got, err := ResolveSlots(testVenue(), wednesday, 60, reservations, blocks, now)
		require.NoError(t, err)

		st := statuses(got)
		for _, start := range []string{"06:00", "07:00", "08:00", "09:00", "10:00"} {
			assert.Equal(t, StatusPast, st[start], "slot %s", start)
		}
		assert.Equal(t, StatusBookable, st["11:00"])
	})

	t.Run("just before slot start", func(t *testing.T) {
		now := wednesday.Add(10*time.Hour - time.Second)
		got, err := ResolveSlots(testVenue(), wednesday, 60, nil, nil, now)
		require.NoError(t, err)
		assert.Equal(t, StatusBookable, statuses(got)["10:00"])
	})

	t.Run("earlier date is entirely past", func(t *testing.T) {
		now := wednesday.AddDate(0, 0, 1).Add(time.Hour)
		got, err := ResolveSlots(testVenue(), wednesday, 60, nil, nil, now)
		require.NoError(t, err)
		for _, s := range got {
			assert.Equal(t, StatusPast, s.Status)
		}
	})

	t.Run("later date is unaffected", func(t *testing.T) {
		now := wednesday.AddDate(0, 0, -1).Add(23 * time.Hour)
		got, err := ResolveSlots(testVenue(), wednesday, 60, nil, nil, now)
		require.NoError(t, err)
		assert.Equal(t, StatusBookable, got[0].Status)
	})
}

func TestResolveSlots_TrailingSlot(t *testing.T) {
	v := testVenue()
	v.CloseTime = MustParseClock("21:30")

	got, err := ResolveSlots(v, wednesday, 60, nil, nil, dayBefore(wednesday))
	require.NoError(t, err)
	require.Len(t, got, 15)
	assert.Equal(t, "20:00", got[14].Start.String())

	v.PartialLastSlot = true
	got, err = ResolveSlots(v, wednesday, 60, nil, nil, dayBefore(wednesday))
	require.NoError(t, err)
	require.Len(t, got, 16)
	assert.Equal(t, "21:00", got[15].Start.String())
	assert.Equal(t, "21:30", got[15].End.String())
	assert.Equal(t, 30, got[15].Minutes())
}

func TestResolveSlots_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name        string
		venue       func() Venue
		granularity int
		field       string
	}{
		{"zero granularity", testVenue, 0, "granularity"},
		{"negative granularity", testVenue, -15, "granularity"},
		{"open equals close", func() Venue {
			v := testVenue()
			v.CloseTime = v.OpenTime
			return v
		}, 60, "hours"},
		{"open after close", func() Venue {
			v := testVenue()
			v.OpenTime, v.CloseTime = v.CloseTime, v.OpenTime
			return v
		}, 60, "hours"},
		{"close past midnight", func() Venue {
			v := testVenue()
			v.CloseTime = Midnight + 30
			return v
		}, 60, "hours"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveSlots(tt.venue(), wednesday, tt.granularity, nil, nil, dayBefore(wednesday))
			require.Error(t, err)
			assert.Nil(t, got)
			assert.True(t, errors.Is(err, ErrConfiguration))

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
			assert.Equal(t, int64(1), cfgErr.VenueID)
		})
	}
}

func TestCandidates_Restartable(t *testing.T) {
	seq, err := Candidates(testVenue(), 45)
	require.NoError(t, err)

	var first, second []Slot
	for s := range seq {
		first = append(first, s)
	}
	for s := range seq {
		second = append(second, s)
	}
	assert.Equal(t, first, second)
	// 06:00..21:00 in 45 minute steps, last one 21:00-21:45.
	require.Len(t, first, 21)
	assert.Equal(t, "21:45", first[len(first)-1].End.String())

	var taken int
	for range seq {
		taken++
		if taken == 3 {
			break
		}
	}
	assert.Equal(t, 3, taken)
}

func TestVenueGranularity(t *testing.T) {
	v := testVenue()
	assert.Equal(t, 15, v.Granularity(15))
	assert.Equal(t, 60, v.Granularity(0))
	v.SlotMinutes = 0
	assert.Equal(t, DefaultGranularity, v.Granularity(0))
}
