package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"turfbook/internal/database"
	"turfbook/internal/models"
	"turfbook/internal/payment"
	"turfbook/internal/slots"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaySlots(t *testing.T) {
	env := newTestEnv(t, payment.NewOfflineGateway(""))
	ctx := context.Background()

	_, err := env.bookings.CreateBooking(ctx, env.request("18:00", 60))
	require.NoError(t, err)
	require.NoError(t, env.venues.CreateBlock(ctx, &models.Block{
		VenueID:   env.venue.ID,
		StartDate: wednesday,
		Ranges:    []slots.TimeRange{{Start: slots.MustParseClock("06:00"), End: slots.MustParseClock("08:00")}},
		Reason:    "Maintenance",
	}))

	day, err := env.availability.DaySlots(ctx, env.venue.ID, wednesday, 0, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, 60, day.Granularity)
	assert.Equal(t, "2026-10-21", day.Date)
	require.Len(t, day.Slots, 16)

	assert.Equal(t, slots.StatusPast, statusAt(t, day, "06:00"), "past wins over blocked")
	assert.Equal(t, slots.StatusPast, statusAt(t, day, "10:00"))
	assert.Equal(t, slots.StatusBookable, statusAt(t, day, "11:00"))
	assert.Equal(t, slots.StatusBooked, statusAt(t, day, "18:00"))
	assert.Equal(t, slots.StatusBookable, statusAt(t, day, "21:00"))
	assert.True(t, decimal.NewFromInt(1000).Equal(day.Slots[0].HourlyRate))

	cached, err := env.cache.GetDay(ctx, env.venue.ID, wednesday)
	require.NoError(t, err)
	require.NotNil(t, cached, "snapshot should be cached after a read")
	assert.Len(t, cached.Bookings, 1)

	thursday := wednesday.AddDate(0, 0, 1)
	day, err = env.availability.DaySlots(ctx, env.venue.ID, thursday, 30, fixedNow)
	require.NoError(t, err)
	require.Len(t, day.Slots, 32)
	assert.Equal(t, slots.StatusBookable, statusAt(t, day, "06:00"), "block is for wednesday only")
	assert.True(t, decimal.NewFromInt(500).Equal(day.Slots[0].Price), "half hour at 1000/h")
}

func TestDaySlots_WeekendPricing(t *testing.T) {
	env := newTestEnv(t, payment.NewOfflineGateway(""))
	ctx := context.Background()

	day, err := env.availability.DaySlots(ctx, env.venue.ID, saturday, 0, fixedNow)
	require.NoError(t, err)

	for _, s := range day.Slots {
		want := decimal.NewFromInt(1000)
		if s.Start >= slots.MustParseClock("18:00") {
			want = decimal.NewFromInt(1300)
		}
		assert.True(t, want.Equal(s.HourlyRate), "slot %s: want %s got %s", s.Start, want, s.HourlyRate)
	}
}

func TestDaySlots_Errors(t *testing.T) {
	env := newTestEnv(t, payment.NewOfflineGateway(""))
	ctx := context.Background()

	_, err := env.availability.DaySlots(ctx, 999, wednesday, 0, fixedNow)
	assert.ErrorIs(t, err, database.ErrNotFound)

	_, err = env.availability.DaySlots(ctx, env.venue.ID, wednesday, -30, fixedNow)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	env.venue.IsActive = false
	require.NoError(t, env.venues.UpdateVenue(ctx, env.venue))
	_, err = env.availability.DaySlots(ctx, env.venue.ID, wednesday, 0, fixedNow)
	assert.ErrorIs(t, err, ErrVenueInactive)
}

func TestDaySlots_MissingBasePrice(t *testing.T) {
	env := newTestEnv(t, payment.NewOfflineGateway(""))
	ctx := context.Background()

	env.venue.PricePerHour = nil
	require.NoError(t, env.venues.UpdateVenue(ctx, env.venue))

	_, err := env.availability.DaySlots(ctx, env.venue.ID, wednesday, 0, fixedNow)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))

	var cfgErr *slots.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "price_per_hour", cfgErr.Field)
}

func TestQuotePrice(t *testing.T) {
	env := newTestEnv(t, payment.NewOfflineGateway(""))
	ctx := context.Background()

	date := wednesday
	require.NoError(t, env.venues.CreatePeakRule(ctx, &models.PeakHourRule{
		VenueID:   env.venue.ID,
		Kind:      models.RuleKindSpecificDate,
		Date:      &date,
		StartTime: slots.MustParseClock("19:00"),
		EndTime:   slots.MustParseClock("21:00"),
		Price:     decimal.NewFromInt(2500),
	}))

	price, err := env.availability.QuotePrice(ctx, env.venue.ID, wednesday, slots.MustParseClock("19:00"))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(2500).Equal(price))

	price, err = env.availability.QuotePrice(ctx, env.venue.ID, saturday, slots.MustParseClock("19:00"))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(1300).Equal(price))

	_, err = env.availability.QuotePrice(ctx, env.venue.ID, wednesday, slots.MustParseClock("22:00"))
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestGranularity(t *testing.T) {
	env := newTestEnv(t, payment.NewOfflineGateway(""))

	assert.Equal(t, 15, env.availability.Granularity(&models.Venue{SlotMinutes: 60}, 15))
	assert.Equal(t, 60, env.availability.Granularity(&models.Venue{SlotMinutes: 60}, 0))
	assert.Equal(t, 30, env.availability.Granularity(&models.Venue{}, 0))
}

func TestDaySlots_WarnsAboutMalformedRecords(t *testing.T) {
	env := newTestEnv(t, payment.NewOfflineGateway(""))
	ctx := context.Background()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	availability := NewAvailabilityService(env.db, env.db, nil, 30, "inr", &logger)

	require.NoError(t, env.db.CreateBlock(ctx, &models.Block{
		VenueID:   env.venue.ID,
		StartDate: wednesday,
		Ranges:    []slots.TimeRange{{Start: slots.MustParseClock("14:00"), End: slots.MustParseClock("12:00")}},
		Reason:    "typo",
	}))
	require.NoError(t, env.db.CreateBooking(ctx, &models.Booking{
		Reference:     "TB-ZERO01",
		VenueID:       env.venue.ID,
		Date:          wednesday,
		StartTime:     slots.MustParseClock("09:00"),
		CustomerName:  "Ravi",
		CustomerEmail: "ravi@example.com",
		Amount:        decimal.NewFromInt(1000),
		Currency:      "inr",
		Status:        models.StatusConfirmed,
	}))

	day, err := availability.DaySlots(ctx, env.venue.ID, wednesday, 60, wednesday.AddDate(0, 0, -1))
	require.NoError(t, err)

	assert.Equal(t, slots.StatusBooked, statusAt(t, day, "09:00"))
	assert.Equal(t, slots.StatusBookable, statusAt(t, day, "12:00"))
	assert.Equal(t, slots.StatusBookable, statusAt(t, day, "13:00"))
	assert.Contains(t, buf.String(), "booking without positive duration counted as one slot")
	assert.Contains(t, buf.String(), "empty block range skipped")
	assert.Contains(t, buf.String(), `"range":"14:00-12:00"`)
}
