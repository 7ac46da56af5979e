package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"turfbook/internal/domain"
	"turfbook/internal/metrics"
	"turfbook/internal/models"
	"turfbook/internal/slots"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// PricedSlot is a resolved slot with its hourly rate and the price of the whole slot.
type PricedSlot struct {
	slots.Slot
	HourlyRate decimal.Decimal `json:"hourly_rate"`
	Price      decimal.Decimal `json:"price"`
}

type DayAvailability struct {
	VenueID     int64        `json:"venue_id"`
	Date        string       `json:"date"`
	Granularity int          `json:"granularity_minutes"`
	Currency    string       `json:"currency"`
	Slots       []PricedSlot `json:"slots"`
}

type AvailabilityService struct {
	venues      domain.VenueRepository
	bookings    domain.BookingRepository
	cache       domain.AvailabilityCache
	calc        *slots.Calculator
	defaultSlot int
	currency    string
	logger      *zerolog.Logger
}

func NewAvailabilityService(
	venues domain.VenueRepository,
	bookings domain.BookingRepository,
	cache domain.AvailabilityCache,
	defaultSlotMinutes int,
	currency string,
	logger *zerolog.Logger,
) *AvailabilityService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if defaultSlotMinutes <= 0 {
		defaultSlotMinutes = models.DefaultSlotMinutes
	}
	if currency == "" {
		currency = models.DefaultCurrency
	}
	return &AvailabilityService{
		venues:      venues,
		bookings:    bookings,
		cache:       cache,
		calc:        slots.NewCalculator(logger),
		defaultSlot: defaultSlotMinutes,
		currency:    currency,
		logger:      logger,
	}
}

// Granularity resolves the slot size: requested, then the venue's own, then the configured default.
func (s *AvailabilityService) Granularity(v *models.Venue, requested int) int {
	if requested > 0 {
		return requested
	}
	if v.SlotMinutes > 0 {
		return v.SlotMinutes
	}
	return s.defaultSlot
}

func (s *AvailabilityService) Currency() string {
	return s.currency
}

// DaySlots resolves and prices every candidate slot of a venue on date.
func (s *AvailabilityService) DaySlots(ctx context.Context, venueID int64, date time.Time, granularity int, now time.Time) (*DayAvailability, error) {
	if granularity < 0 {
		return nil, fmt.Errorf("%w: granularity must be positive", ErrInvalidRequest)
	}
	venue, err := s.activeVenue(ctx, venueID)
	if err != nil {
		return nil, err
	}
	g := s.Granularity(venue, granularity)

	started := time.Now()
	resolved, err := s.resolve(ctx, venue, date, g, now)
	if err != nil {
		return nil, err
	}

	rules, err := s.venues.PeakRulesForVenue(ctx, venueID)
	if err != nil {
		return nil, fmt.Errorf("load peak rules: %w", err)
	}
	engine := venue.Engine()
	engineRules := models.EngineRules(rules)

	out := &DayAvailability{
		VenueID:     venueID,
		Date:        date.Format(time.DateOnly),
		Granularity: g,
		Currency:    s.currency,
		Slots:       make([]PricedSlot, 0, len(resolved)),
	}
	for _, slot := range resolved {
		hourly, err := s.calc.PriceForSlot(engine, date, slot.Start, engineRules)
		if err != nil {
			return nil, err
		}
		out.Slots = append(out.Slots, PricedSlot{
			Slot:       slot,
			HourlyRate: hourly,
			Price:      slots.ScaleToDuration(hourly, slot.Minutes()),
		})
	}
	metrics.ObserveSlotResolution(time.Since(started))
	return out, nil
}

// QuotePrice returns the hourly rate applying to a slot starting at start.
func (s *AvailabilityService) QuotePrice(ctx context.Context, venueID int64, date time.Time, start slots.Clock) (decimal.Decimal, error) {
	venue, err := s.activeVenue(ctx, venueID)
	if err != nil {
		return decimal.Zero, err
	}
	if !start.Valid() || start < venue.OpenTime || start >= venue.CloseTime {
		return decimal.Zero, fmt.Errorf("%w: %s is outside opening hours", ErrInvalidRequest, start)
	}
	rules, err := s.venues.PeakRulesForVenue(ctx, venueID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load peak rules: %w", err)
	}
	return s.calc.PriceForSlot(venue.Engine(), date, start, models.EngineRules(rules))
}

func (s *AvailabilityService) activeVenue(ctx context.Context, venueID int64) (*models.Venue, error) {
	venue, err := s.venues.GetVenue(ctx, venueID)
	if err != nil {
		return nil, err
	}
	if !venue.IsActive {
		return nil, fmt.Errorf("venue %d: %w", venueID, ErrVenueInactive)
	}
	return venue, nil
}

func (s *AvailabilityService) resolve(ctx context.Context, venue *models.Venue, date time.Time, granularity int, now time.Time) ([]slots.Slot, error) {
	snap, err := s.snapshot(ctx, venue.ID, date)
	if err != nil {
		return nil, err
	}
	return slots.ResolveSlots(venue.Engine(), date, granularity, snap.Reservations(), snap.EngineBlocks(), now)
}

// snapshot reads the day's bookings and blocks through the cache. Cache failures only cost a DB read.
func (s *AvailabilityService) snapshot(ctx context.Context, venueID int64, date time.Time) (*models.DaySnapshot, error) {
	if s.cache != nil {
		snap, err := s.cache.GetDay(ctx, venueID, date)
		if err != nil {
			s.logger.Warn().Err(err).Int64("venue_id", venueID).Msg("availability cache read failed")
		}
		if snap != nil {
			metrics.IncCacheHit()
			return snap, nil
		}
		metrics.IncCacheMiss()
	}
	return s.freshSnapshot(ctx, venueID, date, true)
}

func (s *AvailabilityService) freshSnapshot(ctx context.Context, venueID int64, date time.Time, store bool) (*models.DaySnapshot, error) {
	bookings, err := s.bookings.ActiveBookings(ctx, venueID, date)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	blocks, err := s.venues.BlocksForDate(ctx, venueID, date)
	if err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}
	s.warnMalformed(venueID, date, bookings, blocks)

	snap := &models.DaySnapshot{
		VenueID:  venueID,
		Date:     date,
		Bookings: bookings,
		Blocks:   blocks,
		TakenAt:  time.Now().UTC(),
	}
	if store && s.cache != nil {
		if err := s.cache.SetDay(ctx, snap); err != nil {
			s.logger.Warn().Err(err).Int64("venue_id", venueID).Msg("availability cache write failed")
		}
	}
	return snap, nil
}

// warnMalformed logs records the slot engine will normalise or skip.
func (s *AvailabilityService) warnMalformed(venueID int64, date time.Time, bookings []*models.Booking, blocks []*models.Block) {
	day := date.Format(time.DateOnly)
	for _, b := range bookings {
		if b.DurationMinutes <= 0 {
			s.logger.Warn().
				Int64("venue_id", venueID).
				Int64("booking_id", b.ID).
				Str("date", day).
				Int("duration_minutes", b.DurationMinutes).
				Msg("booking without positive duration counted as one slot")
		}
	}
	for _, bl := range blocks {
		for _, r := range bl.Ranges {
			if r.End <= r.Start {
				s.logger.Warn().
					Int64("venue_id", venueID).
					Int64("block_id", bl.ID).
					Str("date", day).
					Str("range", r.Start.String()+"-"+r.End.String()).
					Msg("empty block range skipped")
			}
		}
	}
}

// Invalidate drops the cached snapshot of a venue day.
func (s *AvailabilityService) Invalidate(ctx context.Context, venueID int64, date time.Time) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateDay(ctx, venueID, date); err != nil {
		s.logger.Warn().Err(err).Int64("venue_id", venueID).Msg("availability cache invalidation failed")
	}
}

// InvalidateVenue drops every cached day of a venue.
func (s *AvailabilityService) InvalidateVenue(ctx context.Context, venueID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateVenue(ctx, venueID); err != nil {
		s.logger.Warn().Err(err).Int64("venue_id", venueID).Msg("availability cache invalidation failed")
	}
}

// IsConfigurationError reports whether err comes from a misconfigured venue.
func IsConfigurationError(err error) bool {
	return errors.Is(err, slots.ErrConfiguration)
}

// quote is the priced run of slots a booking would occupy.
type quote struct {
	venue  *models.Venue
	slots  []slots.Slot
	amount decimal.Decimal
}

// quoteRun checks that [start, start+duration) is covered exactly by consecutive bookable
// slots and prices it. The snapshot is read from the database, not the cache.
func (s *AvailabilityService) quoteRun(ctx context.Context, venueID int64, date time.Time, start slots.Clock, duration int, now time.Time) (*quote, error) {
	venue, err := s.activeVenue(ctx, venueID)
	if err != nil {
		return nil, err
	}
	g := s.Granularity(venue, 0)

	snap, err := s.freshSnapshot(ctx, venueID, date, false)
	if err != nil {
		return nil, err
	}
	resolved, err := slots.ResolveSlots(venue.Engine(), date, g, snap.Reservations(), snap.EngineBlocks(), now)
	if err != nil {
		return nil, err
	}

	end := start.Add(duration)
	var run []slots.Slot
	cursor := start
	for _, slot := range resolved {
		if cursor >= end {
			break
		}
		if slot.Start < cursor {
			continue
		}
		if slot.Start != cursor {
			break
		}
		if !slot.Bookable() {
			return nil, fmt.Errorf("%w: %s is %s", ErrSlotUnavailable, slot.Start, slot.Status)
		}
		run = append(run, slot)
		cursor = slot.End
	}
	if len(run) == 0 || cursor != end {
		return nil, fmt.Errorf("%w: %s+%dm does not match %d-minute slots", ErrInvalidRequest, start, duration, g)
	}

	rules, err := s.venues.PeakRulesForVenue(ctx, venueID)
	if err != nil {
		return nil, fmt.Errorf("load peak rules: %w", err)
	}
	engine := venue.Engine()
	engineRules := models.EngineRules(rules)

	amount := decimal.Zero
	for _, slot := range run {
		hourly, err := s.calc.PriceForSlot(engine, date, slot.Start, engineRules)
		if err != nil {
			return nil, err
		}
		amount = amount.Add(slots.ScaleToDuration(hourly, slot.Minutes()))
	}
	return &quote{venue: venue, slots: run, amount: amount.Round(2)}, nil
}
