package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"turfbook/internal/domain"
	"turfbook/internal/models"
	"turfbook/internal/slots"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type VenueService struct {
	repo         domain.VenueRepository
	availability *AvailabilityService
	logger       *zerolog.Logger
}

func NewVenueService(repo domain.VenueRepository, availability *AvailabilityService, logger *zerolog.Logger) *VenueService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &VenueService{repo: repo, availability: availability, logger: logger}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// ValidateVenue checks what the slot engine relies on: hours, granularity and prices.
func ValidateVenue(v *models.Venue) error {
	v.Name = strings.TrimSpace(v.Name)
	if v.Name == "" {
		return invalid("name is required")
	}
	if !v.OpenTime.Valid() || !v.CloseTime.Valid() {
		return invalid("open_time and close_time must be within 00:00-24:00")
	}
	if err := v.Engine().ValidateHours(); err != nil {
		return invalid("%v", err)
	}
	if v.SlotMinutes < 0 || (v.SlotMinutes > 0 && slots.MinutesPerDay%v.SlotMinutes != 0) {
		return invalid("slot_minutes must divide %d, got %d", slots.MinutesPerDay, v.SlotMinutes)
	}
	if err := nonNegative("price_per_hour", v.PricePerHour); err != nil {
		return err
	}
	if err := validateDayPart("weekday_pricing", v.WeekdayPricing); err != nil {
		return err
	}
	return validateDayPart("weekend_pricing", v.WeekendPricing)
}

func nonNegative(field string, p *decimal.Decimal) error {
	if p != nil && p.IsNegative() {
		return invalid("%s must not be negative", field)
	}
	return nil
}

func validateDayPart(field string, p models.DayPartPricing) error {
	if !p.Enabled {
		return nil
	}
	morning, evening := slots.DefaultMorningStart, slots.DefaultEveningStart
	if p.MorningStart != nil {
		morning = *p.MorningStart
	}
	if p.EveningStart != nil {
		evening = *p.EveningStart
	}
	if !morning.Valid() || !evening.Valid() || morning >= evening {
		return invalid("%s: morning_start must be before evening_start", field)
	}
	if err := nonNegative(field+".morning_price", p.MorningPrice); err != nil {
		return err
	}
	return nonNegative(field+".evening_price", p.EveningPrice)
}

func (s *VenueService) CreateVenue(ctx context.Context, v *models.Venue) error {
	if err := ValidateVenue(v); err != nil {
		return err
	}
	if err := s.repo.CreateVenue(ctx, v); err != nil {
		return err
	}
	s.logger.Info().Int64("venue_id", v.ID).Str("name", v.Name).Msg("venue created")
	return nil
}

func (s *VenueService) UpdateVenue(ctx context.Context, v *models.Venue) error {
	if err := ValidateVenue(v); err != nil {
		return err
	}
	if err := s.repo.UpdateVenue(ctx, v); err != nil {
		return err
	}
	s.availability.InvalidateVenue(ctx, v.ID)
	s.logger.Info().Int64("venue_id", v.ID).Msg("venue updated")
	return nil
}

func (s *VenueService) GetVenue(ctx context.Context, id int64) (*models.Venue, error) {
	return s.repo.GetVenue(ctx, id)
}

func (s *VenueService) ListVenues(ctx context.Context, activeOnly bool) ([]*models.Venue, error) {
	return s.repo.ListVenues(ctx, activeOnly)
}

func validateRanges(ranges []slots.TimeRange) error {
	for i, r := range ranges {
		if !r.Start.Valid() || !r.End.Valid() || r.End <= r.Start {
			return invalid("ranges[%d]: end must be after start", i)
		}
	}
	return nil
}

func (s *VenueService) CreateBlock(ctx context.Context, b *models.Block) error {
	if _, err := s.repo.GetVenue(ctx, b.VenueID); err != nil {
		return err
	}
	if b.StartDate.IsZero() {
		return invalid("start_date is required")
	}
	if b.EndDate != nil && b.EndDate.Before(b.StartDate) {
		return invalid("end_date is before start_date")
	}
	if err := validateRanges(b.Ranges); err != nil {
		return err
	}
	if err := s.repo.CreateBlock(ctx, b); err != nil {
		return err
	}
	s.availability.InvalidateVenue(ctx, b.VenueID)
	s.logger.Info().Int64("venue_id", b.VenueID).Int64("block_id", b.ID).Str("reason", b.Reason).Msg("block created")
	return nil
}

func (s *VenueService) DeleteBlock(ctx context.Context, venueID, id int64) error {
	if err := s.repo.DeleteBlock(ctx, venueID, id); err != nil {
		return err
	}
	s.availability.InvalidateVenue(ctx, venueID)
	return nil
}

func (s *VenueService) ListBlocks(ctx context.Context, venueID int64, from, to time.Time) ([]*models.Block, error) {
	if to.Before(from) {
		return nil, invalid("to is before from")
	}
	return s.repo.ListBlocks(ctx, venueID, from, to)
}

func (s *VenueService) CreatePeakRule(ctx context.Context, r *models.PeakHourRule) error {
	if _, err := s.repo.GetVenue(ctx, r.VenueID); err != nil {
		return err
	}
	switch r.Kind {
	case models.RuleKindDayOfWeek:
		if len(r.Weekdays) == 0 {
			return invalid("weekdays are required for %s rules", r.Kind)
		}
		for _, d := range r.Weekdays {
			if d < int(time.Sunday) || d > int(time.Saturday) {
				return invalid("weekday %d out of range 0-6", d)
			}
		}
		r.Date = nil
	case models.RuleKindSpecificDate:
		if r.Date == nil || r.Date.IsZero() {
			return invalid("date is required for %s rules", r.Kind)
		}
		r.Weekdays = nil
	default:
		return invalid("unknown rule kind %q", r.Kind)
	}
	if !r.StartTime.Valid() || !r.EndTime.Valid() || r.EndTime <= r.StartTime {
		return invalid("end_time must be after start_time")
	}
	if r.Price.IsNegative() {
		return invalid("price must not be negative")
	}
	if err := s.repo.CreatePeakRule(ctx, r); err != nil {
		return err
	}
	s.logger.Info().Int64("venue_id", r.VenueID).Int64("rule_id", r.ID).Str("kind", r.Kind).Msg("peak rule created")
	return nil
}

func (s *VenueService) DeletePeakRule(ctx context.Context, venueID, id int64) error {
	return s.repo.DeletePeakRule(ctx, venueID, id)
}

func (s *VenueService) ListPeakRules(ctx context.Context, venueID int64) ([]*models.PeakHourRule, error) {
	return s.repo.PeakRulesForVenue(ctx, venueID)
}
