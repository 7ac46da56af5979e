package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"turfbook/internal/database"
	"turfbook/internal/domain"
	"turfbook/internal/events"
	"turfbook/internal/metrics"
	"turfbook/internal/models"
	"turfbook/internal/payment"
	"turfbook/internal/slots"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// freePaymentID marks bookings confirmed without a gateway order.
const freePaymentID = "free"

type BookingOptions struct {
	PendingTTL     time.Duration
	HoldTTL        time.Duration
	MaxBookingDays int
	Currency       string
	Location       *time.Location
}

type CreateBookingRequest struct {
	VenueID         int64       `json:"venue_id"`
	Date            time.Time   `json:"date"`
	StartTime       slots.Clock `json:"start_time"`
	DurationMinutes int         `json:"duration_minutes"`
	CustomerName    string      `json:"customer_name"`
	CustomerEmail   string      `json:"customer_email"`
	CustomerPhone   string      `json:"customer_phone"`
	Comment         string      `json:"comment"`
}

type BookingResult struct {
	Booking *models.Booking `json:"booking"`
	Order   *payment.Order  `json:"payment_order,omitempty"`
}

type BookingService struct {
	repo         domain.BookingRepository
	availability *AvailabilityService
	locker       domain.SlotLocker
	gateway      payment.Gateway
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	opts         BookingOptions
	now          func() time.Time
	logger       *zerolog.Logger
}

func NewBookingService(
	repo domain.BookingRepository,
	availability *AvailabilityService,
	locker domain.SlotLocker,
	gateway payment.Gateway,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	opts BookingOptions,
	logger *zerolog.Logger,
) *BookingService {
	if opts.MaxBookingDays <= 0 {
		opts.MaxBookingDays = 60
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = 15 * time.Minute
	}
	if opts.HoldTTL <= 0 {
		opts.HoldTTL = 30 * time.Second
	}
	if opts.Currency == "" {
		opts.Currency = models.DefaultCurrency
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BookingService{
		repo:         repo,
		availability: availability,
		locker:       locker,
		gateway:      gateway,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		opts:         opts,
		now:          time.Now,
		logger:       logger,
	}
}

// Now returns the current time in the venue time zone.
func (s *BookingService) Now() time.Time {
	return s.now().In(s.opts.Location)
}

// ValidateBookingDate accepts dates from today up to MaxBookingDays ahead.
func (s *BookingService) ValidateBookingDate(date time.Time) error {
	now := s.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)

	// date must not be in the past
	if day.Before(today) {
		return ErrPastDate
	}

	// not beyond the booking horizon
	if day.After(today.AddDate(0, 0, s.opts.MaxBookingDays)) {
		return ErrDateTooFar
	}
	return nil
}

func validateCustomer(req *CreateBookingRequest) error {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.TrimSpace(strings.ToLower(req.CustomerEmail))
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)

	switch {
	case req.CustomerName == "":
		return fmt.Errorf("%w: customer_name is required", ErrInvalidRequest)
	case req.CustomerEmail == "" && req.CustomerPhone == "":
		return fmt.Errorf("%w: customer_email or customer_phone is required", ErrInvalidRequest)
	case req.CustomerEmail != "" && !strings.Contains(req.CustomerEmail, "@"):
		return fmt.Errorf("%w: customer_email is malformed", ErrInvalidRequest)
	case req.DurationMinutes <= 0:
		return fmt.Errorf("%w: duration_minutes must be positive", ErrInvalidRequest)
	case !req.StartTime.Valid() || req.StartTime == slots.Midnight:
		return fmt.Errorf("%w: start_time is invalid", ErrInvalidRequest)
	}
	return nil
}

// CreateBooking reserves a run of consecutive slots and opens a payment order for it.
func (s *BookingService) CreateBooking(ctx context.Context, req CreateBookingRequest) (*BookingResult, error) {
	if err := validateCustomer(&req); err != nil {
		return nil, err
	}
	if err := s.ValidateBookingDate(req.Date); err != nil {
		return nil, err
	}

	q, err := s.availability.quoteRun(ctx, req.VenueID, req.Date, req.StartTime, req.DurationMinutes, s.Now())
	if err != nil {
		return nil, err
	}

	release, err := s.hold(ctx, req.VenueID, req.Date, q.slots)
	if err != nil {
		return nil, err
	}
	defer release()

	booking := &models.Booking{
		Reference:       uuid.NewString(),
		VenueID:         req.VenueID,
		VenueName:       q.venue.Name,
		Date:            req.Date,
		StartTime:       req.StartTime,
		DurationMinutes: req.DurationMinutes,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		Amount:          q.amount,
		Currency:        s.opts.Currency,
		Status:          models.StatusPending,
		Comment:         req.Comment,
	}

	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		if errors.Is(err, database.ErrSlotTaken) {
			return nil, ErrSlotUnavailable
		}
		return nil, err
	}
	s.availability.Invalidate(ctx, booking.VenueID, booking.Date)
	metrics.IncBookingTransition(models.StatusPending)

	s.logger.Info().
		Int64("booking_id", booking.ID).
		Str("reference", booking.Reference).
		Int64("venue_id", booking.VenueID).
		Str("date", booking.Date.Format(time.DateOnly)).
		Str("start", booking.StartTime.String()).
		Str("amount", booking.Amount.String()).
		Msg("booking created")

	result := &BookingResult{Booking: booking}
	if booking.Amount.IsZero() {
		if _, err := s.confirm(ctx, booking, freePaymentID); err != nil {
			return nil, err
		}
		s.enqueueSync(ctx, booking, models.SyncTaskUpsert)
		return result, nil
	}

	order, err := s.openOrder(ctx, booking)
	if err != nil {
		return nil, err
	}
	result.Order = order

	s.publishEvent(events.EventBookingCreated, booking, "")
	s.enqueueSync(ctx, booking, models.SyncTaskUpsert)
	return result, nil
}

// openOrder creates the gateway order; on failure the booking is cancelled so the slots free up at once.
func (s *BookingService) openOrder(ctx context.Context, booking *models.Booking) (*payment.Order, error) {
	order, err := s.gateway.CreateOrder(ctx, booking.Reference, booking.Amount, booking.Currency)
	if err == nil {
		err = s.repo.SetPaymentOrder(ctx, booking.ID, order.ID)
	}
	if err != nil {
		if cerr := s.repo.UpdateBookingStatusWithVersion(ctx, booking.ID, booking.Version, models.StatusCancelled); cerr != nil {
			s.logger.Error().Err(cerr).Int64("booking_id", booking.ID).Msg("failed to release booking after payment error")
		}
		s.availability.Invalidate(ctx, booking.VenueID, booking.Date)
		return nil, fmt.Errorf("%w: create order: %w", ErrPaymentGateway, err)
	}
	booking.PaymentOrderID = order.ID
	booking.Version++
	return order, nil
}

func holdKey(venueID int64, date time.Time, start slots.Clock) string {
	return fmt.Sprintf("%d:%s:%d", venueID, date.Format(time.DateOnly), start.Minutes())
}

// hold takes the per-slot locks for the run. The returned func releases them.
func (s *BookingService) hold(ctx context.Context, venueID int64, date time.Time, run []slots.Slot) (func(), error) {
	type held struct{ key, token string }
	var taken []held

	release := func() {
		// release even if the request context is cancelled
		rctx := context.WithoutCancel(ctx)
		for _, h := range taken {
			if err := s.locker.Release(rctx, h.key, h.token); err != nil {
				s.logger.Warn().Err(err).Str("key", h.key).Msg("failed to release slot hold")
			}
		}
	}
	if s.locker == nil {
		return release, nil
	}

	for _, slot := range run {
		key := holdKey(venueID, date, slot.Start)
		token, ok, err := s.locker.Acquire(ctx, key, s.opts.HoldTTL)
		if err != nil {
			release()
			return nil, fmt.Errorf("acquire slot hold: %w", err)
		}
		if !ok {
			release()
			return nil, fmt.Errorf("%w: %s is being booked", ErrSlotUnavailable, slot.Start)
		}
		taken = append(taken, held{key: key, token: token})
	}
	return release, nil
}

// VerifyPayment asks the gateway about the booking's order and confirms it when paid.
func (s *BookingService) VerifyPayment(ctx context.Context, reference string) (*models.Booking, error) {
	booking, err := s.repo.GetBookingByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	switch booking.Status {
	case models.StatusConfirmed, models.StatusCompleted:
		return booking, nil
	case models.StatusPending:
	default:
		return nil, fmt.Errorf("booking is %s: %w", booking.Status, ErrInvalidTransition)
	}
	if booking.PaymentOrderID == "" {
		return nil, fmt.Errorf("booking %s has no payment order: %w", reference, ErrPaymentIncomplete)
	}

	v, err := s.gateway.VerifyPayment(ctx, booking.PaymentOrderID)
	if err != nil {
		return nil, fmt.Errorf("%w: verify payment: %w", ErrPaymentGateway, err)
	}
	if !v.Paid {
		return nil, fmt.Errorf("payment status %s: %w", v.Status, ErrPaymentIncomplete)
	}
	return s.confirm(ctx, booking, v.PaymentID)
}

// HandlePaymentWebhook verifies and applies a gateway callback.
func (s *BookingService) HandlePaymentWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}
	switch ev.Kind {
	case payment.WebhookPaymentSucceeded:
		_, err := s.HandlePaymentSucceeded(ctx, ev.OrderID, ev.PaymentID)
		return err
	case payment.WebhookPaymentFailed:
		s.logger.Warn().Str("order_id", ev.OrderID).Msg("payment failed, booking stays pending until expiry")
	}
	return nil
}

// HandlePaymentSucceeded confirms the booking owning orderID. Repeated calls are no-ops.
func (s *BookingService) HandlePaymentSucceeded(ctx context.Context, orderID, paymentID string) (*models.Booking, error) {
	booking, err := s.repo.GetBookingByPaymentOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return s.confirm(ctx, booking, paymentID)
}

func (s *BookingService) confirm(ctx context.Context, booking *models.Booking, paymentID string) (*models.Booking, error) {
	changed, err := s.repo.ConfirmBooking(ctx, booking.ID, paymentID)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			s.logger.Error().
				Int64("booking_id", booking.ID).
				Str("status", booking.Status).
				Str("payment_id", paymentID).
				Msg("payment received for a booking that can no longer be confirmed")
		}
		return nil, err
	}

	updated, err := s.repo.GetBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	*booking = *updated
	if !changed {
		return updated, nil
	}

	metrics.IncBookingTransition(models.StatusConfirmed)
	s.logger.Info().Int64("booking_id", updated.ID).Str("payment_id", paymentID).Msg("booking confirmed")
	s.publishEvent(events.EventBookingConfirmed, updated, "")
	s.enqueueSync(ctx, updated, models.SyncTaskStatus)
	return updated, nil
}

// CancelBooking is the customer cancellation. Paid bookings are refunded right away.
func (s *BookingService) CancelBooking(ctx context.Context, reference, reason string) (*models.Booking, error) {
	booking, err := s.repo.GetBookingByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	cancelled, err := s.transition(ctx, booking, booking.Version, models.StatusCancelled, events.EventBookingCancelled, reason)
	if err != nil {
		return nil, err
	}
	if cancelled.PaymentID == "" || cancelled.PaymentID == freePaymentID {
		return cancelled, nil
	}
	refunded, err := s.refund(ctx, cancelled, cancelled.Version)
	if err != nil {
		// booking is cancelled, the refund can be retried by hand
		s.logger.Error().Err(err).Int64("booking_id", cancelled.ID).Msg("automatic refund failed")
		return cancelled, nil
	}
	return refunded, nil
}

// RejectBooking is the admin rejection of a pending or confirmed booking.
func (s *BookingService) RejectBooking(ctx context.Context, id, version int64, reason string) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, booking, version, models.StatusRejected, events.EventBookingRejected, reason)
}

func (s *BookingService) CompleteBooking(ctx context.Context, id, version int64) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, booking, version, models.StatusCompleted, events.EventBookingCompleted, "")
}

// RefundBooking returns the payment of a booking through the gateway.
func (s *BookingService) RefundBooking(ctx context.Context, id, version int64) (*models.Booking, error) {
	booking, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.refund(ctx, booking, version)
}

func (s *BookingService) refund(ctx context.Context, booking *models.Booking, version int64) (*models.Booking, error) {
	if version != 0 && version != booking.Version {
		return nil, ErrVersionConflict
	}
	if !models.CanTransition(booking.Status, models.StatusRefunded) {
		return nil, fmt.Errorf("refund booking in status %s: %w", booking.Status, ErrInvalidTransition)
	}
	if booking.PaymentOrderID == "" || booking.PaymentID == "" {
		return nil, fmt.Errorf("booking %d was never paid: %w", booking.ID, ErrInvalidTransition)
	}

	refundID, err := s.gateway.Refund(ctx, booking.PaymentOrderID, booking.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: refund: %w", ErrPaymentGateway, err)
	}
	if err := s.repo.MarkRefunded(ctx, booking.ID, booking.Version, refundID); err != nil {
		return nil, err
	}
	return s.afterTransition(ctx, booking, models.StatusRefunded, events.EventBookingRefunded, "")
}

// transition moves booking to status if the state machine allows it and version still matches.
// version 0 means the caller did not read the booking first.
func (s *BookingService) transition(ctx context.Context, booking *models.Booking, version int64, status, eventType, reason string) (*models.Booking, error) {
	if version == 0 {
		version = booking.Version
	}
	if version != booking.Version {
		return nil, ErrVersionConflict
	}
	if !models.CanTransition(booking.Status, status) {
		return nil, fmt.Errorf("%s -> %s: %w", booking.Status, status, ErrInvalidTransition)
	}
	if err := s.repo.UpdateBookingStatusWithVersion(ctx, booking.ID, version, status); err != nil {
		return nil, err
	}
	return s.afterTransition(ctx, booking, status, eventType, reason)
}

func (s *BookingService) afterTransition(ctx context.Context, booking *models.Booking, status, eventType, reason string) (*models.Booking, error) {
	metrics.IncBookingTransition(status)
	if !models.IsActiveStatus(status) {
		s.availability.Invalidate(ctx, booking.VenueID, booking.Date)
	}

	updated, err := s.repo.GetBooking(ctx, booking.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("booking_id", updated.ID).Str("status", status).Str("reason", reason).Msg("booking status changed")
	s.publishEvent(eventType, updated, reason)
	s.enqueueSync(ctx, updated, models.SyncTaskStatus)
	return updated, nil
}

// ExpirePending releases pending bookings older than the pending TTL.
func (s *BookingService) ExpirePending(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.opts.PendingTTL)
	expired, err := s.repo.ExpireStalePending(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, b := range expired {
		metrics.IncBookingTransition(models.StatusExpired)
		s.availability.Invalidate(ctx, b.VenueID, b.Date)
		s.publishEvent(events.EventBookingExpired, b, "payment not completed in time")
		s.enqueueSync(ctx, b, models.SyncTaskStatus)
	}
	if len(expired) > 0 {
		s.logger.Info().Int("count", len(expired)).Msg("expired stale pending bookings")
	}
	return len(expired), nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *BookingService) GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	return s.repo.GetBookingByReference(ctx, reference)
}

func (s *BookingService) ListBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error) {
	for _, st := range f.Statuses {
		if !models.IsValidStatus(st) {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, st)
		}
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, fmt.Errorf("%w: to is before from", ErrInvalidRequest)
	}
	return s.repo.ListBookings(ctx, f)
}

// Revenue sums the amounts of confirmed and completed bookings.
func Revenue(bookings []*models.Booking) decimal.Decimal {
	total := decimal.Zero
	for _, b := range bookings {
		if b.Status == models.StatusConfirmed || b.Status == models.StatusCompleted {
			total = total.Add(b.Amount)
		}
	}
	return total
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, reason string) {
	if s.eventBus == nil {
		return
	}
	if err := s.eventBus.PublishJSON(eventType, events.PayloadFromBooking(booking, reason)); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, booking *models.Booking, taskType string) {
	if s.sheetsWorker == nil {
		return
	}

	var status string
	if taskType == models.SyncTaskStatus {
		status = booking.Status
	}

	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, booking.ID, booking, status); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", booking.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}
