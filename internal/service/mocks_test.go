package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"turfbook/internal/database"
	"turfbook/internal/events"
	"turfbook/internal/models"
	"turfbook/internal/payment"
	"turfbook/internal/repository"
	"turfbook/internal/slots"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Name() string { return "mock" }

func (m *mockGateway) CreateOrder(ctx context.Context, ref string, amount decimal.Decimal, currency string) (*payment.Order, error) {
	args := m.Called(ctx, ref, amount, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Order), args.Error(1)
}

func (m *mockGateway) VerifyPayment(ctx context.Context, orderID string) (*payment.Verification, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Verification), args.Error(1)
}

func (m *mockGateway) Refund(ctx context.Context, orderID string, amount decimal.Decimal) (string, error) {
	args := m.Called(ctx, orderID, amount)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) ParseWebhook(payload []byte, signature string) (*payment.WebhookEvent, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.WebhookEvent), args.Error(1)
}

type mockSyncWorker struct {
	mock.Mock
}

func (m *mockSyncWorker) EnqueueTask(ctx context.Context, taskType string, bookingID int64, booking *models.Booking, status string) error {
	return m.Called(ctx, taskType, bookingID, booking, status).Error(0)
}

// eventRecorder collects published event types.
type eventRecorder struct {
	mu    sync.Mutex
	types []string
}

func (r *eventRecorder) handle(e *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = append(r.types, e.Type)
	return nil
}

func (r *eventRecorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.types {
		if t == eventType {
			n++
		}
	}
	return n
}

var (
	wednesday = time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC)
	saturday  = time.Date(2026, 10, 24, 0, 0, 0, 0, time.UTC)
	// 10:00 on wednesday
	fixedNow = wednesday.Add(10 * time.Hour)
)

type testEnv struct {
	db           *database.DB
	cache        *repository.MemoryAvailabilityCache
	locker       *repository.MemorySlotLocker
	availability *AvailabilityService
	bookings     *BookingService
	venues       *VenueService
	worker       *mockSyncWorker
	recorder     *eventRecorder
	venue        *models.Venue
}

func newTestEnv(t *testing.T, gateway payment.Gateway) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)

	db, err := database.NewDB(t.TempDir()+"/test.db", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cache := repository.NewMemoryAvailabilityCache(time.Minute)
	locker := repository.NewMemorySlotLocker()
	bus := events.NewEventBus()
	rec := &eventRecorder{}
	bus.SubscribeAll(rec.handle)

	worker := new(mockSyncWorker)
	worker.On("EnqueueTask", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()

	availability := NewAvailabilityService(db, db, cache, 30, "inr", &logger)
	bookings := NewBookingService(db, availability, locker, gateway, bus, worker, BookingOptions{
		PendingTTL:     15 * time.Minute,
		HoldTTL:        30 * time.Second,
		MaxBookingDays: 30,
		Currency:       "inr",
	}, &logger)
	bookings.now = func() time.Time { return fixedNow }
	venues := NewVenueService(db, availability, &logger)

	base := decimal.NewFromInt(1000)
	evening := decimal.NewFromInt(1300)
	venue := &models.Venue{
		Name:         "Arena 5",
		Sport:        "football",
		OpenTime:     slots.MustParseClock("06:00"),
		CloseTime:    slots.MustParseClock("22:00"),
		SlotMinutes:  60,
		PricePerHour: &base,
		WeekendPricing: models.DayPartPricing{
			Enabled:      true,
			EveningPrice: &evening,
		},
		IsActive: true,
	}
	require.NoError(t, venues.CreateVenue(context.Background(), venue))

	return &testEnv{
		db:           db,
		cache:        cache,
		locker:       locker,
		availability: availability,
		bookings:     bookings,
		venues:       venues,
		worker:       worker,
		recorder:     rec,
		venue:        venue,
	}
}

func (e *testEnv) request(start string, minutes int) CreateBookingRequest {
	return CreateBookingRequest{
		VenueID:         e.venue.ID,
		Date:            wednesday,
		StartTime:       slots.MustParseClock(start),
		DurationMinutes: minutes,
		CustomerName:    "Ravi",
		CustomerEmail:   "Ravi@Example.com",
	}
}

func statusAt(t *testing.T, day *DayAvailability, start string) slots.Status {
	t.Helper()
	c := slots.MustParseClock(start)
	for _, s := range day.Slots {
		if s.Start == c {
			return s.Status
		}
	}
	t.Fatalf("no slot at %s", start)
	return ""
}
