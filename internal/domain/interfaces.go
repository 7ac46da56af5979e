package domain

import (
	"context"
	"time"

	"turfbook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type VenueRepository interface {
	CreateVenue(ctx context.Context, v *models.Venue) error
	UpdateVenue(ctx context.Context, v *models.Venue) error
	GetVenue(ctx context.Context, id int64) (*models.Venue, error)
	ListVenues(ctx context.Context, activeOnly bool) ([]*models.Venue, error)

	CreateBlock(ctx context.Context, b *models.Block) error
	DeleteBlock(ctx context.Context, venueID, id int64) error
	BlocksForDate(ctx context.Context, venueID int64, date time.Time) ([]*models.Block, error)
	ListBlocks(ctx context.Context, venueID int64, from, to time.Time) ([]*models.Block, error)

	CreatePeakRule(ctx context.Context, r *models.PeakHourRule) error
	DeletePeakRule(ctx context.Context, venueID, id int64) error
	PeakRulesForVenue(ctx context.Context, venueID int64) ([]*models.PeakHourRule, error)
}

type BookingRepository interface {
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error)
	GetBookingByPaymentOrder(ctx context.Context, orderID string) (*models.Booking, error)
	ActiveBookings(ctx context.Context, venueID int64, date time.Time) ([]*models.Booking, error)
	ListBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error)
	UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error
	SetPaymentOrder(ctx context.Context, id int64, orderID string) error
	ConfirmBooking(ctx context.Context, id int64, paymentID string) (bool, error)
	MarkRefunded(ctx context.Context, id, fromVersion int64, refundID string) error
	ExpireStalePending(ctx context.Context, cutoff time.Time) ([]*models.Booking, error)
}

type SyncQueueRepository interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
	RequeueFailedSyncTasks(ctx context.Context) (int64, error)
}

// AvailabilityCache keeps day snapshots between reads. GetDay returns nil, nil on a miss.
type AvailabilityCache interface {
	GetDay(ctx context.Context, venueID int64, date time.Time) (*models.DaySnapshot, error)
	SetDay(ctx context.Context, snap *models.DaySnapshot) error
	InvalidateDay(ctx context.Context, venueID int64, date time.Time) error
	InvalidateVenue(ctx context.Context, venueID int64) error
}

// SlotLocker hands out short-lived exclusive holds. Only the returned token releases a hold.
type SlotLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	DeleteBookingRow(ctx context.Context, bookingID int64) error
	UpdateBookingStatus(ctx context.Context, bookingID int64, status string) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, bookingID int64, booking *models.Booking, status string) error
}
