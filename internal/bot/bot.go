package bot

import (
	"context"
	"io"
	"time"

	"turfbook/internal/models"
	"turfbook/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Telegram часть Bot API, которой пользуется консоль.
type Telegram interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	GetSelf() tgbotapi.User
}

type BookingManager interface {
	Now() time.Time
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error)
	ListBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error)
	RejectBooking(ctx context.Context, id, version int64, reason string) (*models.Booking, error)
	CompleteBooking(ctx context.Context, id, version int64) (*models.Booking, error)
}

type VenueLister interface {
	ListVenues(ctx context.Context, activeOnly bool) ([]*models.Venue, error)
}

type DayResolver interface {
	DaySlots(ctx context.Context, venueID int64, date time.Time, granularity int, now time.Time) (*service.DayAvailability, error)
}

type ReportWriter interface {
	Write(ctx context.Context, w io.Writer, from, to time.Time, venueID int64) error
}

// Services то, что консоль читает и меняет. Reports может быть nil.
type Services struct {
	Bookings     BookingManager
	Venues       VenueLister
	Availability DayResolver
	Reports      ReportWriter
}

// Bot консоль персонала площадок: расписание, поиск броней, отклонение и завершение, отчеты.
// Обслуживаются только чаты из настроек.
type Bot struct {
	tg       Telegram
	svc      Services
	admins   map[int64]bool
	pageSize int
	logger   *zerolog.Logger
}

func NewBot(tg Telegram, svc Services, adminChatIDs []int64, logger *zerolog.Logger) *Bot {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	admins := make(map[int64]bool, len(adminChatIDs))
	for _, id := range adminChatIDs {
		admins[id] = true
	}
	return &Bot{
		tg:       tg,
		svc:      svc,
		admins:   admins,
		pageSize: defaultPageSize,
		logger:   logger,
	}
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tg.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tg.GetSelf().UserName).Int("admins", len(b.admins)).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

// Stop прекращает получение обновлений Telegram.
func (b *Bot) Stop() {
	if b == nil || b.tg == nil {
		return
	}
	b.tg.StopReceivingUpdates()
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	command := updateCommand(update)
	defer func() { observeUpdate(command, time.Since(start)) }()

	// Создаем контекст для обработки каждого обновления
	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	l := b.logger.With().Str("request_id", uuid.NewString()).Str("command", command).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		chatID, userID := updateOrigin(update)
		if userID == 0 {
			return
		}

		if !b.isAdmin(chatID, userID) {
			l.Warn().Int64("chat_id", chatID).Int64("user_id", userID).Msg("update from unknown chat ignored")
			if update.Message != nil {
				b.sendText(chatID, "⛔ This bot is for venue staff only.")
			}
			return
		}

		if update.CallbackQuery != nil {
			b.handleCallbackQuery(updateCtx, update.CallbackQuery)
			return
		}
		if update.Message != nil {
			b.handleMessage(updateCtx, update.Message)
		}
	})
}

func updateOrigin(update tgbotapi.Update) (chatID, userID int64) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.Chat.ID, update.Message.From.ID
	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		if update.CallbackQuery.Message != nil && update.CallbackQuery.Message.Chat != nil {
			chatID = update.CallbackQuery.Message.Chat.ID
		}
		return chatID, update.CallbackQuery.From.ID
	}
	return 0, 0
}

// updateCommand метка обновления для метрик.
func updateCommand(update tgbotapi.Update) string {
	switch {
	case update.Message != nil && update.Message.IsCommand():
		return "/" + update.Message.Command()
	case update.Message != nil:
		return "text"
	case update.CallbackQuery != nil:
		return "callback"
	}
	return "other"
}
