package notify

import (
	"fmt"

	"turfbook/internal/domain"
	"turfbook/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

var titles = map[string]string{
	events.EventBookingCreated:   "🆕 New booking",
	events.EventBookingConfirmed: "✅ Booking confirmed",
	events.EventBookingCancelled: "❌ Booking cancelled",
	events.EventBookingRejected:  "⛔ Booking rejected",
	events.EventBookingCompleted: "🏁 Booking completed",
	events.EventBookingRefunded:  "💸 Booking refunded",
	events.EventBookingExpired:   "⌛ Booking expired",
}

// ManageCallbackPrefix opens the booking card in the admin bot: "booking:<id>".
const ManageCallbackPrefix = "booking:"

// TelegramNotifier forwards booking events to the admin chats.
type TelegramNotifier struct {
	bot     domain.TelegramSender
	chatIDs []int64
	actions bool
	logger  *zerolog.Logger
}

func NewTelegramNotifier(bot domain.TelegramSender, chatIDs []int64, logger *zerolog.Logger) *TelegramNotifier {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &TelegramNotifier{bot: bot, chatIDs: chatIDs, logger: logger}
}

// EnableActions adds a "Manage" button to messages about bookings that still need staff
// attention. Only useful when the admin bot is polling the same token.
func (n *TelegramNotifier) EnableActions() *TelegramNotifier {
	n.actions = true
	return n
}

// Attach subscribes the notifier to every booking event on bus.
func (n *TelegramNotifier) Attach(bus *events.EventBus) {
	bus.SubscribeAll(n.Handle)
}

// Handle sends one message per admin chat. A failed chat does not stop the others;
// the last error is returned to the bus error hook.
func (n *TelegramNotifier) Handle(event *events.Event) error {
	var payload events.BookingEventPayload
	if err := event.Decode(&payload); err != nil {
		return fmt.Errorf("decode %s payload: %w", event.Type, err)
	}

	text := FormatBookingMessage(event.Type, payload)
	markup := n.keyboard(event.Type, payload)

	var lastErr error
	for _, chatID := range n.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		if markup != nil {
			msg.ReplyMarkup = *markup
		}
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Error().Err(err).Int64("chat_id", chatID).Str("event", event.Type).Msg("Failed to notify admin")
			lastErr = err
		}
	}
	return lastErr
}

func (n *TelegramNotifier) keyboard(eventType string, p events.BookingEventPayload) *tgbotapi.InlineKeyboardMarkup {
	if !n.actions || p.BookingID == 0 {
		return nil
	}
	switch eventType {
	case events.EventBookingCreated, events.EventBookingConfirmed:
	default:
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("⚙️ Manage", fmt.Sprintf("%s%d", ManageCallbackPrefix, p.BookingID)),
	))
	return &markup
}

// FormatBookingMessage renders the admin message for a booking event.
func FormatBookingMessage(eventType string, p events.BookingEventPayload) string {
	title, ok := titles[eventType]
	if !ok {
		title = "ℹ️ " + eventType
	}

	venue := p.VenueName
	if venue == "" {
		venue = fmt.Sprintf("#%d", p.VenueID)
	}

	text := fmt.Sprintf(`%s

🏟 Venue: %s
📅 Date: %s
🕒 Time: %s-%s
👤 Customer: %s
💰 Amount: %s %s
🆔 Reference: %s`,
		title,
		venue,
		p.Date,
		p.StartTime, p.EndTime,
		p.CustomerName,
		p.Amount.StringFixed(2), p.Currency,
		p.Reference)

	if p.Reason != "" {
		text += "\n💬 Reason: " + p.Reason
	}
	return text
}
