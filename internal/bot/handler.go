package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"turfbook/internal/models"
	"turfbook/internal/slots"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const helpText = `Venue staff console

/venues - list venues
/day <venue_id> [date] - slot schedule of a venue
/bookings [date] - bookings of a day
/booking <reference|id> - booking card
/report <from> <to> [venue_id] - bookings report (xlsx)

Dates: YYYY-MM-DD, DD.MM.YYYY, today, tomorrow.`

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !msg.IsCommand() {
		b.sendText(msg.Chat.ID, "Send /help for the list of commands.")
		return
	}

	args := strings.Fields(msg.CommandArguments())
	switch msg.Command() {
	case "start", "help":
		b.sendText(msg.Chat.ID, helpText)
	case "venues":
		b.handleVenues(ctx, msg.Chat.ID)
	case "day":
		b.handleDay(ctx, msg.Chat.ID, args)
	case "bookings":
		b.handleBookings(ctx, msg.Chat.ID, args)
	case "booking":
		b.handleBooking(ctx, msg.Chat.ID, args)
	case "report":
		b.handleReport(ctx, msg.Chat.ID, args)
	default:
		b.sendText(msg.Chat.ID, "Unknown command. Send /help for the list of commands.")
	}
}

func (b *Bot) handleVenues(ctx context.Context, chatID int64) {
	venues, err := b.svc.Venues.ListVenues(ctx, false)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	if len(venues) == 0 {
		b.sendText(chatID, "No venues yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("🏟 Venues\n\n")
	for _, v := range venues {
		state := "✅"
		if !v.IsActive {
			state = "⛔"
		}
		fmt.Fprintf(&sb, "%s %d. %s (%s)\n", state, v.ID, v.Name, v.Sport)
		fmt.Fprintf(&sb, "   📍 %s\n", v.Location)
		fmt.Fprintf(&sb, "   🕒 %s-%s, %d min slots\n", v.OpenTime, v.CloseTime, v.SlotMinutes)
	}
	b.sendText(chatID, sb.String())
}

func (b *Bot) handleDay(ctx context.Context, chatID int64, args []string) {
	if len(args) == 0 {
		b.sendText(chatID, "Usage: /day <venue_id> [date]")
		return
	}
	venueID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || venueID <= 0 {
		b.sendText(chatID, "⚠️ Venue id must be a positive number.")
		return
	}

	now := b.svc.Bookings.Now()
	date := today(now)
	if len(args) > 1 {
		if date, err = parseDay(args[1], now); err != nil {
			b.sendText(chatID, "⚠️ "+err.Error())
			return
		}
	}

	day, err := b.svc.Availability.DaySlots(ctx, venueID, date, 0, now)
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📅 Venue %d, %s\n\n", day.VenueID, day.Date)
	if len(day.Slots) == 0 {
		sb.WriteString("Closed.\n")
	}
	currency := strings.ToUpper(day.Currency)
	for _, s := range day.Slots {
		fmt.Fprintf(&sb, "%s %s-%s  %s %s\n", slotEmoji(s.Status), s.Start, s.End, s.Price.StringFixed(2), currency)
	}
	sb.WriteString("\n🟢 free  🔴 booked  ⛔ blocked  ⚪ past")
	b.sendText(chatID, sb.String())
}

func (b *Bot) handleBookings(ctx context.Context, chatID int64, args []string) {
	now := b.svc.Bookings.Now()
	date := today(now)
	if len(args) > 0 {
		var err error
		if date, err = parseDay(args[0], now); err != nil {
			b.sendText(chatID, "⚠️ "+err.Error())
			return
		}
	}
	b.showBookingsPage(ctx, chatID, 0, date, 0)
}

func (b *Bot) showBookingsPage(ctx context.Context, chatID int64, messageID int, date time.Time, page int) {
	// весь день целиком: страницы режутся на стороне бота
	bookings, err := b.svc.Bookings.ListBookings(ctx, models.BookingFilter{From: &date, To: &date, Limit: -1})
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}

	title := fmt.Sprintf("📋 Bookings for %s: %d", date.Format(time.DateOnly), len(bookings))
	if len(bookings) == 0 {
		b.sendText(chatID, title)
		return
	}

	b.renderPaginatedBookings(PaginationParams{
		ChatID:     chatID,
		MessageID:  messageID,
		Page:       page,
		Title:      title,
		PagePrefix: fmt.Sprintf("%s%s:", pageCallbackPrefix, date.Format(time.DateOnly)),
	}, bookings)
}

func (b *Bot) handleBooking(ctx context.Context, chatID int64, args []string) {
	if len(args) == 0 {
		b.sendText(chatID, "Usage: /booking <reference|id>")
		return
	}

	var (
		booking *models.Booking
		err     error
	)
	if id, convErr := strconv.ParseInt(args[0], 10, 64); convErr == nil {
		booking, err = b.svc.Bookings.GetBooking(ctx, id)
	} else {
		booking, err = b.svc.Bookings.GetBookingByReference(ctx, strings.ToUpper(args[0]))
	}
	if err != nil {
		b.replyError(ctx, chatID, err)
		return
	}
	b.showBookingCard(chatID, 0, booking)
}

// showBookingCard отправляет карточку или, если задан messageID, редактирует его.
func (b *Bot) showBookingCard(chatID int64, messageID int, booking *models.Booking) {
	text := bookingCard(booking)
	markup := bookingKeyboard(booking)

	if messageID != 0 {
		edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
		if markup != nil {
			edit.ReplyMarkup = markup
		}
		b.send(edit)
		return
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	b.send(msg)
}

func bookingCard(booking *models.Booking) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s Booking %s (#%d)\n", statusEmoji(booking.Status), booking.Reference, booking.ID)
	fmt.Fprintf(&sb, "Status: %s\n\n", booking.Status)
	fmt.Fprintf(&sb, "🏟 %s\n", venueLabel(booking))
	fmt.Fprintf(&sb, "📅 %s %s-%s\n", booking.Date.Format(time.DateOnly), booking.StartTime, booking.EndTime())
	fmt.Fprintf(&sb, "👤 %s\n", booking.CustomerName)
	if booking.CustomerPhone != "" {
		fmt.Fprintf(&sb, "📞 %s\n", booking.CustomerPhone)
	}
	if booking.CustomerEmail != "" {
		fmt.Fprintf(&sb, "✉️ %s\n", booking.CustomerEmail)
	}
	fmt.Fprintf(&sb, "💰 %s %s\n", booking.Amount.StringFixed(2), strings.ToUpper(booking.Currency))
	if booking.Comment != "" {
		fmt.Fprintf(&sb, "💬 %s\n", booking.Comment)
	}
	return sb.String()
}

// bookingKeyboard предлагает только переходы, допустимые из текущего статуса.
func bookingKeyboard(booking *models.Booking) *tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	if booking.Status == models.StatusConfirmed {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("🏁 Complete",
			fmt.Sprintf("%s%d:%d", completeCallbackPrefix, booking.ID, booking.Version)))
	}
	if booking.Status == models.StatusPending || booking.Status == models.StatusConfirmed {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("❌ Reject",
			fmt.Sprintf("%s%d:%d", rejectCallbackPrefix, booking.ID, booking.Version)))
	}
	if len(row) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(row)
	return &markup
}

func statusEmoji(status string) string {
	switch status {
	case models.StatusPending:
		return "⏳"
	case models.StatusConfirmed:
		return "✅"
	case models.StatusCompleted:
		return "🏁"
	case models.StatusCancelled, models.StatusRejected:
		return "❌"
	case models.StatusRefunded:
		return "💸"
	case models.StatusExpired:
		return "⌛"
	}
	return "❔"
}

func slotEmoji(status slots.Status) string {
	switch status {
	case slots.StatusBookable:
		return "🟢"
	case slots.StatusBooked:
		return "🔴"
	case slots.StatusBlocked:
		return "⛔"
	}
	return "⚪"
}

func venueLabel(booking *models.Booking) string {
	if booking.VenueName != "" {
		return booking.VenueName
	}
	return fmt.Sprintf("venue %d", booking.VenueID)
}

// today календарный день now как полночь UTC, как и остальные даты в системе.
func today(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func parseDay(raw string, now time.Time) (time.Time, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "today":
		return today(now), nil
	case "tomorrow":
		return today(now).AddDate(0, 0, 1), nil
	}
	for _, layout := range []string{time.DateOnly, "02.01.2006"} {
		if d, err := time.Parse(layout, raw); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q; use YYYY-MM-DD or DD.MM.YYYY", raw)
}

func (b *Bot) replyError(ctx context.Context, chatID int64, err error) {
	zerolog.Ctx(ctx).Error().Err(err).Int64("chat_id", chatID).Msg("bot command failed")
	b.sendText(chatID, errorMessage(err))
}

func (b *Bot) sendText(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.tg.Send(c); err != nil {
		b.logger.Error().Err(err).Msg("telegram send failed")
	}
}
