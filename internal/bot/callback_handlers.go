package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"turfbook/internal/models"
	"turfbook/internal/notify"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

const (
	bookingCallbackPrefix  = notify.ManageCallbackPrefix
	completeCallbackPrefix = "complete:"
	rejectCallbackPrefix   = "reject:"
	pageCallbackPrefix     = "bookings_page:"

	staffRejectReason = "rejected by venue staff"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	// callback без сообщения не к чему привязать
	if query.Message == nil || query.Message.Chat == nil {
		b.answerCallback(query.ID, "")
		return
	}
	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID
	data := query.Data

	switch {
	case strings.HasPrefix(data, bookingCallbackPrefix):
		id, err := strconv.ParseInt(strings.TrimPrefix(data, bookingCallbackPrefix), 10, 64)
		if err != nil {
			b.answerCallback(query.ID, "Bad button")
			return
		}
		b.answerCallback(query.ID, "")
		booking, err := b.svc.Bookings.GetBooking(ctx, id)
		if err != nil {
			b.replyError(ctx, chatID, err)
			return
		}
		b.showBookingCard(chatID, 0, booking)

	case strings.HasPrefix(data, completeCallbackPrefix):
		b.transition(ctx, query, strings.TrimPrefix(data, completeCallbackPrefix), func(id, version int64) (*models.Booking, error) {
			return b.svc.Bookings.CompleteBooking(ctx, id, version)
		})

	case strings.HasPrefix(data, rejectCallbackPrefix):
		b.transition(ctx, query, strings.TrimPrefix(data, rejectCallbackPrefix), func(id, version int64) (*models.Booking, error) {
			return b.svc.Bookings.RejectBooking(ctx, id, version, staffRejectReason)
		})

	case strings.HasPrefix(data, pageCallbackPrefix):
		date, page, err := parsePageCallback(strings.TrimPrefix(data, pageCallbackPrefix))
		if err != nil {
			b.answerCallback(query.ID, "Bad button")
			return
		}
		b.answerCallback(query.ID, "")
		b.showBookingsPage(ctx, chatID, messageID, date, page)

	default:
		zerolog.Ctx(ctx).Warn().Str("data", data).Msg("unknown callback")
		b.answerCallback(query.ID, "Unknown action")
	}
}

// transition применяет действие "<id>:<version>" и перерисовывает карточку на месте.
func (b *Bot) transition(ctx context.Context, query *tgbotapi.CallbackQuery, raw string, apply func(id, version int64) (*models.Booking, error)) {
	id, version, err := parseIDVersion(raw)
	if err != nil {
		b.answerCallback(query.ID, "Bad button")
		return
	}

	booking, err := apply(id, version)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("booking_id", id).Msg("staff action failed")
		b.answerCallback(query.ID, errorMessage(err))
		return
	}

	zerolog.Ctx(ctx).Info().
		Int64("booking_id", booking.ID).
		Int64("staff_id", query.From.ID).
		Str("status", booking.Status).
		Msg("admin action")
	b.answerCallback(query.ID, "Booking "+booking.Status)
	b.showBookingCard(query.Message.Chat.ID, query.Message.MessageID, booking)
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.tg.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.logger.Warn().Err(err).Msg("answer callback failed")
	}
}

func parseIDVersion(raw string) (id, version int64, err error) {
	idPart, versionPart, ok := strings.Cut(raw, ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed callback %q", raw)
	}
	if id, err = strconv.ParseInt(idPart, 10, 64); err != nil {
		return 0, 0, err
	}
	if version, err = strconv.ParseInt(versionPart, 10, 64); err != nil {
		return 0, 0, err
	}
	return id, version, nil
}

func parsePageCallback(raw string) (time.Time, int, error) {
	datePart, pagePart, ok := strings.Cut(raw, ":")
	if !ok {
		return time.Time{}, 0, fmt.Errorf("malformed callback %q", raw)
	}
	date, err := time.Parse(time.DateOnly, datePart)
	if err != nil {
		return time.Time{}, 0, err
	}
	page, err := strconv.Atoi(pagePart)
	if err != nil {
		return time.Time{}, 0, err
	}
	return date, page, nil
}
