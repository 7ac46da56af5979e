package bot

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"turfbook/internal/export"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// maxReportDays в календарных днях, обе границы включительно.
const maxReportDays = 92

func (b *Bot) handleReport(ctx context.Context, chatID int64, args []string) {
	if b.svc.Reports == nil {
		b.sendText(chatID, "⚠️ Reports are not available.")
		return
	}
	if len(args) < 2 {
		b.sendText(chatID, "Usage: /report <from> <to> [venue_id]")
		return
	}

	now := b.svc.Bookings.Now()
	from, err := parseDay(args[0], now)
	if err != nil {
		b.sendText(chatID, "⚠️ "+err.Error())
		return
	}
	to, err := parseDay(args[1], now)
	if err != nil {
		b.sendText(chatID, "⚠️ "+err.Error())
		return
	}
	if to.Before(from) {
		b.sendText(chatID, "⚠️ The end date is before the start date.")
		return
	}
	if days := int(to.Sub(from).Hours()/24) + 1; days > maxReportDays {
		b.sendText(chatID, fmt.Sprintf("⚠️ A report may span at most %d days.", maxReportDays))
		return
	}

	var venueID int64
	if len(args) > 2 {
		if venueID, err = strconv.ParseInt(args[2], 10, 64); err != nil || venueID <= 0 {
			b.sendText(chatID, "⚠️ Venue id must be a positive number.")
			return
		}
	}

	var buf bytes.Buffer
	if err := b.svc.Reports.Write(ctx, &buf, from, to, venueID); err != nil {
		b.replyError(ctx, chatID, err)
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: export.FileName(from, to), Bytes: buf.Bytes()})
	doc.Caption = "📊 Bookings report"
	if _, err := b.tg.Send(doc); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("send report")
		b.sendText(chatID, "❌ Could not send the report.")
		return
	}
	zerolog.Ctx(ctx).Info().Int64("chat_id", chatID).Int("bytes", buf.Len()).Msg("report sent")
}
