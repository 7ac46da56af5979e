package bot

import (
	"fmt"
	"strings"

	"turfbook/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const defaultPageSize = 5

type PaginationParams struct {
	ChatID     int64
	MessageID  int // 0 if new message
	Page       int
	Title      string
	PagePrefix string
}

// renderPaginatedList - универсальная функция для отрисовки пагинированного списка
func (b *Bot) renderPaginatedList(params PaginationParams, totalCount, itemsPerPage int, renderer func(startIdx, endIdx int) (string, [][]tgbotapi.InlineKeyboardButton)) {
	if itemsPerPage <= 0 {
		itemsPerPage = defaultPageSize
	}
	if params.Page < 0 {
		params.Page = 0
	}

	totalPages := (totalCount + itemsPerPage - 1) / itemsPerPage
	if params.Page >= totalPages && totalPages > 0 {
		params.Page = totalPages - 1
	}

	startIdx := params.Page * itemsPerPage
	endIdx := startIdx + itemsPerPage
	if endIdx > totalCount {
		endIdx = totalCount
	}

	content, keyboard := renderer(startIdx, endIdx)

	var message strings.Builder
	message.WriteString(params.Title + "\n\n")
	if totalPages > 1 {
		fmt.Fprintf(&message, "Page %d of %d\n\n", params.Page+1, totalPages)
	}
	message.WriteString(content)

	var navButtons []tgbotapi.InlineKeyboardButton
	if params.Page > 0 {
		navButtons = append(navButtons, tgbotapi.NewInlineKeyboardButtonData("⬅️ Prev", fmt.Sprintf("%s%d", params.PagePrefix, params.Page-1)))
	}
	if endIdx < totalCount {
		navButtons = append(navButtons, tgbotapi.NewInlineKeyboardButtonData("Next ➡️", fmt.Sprintf("%s%d", params.PagePrefix, params.Page+1)))
	}
	if len(navButtons) > 0 {
		keyboard = append(keyboard, navButtons)
	}

	if params.MessageID != 0 {
		edit := tgbotapi.NewEditMessageText(params.ChatID, params.MessageID, message.String())
		if len(keyboard) > 0 {
			markup := tgbotapi.NewInlineKeyboardMarkup(keyboard...)
			edit.ReplyMarkup = &markup
		}
		b.send(edit)
		return
	}

	msg := tgbotapi.NewMessage(params.ChatID, message.String())
	if len(keyboard) > 0 {
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(keyboard...)
	}
	b.send(msg)
}

// renderPaginatedBookings - список броней за день, по кнопке на бронь
func (b *Bot) renderPaginatedBookings(params PaginationParams, bookings []*models.Booking) {
	b.renderPaginatedList(params, len(bookings), b.pageSize, func(startIdx, endIdx int) (string, [][]tgbotapi.InlineKeyboardButton) {
		var content strings.Builder
		var keyboard [][]tgbotapi.InlineKeyboardButton

		for _, booking := range bookings[startIdx:endIdx] {
			fmt.Fprintf(&content, "%s %s  %s-%s\n", statusEmoji(booking.Status), booking.Reference, booking.StartTime, booking.EndTime())
			fmt.Fprintf(&content, "   🏟 %s\n", venueLabel(booking))
			fmt.Fprintf(&content, "   👤 %s\n", booking.CustomerName)
			fmt.Fprintf(&content, "   💰 %s %s\n\n", booking.Amount.StringFixed(2), strings.ToUpper(booking.Currency))

			btn := tgbotapi.NewInlineKeyboardButtonData(
				fmt.Sprintf("%s %s %s", booking.StartTime, booking.CustomerName, booking.Reference),
				fmt.Sprintf("%s%d", bookingCallbackPrefix, booking.ID),
			)
			keyboard = append(keyboard, []tgbotapi.InlineKeyboardButton{btn})
		}

		return content.String(), keyboard
	})
}
