package notify

import (
	"errors"
	"strings"
	"testing"

	"turfbook/internal/events"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTelegramSender struct {
	mock.Mock
}

func (m *mockTelegramSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

func testPayload() events.BookingEventPayload {
	return events.BookingEventPayload{
		BookingID:    7,
		Reference:    "TB-ABC123",
		VenueID:      1,
		VenueName:    "Arena 5",
		Date:         "2026-10-21",
		StartTime:    "18:00",
		EndTime:      "20:00",
		CustomerName: "Ravi",
		Amount:       decimal.NewFromInt(2000),
		Currency:     "inr",
		Status:       "pending",
	}
}

func TestFormatBookingMessage(t *testing.T) {
	text := FormatBookingMessage(events.EventBookingCreated, testPayload())
	assert.True(t, strings.HasPrefix(text, "🆕 New booking"))
	assert.Contains(t, text, "Arena 5")
	assert.Contains(t, text, "18:00-20:00")
	assert.Contains(t, text, "2000.00 inr")
	assert.NotContains(t, text, "Reason")

	p := testPayload()
	p.VenueName = ""
	p.Reason = "rain"
	text = FormatBookingMessage("booking_moved", p)
	assert.Contains(t, text, "booking_moved")
	assert.Contains(t, text, "Venue: #1")
	assert.Contains(t, text, "Reason: rain")
}

func TestTelegramNotifier_Handle(t *testing.T) {
	sender := new(mockTelegramSender)
	n := NewTelegramNotifier(sender, []int64{100, 200}, nil)

	bus := events.NewEventBus()
	var hookErr error
	bus.OnError(func(_ *events.Event, err error) { hookErr = err })
	n.Attach(bus)

	sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == 100 && strings.Contains(msg.Text, "Booking confirmed")
	})).Return(tgbotapi.Message{}, nil).Once()
	sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
		msg, ok := c.(tgbotapi.MessageConfig)
		return ok && msg.ChatID == 200
	})).Return(tgbotapi.Message{}, errors.New("chat not found")).Once()

	require.NoError(t, bus.PublishJSON(events.EventBookingConfirmed, testPayload()))

	sender.AssertExpectations(t)
	assert.EqualError(t, hookErr, "chat not found")
}

func TestTelegramNotifier_BadPayload(t *testing.T) {
	sender := new(mockTelegramSender)
	n := NewTelegramNotifier(sender, []int64{100}, nil)

	err := n.Handle(&events.Event{Type: events.EventBookingCreated, Payload: []byte("{")})
	assert.Error(t, err)
	sender.AssertNotCalled(t, "Send", mock.Anything)
}

func TestTelegramNotifier_Actions(t *testing.T) {
	sender := new(mockTelegramSender)
	n := NewTelegramNotifier(sender, []int64{100}, nil).EnableActions()

	var sent []tgbotapi.MessageConfig
	sender.On("Send", mock.Anything).Run(func(args mock.Arguments) {
		sent = append(sent, args.Get(0).(tgbotapi.MessageConfig))
	}).Return(tgbotapi.Message{}, nil)

	require.NoError(t, n.Handle(mustEvent(t, events.EventBookingCreated, testPayload())))
	require.NoError(t, n.Handle(mustEvent(t, events.EventBookingExpired, testPayload())))
	require.Len(t, sent, 2)

	markup, ok := sent[0].ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.NotNil(t, markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, "booking:7", *markup.InlineKeyboard[0][0].CallbackData)

	assert.Nil(t, sent[1].ReplyMarkup)
}

func mustEvent(t *testing.T, eventType string, payload events.BookingEventPayload) *events.Event {
	t.Helper()
	ev, err := events.NewJSONEvent(eventType, payload)
	require.NoError(t, err)
	return &ev
}
