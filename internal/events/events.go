package events

import (
	"encoding/json"
	"sync"
	"time"

	"turfbook/internal/models"

	"github.com/shopspring/decimal"
)

const (
	EventBookingCreated   = "booking_created"
	EventBookingConfirmed = "booking_confirmed"
	EventBookingCancelled = "booking_cancelled"
	EventBookingRejected  = "booking_rejected"
	EventBookingCompleted = "booking_completed"
	EventBookingRefunded  = "booking_refunded"
	EventBookingExpired   = "booking_expired"
)

// BookingEventPayload минимальный снимок брони для подписчиков.
type BookingEventPayload struct {
	BookingID    int64           `json:"booking_id"`
	Reference    string          `json:"reference"`
	VenueID      int64           `json:"venue_id"`
	VenueName    string          `json:"venue_name,omitempty"`
	Date         string          `json:"date"`
	StartTime    string          `json:"start_time"`
	EndTime      string          `json:"end_time"`
	CustomerName string          `json:"customer_name"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	Status       string          `json:"status"`
	Reason       string          `json:"reason,omitempty"`
}

// PayloadFromBooking снимает снимок b для публикации.
func PayloadFromBooking(b *models.Booking, reason string) BookingEventPayload {
	return BookingEventPayload{
		BookingID:    b.ID,
		Reference:    b.Reference,
		VenueID:      b.VenueID,
		VenueName:    b.VenueName,
		Date:         b.Date.Format(time.DateOnly),
		StartTime:    b.StartTime.String(),
		EndTime:      b.EndTime().String(),
		CustomerName: b.CustomerName,
		Amount:       b.Amount,
		Currency:     b.Currency,
		Status:       b.Status,
		Reason:       reason,
	}
}

// Event легковесное доменное событие.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode разбирает payload в v.
func (e *Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// EventHandler обработчик события.
type EventHandler func(event *Event) error

// ErrorHook получает ошибки обработчиков, публикующий их не видит.
type ErrorHook func(event *Event, err error)

// EventBus pub/sub событий внутри процесса.
type EventBus struct {
	subscribers map[string][]EventHandler
	onError     ErrorHook
	mu          sync.RWMutex
}

// NewEventBus создает пустую шину.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// OnError ставит хук на ошибку обработчика.
func (b *EventBus) OnError(hook ErrorHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onError = hook
}

// Subscribe регистрирует обработчик для типа события.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// SubscribeAll регистрирует обработчик на все события бронирований.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	for _, t := range BookingEventTypes() {
		b.Subscribe(t, handler)
	}
}

func BookingEventTypes() []string {
	return []string{
		EventBookingCreated, EventBookingConfirmed, EventBookingCancelled, EventBookingRejected,
		EventBookingCompleted, EventBookingRefunded, EventBookingExpired,
	}
}

// Publish уведомляет подписчиков типа события.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	hook := b.onError
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// обработчики синхронные, параллельность решает вызывающий
		if err := handler(event); err != nil && hook != nil {
			hook(event, err)
		}
	}
}

// PublishJSON сериализует payload и публикует событие.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	b.Publish(&event)
	return nil
}

// NewJSONEvent собирает Event с JSON payload для ручной публикации.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
