package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"turfbook/internal/models"
	"turfbook/internal/slots"

	"github.com/shopspring/decimal"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	handler := func(event *Event) error {
		received = event
		callCount++
		return nil
	}

	bus.Subscribe("test_event", handler)

	payload := map[string]string{"foo": "bar"}
	err := bus.PublishJSON("test_event", payload)
	if err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}

	if received.Type != "test_event" {
		t.Errorf("expected type test_event, got %s", received.Type)
	}

	var decoded map[string]string
	if err := received.Decode(&decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}

	if decoded["foo"] != "bar" {
		t.Errorf("expected foo=bar, got %s", decoded["foo"])
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int

	bus.Subscribe("event", func(_ *Event) error { count1++; return nil })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })

	bus.Publish(&Event{Type: "event"})

	if count1 != 1 || count2 != 1 {
		t.Errorf("expected both handlers to be called once, got %d and %d", count1, count2)
	}
}

func TestEventBusErrorHook(t *testing.T) {
	bus := NewEventBus()
	var hooked error
	var secondCalled bool

	bus.OnError(func(_ *Event, err error) { hooked = err })
	bus.Subscribe(EventBookingCreated, func(_ *Event) error { return errors.New("telegram down") })
	bus.Subscribe(EventBookingCreated, func(_ *Event) error { secondCalled = true; return nil })

	if err := bus.PublishJSON(EventBookingCreated, BookingEventPayload{BookingID: 1}); err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}
	if hooked == nil || hooked.Error() != "telegram down" {
		t.Errorf("expected hook to receive handler error, got %v", hooked)
	}
	if !secondCalled {
		t.Errorf("expected later handlers to run after a failure")
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewEventBus()
	seen := map[string]int{}
	bus.SubscribeAll(func(e *Event) error { seen[e.Type]++; return nil })

	for _, typ := range BookingEventTypes() {
		bus.Publish(&Event{Type: typ})
	}
	if len(seen) != len(BookingEventTypes()) {
		t.Errorf("expected every booking event to be delivered, got %v", seen)
	}
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	// не должно паниковать
	bus.Publish(&Event{Type: "unknown"})
	err := bus.PublishJSON("unknown", nil)
	if err != nil {
		t.Errorf("PublishJSON failed: %v", err)
	}

	var nilBus *EventBus
	if err := nilBus.PublishJSON("unknown", nil); err != nil {
		t.Errorf("nil bus should be a no-op, got %v", err)
	}
}

func TestPayloadFromBooking(t *testing.T) {
	b := &models.Booking{
		ID:              7,
		Reference:       "ref-7",
		VenueID:         3,
		VenueName:       "Arena 5",
		Date:            time.Date(2026, 10, 24, 0, 0, 0, 0, time.UTC),
		StartTime:       slots.MustParseClock("23:30"),
		DurationMinutes: 60,
		Amount:          decimal.RequireFromString("1300.50"),
		Currency:        "inr",
		Status:          models.StatusConfirmed,
	}

	event, err := NewJSONEvent(EventBookingConfirmed, PayloadFromBooking(b, ""))
	if err != nil {
		t.Fatalf("NewJSONEvent failed: %v", err)
	}
	if event.CreatedAt.IsZero() {
		t.Errorf("expected CreatedAt to be set")
	}

	var decoded BookingEventPayload
	if err := json.Unmarshal(event.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if decoded.Date != "2026-10-24" || decoded.StartTime != "23:30" || decoded.EndTime != "24:00" {
		t.Errorf("unexpected time fields: %+v", decoded)
	}
	if !decoded.Amount.Equal(decimal.RequireFromString("1300.5")) {
		t.Errorf("expected amount 1300.5, got %s", decoded.Amount)
	}
}
