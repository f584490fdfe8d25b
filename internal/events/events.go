package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventReservationCreated = "reservation_created"
	EventUserRegistered     = "user_registered"
	EventUserUnregistered   = "user_unregistered"
	EventNoticeSent         = "notice_sent"
)

// AllEventTypes lists every type published by the services.
var AllEventTypes = []string{
	EventReservationCreated,
	EventUserRegistered,
	EventUserUnregistered,
	EventNoticeSent,
}

type ReservationEventPayload struct {
	ReservationID int64  `json:"reservation_id"`
	ItemName      string `json:"item_name"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	UserID        int64  `json:"user_id"`
	UserName      string `json:"user_name,omitempty"`
}

type UserEventPayload struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
}

type NoticeEventPayload struct {
	NoticeID   int64 `json:"notice_id"`
	Recipients int   `json:"recipients"`
	Delivered  bool  `json:"delivered"`
}

type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events. Handlers run
// synchronously on the publishing goroutine.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type and returns the first
// handler error. Every handler runs regardless.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var first error
	for _, handler := range handlers {
		if err := handler(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PublishJSON serializes the payload and publishes an event. A nil bus is a no-op.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
