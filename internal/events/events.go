// Package events provides a typed in-process pub/sub bus used to push
// plan, alert and trade notifications to the UI stream.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies an event on the bus.
type EventType string

// Event types.
const (
	PlanGenerated EventType = "plan_generated"
	PriceAlert    EventType = "price_alert"
	TradeExecuted EventType = "trade_executed"
	UpdateStatus  EventType = "update_status"
)

// Event is a published event with its typed payload.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
}

// EventData is implemented by all event payloads.
type EventData interface {
	EventType() EventType
}

// PlanGeneratedData announces a fresh portfolio plan.
type PlanGeneratedData struct {
	PlanID          string `json:"plan_id"`
	Regime          string `json:"regime"`
	PrimaryStrategy string `json:"primary_strategy"`
	SignalCount     int    `json:"signal_count"`
}

// EventType implements EventData.
func (d *PlanGeneratedData) EventType() EventType { return PlanGenerated }

// PriceAlertData announces a stop or target proximity alert.
type PriceAlertData struct {
	Symbol    string  `json:"symbol"`
	LevelType string  `json:"level_type"` // "stop" or "target"
	Price     float64 `json:"price"`
	Level     float64 `json:"level"`
}

// EventType implements EventData.
func (d *PriceAlertData) EventType() EventType { return PriceAlert }

// TradeExecutedData announces a paper trade fill.
type TradeExecutedData struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
	Strategy string  `json:"strategy,omitempty"`
}

// EventType implements EventData.
func (d *TradeExecutedData) EventType() EventType { return TradeExecuted }

// UpdateStatusData reports progress of a market data update.
type UpdateStatusData struct {
	Status  string `json:"status"` // "started", "completed", "failed"
	Updated int    `json:"updated,omitempty"`
	Total   int    `json:"total,omitempty"`
	Error   string `json:"error,omitempty"`
}

// EventType implements EventData.
func (d *UpdateStatusData) EventType() EventType { return UpdateStatus }

// Bus fans events out to subscribers. Slow subscribers drop events rather
// than block publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
	log  zerolog.Logger
}

// NewBus creates an event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[int]chan Event),
		log:  log.With().Str("component", "events").Logger(),
	}
}

// Subscribe registers a subscriber. Call the returned cancel function to
// unsubscribe and close the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 16
	}

	b.mu.Lock()
	id := b.next
	b.next++
	ch := make(chan Event, buffer)
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to all subscribers.
func (b *Bus) Publish(data EventData) {
	event := Event{
		Type:      data.EventType(),
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.log.Debug().Str("type", string(event.Type)).Msg("Subscriber buffer full, event dropped")
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
