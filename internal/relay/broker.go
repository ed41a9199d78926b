// Package relay fans dashboard events out to live SSE and WebSocket clients.
package relay

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const subscriberBufSize = 256

// Event types published by the dashboard.
const (
	TypeForecastCompleted = "forecast.completed"
	TypePortfolioUpdated  = "portfolio.updated"
	TypeUserRegistered    = "user.registered"
)

// Event is a single message delivered to subscribers. Payload is JSON.
// Only subscribers registered for Owner receive it.
type Event struct {
	Owner   string
	Type    string
	Payload string
}

// envelope is the WebSocket wire form of an Event.
type envelope struct {
	Type string          `json:"type"`
	Time time.Time       `json:"time"`
	Data json.RawMessage `json:"data"`
}

// Publisher is the send side of a Broker.
type Publisher interface {
	PublishJSON(owner, eventType string, v any)
}

type subscriber struct {
	owner string
	ch    chan Event
}

// Broker fans out events to the subscribers of each owner.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[int64]subscriber
	nextID      atomic.Int64
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[int64]subscriber),
	}
}

// Subscribe registers a client for owner's events. The returned channel is
// buffered; slow consumers have events dropped.
func (b *Broker) Subscribe(owner string) (int64, <-chan Event) {
	id := b.nextID.Add(1)
	ch := make(chan Event, subscriberBufSize)
	b.mu.Lock()
	b.subscribers[id] = subscriber{owner: owner, ch: ch}
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(id int64) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
		close(sub.ch)
	}
	b.mu.Unlock()
}

// Publish sends an event to its owner's subscribers without blocking.
// Events without an owner are dropped.
func (b *Broker) Publish(evt Event) {
	if evt.Owner == "" {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers {
		if sub.owner != evt.Owner {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
		}
	}
}

// PublishJSON marshals v and publishes it to owner under eventType.
func (b *Broker) PublishJSON(owner, eventType string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Warn("relay: marshal event failed", "type", eventType, "error", err)
		return
	}
	b.Publish(Event{Owner: owner, Type: eventType, Payload: string(data)})
}

// ClientCount returns the number of active subscribers.
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// parseTypes reads the ?types= filter. nil accepts everything.
func parseTypes(q string) map[string]bool {
	if q == "" {
		return nil
	}
	filter := make(map[string]bool)
	for _, part := range splitComma(q) {
		filter[part] = true
	}
	if len(filter) == 0 {
		return nil
	}
	return filter
}
