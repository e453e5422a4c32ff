// Package bus fans session events out to subscribers. One Bus belongs to one
// room; the owning room goroutine is the only publisher, so subscribers see
// events in exactly the publish order.
package bus

import (
	"encoding/json"
	"sync"
	"time"
)

// Event types, as they appear on the wire.
const (
	EventGameCreated        = "gameCreated"
	EventPlayerJoined       = "playerJoined"
	EventPlayerLeft         = "playerLeft"
	EventGameStarted        = "gameStarted"
	EventCardDrawn          = "cardDrawn"
	EventCardActivated      = "cardActivated"
	EventVenganzaConsumed   = "venganzaConsumed"
	EventKingsCupProgressed = "kingsCupProgressed"
	EventTurnChanged        = "turnChanged"
	EventRulesUpdated       = "rulesUpdated"
	EventGameEnded          = "gameEnded"
)

// DefaultBuffer is the subscriber channel capacity when the caller passes 0.
const DefaultBuffer = 256

// Event is one envelope of the session event stream.
type Event struct {
	Code string          `json:"sessionCode"`
	Seq  uint64          `json:"seq"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
	At   time.Time       `json:"t"`
}

// Subscription is one consumer's view of the stream. Events delivers in
// publish order; Lagged is closed if the subscriber fell behind and was shed.
type Subscription struct {
	id     uint64
	events chan Event
	lagged chan struct{}
}

// Events is closed when the subscription ends, whether by Cancel, by the bus
// closing, or by shedding.
func (s *Subscription) Events() <-chan Event { return s.events }

// Lagged is closed only when the bus dropped this subscriber for falling
// behind. Check it after Events closes to tell shedding from shutdown.
func (s *Subscription) Lagged() <-chan struct{} { return s.lagged }

// Bus is the per-room broadcaster.
type Bus struct {
	mu         sync.Mutex
	subs       map[uint64]*Subscription
	nextID     uint64
	closed     bool
	emptySince time.Time
}

func New() *Bus {
	return &Bus{
		subs:       make(map[uint64]*Subscription),
		emptySince: time.Now(),
	}
}

// Subscribe registers a consumer with the given channel capacity (0 means
// DefaultBuffer). Subscribing to a closed bus yields an already-closed
// subscription.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &Subscription{
		events: make(chan Event, buffer),
		lagged: make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.events)
		return sub
	}
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	b.updateEmptySinceLocked()
	return sub
}

// Cancel removes a subscription and closes its events channel. Safe to call
// for subscriptions the bus already shed.
func (b *Bus) Cancel(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.events)
	b.updateEmptySinceLocked()
}

// Publish hands one event to every subscriber without ever blocking the
// publisher. A subscriber whose buffer is full is shed: removed, its Lagged
// channel closed, its events channel closed after the pending backlog.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for id, sub := range b.subs {
		select {
		case sub.events <- ev:
		default:
			delete(b.subs, id)
			close(sub.lagged)
			close(sub.events)
		}
	}
	b.updateEmptySinceLocked()
}

// SubscriberCount reports the live subscribers; rooms use it for idle checks.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// IdleSince reports when the bus last dropped to zero subscribers. ok is
// false while anyone is still subscribed.
func (b *Bus) IdleSince() (since time.Time, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.emptySince.IsZero() {
		return time.Time{}, false
	}
	return b.emptySince, true
}

func (b *Bus) updateEmptySinceLocked() {
	if len(b.subs) == 0 {
		if b.emptySince.IsZero() {
			b.emptySince = time.Now()
		}
	} else {
		b.emptySince = time.Time{}
	}
}

// Close ends the stream for every subscriber. Idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.events)
	}
	b.updateEmptySinceLocked()
}
