// Package events is an in-process broadcast bus for node activity:
// motion transitions, switch changes, telemetry samples and
// notification outcomes. The status server streams it to websocket
// clients. Publishing on a nil *Bus is a no-op.
package events

import (
	"sync"
	"time"
)

// Sources.
const (
	SourceMotion    = "motion"
	SourceSwitch    = "switch"
	SourceTelemetry = "telemetry"
	SourceNotify    = "notify"
	SourceMQTT      = "mqtt"
)

// Kinds.
const (
	// KindStarted / KindStopped: motion transitions. Data: none.
	KindStarted = "started"
	KindStopped = "stopped"

	// KindChanged: a switch output changed. Data: switch, state, origin.
	KindChanged = "changed"

	// KindPublished: a climate sample was published.
	// Data: temperature, humidity.
	KindPublished = "published"
	// KindInvalid: the climate read produced NaN. Data: error (optional).
	KindInvalid = "invalid"

	// KindOutcome: a notification attempt finished. Data: outcome.
	KindOutcome = "outcome"

	// KindConnected / KindDisconnected: broker connection changes.
	KindConnected    = "connected"
	KindDisconnected = "disconnected"
)

// Event is a single occurrence on the node.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Source    string         `json:"source"`
	Kind      string         `json:"kind"`
	Data      map[string]any `json:"data,omitempty"`
}

// Bus fans events out to buffered subscriber channels. A full
// subscriber misses events instead of stalling the station loop.
type Bus struct {
	mu   sync.RWMutex
	subs map[<-chan Event]chan Event
	now  func() time.Time
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subs: make(map[<-chan Event]chan Event),
		now:  time.Now,
	}
}

// Publish delivers e to every subscriber. A zero Timestamp is filled
// with the current time.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = b.now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Emit is shorthand for Publish with the given source, kind and data.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	b.Publish(Event{Source: source, Kind: kind, Data: data})
}

// Subscribe returns a channel receiving events published from now on.
// Call Unsubscribe when done.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	b.subs[ch] = ch
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscription and closes its channel. Unknown
// channels are ignored.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	send, ok := b.subs[ch]
	if !ok {
		return
	}
	delete(b.subs, ch)
	close(send)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
