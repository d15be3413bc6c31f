package dispatch

import (
	"sync"

	"github.com/corvid-labs/modelwire/packet"
)

// Event is one notification fanned out to subscribers: every decoded
// packet emits an event named after its fcType plus a wildcard "ANY"
// event; the connection manager emits a handful of synthetic
// CLIENT_* lifecycle events through the same bus.
type Event struct {
	Name   string
	Packet *packet.Packet
}

// Handler receives an Event.
type Handler func(Event)

type subscriber struct {
	id int64
	fn Handler
}

// EventBus is a simple name-keyed pub/sub fan-out, safe for concurrent
// use. The zero value is not usable; construct with NewEventBus.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[string][]*subscriber
	nextID int64
}

// NewEventBus constructs an empty EventBus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[string][]*subscriber)}
}

// On registers fn for events named name. The returned func removes the
// subscription.
func (b *EventBus) On(name string, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[name] = append(b.subs[name], &subscriber{id: id, fn: fn})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[name]
		for i, s := range subs {
			if s.id == id {
				b.subs[name] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Emit fans ev out to every subscriber registered for ev.Name.
func (b *EventBus) Emit(ev Event) {
	b.mu.RLock()
	subs := append([]*subscriber(nil), b.subs[ev.Name]...)
	b.mu.RUnlock()

	for _, s := range subs {
		s.fn(ev)
	}
}
