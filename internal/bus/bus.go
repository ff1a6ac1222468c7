package bus

import (
	"log/slog"
	"sync"
)

// Bus is the contract between event producers and watchers.
type Bus interface {
	// Publish delivers e to every matching subscriber. It never blocks.
	Publish(e Event)
	// Subscribe returns a channel of events for sessionID ("" for all
	// sessions) and a function that ends the subscription.
	Subscribe(sessionID string) (<-chan Event, func())
}

type subscriber struct {
	sessionID string
	ch        chan Event
}

// EventBus is the in-process Bus. Each subscriber gets a buffered channel;
// events for a subscriber whose buffer is full are dropped.
type EventBus struct {
	mu      sync.RWMutex
	bufSize int
	nextID  int
	subs    map[int]subscriber
}

func NewEventBus(bufSize int) *EventBus {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &EventBus{bufSize: bufSize, subs: map[int]subscriber{}}
}

func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, s := range b.subs {
		if s.sessionID != "" && e.SessionID != "" && s.sessionID != e.SessionID {
			continue
		}
		select {
		case s.ch <- e:
		default:
			slog.Warn("bus: subscriber full, dropping event", "subscriber", id, "kind", e.Kind)
		}
	}
}

func (b *EventBus) Subscribe(sessionID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.bufSize)
	b.subs[id] = subscriber{sessionID: sessionID, ch: ch}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

// Subscribers reports the number of live subscriptions.
func (b *EventBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Discard is a Bus that drops everything.
type Discard struct{}

func (Discard) Publish(Event) {}

func (Discard) Subscribe(string) (<-chan Event, func()) {
	ch := make(chan Event)
	close(ch)
	return ch, func() {}
}
