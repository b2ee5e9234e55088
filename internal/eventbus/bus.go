package eventbus

import (
	"context"
	"slices"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/tabdeck/schema"
)

// Event represents a UI-facing event emitted by the core service.
type Event struct {
	Type schema.TabEventType
	Tab  schema.TabEvent
}

type subscriber struct {
	types []schema.TabEventType
}

func (s subscriber) wants(t schema.TabEventType) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

// Bus fans tab events out to subscribers. Publishing never blocks; a full
// subscriber misses the event.
type Bus struct {
	mu    sync.Mutex
	subs  map[chan Event]subscriber
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[chan Event]subscriber),
		log:   logger,
		depth: 256,
	}
}

// Subscribe registers a subscriber for the given event types, or for every
// event when none are given, and returns a channel + cancel.
func (b *Bus) Subscribe(types ...schema.TabEventType) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	b.subs[ch] = subscriber{types: slices.Clone(types)}
	count := len(b.subs)
	b.mu.Unlock()
	b.log.Debug("eventbus subscribe", "subs", count, "types", types)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			close(ch)
			b.mu.Unlock()
			b.log.Debug("eventbus unsubscribe")
		})
	}
}

// OnTabEvent publishes a tab event.
func (b *Bus) OnTabEvent(event schema.TabEvent) {
	b.publish(Event{Type: event.Type, Tab: event})
}

func (b *Bus) publish(event Event) {
	if b == nil {
		return
	}
	dropped := 0
	b.mu.Lock()
	for ch, sub := range b.subs {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case ch <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 {
		b.log.Trace("eventbus dropped", "count", dropped, "type", event.Type)
	}
}
