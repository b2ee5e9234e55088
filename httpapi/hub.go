package httpapi

import (
	"context"
	"sync"
	"time"

	"pkt.systems/tabdeck/internal/logx"
	"pkt.systems/tabdeck/schema"
)

// StreamEvent is sent to SSE clients.
type StreamEvent struct {
	Seq         uint64                  `json:"seq"`
	Type        string                  `json:"type"`
	TabEvent    schema.TabEventType     `json:"tab_event,omitempty"`
	Tab         *schema.TabSnapshot     `json:"tab,omitempty"`
	ActiveTab   schema.TabID            `json:"active_tab,omitempty"`
	ActiveIndex int                     `json:"active_index"`
	Snapshot    *schema.TabListSnapshot `json:"snapshot,omitempty"`
	Timestamp   time.Time               `json:"timestamp"`
}

// Hub numbers tab events, keeps a bounded history for replay, and broadcasts
// them to stream subscribers.
type Hub struct {
	mu          sync.Mutex
	seq         uint64
	history     []StreamEvent
	subs        map[chan StreamEvent]struct{}
	historySize int
	now         func() time.Time
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize int) *Hub {
	if historySize <= 0 {
		historySize = 1000
	}
	return &Hub{
		subs:        make(map[chan StreamEvent]struct{}),
		historySize: historySize,
		now:         time.Now,
	}
}

// OnTabEvent implements core.EventSink.
func (h *Hub) OnTabEvent(event schema.TabEvent) {
	tab := event.Tab
	logx.WithTab(context.Background(), tab.ID).Trace("hub tab event", "type", event.Type)
	h.publish(StreamEvent{
		Type:        "tab",
		TabEvent:    event.Type,
		Tab:         &tab,
		ActiveTab:   event.ActiveTab,
		ActiveIndex: event.ActiveIndex,
		Timestamp:   h.now(),
	})
}

// Subscribe registers a subscriber and returns the current sequence number.
func (h *Hub) Subscribe() (<-chan StreamEvent, func(), uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan StreamEvent, 256)
	h.subs[ch] = struct{}{}
	log := logx.Ctx(context.Background())
	log.Info("hub subscribe", "subs", len(h.subs), "history", len(h.history))
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			close(ch)
			remaining := len(h.subs)
			h.mu.Unlock()
			log.Info("hub unsubscribe", "subs", remaining)
		})
	}
	return ch, unsub, h.seq
}

// Replay returns events after the provided seq.
func (h *Hub) Replay(after uint64) []StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	events := make([]StreamEvent, 0, len(h.history))
	for _, event := range h.history {
		if event.Seq > after {
			events = append(events, event)
		}
	}
	logx.Ctx(context.Background()).Debug("hub replay", "after", after, "count", len(events))
	return events
}

func (h *Hub) publish(event StreamEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	event.Seq = h.seq
	h.history = append(h.history, event)
	if len(h.history) > h.historySize {
		h.history = h.history[len(h.history)-h.historySize:]
	}
	dropped := 0
	for sub := range h.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		logx.Ctx(context.Background()).Warn("hub event dropped", "type", event.TabEvent, "dropped", dropped)
	}
}
