package core

import "pkt.systems/tabdeck/schema"

// EventSink receives tab events from the core service. Implementations must
// not block; events are emitted from the bookkeeping context.
type EventSink interface {
	OnTabEvent(event schema.TabEvent)
}
