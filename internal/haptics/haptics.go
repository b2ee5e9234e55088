// Package haptics reports device feedback requests. Hosts without a haptic
// engine log them.
package haptics

import (
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/tabdeck/core"
)

// Logger implements core.Haptics by logging each trigger.
type Logger struct {
	log pslog.Logger

	mu     sync.Mutex
	counts map[core.HapticKind]int
}

var _ core.Haptics = (*Logger)(nil)

// New constructs a logging haptics sink.
func New(logger pslog.Logger) *Logger {
	return &Logger{log: logger, counts: make(map[core.HapticKind]int)}
}

// Trigger records kind and returns immediately.
func (l *Logger) Trigger(kind core.HapticKind) {
	l.mu.Lock()
	l.counts[kind]++
	l.mu.Unlock()
	if l.log != nil {
		l.log.Debug("haptic feedback", "kind", kind)
	}
}

// Count returns how often kind was triggered.
func (l *Logger) Count(kind core.HapticKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[kind]
}
