package core

import "sync"

// Cell is a versioned value shared between the gesture context and the
// bookkeeping context. Every mutation bumps the version and notifies
// subscribers after the lock is released.
type Cell[T any] struct {
	mu      sync.Mutex
	value   T
	version uint64
	nextSub int
	subs    map[int]func(T, uint64)
}

// NewCell constructs a cell holding initial at version 0.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{value: initial, subs: make(map[int]func(T, uint64))}
}

// Load returns the current value and version.
func (c *Cell[T]) Load() (T, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value, c.version
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	v, _ := c.Load()
	return v
}

// Store replaces the value unconditionally (last write wins).
func (c *Cell[T]) Store(value T) uint64 {
	_, version, _ := c.Update(func(T) (T, bool) { return value, true })
	return version
}

// Update is the read-modify-write path. fn receives the current value and
// returns the replacement plus whether anything changed; unchanged updates do
// not bump the version or notify.
func (c *Cell[T]) Update(fn func(T) (T, bool)) (T, uint64, bool) {
	c.mu.Lock()
	next, changed := fn(c.value)
	if !changed {
		value, version := c.value, c.version
		c.mu.Unlock()
		return value, version, false
	}
	c.value = next
	c.version++
	version := c.version
	subs := make([]func(T, uint64), 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.mu.Unlock()
	for _, sub := range subs {
		sub(next, version)
	}
	return next, version, true
}

// Subscribe registers fn for change notifications and returns a cancel func.
// Subscribers run synchronously on the mutating goroutine and must not block.
func (c *Cell[T]) Subscribe(fn func(T, uint64)) func() {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}
