package core

import (
	"slices"
	"sync"

	"pkt.systems/tabdeck/schema"
)

// RegistryState is the ordered tab list, the committed active index, and the
// set of tabs animating offscreen. Values are immutable once published.
type RegistryState struct {
	Order   []schema.TabID
	Active  int
	Closing []schema.TabID
}

// IndexOf returns the order index of id or -1.
func (s RegistryState) IndexOf(id schema.TabID) int {
	return slices.Index(s.Order, id)
}

// ActiveID returns the committed active tab id, if any.
func (s RegistryState) ActiveID() (schema.TabID, bool) {
	if s.Active < 0 || s.Active >= len(s.Order) {
		return "", false
	}
	return s.Order[s.Active], true
}

// IsClosing reports whether id is animating offscreen.
func (s RegistryState) IsClosing(id schema.TabID) bool {
	return slices.Contains(s.Closing, id)
}

// Registry owns tab order and the active index. All mutation goes through
// update, the single read-modify-write path over the shared cell.
type Registry struct {
	state *Cell[RegistryState]

	mu   sync.RWMutex
	tabs map[schema.TabID]schema.Tab
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		state: NewCell(RegistryState{Active: schema.NoActiveIndex}),
		tabs:  make(map[schema.TabID]schema.Tab),
	}
}

// State returns the current published state.
func (r *Registry) State() RegistryState {
	return r.state.Get()
}

// Subscribe registers fn for registry changes.
func (r *Registry) Subscribe(fn func(RegistryState, uint64)) func() {
	return r.state.Subscribe(fn)
}

// Len returns the number of open tabs.
func (r *Registry) Len() int {
	return len(r.State().Order)
}

// Tab returns the bookkeeping record for id.
func (r *Registry) Tab(id schema.TabID) (schema.Tab, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tab, ok := r.tabs[id]
	return tab, ok
}

// UpdateTab applies fn to an existing tab record. Missing ids are a no-op.
func (r *Registry) UpdateTab(id schema.TabID, fn func(*schema.Tab)) (schema.Tab, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tab, ok := r.tabs[id]
	if !ok {
		return schema.Tab{}, false
	}
	fn(&tab)
	tab.ID = id
	r.tabs[id] = tab
	return tab, true
}

// Add appends tab to the order. When activate is set, or nothing is active
// yet, the new tab becomes active. Duplicate ids are rejected.
func (r *Registry) Add(tab schema.Tab, activate bool) (int, bool) {
	r.mu.Lock()
	if _, exists := r.tabs[tab.ID]; exists || tab.ID == "" {
		r.mu.Unlock()
		return -1, false
	}
	r.tabs[tab.ID] = tab
	r.mu.Unlock()

	index := -1
	_, _, changed := r.update(func(s RegistryState) (RegistryState, bool) {
		if s.IndexOf(tab.ID) >= 0 || s.IsClosing(tab.ID) {
			return s, false
		}
		s.Order = append(slices.Clone(s.Order), tab.ID)
		index = len(s.Order) - 1
		if activate || s.Active == schema.NoActiveIndex {
			s.Active = index
		}
		return s, true
	})
	if !changed {
		r.mu.Lock()
		delete(r.tabs, tab.ID)
		r.mu.Unlock()
		return -1, false
	}
	return index, true
}

// BeginClose moves id from the order into the closing set and shifts the
// active index so it keeps pointing at a valid tab. It returns the index the
// tab occupied.
func (r *Registry) BeginClose(id schema.TabID) (int, bool) {
	removed := -1
	_, _, changed := r.update(func(s RegistryState) (RegistryState, bool) {
		idx := s.IndexOf(id)
		if idx < 0 {
			return s, false
		}
		removed = idx
		s.Order = slices.Delete(slices.Clone(s.Order), idx, idx+1)
		s.Closing = append(slices.Clone(s.Closing), id)
		s.Active = activeAfterRemoval(s.Active, idx, len(s.Order))
		return s, true
	})
	return removed, changed
}

// FinishClose drops id from the closing set and forgets its record.
func (r *Registry) FinishClose(id schema.TabID) (schema.Tab, bool) {
	_, _, changed := r.update(func(s RegistryState) (RegistryState, bool) {
		idx := slices.Index(s.Closing, id)
		if idx < 0 {
			return s, false
		}
		s.Closing = slices.Delete(slices.Clone(s.Closing), idx, idx+1)
		return s, true
	})
	if !changed {
		return schema.Tab{}, false
	}
	r.mu.Lock()
	tab := r.tabs[id]
	delete(r.tabs, id)
	r.mu.Unlock()
	return tab, true
}

// Activate commits id as the active tab.
func (r *Registry) Activate(id schema.TabID) (int, bool) {
	index := -1
	r.update(func(s RegistryState) (RegistryState, bool) {
		idx := s.IndexOf(id)
		if idx < 0 {
			return s, false
		}
		index = idx
		if s.Active == idx {
			return s, false
		}
		s.Active = idx
		return s, true
	})
	return index, index >= 0
}

// Replace installs a restored tab set. Unknown or duplicate order entries are dropped.
func (r *Registry) Replace(tabs []schema.Tab, active int) RegistryState {
	r.mu.Lock()
	r.tabs = make(map[schema.TabID]schema.Tab, len(tabs))
	order := make([]schema.TabID, 0, len(tabs))
	for _, tab := range tabs {
		if tab.ID == "" {
			continue
		}
		if _, dup := r.tabs[tab.ID]; dup {
			continue
		}
		r.tabs[tab.ID] = tab
		order = append(order, tab.ID)
	}
	r.mu.Unlock()
	if active < 0 || active >= len(order) {
		active = schema.NoActiveIndex
		if len(order) > 0 {
			active = 0
		}
	}
	state, _, _ := r.update(func(RegistryState) (RegistryState, bool) {
		return RegistryState{Order: order, Active: active}, true
	})
	return state
}

// Tabs returns the open tabs in order.
func (r *Registry) Tabs() []schema.Tab {
	state := r.State()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schema.Tab, 0, len(state.Order))
	for _, id := range state.Order {
		if tab, ok := r.tabs[id]; ok {
			out = append(out, tab)
		}
	}
	return out
}

func (r *Registry) update(fn func(RegistryState) (RegistryState, bool)) (RegistryState, uint64, bool) {
	return r.state.Update(fn)
}

func activeAfterRemoval(active, removed, remaining int) int {
	switch {
	case remaining == 0:
		return schema.NoActiveIndex
	case removed < active:
		return active - 1
	case removed == active:
		return min(active, remaining-1)
	default:
		return active
	}
}
