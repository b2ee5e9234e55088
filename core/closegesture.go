package core

import (
	"fmt"
	"maps"
	"math"
	"sync"
	"time"

	"pkt.systems/tabdeck/schema"
)

// GestureState is the close/select arbitration state of the touch stream.
type GestureState int

const (
	GestureInactive GestureState = iota
	GesturePending
	GestureActive
)

// String returns the string representation of the state.
func (s GestureState) String() string {
	switch s {
	case GestureInactive:
		return "inactive"
	case GesturePending:
		return "pending"
	case GestureActive:
		return "active"
	default:
		return "unknown"
	}
}

type gestureEvent int

const (
	gestureTouchDown gestureEvent = iota
	gestureBeginClose
	gestureRelease
)

func (e gestureEvent) String() string {
	switch e {
	case gestureTouchDown:
		return "touch_down"
	case gestureBeginClose:
		return "begin_close"
	case gestureRelease:
		return "release"
	default:
		return "unknown"
	}
}

var closeTransitions = map[GestureState]map[gestureEvent]GestureState{
	GestureInactive: {gestureTouchDown: GesturePending},
	GesturePending:  {gestureBeginClose: GestureActive, gestureRelease: GestureInactive},
	GestureActive:   {gestureRelease: GestureInactive},
}

// MoveClass classifies a touch move.
type MoveClass int

const (
	MoveIgnore MoveClass = iota
	MoveBeginScroll
	MoveBeginClose
	MoveContinueClose
)

// String returns the string representation of the class.
func (c MoveClass) String() string {
	switch c {
	case MoveIgnore:
		return "ignore"
	case MoveBeginScroll:
		return "begin_scroll"
	case MoveBeginClose:
		return "begin_close"
	case MoveContinueClose:
		return "continue_close"
	default:
		return "unknown"
	}
}

// CloseOutcome is the touch-up classification.
type CloseOutcome int

const (
	CloseNone CloseOutcome = iota
	CloseSelect
	CloseTap
	CloseSwipe
	CloseCancel
)

// String returns the string representation of the outcome.
func (o CloseOutcome) String() string {
	switch o {
	case CloseNone:
		return "none"
	case CloseSelect:
		return "select"
	case CloseTap:
		return "tap_close"
	case CloseSwipe:
		return "swipe_close"
	case CloseCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// CloseResolution is the result of a touch-up.
type CloseResolution struct {
	Outcome CloseOutcome
	TabID   schema.TabID
	// Index is the order index the tab had when the touch resolved.
	Index int
	// DestinationX is the offscreen translate target for close outcomes.
	DestinationX float64
}

type touchState struct {
	start     schema.Point
	startAt   time.Time
	candidate schema.TabID
	index     int
	onClose   bool
}

// GestureCoordinator arbitrates one touch stream on the tab grid between
// native scrolling, tap-select, and drag-to-close.
type GestureCoordinator struct {
	cfg      schema.GestureConfig
	layout   Layout
	registry *Registry
	scroll   *GridScroll

	state  *Cell[GestureState]
	closes *Cell[map[schema.TabID]CloseGestureState]

	mu    sync.Mutex
	touch touchState
}

// NewGestureCoordinator constructs a coordinator over registry and scroll.
func NewGestureCoordinator(cfg schema.ServiceConfig, registry *Registry, scroll *GridScroll) *GestureCoordinator {
	return &GestureCoordinator{
		cfg:      cfg.Gestures,
		layout:   NewLayout(cfg.Layout),
		registry: registry,
		scroll:   scroll,
		state:    NewCell(GestureInactive),
		closes:   NewCell(map[schema.TabID]CloseGestureState{}),
	}
}

// State returns the current arbitration state.
func (g *GestureCoordinator) State() GestureState {
	return g.state.Get()
}

// CloseState returns the close drag state of id, if one exists.
func (g *GestureCoordinator) CloseState(id schema.TabID) (CloseGestureState, bool) {
	st, ok := g.closes.Get()[id]
	return st, ok
}

// Subject returns the tab under an active close drag.
func (g *GestureCoordinator) Subject() (schema.TabID, bool) {
	if g.State() != GestureActive {
		return "", false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.touch.candidate, g.touch.candidate != ""
}

func (g *GestureCoordinator) fire(event gestureEvent) error {
	var err error
	g.state.Update(func(cur GestureState) (GestureState, bool) {
		next, ok := closeTransitions[cur][event]
		if !ok {
			err = fmt.Errorf("%w: %s on %s", schema.ErrInvalidTransition, event, cur)
			return cur, false
		}
		return next, true
	})
	return err
}

// TouchDown records the candidate tab under p. It returns false when a touch
// is already being tracked.
func (g *GestureCoordinator) TouchDown(p schema.Point, at time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fire(gestureTouchDown); err != nil {
		return false
	}
	state := g.registry.State()
	g.touch = touchState{start: p, startAt: at, index: -1}
	if idx, onClose, ok := g.layout.HitTest(p, len(state.Order), g.scroll.ScrollOffset()); ok {
		g.touch.candidate = state.Order[idx]
		g.touch.index = idx
		g.touch.onClose = onClose
	}
	return true
}

// TouchMove classifies the movement to p. Once the touch yields to scrolling
// every later move is ignored. A horizontal drag that starts after the touch
// has rested longer than CloseHoldMax yields too.
func (g *GestureCoordinator) TouchMove(p schema.Point, at time.Time) MoveClass {
	g.mu.Lock()
	defer g.mu.Unlock()
	dx := p.X - g.touch.start.X
	dy := p.Y - g.touch.start.Y
	adx, ady := math.Abs(dx), math.Abs(dy)

	switch g.State() {
	case GestureActive:
		id := g.touch.candidate
		g.setClose(id, CloseGestureState{GestureX: dx, GestureScale: dragScale(adx, g.layout.Config().DeviceWidth), IsActive: true})
		return MoveContinueClose
	case GesturePending:
	default:
		return MoveIgnore
	}

	if ady > g.cfg.ScrollSlop && ady > adx {
		_ = g.fire(gestureRelease)
		return MoveBeginScroll
	}
	if g.touch.candidate == "" {
		if adx > g.cfg.ScrollSlop || ady > g.cfg.ScrollSlop {
			_ = g.fire(gestureRelease)
			return MoveBeginScroll
		}
		return MoveIgnore
	}
	if adx > g.cfg.CloseSlop && adx >= ady {
		if at.Sub(g.touch.startAt) > g.cfg.CloseHoldMax {
			_ = g.fire(gestureRelease)
			return MoveBeginScroll
		}
		if g.registry.State().IndexOf(g.touch.candidate) < 0 {
			return MoveIgnore
		}
		if err := g.fire(gestureBeginClose); err != nil {
			return MoveIgnore
		}
		g.setClose(g.touch.candidate, CloseGestureState{GestureX: dx, GestureScale: 1, IsActive: true})
		return MoveBeginClose
	}
	return MoveIgnore
}

// TouchUp resolves the touch into close, select, cancel, or nothing. Close
// outcomes have already moved the tab into the registry's closing set.
func (g *GestureCoordinator) TouchUp(p schema.Point, v schema.Velocity, at time.Time) CloseResolution {
	g.mu.Lock()
	defer g.mu.Unlock()
	dx := p.X - g.touch.start.X
	dy := p.Y - g.touch.start.Y
	touch := g.touch
	g.touch = touchState{index: -1}

	switch g.State() {
	case GestureActive:
		_ = g.fire(gestureRelease)
		if math.Abs(dx) >= g.cfg.CloseDistance || math.Abs(v.X) >= g.cfg.CloseVelocity {
			return g.commitClose(touch, CloseSwipe, g.swipeDestination(dx, v.X))
		}
		if st, ok := g.CloseState(touch.candidate); ok {
			st.IsActive = false
			st.GestureX = 0
			st.GestureScale = 1
			g.setClose(touch.candidate, st)
		}
		return CloseResolution{Outcome: CloseCancel, TabID: touch.candidate, Index: touch.index}
	case GesturePending:
		_ = g.fire(gestureRelease)
		if touch.candidate == "" {
			return CloseResolution{Outcome: CloseNone, Index: -1}
		}
		if math.Hypot(dx, dy) > g.cfg.TapSlop || at.Sub(touch.startAt) > g.cfg.TapMaxDuration {
			return CloseResolution{Outcome: CloseNone, Index: -1}
		}
		if touch.onClose {
			return g.commitClose(touch, CloseTap, g.tapDestination(touch.index))
		}
		return CloseResolution{Outcome: CloseSelect, TabID: touch.candidate, Index: touch.index}
	default:
		return CloseResolution{Outcome: CloseNone, Index: -1}
	}
}

func (g *GestureCoordinator) commitClose(touch touchState, outcome CloseOutcome, dest float64) CloseResolution {
	index, ok := g.registry.BeginClose(touch.candidate)
	if !ok {
		g.dropClose(touch.candidate)
		return CloseResolution{Outcome: CloseNone, Index: -1}
	}
	scale := 1.0
	if st, ok := g.CloseState(touch.candidate); ok && st.GestureScale > 0 {
		scale = st.GestureScale
	}
	g.setClose(touch.candidate, CloseGestureState{GestureX: dest, GestureScale: scale})
	return CloseResolution{Outcome: outcome, TabID: touch.candidate, Index: index, DestinationX: dest}
}

// CompleteClose finishes a close once its offscreen animation has completed.
// Repeated calls are no-ops.
func (g *GestureCoordinator) CompleteClose(id schema.TabID) (schema.Tab, bool) {
	tab, ok := g.registry.FinishClose(id)
	g.dropClose(id)
	return tab, ok
}

// CompleteCancel discards the close state of id once its snap-back settled.
func (g *GestureCoordinator) CompleteCancel(id schema.TabID) bool {
	if g.registry.State().IsClosing(id) {
		return false
	}
	return g.dropClose(id)
}

// swipeDestination scales the release velocity into an offscreen X target
// bounded by one and two device widths, in the direction of the drag.
func (g *GestureCoordinator) swipeDestination(dx, vx float64) float64 {
	width := g.layout.Config().DeviceWidth
	sign := 1.0
	switch {
	case dx < 0:
		sign = -1
	case dx == 0 && vx < 0:
		sign = -1
	}
	return sign * clamp(math.Abs(vx)*g.cfg.CloseVelocityScale, width, 2*width)
}

// tapDestination sends left-column tabs left and right-column tabs right so
// the exiting tab never crosses its still-open neighbour.
func (g *GestureCoordinator) tapDestination(index int) float64 {
	width := g.layout.Config().DeviceWidth
	if Column(index) == 0 {
		return -width
	}
	return width
}

func (g *GestureCoordinator) setClose(id schema.TabID, st CloseGestureState) {
	g.closes.Update(func(cur map[schema.TabID]CloseGestureState) (map[schema.TabID]CloseGestureState, bool) {
		next := maps.Clone(cur)
		next[id] = st
		return next, true
	})
}

func (g *GestureCoordinator) dropClose(id schema.TabID) bool {
	_, _, changed := g.closes.Update(func(cur map[schema.TabID]CloseGestureState) (map[schema.TabID]CloseGestureState, bool) {
		if _, ok := cur[id]; !ok {
			return cur, false
		}
		next := maps.Clone(cur)
		delete(next, id)
		return next, true
	})
	return changed
}

func dragScale(adx, width float64) float64 {
	if width <= 0 {
		return 1
	}
	return clamp(1-adx/(4*width), 0.8, 1)
}
