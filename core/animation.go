package core

import (
	"fmt"
	"math"

	"pkt.systems/tabdeck/schema"
)

// TabViewState tracks the tab view transition driven by pan gestures.
type TabViewState int

const (
	TabViewInactive TabViewState = iota
	TabViewActive
	TabViewEntering
	TabViewExiting
)

// String returns the string representation of the state.
func (s TabViewState) String() string {
	switch s {
	case TabViewInactive:
		return "INACTIVE"
	case TabViewActive:
		return "ACTIVE"
	case TabViewEntering:
		return "DRAG_END_ENTERING"
	case TabViewExiting:
		return "DRAG_END_EXITING"
	default:
		return "unknown"
	}
}

// TabViewEvent drives TabViewMachine.
type TabViewEvent int

const (
	TabViewGestureStart TabViewEvent = iota
	TabViewResolveEnter
	TabViewResolveExit
	TabViewSettleComplete
)

// String returns the string representation of the event.
func (e TabViewEvent) String() string {
	switch e {
	case TabViewGestureStart:
		return "gesture_start"
	case TabViewResolveEnter:
		return "resolve_enter"
	case TabViewResolveExit:
		return "resolve_exit"
	case TabViewSettleComplete:
		return "settle_complete"
	default:
		return "unknown"
	}
}

// Resolve events from INACTIVE come from button-driven transitions that never
// had a live gesture.
var tabViewTransitions = map[TabViewState]map[TabViewEvent]TabViewState{
	TabViewInactive: {
		TabViewGestureStart: TabViewActive,
		TabViewResolveEnter: TabViewEntering,
		TabViewResolveExit:  TabViewExiting,
	},
	TabViewActive: {
		TabViewResolveEnter: TabViewEntering,
		TabViewResolveExit:  TabViewExiting,
	},
	TabViewEntering: {
		TabViewGestureStart:   TabViewActive,
		TabViewSettleComplete: TabViewInactive,
	},
	TabViewExiting: {
		TabViewGestureStart:   TabViewActive,
		TabViewSettleComplete: TabViewInactive,
	},
}

// terminalProgress is the progress a settling state must reach before it may
// return to INACTIVE.
func terminalProgress(s TabViewState) (float64, bool) {
	switch s {
	case TabViewEntering:
		return schema.MaxTabViewProgress, true
	case TabViewExiting:
		return 0, true
	default:
		return 0, false
	}
}

// TabViewMachine is the explicit tab view transition state machine.
type TabViewMachine struct {
	state *Cell[TabViewState]
}

// NewTabViewMachine constructs a machine in INACTIVE.
func NewTabViewMachine() *TabViewMachine {
	return &TabViewMachine{state: NewCell(TabViewInactive)}
}

// State returns the current state.
func (m *TabViewMachine) State() TabViewState {
	return m.state.Get()
}

// Fire applies event. progress is the current tab view progress and is only
// consulted for SettleComplete. Rejected events leave the state untouched.
func (m *TabViewMachine) Fire(event TabViewEvent, progress float64) (TabViewState, error) {
	var err error
	next, _, _ := m.state.Update(func(cur TabViewState) (TabViewState, bool) {
		to, ok := tabViewTransitions[cur][event]
		if !ok {
			err = fmt.Errorf("%w: %s on %s", schema.ErrInvalidTransition, event, cur)
			return cur, false
		}
		if event == TabViewSettleComplete {
			if want, ok := terminalProgress(cur); ok && progress != want {
				err = fmt.Errorf("%w: %s at progress %v", schema.ErrInvalidTransition, cur, progress)
				return cur, false
			}
		}
		return to, true
	})
	return next, err
}

// CloseGestureState is the ephemeral per-tab state of a close drag.
type CloseGestureState struct {
	GestureScale float64
	GestureX     float64
	IsActive     bool
}

// FrameInput is everything DeriveTabFrame needs for one open tab.
type FrameInput struct {
	Index       int
	Count       int
	ActiveIndex int
	// Progress is the tab view progress, 0 zoomed to 100 grid.
	Progress float64
	IsActive bool
	// IsGestureSubject marks the tab under an active close drag.
	IsGestureSubject bool
	IsClosing        bool
	// SwitchOffset is the live horizontal switch translation; positive advances.
	SwitchOffset   float64
	SwitchInFlight bool
	Close          CloseGestureState
	ScrollY        float64
}

// Frame is the visual transform of one tab.
type Frame struct {
	Opacity      float64
	TranslateX   float64
	TranslateY   float64
	Scale        float64
	BorderRadius float64
	ZIndex       int
}

// Hidden reports whether the frame draws nothing.
func (f Frame) Hidden() bool {
	return f.Opacity == 0 || f.Scale == 0
}

const (
	zActiveWeight  = 1000
	zSubjectWeight = 2000
	zClosingWeight = 3000
	zScaleWeight   = 100
)

// DeriveTabFrame computes a tab's transform. It is a pure function of its inputs.
func DeriveTabFrame(in FrameInput, layout Layout, gestures schema.GestureConfig) Frame {
	cfg := layout.Config()
	p := clamp(in.Progress/schema.MaxTabViewProgress, 0, 1)

	if p == 0 && !in.IsActive && !in.SwitchInFlight && !in.IsClosing && !in.IsGestureSubject {
		return Frame{}
	}

	gridScale := cfg.MultiTabScale
	if in.Count <= 1 {
		gridScale = cfg.SingleTabScale
	}

	cell := layout.CellRect(in.Index, in.ScrollY)
	gridX := cell.X + cell.W/2 - cfg.DeviceWidth/2
	gridY := cell.Y + cell.H/2 - cfg.DeviceHeight/2
	zoomX := float64(in.Index-in.ActiveIndex)*gestures.TabWidth - in.SwitchOffset

	frame := Frame{
		TranslateX:   lerp(zoomX, gridX, p),
		TranslateY:   lerp(0, gridY, p),
		Scale:        lerp(1, gridScale, p),
		BorderRadius: lerp(cfg.ZoomedBorderRadius, cfg.GridBorderRadius, p),
		Opacity:      1,
	}
	if !in.IsActive && !in.SwitchInFlight && !in.IsClosing {
		frame.Opacity = clamp(in.Progress/gestures.SurroundingTabsHiddenProgress, 0, 1)
	}
	if in.Close.IsActive || in.IsClosing || in.IsGestureSubject {
		frame.TranslateX += in.Close.GestureX
		if in.Close.GestureScale > 0 {
			frame.Scale *= in.Close.GestureScale
		}
	}

	z := int(math.Round(frame.Scale * zScaleWeight))
	if in.IsActive {
		z += zActiveWeight
	}
	if in.IsGestureSubject {
		z += zSubjectWeight
	}
	if in.IsClosing {
		z += zClosingWeight
	}
	frame.ZIndex = z
	return frame
}

func lerp(from, to, t float64) float64 {
	return from + (to-from)*t
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
