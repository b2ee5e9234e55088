package core

import (
	"math"
	"sync"
	"sync/atomic"

	"pkt.systems/pslog"
	"pkt.systems/tabdeck/internal/logx"
	"pkt.systems/tabdeck/internal/metrics"
	"pkt.systems/tabdeck/schema"
)

// SwitchOutcome is the resolution of a switch pan gesture.
type SwitchOutcome int

const (
	SwitchSnapBack SwitchOutcome = iota
	SwitchEnter
	SwitchExit
	SwitchNext
	SwitchPrevious
	SwitchTo
	SwitchCreate
)

// String returns the string representation of the outcome.
func (o SwitchOutcome) String() string {
	switch o {
	case SwitchSnapBack:
		return "snap_back"
	case SwitchEnter:
		return "enter"
	case SwitchExit:
		return "exit"
	case SwitchNext:
		return "next"
	case SwitchPrevious:
		return "previous"
	case SwitchTo:
		return "switch"
	case SwitchCreate:
		return "create"
	default:
		return "unknown"
	}
}

// Switches reports whether the outcome moves the active tab.
func (o SwitchOutcome) Switches() bool {
	switch o {
	case SwitchNext, SwitchPrevious, SwitchTo, SwitchCreate:
		return true
	default:
		return false
	}
}

type switchSession struct {
	generation    uint64
	startIndex    int
	startProgress float64
	tx, ty        float64
	live          bool
}

// SwitchGesture drives the horizontal tab switch offset and the vertical tab
// view progress from one pan gesture.
type SwitchGesture struct {
	cfg      schema.GestureConfig
	registry *Registry
	machine  *TabViewMachine
	shots    *Screenshots
	log      pslog.Logger
	metrics  *metrics.Metrics

	// progress is the tab view progress and live the fast-context active
	// index. Both are shared with the owning service.
	progress *Cell[float64]
	live     *Cell[int]
	offset   *Cell[float64]
	inFlight *Cell[bool]

	spawn   func() (schema.Tab, bool)
	entered func()

	generation atomic.Uint64
	// pending is the settle of the most recently ended gesture. Only it may
	// commit; older settles are superseded.
	pending atomic.Pointer[Settle]

	mu      sync.Mutex
	session switchSession
}

type switchConfig struct {
	cfg      schema.ServiceConfig
	registry *Registry
	machine  *TabViewMachine
	shots    *Screenshots
	progress *Cell[float64]
	live     *Cell[int]
	spawn    func() (schema.Tab, bool)
	entered  func()
	log      pslog.Logger
	metrics  *metrics.Metrics
}

func newSwitchGesture(c switchConfig) *SwitchGesture {
	return &SwitchGesture{
		cfg:      c.cfg.Gestures,
		registry: c.registry,
		machine:  c.machine,
		shots:    c.shots,
		log:      c.log,
		metrics:  c.metrics,
		progress: c.progress,
		live:     c.live,
		offset:   NewCell(0.0),
		inFlight: NewCell(false),
		spawn:    c.spawn,
		entered:  c.entered,
	}
}

// Offset returns the live horizontal switch translation.
func (g *SwitchGesture) Offset() float64 {
	return g.offset.Get()
}

// InFlight reports whether a switch gesture or its settle is in progress.
func (g *SwitchGesture) InFlight() bool {
	return g.inFlight.Get()
}

// Generation returns the generation of the most recent gesture.
func (g *SwitchGesture) Generation() uint64 {
	return g.generation.Load()
}

// Begin starts a new pan gesture, preempting any settle still animating, and
// schedules a capture of the tab being left.
func (g *SwitchGesture) Begin() uint64 {
	gen := g.generation.Add(1)
	state := g.registry.State()
	start := g.live.Get()
	if start < 0 || start > len(state.Order) {
		start = state.Active
	}
	progress := g.progress.Get()

	g.mu.Lock()
	g.session = switchSession{generation: gen, startIndex: start, startProgress: progress, live: true}
	g.mu.Unlock()

	if _, err := g.machine.Fire(TabViewGestureStart, progress); err != nil {
		logx.WithGesture(g.log, "switch", gen).Trace("tab view gesture start ignored", "err", err)
	}
	g.offset.Store(0)
	g.inFlight.Store(true)

	if start >= 0 && start < len(state.Order) && g.shots != nil {
		g.shots.Trigger(state.Order[start], CaptureSwitchAway)
	}
	return gen
}

// Update applies the cumulative pan translation. Progress is capped below
// the grid while the finger is down.
func (g *SwitchGesture) Update(tx, ty float64) {
	g.mu.Lock()
	if !g.session.live {
		g.mu.Unlock()
		return
	}
	g.session.tx, g.session.ty = tx, ty
	start := g.session.startProgress
	g.mu.Unlock()

	g.offset.Store(tx)
	progress := start + (-ty/g.cfg.VerticalRange)*schema.MaxTabViewProgress
	g.progress.Store(clamp(progress, 0, g.cfg.LiveProgressCeiling))
}

// End resolves the gesture from the release velocity. The live active index
// is written immediately; the registry write waits for Settle.Complete.
func (g *SwitchGesture) End(vx, vy float64) *Settle {
	g.mu.Lock()
	session := g.session
	g.session.live = false
	g.mu.Unlock()

	state := g.registry.State()
	count := len(state.Order)
	progress := g.progress.Get()
	outcome, target := g.resolve(session, state, progress, vx, vy)

	settle := &Settle{
		gesture:    g,
		Generation: session.generation,
		Outcome:    outcome,
		Intended:   target,
	}
	// A gesture that starts on a pending create and stays on its slot adopts
	// that create instead of adding a second one; the earlier settle is
	// superseded once this one is pending.
	adopts := target == count && session.startIndex == count
	switch {
	case outcome == SwitchCreate || adopts:
		settle.create = true
	case target >= 0 && target < count:
		settle.TabID = state.Order[target]
	}
	switch outcome {
	case SwitchEnter:
		settle.TargetProgress = schema.MaxTabViewProgress
		settle.viewState = g.fireResolve(TabViewResolveEnter, session.generation)
	case SwitchCreate:
		settle.viewState = g.fireResolve(TabViewResolveExit, session.generation)
	default:
		// A slow release settles toward whichever end the progress is closer to.
		if outcome == SwitchSnapBack && progress >= schema.MaxTabViewProgress/2 {
			settle.TargetProgress = schema.MaxTabViewProgress
			settle.viewState = g.fireResolve(TabViewResolveEnter, session.generation)
			break
		}
		settle.viewState = g.fireResolve(TabViewResolveExit, session.generation)
	}

	g.pending.Store(settle)
	g.live.Store(target)
	g.metrics.GestureResolved("switch", outcome.String())
	logx.WithGesture(g.log, "switch", session.generation).Debug("switch gesture resolved",
		"outcome", outcome, "from", session.startIndex, "to", target, "vx", vx, "vy", vy, "progress", progress)
	return settle
}

// resolve runs the release decision tree: dominant vertical velocity first,
// then dominant horizontal velocity, then the resting position.
func (g *SwitchGesture) resolve(session switchSession, state RegistryState, progress, vx, vy float64) (SwitchOutcome, int) {
	count := len(state.Order)
	current := session.startIndex
	if current < 0 {
		current = 0
	}

	avx, avy := math.Abs(vx), math.Abs(vy)
	if avy*g.cfg.AxisRatio > avx && avy >= g.cfg.VerticalVelocity {
		if vy < 0 {
			return SwitchEnter, current
		}
		if progress > 0 {
			return SwitchExit, current
		}
	}

	if avx >= avy && avx >= g.cfg.HorizontalVelocity && progress < g.cfg.SurroundingTabsHiddenProgress {
		if vx > 0 {
			if current+1 >= count {
				return SwitchCreate, count
			}
			return SwitchNext, current + 1
		}
		if current > 0 {
			return SwitchPrevious, current - 1
		}
		return SwitchSnapBack, current
	}

	if g.cfg.TabWidth <= 0 {
		return SwitchSnapBack, current
	}
	target := session.startIndex + int(math.Round(session.tx/g.cfg.TabWidth))
	target = max(0, min(target, count))
	switch {
	case target == count:
		return SwitchCreate, count
	case target != current:
		return SwitchTo, target
	default:
		return SwitchSnapBack, current
	}
}

func (g *SwitchGesture) fireResolve(event TabViewEvent, gen uint64) TabViewState {
	next, err := g.machine.Fire(event, g.progress.Get())
	if err != nil {
		logx.WithGesture(g.log, "switch", gen).Trace("tab view resolve ignored", "err", err)
	}
	return next
}

// Settle is the deferred completion of a resolved switch gesture.
type Settle struct {
	gesture *SwitchGesture

	Generation uint64
	Outcome    SwitchOutcome
	// Intended is the active index this settle commits.
	Intended int
	// TabID is the tab the settle commits, empty for creates.
	TabID          schema.TabID
	TargetProgress float64

	create    bool
	viewState TabViewState
	done      atomic.Bool
}

// Complete applies the settle once its animation has finished. It is a no-op
// when called again, and discards itself when a newer gesture has ended
// since. Registry changes alone never discard it: the commit is by tab id.
func (s *Settle) Complete() bool {
	if s == nil || !s.done.CompareAndSwap(false, true) {
		return false
	}
	g := s.gesture
	log := logx.WithGesture(g.log, "switch", s.Generation)
	current := g.generation.Load() == s.Generation
	if current {
		g.offset.Store(0)
		g.inFlight.Store(false)
	}

	if newest := g.pending.Load(); newest != s {
		log.Debug("stale switch settle discarded", "intended", s.Intended, "newer", newest.Generation)
		g.metrics.SettleDiscarded()
		return false
	}

	switch {
	case s.create:
		tab, ok := g.spawn()
		if !ok {
			log.Warn("switch create failed")
			g.resync()
			return false
		}
		log.Debug("switch created tab", "tab", tab.ID)
	case s.TabID != "":
		if _, ok := g.registry.Activate(s.TabID); !ok {
			log.Debug("switch settle cancelled", "tab", s.TabID, "err", schema.ErrTabNotFound)
			g.resync()
			if s.Outcome.Switches() {
				return false
			}
		}
	}

	if current && g.machine.State() == s.viewState {
		g.progress.Store(s.TargetProgress)
		if _, err := g.machine.Fire(TabViewSettleComplete, s.TargetProgress); err != nil {
			log.Trace("tab view settle ignored", "err", err)
		}
		if s.viewState == TabViewEntering {
			if g.entered != nil {
				g.entered()
			}
			if id, ok := g.registry.State().ActiveID(); ok && g.shots != nil {
				g.shots.Trigger(id, CaptureTabViewEntered)
			}
		}
	}
	return true
}

// resync points the live index back at the committed one.
func (g *SwitchGesture) resync() {
	g.live.Store(g.registry.State().Active)
}

// Reconcile moves the live index after a registry publish. While a settle is
// pending the live index follows its target tab, or the slot past the end for
// a pending create, so removals elsewhere only shift it. Otherwise it mirrors
// the committed index.
func (g *SwitchGesture) Reconcile(state RegistryState) {
	p := g.pending.Load()
	if p == nil || p.done.Load() {
		g.live.Store(state.Active)
		return
	}
	if p.create {
		g.live.Store(len(state.Order))
		return
	}
	if idx := state.IndexOf(p.TabID); idx >= 0 {
		g.live.Store(idx)
		return
	}
	g.live.Store(state.Active)
}
