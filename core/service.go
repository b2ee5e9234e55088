package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"pkt.systems/pslog"
	"pkt.systems/tabdeck/internal/logx"
	"pkt.systems/tabdeck/internal/metrics"
	"pkt.systems/tabdeck/schema"
)

// service implements the core service behavior.
type service struct {
	cfg      schema.ServiceConfig
	layout   Layout
	registry *Registry
	mailbox  *Mailbox
	machine  *TabViewMachine
	scroll   *GridScroll
	closer   *GestureCoordinator
	switcher *SwitchGesture
	shots    *Screenshots

	// progress is the tab view progress; live is the fast-context active
	// index that runs ahead of the registry during a switch settle.
	progress *Cell[float64]
	live     *Cell[int]

	engine  Engine
	store   TabStore
	haptics Haptics
	sink    EventSink
	metrics *metrics.Metrics
	logger  pslog.Logger
	now     func() time.Time
	newID   func() schema.TabID

	limiter     *rate.Limiter
	dirty       atomic.Bool
	unsubscribe func()

	mu          sync.Mutex
	lastActive  schema.TabID
	closingFrom map[schema.TabID]int
}

// NewService constructs the core service implementation.
func NewService(cfg schema.ServiceConfig, deps ServiceDeps) (Service, error) {
	normalized, err := schema.NormalizeServiceConfig(cfg)
	if err != nil {
		return nil, err
	}
	cfg = normalized
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	newID := deps.NewTabID
	if newID == nil {
		newID = newTabID
	}

	s := &service{
		cfg:         cfg,
		layout:      NewLayout(cfg.Layout),
		registry:    NewRegistry(),
		machine:     NewTabViewMachine(),
		progress:    NewCell(0.0),
		live:        NewCell(schema.NoActiveIndex),
		engine:      deps.Engine,
		store:       deps.TabStore,
		haptics:     deps.Haptics,
		sink:        deps.EventSink,
		metrics:     deps.Metrics,
		logger:      logger,
		now:         now,
		newID:       newID,
		limiter:     rate.NewLimiter(rate.Every(cfg.Persist.MinInterval), 1),
		closingFrom: make(map[schema.TabID]int),
	}
	s.mailbox = NewMailbox(cfg.MailboxDepth, logger)
	s.mailbox.onDrop = s.metrics.Dropped
	s.scroll = NewGridScroll(cfg, 0)
	s.closer = NewGestureCoordinator(cfg, s.registry, s.scroll)
	s.shots, err = newScreenshots(screenshotsConfig{
		cfg:      cfg,
		registry: s.registry,
		engine:   deps.Engine,
		storage:  deps.Screenshots,
		mailbox:  s.mailbox,
		now:      now,
		log:      logger,
		metrics:  deps.Metrics,
		publish:  s.screenshotPublished,
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot cache: %w", err)
	}
	s.switcher = newSwitchGesture(switchConfig{
		cfg:      cfg,
		registry: s.registry,
		machine:  s.machine,
		shots:    s.shots,
		progress: s.progress,
		live:     s.live,
		spawn:    func() (schema.Tab, bool) { return s.spawnTab(cfg.HomeURL, true) },
		entered:  s.centerActive,
		log:      logger,
		metrics:  deps.Metrics,
	})
	s.unsubscribe = s.registry.Subscribe(s.registryChanged)
	if deps.Engine != nil {
		deps.Engine.Listen(s)
	}
	return s, nil
}

// registryChanged runs on every registry publish, on whichever context
// mutated it. It only touches cells and posts background work.
func (s *service) registryChanged(state RegistryState, _ uint64) {
	s.switcher.Reconcile(state)
	s.scroll.SetTabCount(len(state.Order))
	s.metrics.Tabs(len(state.Order), len(state.Closing))

	activeID, _ := state.ActiveID()
	s.mu.Lock()
	changed := activeID != s.lastActive
	s.lastActive = activeID
	s.mu.Unlock()
	if changed && activeID != "" {
		s.emit(schema.TabEventActivated, activeID)
	}
	s.markDirty()
}

// Tab lifecycle.

func (s *service) NewTab(ctx context.Context, req schema.NewTabRequest) (schema.NewTabResponse, error) {
	if ctx == nil {
		return schema.NewTabResponse{}, errors.New("missing context")
	}
	url := req.URL
	if url == "" {
		url = s.cfg.HomeURL
	}
	tab, ok := s.spawnTab(url, req.Activate)
	if !ok {
		return schema.NewTabResponse{}, schema.ErrDuplicateTab
	}
	logx.Tab(pslog.Ctx(ctx), tab.ID).Info("service tab created", "url", url, "active", req.Activate)
	return schema.NewTabResponse{Tab: s.snapshot(tab, s.registry.State())}, nil
}

// spawnTab registers a tab and schedules the engine to open it.
func (s *service) spawnTab(url string, activate bool) (schema.Tab, bool) {
	tab := schema.Tab{ID: s.newID(), URL: url}
	if _, ok := s.registry.Add(tab, activate); !ok {
		s.logger.Warn("service tab create rejected", "tab", tab.ID, "err", schema.ErrDuplicateTab)
		return schema.Tab{}, false
	}
	s.post("open", func(ctx context.Context) {
		if s.engine == nil {
			return
		}
		if err := s.engine.Open(ctx, tab.ID, url); err != nil {
			logx.Tab(s.logger, tab.ID).Warn("engine open failed", "err", err)
		}
	})
	s.emit(schema.TabEventCreated, tab.ID)
	return tab, true
}

func (s *service) CloseTab(ctx context.Context, req schema.CloseTabRequest) (schema.CloseTabResponse, error) {
	if ctx == nil {
		return schema.CloseTabResponse{}, errors.New("missing context")
	}
	tab, ok := s.registry.Tab(req.TabID)
	if !ok {
		return schema.CloseTabResponse{}, schema.ErrTabNotFound
	}
	snap := s.snapshot(tab, s.registry.State())
	index, ok := s.registry.BeginClose(req.TabID)
	if !ok {
		return schema.CloseTabResponse{}, schema.ErrTabNotFound
	}
	s.rememberClosing(req.TabID, index)
	s.emit(schema.TabEventClosing, req.TabID)
	s.CompleteClose(req.TabID)
	logx.Tab(pslog.Ctx(ctx), req.TabID).Info("service tab closed", "index", index)
	snap.Closing = true
	return schema.CloseTabResponse{Tab: snap}, nil
}

func (s *service) ActivateTab(ctx context.Context, req schema.ActivateTabRequest) (schema.ActivateTabResponse, error) {
	if ctx == nil {
		return schema.ActivateTabResponse{}, errors.New("missing context")
	}
	if _, ok := s.registry.Activate(req.TabID); !ok {
		return schema.ActivateTabResponse{}, schema.ErrTabNotFound
	}
	tab, _ := s.registry.Tab(req.TabID)
	return schema.ActivateTabResponse{Tab: s.snapshot(tab, s.registry.State())}, nil
}

func (s *service) ListTabs(ctx context.Context, _ schema.ListTabsRequest) (schema.ListTabsResponse, error) {
	if ctx == nil {
		return schema.ListTabsResponse{}, errors.New("missing context")
	}
	return schema.ListTabsResponse{List: s.listSnapshot()}, nil
}

func (s *service) Screenshot(ctx context.Context, id schema.TabID) (schema.ScreenshotRecord, error) {
	if ctx == nil {
		return schema.ScreenshotRecord{}, errors.New("missing context")
	}
	tab, ok := s.registry.Tab(id)
	if !ok {
		return schema.ScreenshotRecord{}, schema.ErrTabNotFound
	}
	rec, ok := s.shots.Record(id)
	if !ok || !IsValid(rec, tab, s.now(), s.cfg.Screenshots.MaxAge) {
		return schema.ScreenshotRecord{}, schema.ErrScreenshotNotFound
	}
	return rec, nil
}

// Tab view.

func (s *service) ShowTabView(ctx context.Context, _ schema.TabViewRequest) (schema.TabViewResponse, error) {
	if ctx == nil {
		return schema.TabViewResponse{}, errors.New("missing context")
	}
	if err := s.settleTabView(true); err != nil {
		return schema.TabViewResponse{}, err
	}
	return s.tabViewResponse(), nil
}

func (s *service) HideTabView(ctx context.Context, _ schema.TabViewRequest) (schema.TabViewResponse, error) {
	if ctx == nil {
		return schema.TabViewResponse{}, errors.New("missing context")
	}
	if err := s.settleTabView(false); err != nil {
		return schema.TabViewResponse{}, err
	}
	return s.tabViewResponse(), nil
}

// settleTabView runs a button-driven transition through the tab view machine
// and settles it at its terminal progress.
func (s *service) settleTabView(enter bool) error {
	event, target := TabViewResolveExit, 0.0
	if enter {
		event, target = TabViewResolveEnter, schema.MaxTabViewProgress
	}
	if s.progress.Get() == target && s.machine.State() == TabViewInactive {
		return nil
	}
	if _, err := s.machine.Fire(event, s.progress.Get()); err != nil {
		return err
	}
	s.progress.Store(target)
	if _, err := s.machine.Fire(TabViewSettleComplete, target); err != nil {
		return err
	}
	if enter {
		s.centerActive()
		if id, ok := s.registry.State().ActiveID(); ok {
			s.shots.Trigger(id, CaptureTabViewEntered)
		}
	}
	return nil
}

func (s *service) tabViewResponse() schema.TabViewResponse {
	return schema.TabViewResponse{
		Visible:      s.TabViewVisible(),
		Progress:     s.progress.Get(),
		ScrollOffset: s.scroll.ScrollOffset(),
	}
}

// centerActive scrolls the grid so the committed active tab's row is centred.
func (s *service) centerActive() {
	state := s.registry.State()
	offset := s.scroll.ScrollToCenter(state.Active, len(state.Order), s.cfg.Layout.DeviceHeight)
	s.scroll.SetScrollOffset(offset)
}

// Restore.

func (s *service) Restore(ctx context.Context, _ schema.RestoreRequest) (schema.RestoreResponse, error) {
	if ctx == nil {
		return schema.RestoreResponse{}, errors.New("missing context")
	}
	log := pslog.Ctx(ctx)
	if s.store == nil {
		return schema.RestoreResponse{List: s.listSnapshot()}, nil
	}
	saved, ok, err := s.store.Load(ctx)
	if err != nil {
		log.Warn("service restore failed", "err", err)
		return schema.RestoreResponse{}, fmt.Errorf("restore tabs: %w", err)
	}
	if !ok || len(saved.Order) == 0 {
		log.Info("service restore empty")
		return schema.RestoreResponse{List: s.listSnapshot()}, nil
	}
	urls := make(map[schema.TabID]string, len(saved.Tabs))
	for _, tab := range saved.Tabs {
		urls[tab.ID] = tab.URL
	}
	tabs := make([]schema.Tab, 0, len(saved.Order))
	for _, id := range saved.Order {
		url, ok := urls[id]
		if !ok {
			continue
		}
		tabs = append(tabs, schema.Tab{ID: id, URL: url})
	}
	state := s.registry.Replace(tabs, saved.Active)
	hydrated := s.shots.Hydrate(ctx, state.Order)
	for _, tab := range s.registry.Tabs() {
		if s.engine == nil {
			break
		}
		if err := s.engine.Open(ctx, tab.ID, tab.URL); err != nil {
			logx.Tab(log, tab.ID).Warn("engine open failed", "err", err)
		}
	}
	log.Info("service restore complete", "tabs", len(state.Order), "active", state.Active, "screenshots", hydrated)
	return schema.RestoreResponse{List: s.listSnapshot(), Restored: true, Screenshots: hydrated}, nil
}

// Engine callbacks.

func (s *service) OnNavigation(id schema.TabID, nav schema.Navigation) {
	_, ok := s.registry.UpdateTab(id, func(tab *schema.Tab) {
		tab.URL = nav.URL
		tab.CanGoBack = nav.CanGoBack
		tab.CanGoForward = nav.CanGoForward
	})
	if !ok {
		return
	}
	logx.Tab(s.logger, id).Debug("tab navigated", "url", nav.URL)
	s.emit(schema.TabEventUpdated, id)
	s.markDirty()
}

func (s *service) OnLoadProgress(id schema.TabID, progress float64) {
	progress = clamp(progress, 0, 1)
	prev, ok := s.registry.Tab(id)
	if !ok {
		return
	}
	s.registry.UpdateTab(id, func(tab *schema.Tab) { tab.Progress = progress })
	if progress == 1 && prev.Progress != 1 {
		s.emit(schema.TabEventUpdated, id)
	}
}

// Gestures.

func (s *service) TouchDown(p schema.Point, at time.Time) bool {
	return s.closer.TouchDown(p, at)
}

func (s *service) TouchMove(p schema.Point, at time.Time) MoveClass {
	return s.closer.TouchMove(p, at)
}

func (s *service) TouchUp(p schema.Point, v schema.Velocity, at time.Time) CloseResolution {
	res := s.closer.TouchUp(p, v, at)
	if res.Outcome != CloseNone {
		s.metrics.GestureResolved("close", res.Outcome.String())
	}
	switch res.Outcome {
	case CloseTap, CloseSwipe:
		s.rememberClosing(res.TabID, res.Index)
		s.emit(schema.TabEventClosing, res.TabID)
		if res.Outcome == CloseTap && s.haptics != nil {
			s.post("haptics", func(context.Context) { s.haptics.Trigger(HapticTabClose) })
		}
	case CloseSelect:
		if _, ok := s.registry.Activate(res.TabID); ok {
			if err := s.settleTabView(false); err != nil {
				logx.Tab(s.logger, res.TabID).Debug("tab view exit ignored", "err", err)
			}
		}
	}
	return res
}

// CompleteClose removes a closing tab. The last tab closing is replaced with
// a fresh home tab.
func (s *service) CompleteClose(id schema.TabID) bool {
	tab, ok := s.closer.CompleteClose(id)
	if !ok {
		return false
	}
	s.mu.Lock()
	delete(s.closingFrom, id)
	s.mu.Unlock()
	s.post("close", func(ctx context.Context) {
		s.shots.Evict(ctx, id)
		if s.engine != nil {
			if err := s.engine.Close(ctx, id); err != nil {
				logx.Tab(s.logger, id).Warn("engine close failed", "err", err)
			}
		}
		s.deliver(schema.TabEvent{
			Type:        schema.TabEventClosed,
			Tab:         schema.TabSnapshot{ID: id, URL: tab.URL, Index: -1, Closing: true},
			ActiveIndex: s.registry.State().Active,
		})
	})
	state := s.registry.State()
	if len(state.Order) == 0 && len(state.Closing) == 0 {
		s.spawnTab(s.cfg.HomeURL, true)
	}
	return true
}

func (s *service) CompleteCancel(id schema.TabID) bool {
	return s.closer.CompleteCancel(id)
}

func (s *service) BeginSwitch() uint64 {
	return s.switcher.Begin()
}

func (s *service) UpdateSwitch(tx, ty float64) {
	s.switcher.Update(tx, ty)
}

func (s *service) EndSwitch(vx, vy float64) *Settle {
	return s.switcher.End(vx, vy)
}

func (s *service) SetScrollOffset(y float64) {
	s.scroll.SetScrollOffset(y)
}

func (s *service) StepScroll(dt time.Duration) float64 {
	return s.scroll.Step(dt)
}

func (s *service) JitterCorrection(reportedHeight float64, atEnd bool) float64 {
	return s.scroll.JitterCorrection(reportedHeight, atEnd)
}

func (s *service) Progress() float64 {
	return s.progress.Get()
}

func (s *service) TabViewState() TabViewState {
	return s.machine.State()
}

func (s *service) TabViewVisible() bool {
	return s.progress.Get() >= schema.MaxTabViewProgress
}

func (s *service) LiveActiveIndex() int {
	return s.live.Get()
}

// Frames derives the frame of every open tab followed by the closing ones.
func (s *service) Frames() []TabFrame {
	state := s.registry.State()
	progress := s.progress.Get()
	live := s.live.Get()
	scrollY := s.scroll.ScrollOffset()
	offset := s.switcher.Offset()
	switching := s.switcher.InFlight()
	subject, _ := s.closer.Subject()
	visible := progress >= schema.MaxTabViewProgress

	frames := make([]TabFrame, 0, len(state.Order)+len(state.Closing))
	add := func(id schema.TabID, index int, closing bool) {
		tab, ok := s.registry.Tab(id)
		if !ok {
			return
		}
		closeState, _ := s.closer.CloseState(id)
		in := FrameInput{
			Index:            index,
			Count:            len(state.Order),
			ActiveIndex:      live,
			Progress:         progress,
			IsActive:         !closing && index == live,
			IsGestureSubject: id == subject,
			IsClosing:        closing,
			SwitchOffset:     offset,
			SwitchInFlight:   switching,
			Close:            closeState,
			ScrollY:          scrollY,
		}
		frame := TabFrame{ID: id, Index: index, Frame: DeriveTabFrame(in, s.layout, s.cfg.Gestures)}
		if rec, ok := s.shots.ShouldShow(tab, in.IsActive, visible); ok {
			frame.Screenshot = rec.URI
		}
		frames = append(frames, frame)
	}
	for i, id := range state.Order {
		add(id, i, false)
	}
	s.mu.Lock()
	closing := make(map[schema.TabID]int, len(s.closingFrom))
	for id, index := range s.closingFrom {
		closing[id] = index
	}
	s.mu.Unlock()
	for _, id := range state.Closing {
		if index, ok := closing[id]; ok {
			add(id, index, true)
		}
	}
	return frames
}

func (s *service) rememberClosing(id schema.TabID, index int) {
	if id == "" || index < 0 {
		return
	}
	s.mu.Lock()
	s.closingFrom[id] = index
	s.mu.Unlock()
}

// Background work.

func (s *service) Run(ctx context.Context) error {
	if ctx == nil {
		return errors.New("missing context")
	}
	log := pslog.Ctx(ctx)
	log.Info("service worker start", "mailbox_depth", s.cfg.MailboxDepth)
	go func() {
		ticker := time.NewTicker(s.cfg.Persist.ReconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if s.dirty.Load() {
					s.post("persist", func(ctx context.Context) { s.persist(ctx, true) })
				}
			}
		}
	}()
	s.mailbox.Run(ctx)
	s.persist(context.WithoutCancel(ctx), true)
	log.Info("service worker stop")
	return nil
}

func (s *service) Drain(ctx context.Context) int {
	return s.mailbox.Drain(ctx)
}

func (s *service) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.mailbox.Close()
}

func (s *service) post(name string, run func(ctx context.Context)) {
	if err := s.mailbox.Post(Job{Name: name, Run: run}); err != nil && !errors.Is(err, schema.ErrMailboxFull) {
		s.logger.Debug("background job rejected", "job", name, "err", err)
	}
}

// markDirty flags the tab list for persistence and schedules one
// reconciliation unless one is already pending.
func (s *service) markDirty() {
	if s.store == nil {
		return
	}
	if s.dirty.CompareAndSwap(false, true) {
		s.post("persist", func(ctx context.Context) { s.persist(ctx, false) })
	}
}

// persist writes the tab list when dirty. Unforced writes are throttled; a
// throttled write stays dirty for the periodic reconcile.
func (s *service) persist(ctx context.Context, force bool) {
	if s.store == nil || !s.dirty.Load() {
		return
	}
	if !force && !s.limiter.Allow() {
		return
	}
	s.dirty.Store(false)
	state := s.registry.State()
	saved := schema.SavedTabs{Order: state.Order, Active: state.Active}
	for _, tab := range s.registry.Tabs() {
		saved.Tabs = append(saved.Tabs, schema.SavedTab{ID: tab.ID, URL: tab.URL})
	}
	if err := s.store.Save(ctx, saved); err != nil {
		s.dirty.Store(true)
		s.metrics.StoreSave("failed")
		s.logger.Warn("tab store save failed", "err", err)
		return
	}
	s.metrics.StoreSave("ok")
	s.logger.Trace("tab store saved", "tabs", len(saved.Order))
}

// Events.

func (s *service) emit(kind schema.TabEventType, id schema.TabID) {
	if s.sink == nil {
		return
	}
	s.post("emit", func(context.Context) {
		state := s.registry.State()
		tab, ok := s.registry.Tab(id)
		if !ok {
			tab = schema.Tab{ID: id}
		}
		activeID, _ := state.ActiveID()
		s.deliver(schema.TabEvent{Type: kind, Tab: s.snapshot(tab, state), ActiveTab: activeID, ActiveIndex: state.Active})
	})
}

func (s *service) deliver(event schema.TabEvent) {
	if s.sink == nil {
		return
	}
	s.sink.OnTabEvent(event)
}

// screenshotPublished runs on the bookkeeping context after a capture.
func (s *service) screenshotPublished(rec schema.ScreenshotRecord) {
	state := s.registry.State()
	tab, ok := s.registry.Tab(rec.TabID)
	if !ok {
		return
	}
	activeID, _ := state.ActiveID()
	snap := s.snapshot(tab, state)
	snap.Screenshot = rec.URI
	s.deliver(schema.TabEvent{Type: schema.TabEventScreenshot, Tab: snap, ActiveTab: activeID, ActiveIndex: state.Active})
}

func (s *service) snapshot(tab schema.Tab, state RegistryState) schema.TabSnapshot {
	index := state.IndexOf(tab.ID)
	snap := schema.TabSnapshot{
		ID:       tab.ID,
		URL:      tab.URL,
		Progress: tab.Progress,
		Index:    index,
		Active:   index >= 0 && index == state.Active,
		Closing:  state.IsClosing(tab.ID),
	}
	if rec, ok := s.shots.ShouldShow(tab, snap.Active, s.TabViewVisible()); ok {
		snap.Screenshot = rec.URI
	}
	return snap
}

func (s *service) listSnapshot() schema.TabListSnapshot {
	state := s.registry.State()
	list := schema.TabListSnapshot{
		Tabs:           make([]schema.TabSnapshot, 0, len(state.Order)),
		ActiveIndex:    state.Active,
		Closing:        state.Closing,
		TabViewVisible: s.TabViewVisible(),
		Progress:       s.progress.Get(),
	}
	for _, tab := range s.registry.Tabs() {
		list.Tabs = append(list.Tabs, s.snapshot(tab, state))
	}
	return list
}
