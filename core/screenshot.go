package core

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"pkt.systems/pslog"
	"pkt.systems/tabdeck/internal/logx"
	"pkt.systems/tabdeck/internal/metrics"
	"pkt.systems/tabdeck/schema"
)

// CaptureReason names what triggered a capture.
type CaptureReason string

const (
	CaptureSwitchAway     CaptureReason = "switch_away"
	CaptureTabViewEntered CaptureReason = "tab_view_entered"
)

// IsValid reports whether rec may stand in for tab at now: the url must match
// the tab's current url and the record must be younger than maxAge.
func IsValid(rec schema.ScreenshotRecord, tab schema.Tab, now time.Time, maxAge time.Duration) bool {
	return rec.URL == tab.URL && now.Sub(rec.Timestamp) < maxAge
}

// Screenshots manages capture, caching, and invalidation of tab snapshots.
type Screenshots struct {
	registry *Registry
	engine   Engine
	storage  ScreenshotStorage
	mailbox  *Mailbox
	records  *lru.Cache[schema.TabID, schema.ScreenshotRecord]
	homeURL  string
	maxAge   time.Duration
	now      func() time.Time
	log      pslog.Logger
	metrics  *metrics.Metrics
	publish  func(schema.ScreenshotRecord)

	mu       sync.Mutex
	inflight map[schema.TabID]struct{}
}

type screenshotsConfig struct {
	cfg      schema.ServiceConfig
	registry *Registry
	engine   Engine
	storage  ScreenshotStorage
	mailbox  *Mailbox
	now      func() time.Time
	log      pslog.Logger
	metrics  *metrics.Metrics
	publish  func(schema.ScreenshotRecord)
}

func newScreenshots(c screenshotsConfig) (*Screenshots, error) {
	records, err := lru.New[schema.TabID, schema.ScreenshotRecord](c.cfg.Screenshots.CacheSize)
	if err != nil {
		return nil, err
	}
	return &Screenshots{
		registry: c.registry,
		engine:   c.engine,
		storage:  c.storage,
		mailbox:  c.mailbox,
		records:  records,
		homeURL:  c.cfg.HomeURL,
		maxAge:   c.cfg.Screenshots.MaxAge,
		now:      c.now,
		log:      c.log,
		metrics:  c.metrics,
		publish:  c.publish,
		inflight: make(map[schema.TabID]struct{}),
	}, nil
}

// Eligible reports whether tab may be captured: not the home surface and not
// mid-load. Progress must be exactly 0 or 1.
func (m *Screenshots) Eligible(tab schema.Tab) bool {
	if tab.URL == "" || tab.URL == m.homeURL {
		return false
	}
	return tab.Progress == 0 || tab.Progress == 1
}

// Trigger schedules a capture of id on the bookkeeping context. It never
// blocks and returns whether a capture was scheduled. Triggers are dropped
// while any tab is closing or while a capture of the same tab is in flight.
func (m *Screenshots) Trigger(id schema.TabID, reason CaptureReason) bool {
	log := logx.Tab(m.log, id).With("reason", reason)
	if len(m.registry.State().Closing) > 0 {
		log.Trace("screenshot trigger suppressed", "cause", "closing")
		return false
	}
	tab, ok := m.registry.Tab(id)
	if !ok || !m.Eligible(tab) {
		log.Trace("screenshot trigger skipped", "cause", "ineligible")
		m.metrics.Capture("ineligible")
		return false
	}
	m.mu.Lock()
	if _, busy := m.inflight[id]; busy {
		m.mu.Unlock()
		log.Trace("screenshot trigger skipped", "cause", "in_flight")
		m.metrics.Capture("deduplicated")
		return false
	}
	m.inflight[id] = struct{}{}
	m.mu.Unlock()

	err := m.mailbox.Post(Job{Name: "capture", Run: func(ctx context.Context) {
		m.capture(ctx, id, reason)
	}})
	if err != nil {
		m.clearInflight(id)
		return false
	}
	return true
}

func (m *Screenshots) capture(ctx context.Context, id schema.TabID, reason CaptureReason) {
	defer m.clearInflight(id)
	log := logx.Tab(m.log, id).With("reason", reason)
	state := m.registry.State()
	if len(state.Closing) > 0 {
		log.Debug("screenshot capture suppressed", "cause", "closing")
		m.metrics.Capture("suppressed")
		return
	}
	tab, ok := m.registry.Tab(id)
	if !ok || state.IndexOf(id) < 0 {
		log.Debug("screenshot capture skipped", "err", schema.ErrTabNotFound)
		m.metrics.Capture("ineligible")
		return
	}
	if !m.Eligible(tab) {
		log.Debug("screenshot capture skipped", "err", schema.ErrCaptureIneligible, "url", tab.URL, "progress", tab.Progress)
		m.metrics.Capture("ineligible")
		return
	}
	if m.engine == nil || m.storage == nil {
		log.Debug("screenshot capture skipped", "err", schema.ErrEngineUnavailable)
		m.metrics.Capture("unavailable")
		return
	}
	at := m.now()
	temp, err := m.engine.Capture(ctx, id)
	if err != nil {
		log.Warn("screenshot capture failed", "err", err)
		m.metrics.Capture("failed")
		return
	}
	uri, err := m.storage.Save(ctx, temp, id, at, tab.URL)
	if err != nil {
		log.Warn("screenshot save failed", "err", err)
		m.metrics.Capture("failed")
		return
	}
	rec := schema.ScreenshotRecord{TabID: id, URL: tab.URL, URI: uri, Timestamp: at}
	m.records.Add(id, rec)
	m.metrics.Capture("ok")
	log.Debug("screenshot captured", "uri", uri)
	if m.publish != nil {
		m.publish(rec)
	}
}

func (m *Screenshots) clearInflight(id schema.TabID) {
	m.mu.Lock()
	delete(m.inflight, id)
	m.mu.Unlock()
}

// Pending reports whether a capture of id is in flight.
func (m *Screenshots) Pending(id schema.TabID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inflight[id]
	return ok
}

// Record returns the cached record for id.
func (m *Screenshots) Record(id schema.TabID) (schema.ScreenshotRecord, bool) {
	return m.records.Get(id)
}

// Valid reports whether the cached record for tab is present and valid now.
func (m *Screenshots) Valid(tab schema.Tab) bool {
	rec, ok := m.records.Peek(tab.ID)
	return ok && IsValid(rec, tab, m.now(), m.maxAge)
}

// ShouldShow applies the display contract: the screenshot is shown only when
// it exists, matches the tab's id and url, is within the staleness window, and
// either the tab is not the live one or the grid is visible with no fresher
// capture pending.
func (m *Screenshots) ShouldShow(tab schema.Tab, isActive, gridVisible bool) (schema.ScreenshotRecord, bool) {
	rec, ok := m.records.Peek(tab.ID)
	if !ok || rec.TabID != tab.ID || !IsValid(rec, tab, m.now(), m.maxAge) {
		return schema.ScreenshotRecord{}, false
	}
	if isActive && (!gridVisible || m.Pending(tab.ID)) {
		return schema.ScreenshotRecord{}, false
	}
	return rec, true
}

// Hydrate loads the last stored record for each id into the cache.
func (m *Screenshots) Hydrate(ctx context.Context, ids []schema.TabID) int {
	if m.storage == nil {
		return 0
	}
	loaded := 0
	for _, id := range ids {
		rec, ok, err := m.storage.Lookup(ctx, id)
		if err != nil {
			logx.Tab(m.log, id).Warn("screenshot lookup failed", "err", err)
			continue
		}
		if !ok {
			continue
		}
		m.records.Add(id, rec)
		loaded++
	}
	return loaded
}

// Evict forgets the record for id and deletes its stored files.
func (m *Screenshots) Evict(ctx context.Context, id schema.TabID) {
	m.records.Remove(id)
	if m.storage == nil {
		return
	}
	if err := m.storage.Delete(ctx, id); err != nil {
		logx.Tab(m.log, id).Warn("screenshot delete failed", "err", err)
	}
}
