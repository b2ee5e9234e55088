package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pkt.systems/tabdeck/internal/metrics"
	"pkt.systems/tabdeck/schema"
)

type fakeEngine struct {
	mu         sync.Mutex
	listener   EngineListener
	opened     []schema.TabID
	closed     []schema.TabID
	captures   int
	captureErr error
}

func (e *fakeEngine) Listen(listener EngineListener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listener = listener
}

func (e *fakeEngine) Open(_ context.Context, id schema.TabID, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opened = append(e.opened, id)
	return nil
}

func (e *fakeEngine) Close(_ context.Context, id schema.TabID) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = append(e.closed, id)
	return nil
}

func (e *fakeEngine) Capture(_ context.Context, id schema.TabID) (TempRef, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.captures++
	if e.captureErr != nil {
		return "", e.captureErr
	}
	return TempRef("temp-" + string(id)), nil
}

func (e *fakeEngine) captureCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.captures
}

type fakeShotStorage struct {
	mu      sync.Mutex
	records map[schema.TabID]schema.ScreenshotRecord
	deleted []schema.TabID
	saveErr error
}

func newFakeShotStorage() *fakeShotStorage {
	return &fakeShotStorage{records: make(map[schema.TabID]schema.ScreenshotRecord)}
}

func (s *fakeShotStorage) Save(_ context.Context, temp TempRef, id schema.TabID, at time.Time, url string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return "", s.saveErr
	}
	uri := fmt.Sprintf("file:///shots/%s-%d.png", id, at.Unix())
	s.records[id] = schema.ScreenshotRecord{TabID: id, URL: url, URI: uri, Timestamp: at}
	_ = temp
	return uri, nil
}

func (s *fakeShotStorage) Lookup(_ context.Context, id schema.TabID) (schema.ScreenshotRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return rec, ok, nil
}

func (s *fakeShotStorage) Delete(_ context.Context, id schema.TabID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type fakeTabStore struct {
	mu     sync.Mutex
	loaded schema.SavedTabs
	has    bool
	saved  []schema.SavedTabs
	err    error
}

func (s *fakeTabStore) Load(context.Context) (schema.SavedTabs, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded, s.has, s.err
}

func (s *fakeTabStore) Save(_ context.Context, tabs schema.SavedTabs) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, tabs)
	return nil
}

func (s *fakeTabStore) last() (schema.SavedTabs, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return schema.SavedTabs{}, 0
	}
	return s.saved[len(s.saved)-1], len(s.saved)
}

type fakeHaptics struct {
	count atomic.Int32
}

func (h *fakeHaptics) Trigger(HapticKind) {
	h.count.Add(1)
}

type recordingSink struct {
	mu     sync.Mutex
	events []schema.TabEvent
}

func (r *recordingSink) OnTabEvent(event schema.TabEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSink) types() []schema.TabEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schema.TabEventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func sequentialIDs() func() schema.TabID {
	var n atomic.Int64
	return func() schema.TabID {
		return schema.TabID(fmt.Sprintf("tab-%d", n.Add(1)))
	}
}

type testEnv struct {
	svc     *service
	engine  *fakeEngine
	shots   *fakeShotStorage
	store   *fakeTabStore
	haptics *fakeHaptics
	sink    *recordingSink
	clock   *testClock
	metrics *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		engine:  &fakeEngine{},
		shots:   newFakeShotStorage(),
		store:   &fakeTabStore{},
		haptics: &fakeHaptics{},
		sink:    &recordingSink{},
		clock:   newTestClock(),
		metrics: metrics.New(),
	}
	svc, err := NewService(schema.ServiceConfig{}, ServiceDeps{
		Engine:      env.engine,
		TabStore:    env.store,
		Screenshots: env.shots,
		Haptics:     env.haptics,
		EventSink:   env.sink,
		Metrics:     env.metrics,
		Clock:       env.clock.Now,
		NewTabID:    sequentialIDs(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	env.svc = svc.(*service)
	t.Cleanup(svc.Close)
	return env
}

// openTabs opens n loaded tabs; the first one is active.
func (e *testEnv) openTabs(t *testing.T, n int) []schema.TabID {
	t.Helper()
	ids := make([]schema.TabID, 0, n)
	for i := range n {
		resp, err := e.svc.NewTab(context.Background(), schema.NewTabRequest{URL: fmt.Sprintf("https://example.com/%d", i)})
		if err != nil {
			t.Fatalf("new tab %d: %v", i, err)
		}
		e.svc.OnLoadProgress(resp.Tab.ID, 1)
		ids = append(ids, resp.Tab.ID)
	}
	e.svc.Drain(context.Background())
	return ids
}

func (e *testEnv) drain() int {
	return e.svc.Drain(context.Background())
}

var errBoom = errors.New("boom")
