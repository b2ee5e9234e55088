package tabdeck

import (
	"context"
	"sync"
	"testing"
	"time"

	"pkt.systems/tabdeck/core"
	"pkt.systems/tabdeck/internal/persist"
	"pkt.systems/tabdeck/schema"
)

type recordingSink struct {
	mu     sync.Mutex
	events []schema.TabEvent
}

func (s *recordingSink) OnTabEvent(event schema.TabEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func newTestServer(t *testing.T, store core.TabStore, sink core.EventSink) Server {
	t.Helper()
	server, err := New(ServerConfig{}, ServerDeps{ServiceDeps: core.ServiceDeps{TabStore: store, EventSink: sink}}, WithRestore())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return server
}

func stopServer(t *testing.T, server Server) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestRestoreOpensHomeAndStopPersists(t *testing.T) {
	store, err := persist.NewStore(t.TempDir(), "test")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	sink := &recordingSink{}
	server := newTestServer(t, store, sink)
	if err := server.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := server.Start(context.Background()); err == nil {
		t.Fatalf("expected second start to fail")
	}
	resp, err := server.Service().ListTabs(context.Background(), schema.ListTabsRequest{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(resp.List.Tabs) != 1 || resp.List.Tabs[0].URL != schema.DefaultHomeURL {
		t.Fatalf("expected a single home tab, got %+v", resp.List.Tabs)
	}
	server.Service().Drain(context.Background())
	stopServer(t, server)

	saved, ok, err := store.Load(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected saved tabs after stop, got ok=%t err=%v", ok, err)
	}
	if len(saved.Order) != 1 || saved.Active != 0 {
		t.Fatalf("expected one active saved tab, got %+v", saved)
	}
	if sink.count() == 0 {
		t.Fatalf("expected events to reach the caller's sink")
	}

	again := newTestServer(t, store, nil)
	if err := again.Start(context.Background()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer stopServer(t, again)
	resp, err = again.Service().ListTabs(context.Background(), schema.ListTabsRequest{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(resp.List.Tabs) != 1 || resp.List.Tabs[0].ID != saved.Order[0] {
		t.Fatalf("expected the saved tab restored, got %+v", resp.List.Tabs)
	}
}

func TestStopBeforeStart(t *testing.T) {
	server := newTestServer(t, nil, nil)
	if err := server.Stop(context.Background()); err != nil {
		t.Fatalf("expected stop before start to be a no-op, got %v", err)
	}
	if err := server.Wait(); err == nil {
		t.Fatalf("expected wait before start to fail")
	}
}

func TestEventsBusReceivesTabEvents(t *testing.T) {
	server := newTestServer(t, nil, nil)
	ch, cancel := server.Events().Subscribe(schema.TabEventCreated)
	defer cancel()
	svc := server.Service()
	defer svc.Close()
	if _, err := svc.NewTab(context.Background(), schema.NewTabRequest{Activate: true}); err != nil {
		t.Fatalf("new tab: %v", err)
	}
	svc.Drain(context.Background())
	select {
	case event := <-ch:
		if event.Type != schema.TabEventCreated {
			t.Fatalf("expected created event, got %s", event.Type)
		}
	default:
		t.Fatalf("expected a created event on the bus")
	}
}

func TestFanoutSkipsNilSinks(t *testing.T) {
	if fanout(nil, nil) != nil {
		t.Fatalf("expected nil for no sinks")
	}
	one := &recordingSink{}
	if got := fanout(nil, one); got != core.EventSink(one) {
		t.Fatalf("expected the single sink back")
	}
	two := &recordingSink{}
	fanout(one, nil, two).OnTabEvent(schema.TabEvent{Type: schema.TabEventUpdated})
	if one.count() != 2 || two.count() != 1 {
		t.Fatalf("expected both sinks to receive the event, got %d and %d", one.count(), two.count())
	}
}
