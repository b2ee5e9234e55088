package core

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"pkt.systems/tabdeck/schema"
)

func TestIsValidIsPure(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := schema.ScreenshotRecord{TabID: "a", URL: "https://example.com/", Timestamp: at}
	tab := schema.Tab{ID: "a", URL: "https://example.com/"}
	maxAge := schema.DefaultScreenshotMaxAge

	if !IsValid(rec, tab, at.Add(59*time.Second), maxAge) {
		t.Fatalf("expected record to be valid inside the window")
	}
	for _, d := range []time.Duration{60 * time.Second, 61 * time.Second, time.Hour} {
		if IsValid(rec, tab, at.Add(d), maxAge) {
			t.Fatalf("expected record to be invalid at age %s", d)
		}
	}
	moved := tab
	moved.URL = "https://example.com/other"
	if IsValid(rec, moved, at, maxAge) {
		t.Fatalf("expected url mismatch to be invalid")
	}
}

func TestCaptureSkipsHomeSurface(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.svc.NewTab(context.Background(), schema.NewTabRequest{Activate: true})
	if err != nil {
		t.Fatalf("new tab: %v", err)
	}
	env.svc.OnLoadProgress(resp.Tab.ID, 1)
	if env.svc.shots.Trigger(resp.Tab.ID, CaptureTabViewEntered) {
		t.Fatalf("expected home surface trigger to be skipped")
	}
	env.drain()
	if _, ok := env.svc.shots.Record(resp.Tab.ID); ok {
		t.Fatalf("expected no screenshot for the home surface")
	}
	if env.engine.captureCount() != 0 {
		t.Fatalf("expected no engine capture, got %d", env.engine.captureCount())
	}
}

func TestCaptureSkipsFractionalProgress(t *testing.T) {
	env := newTestEnv(t)
	ids := env.openTabs(t, 1)
	env.svc.OnLoadProgress(ids[0], 0.4)
	if env.svc.shots.Trigger(ids[0], CaptureSwitchAway) {
		t.Fatalf("expected mid-load trigger to be skipped")
	}
}

func TestCapturePublishesRecordAndDeduplicates(t *testing.T) {
	env := newTestEnv(t)
	ids := env.openTabs(t, 2)
	if !env.svc.shots.Trigger(ids[0], CaptureSwitchAway) {
		t.Fatalf("expected trigger to schedule a capture")
	}
	if env.svc.shots.Trigger(ids[0], CaptureSwitchAway) {
		t.Fatalf("expected in-flight trigger to be dropped")
	}
	if !env.svc.shots.Pending(ids[0]) {
		t.Fatalf("expected capture to be pending")
	}
	env.drain()
	if env.engine.captureCount() != 1 {
		t.Fatalf("expected 1 engine capture, got %d", env.engine.captureCount())
	}
	rec, ok := env.svc.shots.Record(ids[0])
	if !ok || rec.URL != "https://example.com/0" || rec.URI == "" {
		t.Fatalf("expected published record, got %+v (%v)", rec, ok)
	}
	if env.svc.shots.Pending(ids[0]) {
		t.Fatalf("expected in-flight mark to clear")
	}
	if !slices.Contains(env.sink.types(), schema.TabEventScreenshot) {
		t.Fatalf("expected screenshot event, got %v", env.sink.types())
	}
	if got := testutil.ToFloat64(env.metrics.Captures.WithLabelValues("ok")); got != 1 {
		t.Fatalf("expected 1 ok capture, got %v", got)
	}
}

func TestCaptureSuppressedWhileClosing(t *testing.T) {
	env := newTestEnv(t)
	ids := env.openTabs(t, 3)
	if _, ok := env.svc.registry.BeginClose(ids[2]); !ok {
		t.Fatalf("begin close failed")
	}
	if env.svc.shots.Trigger(ids[0], CaptureSwitchAway) {
		t.Fatalf("expected trigger to be suppressed while a tab is closing")
	}

	// A capture queued before the close started is dropped when it runs.
	env.svc.CompleteClose(ids[2])
	env.drain()
	if !env.svc.shots.Trigger(ids[1], CaptureSwitchAway) {
		t.Fatalf("expected trigger to schedule")
	}
	if _, ok := env.svc.registry.BeginClose(ids[0]); !ok {
		t.Fatalf("begin close failed")
	}
	env.drain()
	if _, ok := env.svc.shots.Record(ids[1]); ok {
		t.Fatalf("expected queued capture to be suppressed")
	}
}

func TestCaptureFailureIsCountedNotRetried(t *testing.T) {
	env := newTestEnv(t)
	ids := env.openTabs(t, 1)
	env.engine.captureErr = errBoom
	env.svc.shots.Trigger(ids[0], CaptureSwitchAway)
	env.drain()
	if _, ok := env.svc.shots.Record(ids[0]); ok {
		t.Fatalf("expected no record after a failed capture")
	}
	if env.engine.captureCount() != 1 {
		t.Fatalf("expected a single attempt, got %d", env.engine.captureCount())
	}
	if got := testutil.ToFloat64(env.metrics.Captures.WithLabelValues("failed")); got != 1 {
		t.Fatalf("expected 1 failed capture, got %v", got)
	}
}

func TestShouldShowDisplayContract(t *testing.T) {
	env := newTestEnv(t)
	ids := env.openTabs(t, 2)
	env.svc.shots.Trigger(ids[0], CaptureSwitchAway)
	env.drain()
	tab, _ := env.svc.registry.Tab(ids[0])

	if _, ok := env.svc.shots.ShouldShow(tab, true, false); ok {
		t.Fatalf("expected live content for the zoomed active tab")
	}
	if _, ok := env.svc.shots.ShouldShow(tab, false, false); !ok {
		t.Fatalf("expected screenshot for a background tab")
	}
	if _, ok := env.svc.shots.ShouldShow(tab, true, true); !ok {
		t.Fatalf("expected screenshot for the active tab in the grid")
	}

	env.svc.shots.Trigger(ids[0], CaptureTabViewEntered)
	if _, ok := env.svc.shots.ShouldShow(tab, true, true); ok {
		t.Fatalf("expected no screenshot while a fresher capture is pending")
	}
	env.drain()

	env.clock.Advance(schema.DefaultScreenshotMaxAge)
	if _, ok := env.svc.shots.ShouldShow(tab, false, true); ok {
		t.Fatalf("expected stale screenshot to be hidden")
	}

	env.svc.OnNavigation(ids[0], schema.Navigation{URL: "https://example.com/next"})
	tab, _ = env.svc.registry.Tab(ids[0])
	if _, ok := env.svc.shots.ShouldShow(tab, false, true); ok {
		t.Fatalf("expected screenshot of another url to be hidden")
	}
}

func TestHydrateAndEvict(t *testing.T) {
	env := newTestEnv(t)
	ids := env.openTabs(t, 2)
	_, _ = env.shots.Save(context.Background(), "temp", ids[1], env.clock.Now(), "https://example.com/1")
	if n := env.svc.shots.Hydrate(context.Background(), ids); n != 1 {
		t.Fatalf("expected 1 hydrated record, got %d", n)
	}
	env.svc.shots.Evict(context.Background(), ids[1])
	if _, ok := env.svc.shots.Record(ids[1]); ok {
		t.Fatalf("expected record to be evicted")
	}
	if !slices.Contains(env.shots.deleted, ids[1]) {
		t.Fatalf("expected stored screenshot to be deleted")
	}
}
