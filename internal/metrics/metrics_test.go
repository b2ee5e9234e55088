package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.GestureResolved("switch", "next")
	m.SettleDiscarded()
	m.Capture("ok")
	m.Dropped("capture")
	m.Tabs(1, 0)
	m.StoreSave("ok")
	if m.Registry() != nil {
		t.Fatalf("expected nil registry")
	}
}

func TestCountersIncrement(t *testing.T) {
	m := New()
	m.GestureResolved("switch", "create")
	m.GestureResolved("switch", "create")
	m.SettleDiscarded()
	m.Tabs(4, 1)
	if got := testutil.ToFloat64(m.GesturesResolved.WithLabelValues("switch", "create")); got != 2 {
		t.Fatalf("expected 2 switch/create resolutions, got %v", got)
	}
	if got := testutil.ToFloat64(m.SettlesDiscarded); got != 1 {
		t.Fatalf("expected 1 discarded settle, got %v", got)
	}
	if got := testutil.ToFloat64(m.OpenTabs); got != 4 {
		t.Fatalf("expected 4 open tabs, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.Capture("failed")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `tabdeck_screenshot_captures_total{outcome="failed"} 1`) {
		t.Fatalf("expected capture counter in output, got:\n%s", body)
	}
}
