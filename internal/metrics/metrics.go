package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the tab coordination core.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Gesture metrics
	GesturesResolved *prometheus.CounterVec
	SettlesDiscarded prometheus.Counter

	// Screenshot metrics
	Captures *prometheus.CounterVec

	// Hand-off metrics
	MailboxDropped *prometheus.CounterVec

	// Tab metrics
	OpenTabs    prometheus.Gauge
	ClosingTabs prometheus.Gauge
	StoreSaves  *prometheus.CounterVec
}

// New registers the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		GesturesResolved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabdeck_gestures_resolved_total",
				Help: "Gesture resolutions by gesture and outcome",
			},
			[]string{"gesture", "outcome"},
		),
		SettlesDiscarded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tabdeck_settles_discarded_total",
				Help: "Switch settle callbacks discarded as stale",
			},
		),
		Captures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabdeck_screenshot_captures_total",
				Help: "Screenshot capture attempts by outcome",
			},
			[]string{"outcome"},
		),
		MailboxDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabdeck_mailbox_dropped_total",
				Help: "Background jobs dropped because the hand-off queue was full",
			},
			[]string{"job"},
		),
		OpenTabs: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tabdeck_open_tabs",
				Help: "Number of open tabs",
			},
		),
		ClosingTabs: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tabdeck_closing_tabs",
				Help: "Number of tabs animating offscreen",
			},
		),
		StoreSaves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabdeck_tab_store_saves_total",
				Help: "Tab store reconciliations by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// GestureResolved counts a gesture outcome.
func (m *Metrics) GestureResolved(gesture, outcome string) {
	if m == nil {
		return
	}
	m.GesturesResolved.WithLabelValues(gesture, outcome).Inc()
}

// SettleDiscarded counts a stale settle completion.
func (m *Metrics) SettleDiscarded() {
	if m == nil {
		return
	}
	m.SettlesDiscarded.Inc()
}

// Capture counts a capture outcome.
func (m *Metrics) Capture(outcome string) {
	if m == nil {
		return
	}
	m.Captures.WithLabelValues(outcome).Inc()
}

// Dropped counts a dropped background job.
func (m *Metrics) Dropped(job string) {
	if m == nil {
		return
	}
	m.MailboxDropped.WithLabelValues(job).Inc()
}

// Tabs records the open and closing tab counts.
func (m *Metrics) Tabs(open, closing int) {
	if m == nil {
		return
	}
	m.OpenTabs.Set(float64(open))
	m.ClosingTabs.Set(float64(closing))
}

// StoreSave counts a tab store reconciliation outcome.
func (m *Metrics) StoreSave(outcome string) {
	if m == nil {
		return
	}
	m.StoreSaves.WithLabelValues(outcome).Inc()
}
