package core

import (
	"time"

	"pkt.systems/pslog"
	"pkt.systems/tabdeck/internal/metrics"
	"pkt.systems/tabdeck/schema"
)

// ServiceDeps captures optional dependencies for the core service.
type ServiceDeps struct {
	Engine      Engine
	TabStore    TabStore
	Screenshots ScreenshotStorage
	Haptics     Haptics
	EventSink   EventSink
	Metrics     *metrics.Metrics
	Logger      pslog.Logger
	// Clock overrides time.Now, mainly for tests.
	Clock func() time.Time
	// NewTabID overrides tab id generation, mainly for tests.
	NewTabID func() schema.TabID
}
