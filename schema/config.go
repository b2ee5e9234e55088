package schema

import (
	"fmt"
	"time"
)

// ServiceConfig defines layout, gesture, and cache settings for the tab coordination core.
type ServiceConfig struct {
	Layout      LayoutConfig
	Gestures    GestureConfig
	Screenshots ScreenshotConfig
	Persist     PersistConfig
	// HomeURL is the built-in home surface; tabs showing it are never captured.
	HomeURL string
	// Platform names the host platform. Jitter correction only applies on JitterPlatform.
	Platform       string
	JitterPlatform string
	// MailboxDepth bounds the fast-to-slow hand-off queue.
	MailboxDepth int
}

// LayoutConfig describes device metrics and the two-column tab grid.
type LayoutConfig struct {
	DeviceWidth        float64
	DeviceHeight       float64
	GridPadding        float64
	ColumnGap          float64
	RowHeight          float64
	RowGap             float64
	GridTopInset       float64
	GridBottomInset    float64
	CloseButtonSize    float64
	SingleTabScale     float64
	MultiTabScale      float64
	ZoomedBorderRadius float64
	GridBorderRadius   float64
}

// GestureConfig holds the thresholds used to disambiguate touches and pans.
type GestureConfig struct {
	ScrollSlop         float64
	CloseSlop          float64
	TapSlop            float64
	TapMaxDuration     time.Duration
	// CloseHoldMax is how long a touch may rest before a horizontal drag
	// stops counting as a close and yields to the grid.
	CloseHoldMax       time.Duration
	CloseDistance      float64
	CloseVelocity      float64
	CloseVelocityScale float64

	TabWidth                      float64
	HorizontalVelocity            float64
	VerticalVelocity              float64
	AxisRatio                     float64
	VerticalRange                 float64
	LiveProgressCeiling           float64
	SurroundingTabsHiddenProgress float64
}

// ScreenshotConfig controls screenshot validity and the in-memory record cache.
type ScreenshotConfig struct {
	MaxAge    time.Duration
	CacheSize int
}

// PersistConfig controls how often tab state is reconciled into the tab store.
type PersistConfig struct {
	MinInterval       time.Duration
	ReconcileInterval time.Duration
}

const (
	// DefaultHomeURL is the built-in home surface.
	DefaultHomeURL = "about:home"
	// DefaultScreenshotMaxAge is the staleness window for screenshots.
	DefaultScreenshotMaxAge = 60 * time.Second
	// DefaultMailboxDepth is the default hand-off queue depth.
	DefaultMailboxDepth = 256
	// MaxTabViewProgress is the tab view progress when the grid is fully shown.
	MaxTabViewProgress = 100.0
	// PlatformIOS and PlatformAndroid name the supported host platforms.
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
)

// DefaultServiceConfig returns the defaults applied by NormalizeServiceConfig.
func DefaultServiceConfig() ServiceConfig {
	cfg, _ := NormalizeServiceConfig(ServiceConfig{})
	return cfg
}

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	l := &cfg.Layout
	if l.DeviceWidth <= 0 {
		l.DeviceWidth = 390
	}
	if l.DeviceHeight <= 0 {
		l.DeviceHeight = 844
	}
	if l.GridPadding <= 0 {
		l.GridPadding = 20
	}
	if l.ColumnGap <= 0 {
		l.ColumnGap = 15
	}
	if l.RowHeight <= 0 {
		l.RowHeight = 260
	}
	if l.RowGap <= 0 {
		l.RowGap = 20
	}
	if l.GridTopInset <= 0 {
		l.GridTopInset = 100
	}
	if l.GridBottomInset <= 0 {
		l.GridBottomInset = 140
	}
	if l.CloseButtonSize <= 0 {
		l.CloseButtonSize = 44
	}
	if l.SingleTabScale <= 0 {
		l.SingleTabScale = 0.72
	}
	if l.MultiTabScale <= 0 {
		l.MultiTabScale = 0.43
	}
	if l.ZoomedBorderRadius <= 0 {
		l.ZoomedBorderRadius = 16
	}
	if l.GridBorderRadius <= 0 {
		l.GridBorderRadius = 30
	}

	g := &cfg.Gestures
	if g.ScrollSlop <= 0 {
		g.ScrollSlop = 10
	}
	if g.CloseSlop <= 0 {
		g.CloseSlop = 10
	}
	if g.TapSlop <= 0 {
		g.TapSlop = 8
	}
	if g.TapMaxDuration <= 0 {
		g.TapMaxDuration = 250 * time.Millisecond
	}
	if g.CloseHoldMax <= 0 {
		g.CloseHoldMax = 500 * time.Millisecond
	}
	if g.CloseDistance <= 0 {
		g.CloseDistance = 120
	}
	if g.CloseVelocity <= 0 {
		g.CloseVelocity = 800
	}
	if g.CloseVelocityScale <= 0 {
		g.CloseVelocityScale = 0.5
	}
	if g.TabWidth <= 0 {
		g.TabWidth = l.DeviceWidth
	}
	if g.HorizontalVelocity <= 0 {
		g.HorizontalVelocity = 500
	}
	if g.VerticalVelocity <= 0 {
		g.VerticalVelocity = 500
	}
	if g.AxisRatio <= 0 {
		g.AxisRatio = 1.5
	}
	if g.VerticalRange <= 0 {
		g.VerticalRange = 300
	}
	if g.LiveProgressCeiling <= 0 {
		g.LiveProgressCeiling = 95
	}
	if g.SurroundingTabsHiddenProgress <= 0 {
		g.SurroundingTabsHiddenProgress = 15
	}

	if cfg.Screenshots.MaxAge <= 0 {
		cfg.Screenshots.MaxAge = DefaultScreenshotMaxAge
	}
	if cfg.Screenshots.CacheSize <= 0 {
		cfg.Screenshots.CacheSize = 64
	}
	if cfg.Persist.MinInterval <= 0 {
		cfg.Persist.MinInterval = 500 * time.Millisecond
	}
	if cfg.Persist.ReconcileInterval <= 0 {
		cfg.Persist.ReconcileInterval = 2 * time.Second
	}
	if cfg.HomeURL == "" {
		cfg.HomeURL = DefaultHomeURL
	}
	if cfg.Platform == "" {
		cfg.Platform = PlatformIOS
	}
	if cfg.JitterPlatform == "" {
		cfg.JitterPlatform = PlatformAndroid
	}
	if cfg.MailboxDepth <= 0 {
		cfg.MailboxDepth = DefaultMailboxDepth
	}

	if l.SingleTabScale > 1 || l.MultiTabScale > 1 {
		return ServiceConfig{}, fmt.Errorf("%w: tab scales must not exceed 1", ErrInvalidConfig)
	}
	if g.LiveProgressCeiling > MaxTabViewProgress {
		return ServiceConfig{}, fmt.Errorf("%w: live progress ceiling must not exceed %v", ErrInvalidConfig, MaxTabViewProgress)
	}
	if 2*l.GridPadding+l.ColumnGap >= l.DeviceWidth {
		return ServiceConfig{}, fmt.Errorf("%w: grid padding leaves no room for columns", ErrInvalidConfig)
	}
	if l.RowGap >= l.RowHeight {
		return ServiceConfig{}, fmt.Errorf("%w: row gap must be smaller than row height", ErrInvalidConfig)
	}
	return cfg, nil
}
