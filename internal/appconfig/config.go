package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/tabdeck/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int               `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string            `mapstructure:"state_dir" yaml:"state_dir"`
	Profile       string            `mapstructure:"profile" yaml:"profile"`
	HomeURL       string            `mapstructure:"home_url" yaml:"home_url"`
	Device        DeviceConfig      `mapstructure:"device" yaml:"device"`
	Browser       BrowserConfig     `mapstructure:"browser" yaml:"browser"`
	Screenshots   ScreenshotsConfig `mapstructure:"screenshots" yaml:"screenshots"`
	Persist       PersistConfig     `mapstructure:"persist" yaml:"persist"`
	HTTP          HTTPConfig        `mapstructure:"http" yaml:"http"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// DeviceConfig describes the host screen.
type DeviceConfig struct {
	Platform string  `mapstructure:"platform" yaml:"platform"`
	Width    float64 `mapstructure:"width" yaml:"width"`
	Height   float64 `mapstructure:"height" yaml:"height"`
}

// BrowserConfig configures the webview engine.
type BrowserConfig struct {
	ExecPath       string `mapstructure:"exec_path" yaml:"exec_path"`
	Headless       bool   `mapstructure:"headless" yaml:"headless"`
	UserDataDir    string `mapstructure:"user_data_dir" yaml:"user_data_dir"`
	CaptureQuality int    `mapstructure:"capture_quality" yaml:"capture_quality"`
}

// ScreenshotsConfig configures screenshot storage and validity.
type ScreenshotsConfig struct {
	Dir           string `mapstructure:"dir" yaml:"dir"`
	MaxAgeSeconds int    `mapstructure:"max_age_seconds" yaml:"max_age_seconds"`
	CacheSize     int    `mapstructure:"cache_size" yaml:"cache_size"`
}

// PersistConfig controls how often the tab list is written.
type PersistConfig struct {
	MinIntervalMillis       int `mapstructure:"min_interval_ms" yaml:"min_interval_ms"`
	ReconcileIntervalMillis int `mapstructure:"reconcile_interval_ms" yaml:"reconcile_interval_ms"`
}

// HTTPConfig configures the debug HTTP server.
type HTTPConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	BasePath string `mapstructure:"base_path" yaml:"base_path"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	svc := schema.DefaultServiceConfig()
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".tabdeck", "state"),
		Profile:       "default",
		HomeURL:       svc.HomeURL,
		Device: DeviceConfig{
			Platform: svc.Platform,
			Width:    svc.Layout.DeviceWidth,
			Height:   svc.Layout.DeviceHeight,
		},
		Browser: BrowserConfig{
			Headless:       true,
			CaptureQuality: 80,
		},
		Screenshots: ScreenshotsConfig{
			Dir:           filepath.Join(home, ".tabdeck", "state", "screenshots"),
			MaxAgeSeconds: int(svc.Screenshots.MaxAge / time.Second),
			CacheSize:     svc.Screenshots.CacheSize,
		},
		Persist: PersistConfig{
			MinIntervalMillis:       int(svc.Persist.MinInterval / time.Millisecond),
			ReconcileIntervalMillis: int(svc.Persist.ReconcileInterval / time.Millisecond),
		},
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:27490",
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".tabdeck", "config.yaml"), nil
}

// ServiceConfig maps the file config onto the core config, with the core's
// defaults and validation applied.
func (c Config) ServiceConfig() (schema.ServiceConfig, error) {
	return schema.NormalizeServiceConfig(schema.ServiceConfig{
		Layout: schema.LayoutConfig{
			DeviceWidth:  c.Device.Width,
			DeviceHeight: c.Device.Height,
		},
		Screenshots: schema.ScreenshotConfig{
			MaxAge:    time.Duration(c.Screenshots.MaxAgeSeconds) * time.Second,
			CacheSize: c.Screenshots.CacheSize,
		},
		Persist: schema.PersistConfig{
			MinInterval:       time.Duration(c.Persist.MinIntervalMillis) * time.Millisecond,
			ReconcileInterval: time.Duration(c.Persist.ReconcileIntervalMillis) * time.Millisecond,
		},
		HomeURL:  c.HomeURL,
		Platform: c.Device.Platform,
	})
}
