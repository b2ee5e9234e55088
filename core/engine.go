package core

import (
	"context"
	"time"

	"pkt.systems/tabdeck/schema"
)

// TempRef points at a transient capture produced by the engine. The
// screenshot storage takes ownership of it on Save.
type TempRef string

// EngineListener receives page signals from the webview engine.
type EngineListener interface {
	OnLoadProgress(id schema.TabID, progress float64)
	OnNavigation(id schema.TabID, nav schema.Navigation)
}

// Engine renders tabs. The core only consumes its load progress, navigation
// events, and captures.
type Engine interface {
	Listen(listener EngineListener)
	Open(ctx context.Context, id schema.TabID, url string) error
	Close(ctx context.Context, id schema.TabID) error
	Capture(ctx context.Context, id schema.TabID) (TempRef, error)
}

// TabStore persists the ordered tab list.
type TabStore interface {
	Load(ctx context.Context) (schema.SavedTabs, bool, error)
	Save(ctx context.Context, tabs schema.SavedTabs) error
}

// ScreenshotStorage turns transient captures into durable references.
type ScreenshotStorage interface {
	Save(ctx context.Context, temp TempRef, id schema.TabID, at time.Time, url string) (string, error)
	Lookup(ctx context.Context, id schema.TabID) (schema.ScreenshotRecord, bool, error)
	Delete(ctx context.Context, id schema.TabID) error
}

// HapticKind names a haptic pattern.
type HapticKind string

// HapticTabClose is fired when a tab is closed with a tap.
const HapticTabClose HapticKind = "tab_close"

// Haptics triggers device feedback. Trigger must return immediately.
type Haptics interface {
	Trigger(kind HapticKind)
}
