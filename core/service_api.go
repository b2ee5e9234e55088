package core

import (
	"context"
	"time"

	"pkt.systems/tabdeck/schema"
)

// Service is the transport-agnostic API of the tab coordination core.
type Service interface {
	TabAPI
	GestureAPI
	EngineListener

	// Run drains background work until ctx is cancelled.
	Run(ctx context.Context) error
	// Drain runs all queued background work on the calling goroutine.
	Drain(ctx context.Context) int
	// Close stops accepting background work.
	Close()
}

// TabAPI is the bookkeeping side of the service. Calls may block on I/O.
type TabAPI interface {
	NewTab(ctx context.Context, req schema.NewTabRequest) (schema.NewTabResponse, error)
	CloseTab(ctx context.Context, req schema.CloseTabRequest) (schema.CloseTabResponse, error)
	ActivateTab(ctx context.Context, req schema.ActivateTabRequest) (schema.ActivateTabResponse, error)
	ListTabs(ctx context.Context, req schema.ListTabsRequest) (schema.ListTabsResponse, error)
	ShowTabView(ctx context.Context, req schema.TabViewRequest) (schema.TabViewResponse, error)
	HideTabView(ctx context.Context, req schema.TabViewRequest) (schema.TabViewResponse, error)
	Restore(ctx context.Context, req schema.RestoreRequest) (schema.RestoreResponse, error)
	Screenshot(ctx context.Context, id schema.TabID) (schema.ScreenshotRecord, error)
}

// GestureAPI is the gesture and animation side of the service. Calls never
// block and never wait for background work.
type GestureAPI interface {
	TouchDown(p schema.Point, at time.Time) bool
	TouchMove(p schema.Point, at time.Time) MoveClass
	TouchUp(p schema.Point, v schema.Velocity, at time.Time) CloseResolution
	// CompleteClose is called when a closing tab finished animating offscreen.
	CompleteClose(id schema.TabID) bool
	// CompleteCancel is called when a cancelled close drag snapped back.
	CompleteCancel(id schema.TabID) bool

	BeginSwitch() uint64
	UpdateSwitch(tx, ty float64)
	EndSwitch(vx, vy float64) *Settle

	SetScrollOffset(y float64)
	StepScroll(dt time.Duration) float64
	JitterCorrection(reportedHeight float64, atEnd bool) float64

	Frames() []TabFrame
	Progress() float64
	TabViewState() TabViewState
	TabViewVisible() bool
	LiveActiveIndex() int
}

// TabFrame is the derived frame of one open or closing tab.
type TabFrame struct {
	ID    schema.TabID
	Index int
	Frame Frame
	// Screenshot is set when the screenshot replaces live content.
	Screenshot string
}
