package schema

import "time"

// TabID identifies a browser tab. Ids are opaque and stable for the tab's lifetime.
type TabID string

// NoActiveIndex marks the absence of a committed active tab.
const NoActiveIndex = -1

// Tab is the bookkeeping record of one browser tab.
type Tab struct {
	ID              TabID
	URL             string
	Progress        float64
	BackgroundColor string
	CanGoBack       bool
	CanGoForward    bool
}

// Navigation reports a committed navigation from the engine.
type Navigation struct {
	URL          string
	CanGoBack    bool
	CanGoForward bool
}

// ScreenshotRecord describes a frozen visual captured for a tab.
type ScreenshotRecord struct {
	TabID     TabID
	URL       string
	URI       string
	Timestamp time.Time
}

// Point is a screen coordinate in points.
type Point struct {
	X float64
	Y float64
}

// Velocity is a gesture velocity in points per second.
type Velocity struct {
	X float64
	Y float64
}

// Rect is an axis-aligned rectangle in screen coordinates.
type Rect struct {
	X float64
	Y float64
	W float64
	H float64
}

// Contains reports whether p lies inside r. Edges on the far side are exclusive.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.W && p.Y >= r.Y && p.Y < r.Y+r.H
}
