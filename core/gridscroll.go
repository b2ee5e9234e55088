package core

import (
	"math"
	"sync"
	"time"

	"pkt.systems/tabdeck/schema"
)

// GridScroll owns the tab view scroll container: its animated height, the
// current scroll offset, and the shrink jitter correction.
type GridScroll struct {
	layout         Layout
	jitterAffected bool

	scroll *Cell[float64]

	mu        sync.Mutex
	count     int
	shrinking bool
	height    *spring
}

// NewGridScroll constructs a scroll coordinator for count open tabs.
func NewGridScroll(cfg schema.ServiceConfig, count int) *GridScroll {
	layout := NewLayout(cfg.Layout)
	g := &GridScroll{
		layout:         layout,
		jitterAffected: cfg.Platform == cfg.JitterPlatform,
		scroll:         NewCell(0.0),
		count:          count,
	}
	g.height = newSpring(g.ContainerHeight(count))
	return g
}

// ContainerHeight is ceil(n/2) rows plus the fixed chrome above and below the grid.
func (g *GridScroll) ContainerHeight(n int) float64 {
	cfg := g.layout.Config()
	rows := math.Ceil(float64(max(n, 0)) / gridColumns)
	return rows*cfg.RowHeight + cfg.GridTopInset + cfg.GridBottomInset
}

// SetTabCount retargets the height spring after the open tab count changed.
func (g *GridScroll) SetTabCount(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n == g.count {
		return
	}
	g.shrinking = n < g.count
	g.count = n
	g.height.retarget(g.ContainerHeight(n))
}

// Step advances the height spring by dt and returns the animated height.
func (g *GridScroll) Step(dt time.Duration) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	h := g.height.step(dt)
	if g.height.atRest() {
		g.shrinking = false
	}
	return h
}

// AnimatedHeight returns the current animated container height.
func (g *GridScroll) AnimatedHeight() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.height.position
}

// ScrollOffset returns the current vertical scroll offset of the grid.
func (g *GridScroll) ScrollOffset() float64 {
	return g.scroll.Get()
}

// SetScrollOffset records the scroll offset reported by the scroll surface.
func (g *GridScroll) SetScrollOffset(y float64) {
	g.scroll.Store(math.Max(0, y))
}

// ScrollToCenter returns the offset that centres the row of index within a
// viewport of the given height, clamped to the scrollable range.
func (g *GridScroll) ScrollToCenter(index, count int, viewport float64) float64 {
	if count <= 0 || index < 0 {
		return 0
	}
	index = min(index, count-1)
	cfg := g.layout.Config()
	rowCenter := cfg.GridTopInset + float64(Row(index))*cfg.RowHeight + g.layout.ThumbnailHeight()/2
	maxOffset := math.Max(0, g.ContainerHeight(count)-viewport)
	return clamp(rowCenter-viewport/2, 0, maxOffset)
}

// JitterCorrection returns the Y offset compensating for the animated
// container height outrunning the reported content height while a close
// shrinks the grid. It is 0 once reported has caught up, when the surface is
// not scrolled to its end, and on platforms without the artifact.
func (g *GridScroll) JitterCorrection(reported float64, atEnd bool) float64 {
	if !g.jitterAffected || !atEnd {
		return 0
	}
	g.mu.Lock()
	shrinking := g.shrinking
	target := g.ContainerHeight(g.count)
	g.mu.Unlock()
	if !shrinking || reported <= target {
		return 0
	}
	return target - reported
}
