package core

import "pkt.systems/tabdeck/schema"

// gridColumns is fixed: the tab view is always a two-column grid.
const gridColumns = 2

// Layout computes tab view geometry from the configured device metrics.
type Layout struct {
	cfg schema.LayoutConfig
}

// NewLayout wraps a normalized layout config.
func NewLayout(cfg schema.LayoutConfig) Layout {
	return Layout{cfg: cfg}
}

// Config returns the underlying layout config.
func (l Layout) Config() schema.LayoutConfig {
	return l.cfg
}

// ColumnWidth is the width of one grid thumbnail.
func (l Layout) ColumnWidth() float64 {
	return (l.cfg.DeviceWidth - 2*l.cfg.GridPadding - l.cfg.ColumnGap) / gridColumns
}

// ThumbnailHeight is the height of one grid thumbnail.
func (l Layout) ThumbnailHeight() float64 {
	return l.cfg.RowHeight - l.cfg.RowGap
}

// Row returns the grid row of index.
func Row(index int) int { return index / gridColumns }

// Column returns the grid column of index (0 left, 1 right).
func Column(index int) int { return index % gridColumns }

// CellRect returns the on-screen rect of the thumbnail at index for the given
// scroll offset.
func (l Layout) CellRect(index int, scrollY float64) schema.Rect {
	col := float64(Column(index))
	row := float64(Row(index))
	return schema.Rect{
		X: l.cfg.GridPadding + col*(l.ColumnWidth()+l.cfg.ColumnGap),
		Y: l.cfg.GridTopInset + row*l.cfg.RowHeight - scrollY,
		W: l.ColumnWidth(),
		H: l.ThumbnailHeight(),
	}
}

// CloseButtonRect returns the close button hit area in the top right corner of cell.
func (l Layout) CloseButtonRect(cell schema.Rect) schema.Rect {
	size := min(l.cfg.CloseButtonSize, cell.W, cell.H)
	return schema.Rect{X: cell.X + cell.W - size, Y: cell.Y, W: size, H: size}
}

// HitTest finds the thumbnail under p among count tabs.
func (l Layout) HitTest(p schema.Point, count int, scrollY float64) (index int, onClose bool, ok bool) {
	if count <= 0 {
		return -1, false, false
	}
	for i := range count {
		cell := l.CellRect(i, scrollY)
		if !cell.Contains(p) {
			continue
		}
		return i, l.CloseButtonRect(cell).Contains(p), true
	}
	return -1, false, false
}
