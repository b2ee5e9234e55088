package core

import (
	"testing"

	"pkt.systems/tabdeck/schema"
)

func TestLayoutCellRects(t *testing.T) {
	layout := NewLayout(schema.DefaultServiceConfig().Layout)
	if got := layout.ColumnWidth(); got != 167.5 {
		t.Fatalf("expected column width 167.5, got %v", got)
	}
	cell := layout.CellRect(3, 0)
	want := schema.Rect{X: 202.5, Y: 360, W: 167.5, H: 240}
	if cell != want {
		t.Fatalf("expected %+v, got %+v", want, cell)
	}
	scrolled := layout.CellRect(3, 100)
	if scrolled.Y != 260 {
		t.Fatalf("expected scroll to shift the cell up, got y=%v", scrolled.Y)
	}
}

func TestLayoutHitTest(t *testing.T) {
	layout := NewLayout(schema.DefaultServiceConfig().Layout)
	cases := []struct {
		name    string
		p       schema.Point
		count   int
		scrollY float64
		index   int
		onClose bool
		ok      bool
	}{
		{name: "body", p: schema.Point{X: 100, Y: 480}, count: 5, index: 2, ok: true},
		{name: "close button", p: schema.Point{X: 170, Y: 380}, count: 5, index: 2, onClose: true, ok: true},
		{name: "right column", p: schema.Point{X: 300, Y: 200}, count: 5, index: 1, ok: true},
		{name: "gap", p: schema.Point{X: 195, Y: 200}, count: 5, index: -1},
		{name: "beyond count", p: schema.Point{X: 300, Y: 480}, count: 3, index: -1},
		{name: "scrolled", p: schema.Point{X: 100, Y: 220}, count: 5, scrollY: 260, index: 2, ok: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			index, onClose, ok := layout.HitTest(tc.p, tc.count, tc.scrollY)
			if index != tc.index || onClose != tc.onClose || ok != tc.ok {
				t.Fatalf("expected (%d, %v, %v), got (%d, %v, %v)", tc.index, tc.onClose, tc.ok, index, onClose, ok)
			}
		})
	}
}
