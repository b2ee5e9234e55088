package core

import (
	"testing"
	"time"

	"pkt.systems/tabdeck/schema"
)

func TestGridScrollContainerHeight(t *testing.T) {
	g := NewGridScroll(schema.DefaultServiceConfig(), 0)
	cases := map[int]float64{0: 240, 1: 500, 2: 500, 5: 1020}
	for n, want := range cases {
		if got := g.ContainerHeight(n); got != want {
			t.Fatalf("expected height %v for %d tabs, got %v", want, n, got)
		}
	}
}

func TestGridScrollSpringSettles(t *testing.T) {
	g := NewGridScroll(schema.DefaultServiceConfig(), 2)
	g.SetTabCount(5)
	first := g.Step(16 * time.Millisecond)
	if first <= 500 || first >= 1020 {
		t.Fatalf("expected height between 500 and 1020 mid-animation, got %v", first)
	}
	for range 100 {
		g.Step(16 * time.Millisecond)
	}
	if got := g.AnimatedHeight(); got != 1020 {
		t.Fatalf("expected settled height 1020, got %v", got)
	}
}

func TestGridScrollToCenter(t *testing.T) {
	g := NewGridScroll(schema.DefaultServiceConfig(), 9)
	if got := g.ScrollToCenter(4, 9, 844); got != 318 {
		t.Fatalf("expected 318, got %v", got)
	}
	if got := g.ScrollToCenter(0, 9, 844); got != 0 {
		t.Fatalf("expected top clamp 0, got %v", got)
	}
	if got := g.ScrollToCenter(4, 5, 844); got != 176 {
		t.Fatalf("expected bottom clamp 176, got %v", got)
	}
}

func TestGridScrollJitterCorrection(t *testing.T) {
	cfg := schema.DefaultServiceConfig()
	cfg.Platform = schema.PlatformAndroid
	g := NewGridScroll(cfg, 4)
	g.SetTabCount(3)

	if got := g.JitterCorrection(1020, true); got != -260 {
		t.Fatalf("expected -260 while shrinking, got %v", got)
	}
	if got := g.JitterCorrection(760, true); got != 0 {
		t.Fatalf("expected 0 once caught up, got %v", got)
	}
	if got := g.JitterCorrection(1020, false); got != 0 {
		t.Fatalf("expected 0 when not at end, got %v", got)
	}
	for range 100 {
		g.Step(16 * time.Millisecond)
	}
	if got := g.JitterCorrection(1020, true); got != 0 {
		t.Fatalf("expected 0 after the shrink settled, got %v", got)
	}

	ios := NewGridScroll(schema.DefaultServiceConfig(), 4)
	ios.SetTabCount(3)
	if got := ios.JitterCorrection(1020, true); got != 0 {
		t.Fatalf("expected no correction on ios, got %v", got)
	}
}
