package webview

import (
	"context"
	"errors"
	"os"
	"testing"

	"pkt.systems/pslog"
	"pkt.systems/tabdeck/schema"
)

func TestNavigateURL(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{url: "", want: blankURL},
		{url: schema.DefaultHomeURL, want: blankURL},
		{url: "https://example.com/", want: "https://example.com/"},
	}
	for _, tc := range cases {
		if got := navigateURL(tc.url, schema.DefaultHomeURL); got != tc.want {
			t.Fatalf("navigateURL(%q): expected %q, got %q", tc.url, tc.want, got)
		}
	}
}

func TestHistoryFlags(t *testing.T) {
	cases := []struct {
		current       int64
		entries       int
		back, forward bool
	}{
		{current: 0, entries: 0},
		{current: 0, entries: 1},
		{current: 1, entries: 2, back: true},
		{current: 0, entries: 2, forward: true},
		{current: 1, entries: 3, back: true, forward: true},
		{current: -1, entries: 3},
	}
	for _, tc := range cases {
		back, forward := historyFlags(tc.current, tc.entries)
		if back != tc.back || forward != tc.forward {
			t.Fatalf("historyFlags(%d, %d): expected %v/%v, got %v/%v", tc.current, tc.entries, tc.back, tc.forward, back, forward)
		}
	}
}

func TestNormalizeOptions(t *testing.T) {
	opts := normalizeOptions(Options{CaptureQuality: 400})
	if opts.Width != 390 || opts.Height != 844 {
		t.Fatalf("expected phone viewport defaults, got %dx%d", opts.Width, opts.Height)
	}
	if opts.CaptureQuality != 80 || opts.HomeURL != schema.DefaultHomeURL || opts.CaptureDir == "" {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
	if n := len(allocatorOptions(Options{ExecPath: "/bin/chrome", UserDataDir: "/tmp/p"})); n != len(allocatorOptions(Options{}))+2 {
		t.Fatalf("expected exec path and profile flags to be appended")
	}
}

func TestWriteCapture(t *testing.T) {
	ref, err := writeCapture(t.TempDir(), []byte("jpeg"))
	if err != nil {
		t.Fatalf("write capture: %v", err)
	}
	data, err := os.ReadFile(string(ref))
	if err != nil || string(data) != "jpeg" {
		t.Fatalf("expected capture bytes, got %q (%v)", data, err)
	}
}

func TestEngineWithoutBrowser(t *testing.T) {
	e := newEngine(normalizeOptions(Options{}), pslog.Ctx(context.Background()))
	if err := e.Open(context.Background(), "tab1", "https://example.com/"); !errors.Is(err, schema.ErrEngineUnavailable) {
		t.Fatalf("expected ErrEngineUnavailable, got %v", err)
	}
	if err := e.Close(context.Background(), "tab1"); !errors.Is(err, schema.ErrTabNotFound) {
		t.Fatalf("expected ErrTabNotFound, got %v", err)
	}
	if _, err := e.Capture(context.Background(), "tab1"); !errors.Is(err, schema.ErrTabNotFound) {
		t.Fatalf("expected ErrTabNotFound, got %v", err)
	}
	e.Shutdown()
}
