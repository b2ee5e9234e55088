package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pkt.systems/tabdeck/internal/appconfig"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "replay", "config", "version"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Fatalf("expected %s subcommand, got %v", name, err)
		}
	}
}

func TestConfigInitWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cmd := newConfigCmd()
	cmd.SetArgs([]string{"init", "-c", path})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config at %s: %v", path, err)
	}
	if _, err := appconfig.Load(path); err != nil {
		t.Fatalf("load written config: %v", err)
	}

	cmd = newConfigCmd()
	cmd.SetArgs([]string{"init", "-c", path})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected init to refuse overwriting without --force")
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newVersionCmd()
	cmd.SetArgs([]string{"--verbose"})
	cmd.SetOut(&out)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out.String(), "module: pkt.systems/tabdeck") {
		t.Fatalf("expected module in output, got %q", out.String())
	}
}

func TestToEngineOptions(t *testing.T) {
	cfg, err := appconfig.DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	cfg.Device.Width = 412
	cfg.Device.Height = 915
	cfg.Browser.CaptureQuality = 60
	opts := toEngineOptions(cfg)
	if opts.Width != 412 || opts.Height != 915 || opts.CaptureQuality != 60 {
		t.Fatalf("expected device and quality carried through, got %+v", opts)
	}
	if opts.CaptureDir != cfg.Screenshots.Dir || opts.HomeURL != cfg.HomeURL {
		t.Fatalf("expected capture dir and home url carried through, got %+v", opts)
	}
}
