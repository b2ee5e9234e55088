package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"pkt.systems/tabdeck/schema"
)

const swipeScript = `
steps:
  - op: new_tab
    url: https://a.example/
  - op: new_tab
    url: https://b.example/
  - op: switch
    translate: [120, 0]
    velocity: [1200, 0]
  - op: navigate
    index: 2
    url: https://c.example/
  - op: close_tab
    index: 0
`

func TestParseReplayScriptRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{name: "empty", script: "", want: "empty"},
		{name: "unknown-op", script: "steps:\n  - op: fling\n", want: `unknown op "fling"`},
		{name: "unknown-field", script: "steps:\n  - op: new_tab\n    href: x\n", want: "parse replay script"},
	}
	for _, tc := range tests {
		_, err := parseReplayScript(strings.NewReader(tc.script))
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected error containing %q, got %v", tc.name, tc.want, err)
		}
	}
}

func TestRunReplaySwipeCreatesAndCloses(t *testing.T) {
	script, err := parseReplayScript(strings.NewReader(swipeScript))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	report, err := runReplay(context.Background(), schema.DefaultServiceConfig(), script)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(report.Steps) != 5 {
		t.Fatalf("expected 5 step results, got %d", len(report.Steps))
	}
	for _, step := range report.Steps {
		if step.Error != "" {
			t.Fatalf("expected no step errors, got %+v", step)
		}
	}
	if report.Steps[2].Result != "create 2" {
		t.Fatalf("expected swipe past the last tab to create, got %q", report.Steps[2].Result)
	}

	tabs := report.Tabs.Tabs
	if len(tabs) != 2 || tabs[0].ID != "tab-2" || tabs[1].ID != "tab-3" {
		t.Fatalf("expected tab-2 and tab-3 left open, got %+v", tabs)
	}
	if report.Tabs.ActiveIndex != 1 || !tabs[1].Active {
		t.Fatalf("expected the created tab to stay active, got index %d", report.Tabs.ActiveIndex)
	}
	if tabs[1].URL != "https://c.example/" {
		t.Fatalf("expected navigation to update the url, got %q", tabs[1].URL)
	}

	closed := false
	for _, event := range report.Events {
		if event.Type == schema.TabEventClosed && event.Tab == "tab-1" {
			closed = true
		}
	}
	if !closed {
		t.Fatalf("expected a closed event for tab-1, got %+v", report.Events)
	}
}

func TestRunReplayRecordsStepErrors(t *testing.T) {
	script := replayScript{Steps: []replayStep{{Op: "close_tab", Index: 3}, {Op: "touch"}}}
	report, err := runReplay(context.Background(), schema.DefaultServiceConfig(), script)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !strings.Contains(report.Steps[0].Error, "tab not found") {
		t.Fatalf("expected missing tab error, got %+v", report.Steps[0])
	}
	if report.Steps[1].Error == "" {
		t.Fatalf("expected touch without points to fail")
	}
	if len(report.Tabs.Tabs) != 0 {
		t.Fatalf("expected no tabs, got %+v", report.Tabs.Tabs)
	}
}

func TestReplayCommandPrintsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	if err := os.WriteFile(path, []byte(swipeScript), 0o600); err != nil {
		t.Fatalf("write script: %v", err)
	}
	var out bytes.Buffer
	cmd := newReplayCmd()
	cmd.SetArgs([]string{path})
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("replay: %v", err)
	}
	var report struct {
		Tabs schema.TabListSnapshot `yaml:"tabs"`
	}
	if err := yaml.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if len(report.Tabs.Tabs) != 2 || report.Tabs.ActiveIndex != 1 {
		t.Fatalf("expected 2 tabs with index 1 active, got %+v", report.Tabs)
	}
}
