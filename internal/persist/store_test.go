package persist

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"pkt.systems/tabdeck/schema"
)

func TestStoreLoadMissing(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "alice")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, ok, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatalf("expected missing tab list")
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "alice")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	tabs := schema.SavedTabs{
		Order:  []schema.TabID{"tab1", "tab2"},
		Active: 1,
		Tabs: []schema.SavedTab{
			{ID: "tab1", URL: "https://example.com/"},
			{ID: "tab2", URL: "about:home"},
		},
	}
	if err := store.Save(context.Background(), tabs); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatalf("expected tab list to exist")
	}
	if !reflect.DeepEqual(tabs, got) {
		t.Fatalf("tab list mismatch:\nwant: %+v\ngot:  %+v", tabs, got)
	}
	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 state file, got %o", perm)
	}
}

func TestStoreLoadInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "alice")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := os.WriteFile(store.Path(), []byte("{not-json"), 0o600); err != nil {
		t.Fatalf("write bad json: %v", err)
	}
	if _, _, err := store.Load(context.Background()); err == nil {
		t.Fatalf("expected error for invalid JSON")
	}
}

func TestStoreRejectsUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "alice")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := os.WriteFile(store.Path(), []byte(`{"version":9,"order":[],"active":0,"tabs":[]}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := store.Load(context.Background()); err == nil {
		t.Fatalf("expected error for unknown version")
	}
}

func TestStoreSanitizesProfile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "../evil profile")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if filepath.Dir(store.Path()) != dir {
		t.Fatalf("expected state file inside %s, got %s", dir, store.Path())
	}
	if got := filepath.Base(store.Path()); got != ".._evil_profile.tabs.json" {
		t.Fatalf("unexpected state file name %q", got)
	}
}

func TestStoreRequiresDirectory(t *testing.T) {
	if _, err := NewStore(" ", "alice"); err == nil {
		t.Fatalf("expected error for empty directory")
	}
}
