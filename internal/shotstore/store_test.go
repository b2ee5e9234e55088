package shotstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pkt.systems/tabdeck/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func writeTemp(t *testing.T, body string) core.TempRef {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.png")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	return core.TempRef(path)
}

func TestSaveLookupDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Unix(1700000000, 42)
	temp := writeTemp(t, "png-1")

	uri, err := store.Save(ctx, temp, "tab1", at, "https://example.com/")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(string(temp)); !os.IsNotExist(err) {
		t.Fatalf("expected temp capture to be moved, stat err %v", err)
	}
	path, ok := Path(uri)
	if !ok {
		t.Fatalf("expected file uri, got %q", uri)
	}
	if data, err := os.ReadFile(path); err != nil || string(data) != "png-1" {
		t.Fatalf("expected stored image, got %q (%v)", data, err)
	}

	rec, ok, err := store.Lookup(ctx, "tab1")
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if rec.URI != uri || rec.URL != "https://example.com/" || !rec.Timestamp.Equal(at) || rec.TabID != "tab1" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if err := store.Delete(ctx, "tab1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.Lookup(ctx, "tab1"); ok {
		t.Fatalf("expected record to be deleted")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected image to be removed, stat err %v", err)
	}
	if err := store.Delete(ctx, "tab1"); err != nil {
		t.Fatalf("expected repeated delete to be a no-op, got %v", err)
	}
}

func TestSaveReplacesPreviousImage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	first, err := store.Save(ctx, writeTemp(t, "old"), "tab1", time.Unix(1, 0), "https://a.example/")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	second, err := store.Save(ctx, writeTemp(t, "new"), "tab1", time.Unix(2, 0), "https://b.example/")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if first == second {
		t.Fatalf("expected a fresh uri for the replacement")
	}
	oldPath, _ := Path(first)
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Fatalf("expected previous image to be removed, stat err %v", err)
	}
	rec, ok, err := store.Lookup(ctx, "tab1")
	if err != nil || !ok || rec.URL != "https://b.example/" || rec.URI != second {
		t.Fatalf("expected replacement record, got %+v ok=%v err=%v", rec, ok, err)
	}
}

func TestIndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	uri, err := store.Save(context.Background(), writeTemp(t, "png"), "tab1", time.Unix(5, 0), "https://example.com/")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = store.Close()

	reopened, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	rec, ok, err := reopened.Lookup(context.Background(), "tab1")
	if err != nil || !ok || rec.URI != uri {
		t.Fatalf("expected record after reopen, got %+v ok=%v err=%v", rec, ok, err)
	}
}

func TestLookupSkipsMissingFile(t *testing.T) {
	store := newTestStore(t)
	uri, err := store.Save(context.Background(), writeTemp(t, "png"), "tab1", time.Unix(5, 0), "https://example.com/")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	path, _ := Path(uri)
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok, err := store.Lookup(context.Background(), "tab1"); ok || err != nil {
		t.Fatalf("expected miss for missing file, got ok=%v err=%v", ok, err)
	}
}

func TestSaveFailsForMissingCapture(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Save(context.Background(), core.TempRef(filepath.Join(t.TempDir(), "gone.png")), "tab1", time.Unix(1, 0), "u")
	if err == nil {
		t.Fatalf("expected error for missing capture")
	}
	if _, ok, _ := store.Lookup(context.Background(), "tab1"); ok {
		t.Fatalf("expected nothing indexed")
	}
}
