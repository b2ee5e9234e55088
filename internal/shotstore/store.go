// Package shotstore keeps tab screenshots as image files with a sqlite index.
package shotstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"pkt.systems/pslog"
	"pkt.systems/tabdeck/core"
	"pkt.systems/tabdeck/schema"
)

const uriScheme = "file://"

var _ core.ScreenshotStorage = (*Store)(nil)

// Store implements core.ScreenshotStorage.
type Store struct {
	dir string
	db  *sql.DB
	log pslog.Logger
}

// Open opens (or creates) the screenshot store rooted at dir.
func Open(dir string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("screenshot directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", filepath.Join(dir, "index.db"))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if logger != nil {
		logger = logger.With("screenshot_dir", dir)
	}
	return &Store{dir: dir, db: db, log: logger}, nil
}

// Close releases the index.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save moves the transient capture into the store and indexes it, replacing
// any previous screenshot of the tab.
func (s *Store) Save(ctx context.Context, temp core.TempRef, id schema.TabID, at time.Time, url string) (string, error) {
	name := uuid.NewString() + filepath.Ext(string(temp))
	dest := filepath.Join(s.dir, name)
	if err := moveFile(string(temp), dest); err != nil {
		return "", s.fail("screenshot save failed", id, err)
	}
	previous, _, err := s.file(ctx, id)
	if err != nil {
		_ = os.Remove(dest)
		return "", s.fail("screenshot save failed", id, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO screenshots (tab_id, url, file, captured_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(tab_id) DO UPDATE SET url = excluded.url, file = excluded.file, captured_at = excluded.captured_at`,
		string(id), url, name, at.UnixNano())
	if err != nil {
		_ = os.Remove(dest)
		return "", s.fail("screenshot save failed", id, err)
	}
	if previous != "" && previous != name {
		s.remove(previous)
	}
	if s.log != nil {
		s.log.Trace("screenshot save ok", "tab", id, "file", name)
	}
	return uriScheme + dest, nil
}

// Lookup returns the indexed screenshot of id.
func (s *Store) Lookup(ctx context.Context, id schema.TabID) (schema.ScreenshotRecord, bool, error) {
	var (
		url, name string
		nanos     int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT url, file, captured_at FROM screenshots WHERE tab_id = ?`, string(id)).
		Scan(&url, &name, &nanos)
	if errors.Is(err, sql.ErrNoRows) {
		return schema.ScreenshotRecord{}, false, nil
	}
	if err != nil {
		return schema.ScreenshotRecord{}, false, s.fail("screenshot lookup failed", id, err)
	}
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		if s.log != nil {
			s.log.Debug("screenshot file missing", "tab", id, "file", name)
		}
		return schema.ScreenshotRecord{}, false, nil
	}
	return schema.ScreenshotRecord{
		TabID:     id,
		URL:       url,
		URI:       uriScheme + path,
		Timestamp: time.Unix(0, nanos),
	}, true, nil
}

// Delete removes the screenshot of id. Deleting an unknown id is a no-op.
func (s *Store) Delete(ctx context.Context, id schema.TabID) error {
	name, ok, err := s.file(ctx, id)
	if err != nil || !ok {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM screenshots WHERE tab_id = ?`, string(id)); err != nil {
		return s.fail("screenshot delete failed", id, err)
	}
	s.remove(name)
	return nil
}

// Path maps a URI returned by Save or Lookup back to its file.
func Path(uri string) (string, bool) {
	path, ok := strings.CutPrefix(uri, uriScheme)
	return path, ok && path != ""
}

func (s *Store) file(ctx context.Context, id schema.TabID) (string, bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx, `SELECT file FROM screenshots WHERE tab_id = ?`, string(id)).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return name, true, nil
}

func (s *Store) remove(name string) {
	if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) && s.log != nil {
		s.log.Warn("screenshot file remove failed", "file", name, "err", err)
	}
}

func (s *Store) fail(msg string, id schema.TabID, err error) error {
	if s.log != nil {
		s.log.Warn(msg, "tab", id, "err", err)
	}
	return fmt.Errorf("%s: %w", strings.TrimSuffix(msg, " failed"), err)
}

// moveFile renames src to dest, copying when they sit on different devices.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dest)
		return err
	}
	return os.Remove(src)
}
