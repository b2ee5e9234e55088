package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"pkt.systems/pslog"
	"pkt.systems/tabdeck/schema"
)

// fileVersion is bumped when the on-disk layout changes incompatibly.
const fileVersion = 1

type tabsFile struct {
	Version int `json:"version"`
	schema.SavedTabs
}

// Store persists the tab list of one profile to a JSON file.
type Store struct {
	dir     string
	profile string
	log     pslog.Logger
}

// NewStore constructs a persistent store at the given directory.
func NewStore(dir, profile string) (*Store, error) {
	return NewStoreWithLogger(dir, profile, nil)
}

// NewStoreWithLogger constructs a persistent store with logging.
func NewStoreWithLogger(dir, profile string, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	profile = sanitize(profile)
	if profile == "" {
		profile = "default"
	}
	if logger != nil {
		logger = logger.With("state_dir", dir, "profile", profile)
	}
	return &Store{dir: dir, profile: profile, log: logger}, nil
}

// Path returns the state file location.
func (s *Store) Path() string {
	return filepath.Join(s.dir, s.profile+".tabs.json")
}

// Load reads the saved tab list. A missing file is not an error.
func (s *Store) Load(ctx context.Context) (schema.SavedTabs, bool, error) {
	if err := ctx.Err(); err != nil {
		return schema.SavedTabs{}, false, err
	}
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.debug("state load miss")
			return schema.SavedTabs{}, false, nil
		}
		return schema.SavedTabs{}, false, s.fail("state load failed", err)
	}
	var file tabsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return schema.SavedTabs{}, false, s.fail("state load failed", err)
	}
	if file.Version != fileVersion {
		return schema.SavedTabs{}, false, s.fail("state load failed", fmt.Errorf("unsupported state version %d", file.Version))
	}
	s.debug("state load ok", "tabs", len(file.Order))
	return file.SavedTabs, true, nil
}

// Save atomically replaces the saved tab list.
func (s *Store) Save(ctx context.Context, tabs schema.SavedTabs) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := s.Path()
	data, err := json.MarshalIndent(tabsFile{Version: fileVersion, SavedTabs: tabs}, "", "  ")
	if err != nil {
		return s.fail("state save failed", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "state-*.json")
	if err != nil {
		return s.fail("state save failed", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return s.fail("state save failed", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return s.fail("state save failed", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return s.fail("state save failed", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return s.fail("state save failed", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return s.fail("state save failed", err)
	}
	if s.log != nil {
		s.log.Trace("state save ok", "tabs", len(tabs.Order))
	}
	return nil
}

func (s *Store) fail(msg string, err error) error {
	if s.log != nil {
		s.log.Warn(msg, "err", err)
	}
	return err
}

func (s *Store) debug(msg string, kv ...any) {
	if s.log != nil {
		s.log.Debug(msg, kv...)
	}
}

func sanitize(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
			continue
		}
		b.WriteRune('_')
	}
	return b.String()
}
