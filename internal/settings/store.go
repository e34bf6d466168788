package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	settingsFile        = "user_settings.json"
	legacyOverridesFile = "quest_overrides.json"
	legacyPathFile      = "quest_progress_path.json"
)

// CorruptError is a settings document that exists but cannot be decoded.
// It is returned to callers and never replaced with defaults.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string { return fmt.Sprintf("corrupt settings %s: %v", e.Path, e.Err) }
func (e *CorruptError) Unwrap() error { return e.Err }

// Store persists Settings as a JSON document in a directory. All methods
// are safe for concurrent use; Update makes read-modify-write sequences
// atomic with respect to each other.
type Store struct {
	dir string
	now func() time.Time

	mu sync.Mutex
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// Dir returns the directory holding the settings documents.
func (s *Store) Dir() string { return s.dir }

// Path returns the primary settings document path.
func (s *Store) Path() string { return filepath.Join(s.dir, settingsFile) }

// Read loads the settings. When the primary document is absent it falls
// back to the legacy override and progress-path documents.
func (s *Store) Read() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Write normalizes and persists settings, returning what was written.
func (s *Store) Write(st Settings) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(st)
}

// Update reads the settings, applies fn and writes the result, holding the
// store lock throughout. If fn returns an error nothing is written.
func (s *Store) Update(fn func(*Settings) error) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.read()
	if err != nil {
		return Settings{}, err
	}
	if err := fn(&st); err != nil {
		return Settings{}, err
	}
	return s.write(st)
}

func (s *Store) read() (Settings, error) {
	path := s.Path()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s.readLegacy()
		}
		return Settings{}, fmt.Errorf("reading settings: %w", err)
	}
	var st Settings
	if err := json.Unmarshal(data, &st); err != nil {
		return Settings{}, &CorruptError{Path: path, Err: err}
	}
	return st, nil
}

func (s *Store) readLegacy() (Settings, error) {
	overrides, err := s.readLegacyOverrides()
	if err != nil {
		return Settings{}, err
	}
	path, err := s.readLegacyProgressPath()
	if err != nil {
		return Settings{}, err
	}
	if len(overrides) > 0 || path != "" {
		slog.Info("migrating legacy settings", "dir", s.dir, "overrides", len(overrides), "progressPath", path)
	}
	return Settings{
		ProgressPath: path,
		Overrides:    overrides,
		Preferences:  DefaultPreferences(),
	}.Normalize(), nil
}

func (s *Store) readLegacyOverrides() (Overrides, error) {
	path := filepath.Join(s.dir, legacyOverridesFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Overrides{}, nil
		}
		return nil, fmt.Errorf("reading legacy overrides: %w", err)
	}
	var o Overrides
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}
	return o, nil
}

func (s *Store) readLegacyProgressPath() (string, error) {
	path := filepath.Join(s.dir, legacyPathFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("reading legacy progress path: %w", err)
	}
	var doc struct {
		Path *string `json:"path"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", &CorruptError{Path: path, Err: err}
	}
	if doc.Path == nil {
		return "", nil
	}
	return strings.TrimSpace(*doc.Path), nil
}

// write replaces the settings document via a temp file and rename so a
// reader never sees a partial document.
func (s *Store) write(st Settings) (Settings, error) {
	st = st.Normalize()
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return Settings{}, fmt.Errorf("encoding settings: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Settings{}, fmt.Errorf("creating settings dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, settingsFile+".*.tmp")
	if err != nil {
		return Settings{}, fmt.Errorf("writing settings: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Settings{}, fmt.Errorf("writing settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Settings{}, fmt.Errorf("writing settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path()); err != nil {
		return Settings{}, fmt.Errorf("writing settings: %w", err)
	}
	return st, nil
}
