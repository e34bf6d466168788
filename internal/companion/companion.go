// Package companion is the reconciliation core. It owns the quest catalog,
// the progress watcher and the settings store, and recomputes the full
// reconciled view whenever a snapshot, override or preference changes.
package companion

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jmoiron/questcompanion/internal/catalog"
	"github.com/jmoiron/questcompanion/internal/progress"
	"github.com/jmoiron/questcompanion/internal/reconcile"
	"github.com/jmoiron/questcompanion/internal/settings"
)

// Options configures Open.
type Options struct {
	// DataDir holds the quest group documents.
	DataDir string
	// Store persists settings and overrides.
	Store *settings.Store
	// Watcher configures progress file watching.
	Watcher progress.Options
	// DefaultProgressPath is suggested to the user when it exists.
	DefaultProgressPath string
}

// Status is the one-line progress status shown to the user.
type Status struct {
	Path    string `json:"path,omitempty"`
	Message string `json:"message"`
	Error   bool   `json:"error,omitempty"`
}

// Companion is the presentation-facing boundary of the tracker.
type Companion struct {
	dataDir     string
	defaultPath string
	store       *settings.Store
	watcher     *progress.Watcher

	// pathMu orders watcher transitions with their persistence
	pathMu sync.Mutex
	// settingsMu orders store writes with the cached copies below
	settingsMu sync.Mutex

	mu           sync.RWMutex
	catalog      *catalog.Catalog
	snapshot     *progress.Snapshot
	snapshotPath string
	lastErr      *progress.ReadError
	overrides    settings.Overrides
	prefs        settings.Preferences
	view         reconcile.View

	lmu       sync.Mutex
	nextID    int
	listeners map[int]func(reconcile.View)
	order     []int
}

// Open loads the catalog and settings concurrently, persists the
// normalized settings (completing any legacy migration) and activates the
// stored progress path. A corrupt settings document fails Open.
func Open(opts Options) (*Companion, error) {
	if opts.Store == nil {
		return nil, errors.New("companion: settings store required")
	}

	var (
		cat *catalog.Catalog
		st  settings.Settings
		g   errgroup.Group
	)
	g.Go(func() error {
		var err error
		cat, err = catalog.Load(opts.DataDir)
		return err
	})
	g.Go(func() error {
		var err error
		st, err = opts.Store.Read()
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	st, err := opts.Store.Write(st)
	if err != nil {
		return nil, err
	}

	c := &Companion{
		dataDir:     opts.DataDir,
		defaultPath: opts.DefaultProgressPath,
		store:       opts.Store,
		watcher:     progress.NewWatcher(opts.Watcher),
		catalog:     cat,
		overrides:   st.Overrides,
		prefs:       st.Preferences,
		listeners:   make(map[int]func(reconcile.View)),
	}
	c.watcher.OnUpdate(c.handleUpdate)
	c.watcher.OnError(c.handleError)
	c.view = reconcile.Build(cat, nil, st.Overrides)

	slog.Info("quest catalog loaded", "dir", opts.DataDir, "groups", len(cat.Groups), "quests", cat.QuestCount())

	if st.ProgressPath != "" {
		if c.watcher.SetPath(st.ProgressPath) == "" {
			slog.Warn("stored progress path could not be read", "path", st.ProgressPath)
		}
	}
	return c, nil
}

// Close releases the progress watcher.
func (c *Companion) Close() {
	c.watcher.Close()
}

func (c *Companion) handleUpdate(u progress.Update) {
	c.mu.Lock()
	c.snapshot = u.Snapshot
	c.snapshotPath = u.Path
	c.lastErr = nil
	v := c.rebuildLocked()
	c.mu.Unlock()
	c.notify(v)
}

// handleError records the failure for the status line; the last good
// snapshot stays in the view.
func (c *Companion) handleError(e progress.ReadError) {
	slog.Warn("progress read failed", "path", e.Path, "error", e.Message)
	c.mu.Lock()
	c.lastErr = &e
	c.mu.Unlock()
}

func (c *Companion) rebuildLocked() reconcile.View {
	c.view = reconcile.Build(c.catalog, c.snapshot, c.overrides)
	return c.view
}

// Catalog returns the loaded quest catalog.
func (c *Companion) Catalog() *catalog.Catalog {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.catalog
}

// ReloadCatalog re-reads the data directory and recomputes the view.
func (c *Companion) ReloadCatalog() error {
	cat, err := catalog.Load(c.dataDir)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.catalog = cat
	v := c.rebuildLocked()
	c.mu.Unlock()
	c.notify(v)
	return nil
}

// View returns the current reconciled view.
func (c *Companion) View() reconcile.View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.view
}

// Snapshot returns the last successfully read snapshot and its path.
func (c *Companion) Snapshot() (*progress.Snapshot, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot, c.snapshotPath
}

// Status describes the latest progress event for the status line.
func (c *Companion) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.lastErr != nil:
		return Status{Path: c.lastErr.Path, Message: c.lastErr.Message, Error: true}
	case c.snapshot != nil && c.snapshot.GeneratedAtUTC != "":
		return Status{Path: c.snapshotPath, Message: "Progress updated at " + c.snapshot.GeneratedAtUTC}
	case c.snapshot != nil:
		return Status{Path: c.snapshotPath, Message: "Progress loaded."}
	}
	return Status{Message: "No quest progress loaded."}
}

// ProgressPath returns the stored progress path, or "".
func (c *Companion) ProgressPath() (string, error) {
	return c.store.ProgressPath()
}

// ActivePath returns the path currently being watched, or "".
func (c *Companion) ActivePath() string {
	return c.watcher.Path()
}

// SetProgressPath activates path and returns its absolute form, or "" when
// path is blank or its first read fails. The previous path stops being
// watched either way. The requested path is persisted even when rejected so
// it is offered again on the next start.
func (c *Companion) SetProgressPath(path string) (string, error) {
	c.pathMu.Lock()
	defer c.pathMu.Unlock()

	path = strings.TrimSpace(path)
	effective := c.watcher.SetPath(path)
	stored := effective
	if stored == "" {
		stored = path
	}
	if _, err := c.store.SetProgressPath(stored); err != nil {
		return effective, fmt.Errorf("saving progress path: %w", err)
	}
	return effective, nil
}

// DefaultProgressPath returns the configured default progress file when it
// exists, or "".
func (c *Companion) DefaultProgressPath() string {
	if c.defaultPath == "" {
		return ""
	}
	if _, err := os.Stat(c.defaultPath); err != nil {
		return ""
	}
	return c.defaultPath
}

// ReadProgress re-reads the active progress file without emitting an
// update. Failures are emitted as error events and yield nil.
func (c *Companion) ReadProgress() *progress.Snapshot {
	return c.watcher.Read()
}

// OnSnapshotUpdated registers fn for successful progress reads. The
// companion's view already reflects the update when fn runs.
func (c *Companion) OnSnapshotUpdated(fn func(progress.Update)) (cancel func()) {
	return c.watcher.OnUpdate(fn)
}

// OnSnapshotError registers fn for failed progress reads.
func (c *Companion) OnSnapshotError(fn func(progress.ReadError)) (cancel func()) {
	return c.watcher.OnError(fn)
}

// Overrides returns the current override mapping.
func (c *Companion) Overrides() settings.Overrides {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.overrides.Clone()
}

// SetOverride persists an override change and returns the updated mapping.
func (c *Companion) SetOverride(key string, completed bool) (settings.Overrides, error) {
	c.settingsMu.Lock()
	o, err := c.store.SetOverride(key, completed)
	if err != nil {
		c.settingsMu.Unlock()
		return nil, err
	}
	c.mu.Lock()
	c.overrides = o
	v := c.rebuildLocked()
	c.mu.Unlock()
	c.settingsMu.Unlock()
	c.notify(v)
	return o.Clone(), nil
}

// Preferences returns the current preferences.
func (c *Companion) Preferences() settings.Preferences {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prefs
}

// SetPreferences merges u into the stored preferences.
func (c *Companion) SetPreferences(u settings.PreferencesUpdate) (settings.Preferences, error) {
	c.settingsMu.Lock()
	p, err := c.store.SetPreferences(u)
	if err != nil {
		c.settingsMu.Unlock()
		return settings.Preferences{}, err
	}
	c.mu.Lock()
	c.prefs = p
	v := c.rebuildLocked()
	c.mu.Unlock()
	c.settingsMu.Unlock()
	c.notify(v)
	return p, nil
}

// OnViewChanged registers fn to receive every recomputed view.
func (c *Companion) OnViewChanged(fn func(reconcile.View)) (cancel func()) {
	c.lmu.Lock()
	defer c.lmu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.order = append(c.order, id)
	return func() {
		c.lmu.Lock()
		delete(c.listeners, id)
		c.lmu.Unlock()
	}
}

func (c *Companion) notify(v reconcile.View) {
	c.lmu.Lock()
	fns := make([]func(reconcile.View), 0, len(c.listeners))
	for _, id := range c.order {
		if fn, ok := c.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	c.lmu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}
