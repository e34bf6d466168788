package progress

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPollInterval is how often an active session re-reads its file
// regardless of change notification.
const DefaultPollInterval = 60 * time.Second

// DefaultDebounce coalesces bursts of change notifications into one read.
const DefaultDebounce = 100 * time.Millisecond

// Update is emitted after a successful read. Path and Snapshot are both
// empty when no progress source is configured.
type Update struct {
	Path     string    `json:"path"`
	Snapshot *Snapshot `json:"data"`
}

// ReadError is emitted when a progress file cannot be read or parsed. It is
// delivered to listeners and never returned from SetPath.
type ReadError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e ReadError) Error() string { return e.Path + ": " + e.Message }

// Options configures a Watcher.
type Options struct {
	// PollInterval defaults to DefaultPollInterval. A negative value
	// disables polling.
	PollInterval time.Duration
	// Debounce defaults to DefaultDebounce.
	Debounce time.Duration
	// DisableNotify turns off filesystem change notification, leaving
	// polling as the only reload trigger.
	DisableNotify bool
}

// Watcher owns zero or one active Session and fans its events out to
// listeners. SetPath and Close are serialized; listeners are called on the
// goroutine that performed the read and must not call SetPath.
type Watcher struct {
	opts Options

	// transition serializes path changes end to end
	transition sync.Mutex

	mu        sync.Mutex
	session   *Session
	nextID    int
	onUpdate  map[int]func(Update)
	onError   map[int]func(ReadError)
	listeners []int

	// running counts live session loops
	running atomic.Int32
}

// NewWatcher returns a Watcher with no active path.
func NewWatcher(opts Options) *Watcher {
	if opts.PollInterval == 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	return &Watcher{
		opts:     opts,
		onUpdate: make(map[int]func(Update)),
		onError:  make(map[int]func(ReadError)),
	}
}

// OnUpdate registers fn for successful reads. The returned func removes it.
func (w *Watcher) OnUpdate(fn func(Update)) (cancel func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.register()
	w.onUpdate[id] = fn
	return func() {
		w.mu.Lock()
		delete(w.onUpdate, id)
		w.mu.Unlock()
	}
}

// OnError registers fn for failed reads. The returned func removes it.
func (w *Watcher) OnError(fn func(ReadError)) (cancel func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.register()
	w.onError[id] = fn
	return func() {
		w.mu.Lock()
		delete(w.onError, id)
		w.mu.Unlock()
	}
}

// register hands out listener ids in registration order; callers hold mu.
func (w *Watcher) register() int {
	id := w.nextID
	w.nextID++
	w.listeners = append(w.listeners, id)
	return id
}

// Path returns the active progress path, or "" when none is active.
func (w *Watcher) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session == nil {
		return ""
	}
	return w.session.path
}

// SetPath makes path the active progress source and returns its absolute
// form. Any active session is torn down first. An empty or blank path emits
// an empty Update and returns "". A path whose initial read fails is
// rejected: an error event is emitted, "" is returned and no path is left
// active. Calling SetPath again with the active path re-reads it and
// restarts the session.
func (w *Watcher) SetPath(path string) string {
	w.transition.Lock()
	defer w.transition.Unlock()

	w.replace(nil)

	path = strings.TrimSpace(path)
	if path == "" {
		w.emitUpdate(Update{})
		return ""
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		w.emitError(ReadError{Path: path, Message: err.Error()})
		return ""
	}

	snap, err := ReadFile(abs)
	if err != nil {
		slog.Warn("rejecting progress path", "path", abs, "error", err)
		w.emitError(ReadError{Path: abs, Message: err.Error()})
		return ""
	}

	w.emitUpdate(Update{Path: abs, Snapshot: snap})
	w.replace(openSession(w, abs))
	return abs
}

// Read re-reads the active file without emitting an Update. A failed read
// emits an error event and returns nil.
func (w *Watcher) Read() *Snapshot {
	path := w.Path()
	if path == "" {
		return nil
	}
	snap, err := ReadFile(path)
	if err != nil {
		w.emitError(ReadError{Path: path, Message: err.Error()})
		return nil
	}
	return snap
}

// Close tears down the active session, if any. Listeners stay registered.
func (w *Watcher) Close() {
	w.transition.Lock()
	defer w.transition.Unlock()
	w.replace(nil)
}

// replace swaps in s after synchronously closing the previous session.
func (w *Watcher) replace(s *Session) {
	w.mu.Lock()
	old := w.session
	w.session = s
	w.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

func (w *Watcher) emitUpdate(u Update) {
	for _, fn := range w.updateListeners() {
		fn(u)
	}
}

func (w *Watcher) emitError(e ReadError) {
	for _, fn := range w.errorListeners() {
		fn(e)
	}
}

func (w *Watcher) updateListeners() []func(Update) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fns := make([]func(Update), 0, len(w.onUpdate))
	for _, id := range w.listeners {
		if fn, ok := w.onUpdate[id]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}

func (w *Watcher) errorListeners() []func(ReadError) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fns := make([]func(ReadError), 0, len(w.onError))
	for _, id := range w.listeners {
		if fn, ok := w.onError[id]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}
