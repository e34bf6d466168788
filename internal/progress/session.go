package progress

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Session is one open progress path: a change notification subscription
// and a poll ticker feeding a single reload loop. A Session is created by
// Watcher.SetPath and released by Close.
type Session struct {
	path string
	w    *Watcher

	fsw    *fsnotify.Watcher
	ticker *time.Ticker

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// openSession installs notification (best effort) and polling for path and
// starts the reload loop. The initial read has already been emitted.
func openSession(w *Watcher, path string) *Session {
	s := &Session{path: path, w: w, done: make(chan struct{})}

	if !w.opts.DisableNotify {
		fsw, err := watchFile(path)
		if err != nil {
			slog.Warn("change notification unavailable; polling only", "path", path, "error", err)
			w.emitError(ReadError{Path: path, Message: err.Error()})
		} else {
			s.fsw = fsw
		}
	}
	if w.opts.PollInterval > 0 {
		s.ticker = time.NewTicker(w.opts.PollInterval)
	}

	w.running.Add(1)
	s.wg.Add(1)
	go s.loop()
	return s
}

// watchFile subscribes to the directory holding path; editors and tools
// that replace the file by rename would otherwise drop a direct watch.
func watchFile(path string) (*fsnotify.Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	return fsw, nil
}

// Path returns the absolute path this session reads.
func (s *Session) Path() string { return s.path }

// Close stops notification and polling and waits for the reload loop to
// exit. No events are emitted by this session after Close returns.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		if s.fsw != nil {
			s.fsw.Close()
		}
	})
}

func (s *Session) loop() {
	defer s.w.running.Add(-1)
	defer s.wg.Done()

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
		tick   <-chan time.Time
	)
	if s.fsw != nil {
		events, errs = s.fsw.Events, s.fsw.Errors
	}
	if s.ticker != nil {
		tick = s.ticker.C
	}

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(ev.Name) != s.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			debounce.Reset(s.w.opts.Debounce)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("change notification error", "path", s.path, "error", err)
		case <-debounce.C:
			s.reload("notify")
		case <-tick:
			s.reload("poll")
		}
	}
}

// reload re-reads the file and emits the result. The active path is left
// unchanged on failure; the next notification or poll tries again.
func (s *Session) reload(trigger string) {
	select {
	case <-s.done:
		return
	default:
	}
	snap, err := ReadFile(s.path)
	if err != nil {
		slog.Debug("progress reload failed", "path", s.path, "trigger", trigger, "error", err)
		s.w.emitError(ReadError{Path: s.path, Message: err.Error()})
		return
	}
	slog.Debug("progress reloaded", "path", s.path, "trigger", trigger, "quests", len(snap.Quests))
	s.w.emitUpdate(Update{Path: s.path, Snapshot: snap})
}
