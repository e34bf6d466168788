package progress

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu      sync.Mutex
	updates []Update
	errors  []ReadError
	notify  chan struct{}
}

func newRecorder(w *Watcher) *recorder {
	r := &recorder{notify: make(chan struct{}, 64)}
	w.OnUpdate(func(u Update) {
		r.mu.Lock()
		r.updates = append(r.updates, u)
		r.mu.Unlock()
		r.ping()
	})
	w.OnError(func(e ReadError) {
		r.mu.Lock()
		r.errors = append(r.errors, e)
		r.mu.Unlock()
		r.ping()
	})
	return r
}

func (r *recorder) ping() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

func (r *recorder) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates), len(r.errors)
}

func (r *recorder) lastUpdate() Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates[len(r.updates)-1]
}

func (r *recorder) lastError() ReadError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.errors[len(r.errors)-1]
}

// waitFor blocks until cond holds or the deadline passes.
func (r *recorder) waitFor(t *testing.T, cond func(updates, errors int) bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if cond(r.counts()) {
			return
		}
		select {
		case <-r.notify:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			u, e := r.counts()
			t.Fatalf("timed out waiting; updates=%d errors=%d", u, e)
		}
	}
}

func writeProgress(t *testing.T, path string, stage int) {
	t.Helper()
	doc := `{"generated_at_utc": "now", "quests": [{"name": "MQ01", "stage": ` + strconv.Itoa(stage) + `}]}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
}

func quietWatcher() *Watcher {
	return NewWatcher(Options{PollInterval: time.Hour, DisableNotify: true})
}

func TestSetPathEmpty(t *testing.T) {
	w := quietWatcher()
	defer w.Close()
	r := newRecorder(w)

	if got := w.SetPath("   "); got != "" {
		t.Fatalf("expected empty path, got %q", got)
	}
	u, e := r.counts()
	if u != 1 || e != 0 {
		t.Fatalf("expected one update, got updates=%d errors=%d", u, e)
	}
	if last := r.lastUpdate(); last.Path != "" || last.Snapshot != nil {
		t.Fatalf("expected empty update, got %+v", last)
	}
	if w.running.Load() != 0 {
		t.Fatalf("no session should be running")
	}
}

func TestSetPathMissingClearsPrevious(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "quest_progress.json")
	writeProgress(t, good, 10)

	w := NewWatcher(Options{PollInterval: 5 * time.Millisecond, DisableNotify: true})
	defer w.Close()
	r := newRecorder(w)

	if got := w.SetPath(good); got != good {
		t.Fatalf("expected %q, got %q", good, got)
	}
	if got := w.SetPath(filepath.Join(dir, "missing.json")); got != "" {
		t.Fatalf("expected rejection, got %q", got)
	}
	if w.Path() != "" {
		t.Fatalf("rejected path must leave no active path, got %q", w.Path())
	}
	if n := w.running.Load(); n != 0 {
		t.Fatalf("previous session should be torn down, got %d running", n)
	}
	u, e := r.counts()
	if !strings.HasSuffix(r.lastError().Path, "missing.json") {
		t.Fatalf("error path: %q", r.lastError().Path)
	}

	// the old file's poll timer must not fire any more
	time.Sleep(50 * time.Millisecond)
	if u2, e2 := r.counts(); u2 != u || e2 != e {
		t.Fatalf("events after rejection: updates %d->%d errors %d->%d", u, u2, e, e2)
	}
}

func TestSetPathMissingWithoutPrevious(t *testing.T) {
	w := quietWatcher()
	defer w.Close()
	r := newRecorder(w)

	if got := w.SetPath(filepath.Join(t.TempDir(), "missing.json")); got != "" {
		t.Fatalf("expected rejection, got %q", got)
	}
	if w.Path() != "" || w.running.Load() != 0 {
		t.Fatalf("rejected path must not be active")
	}
	if _, e := r.counts(); e != 1 {
		t.Fatalf("expected one error event, got %d", e)
	}
}

func TestSetPathMalformedRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quest_progress.json")
	if err := os.WriteFile(path, []byte(`{"quests": [`), 0o644); err != nil {
		t.Fatal(err)
	}
	w := quietWatcher()
	defer w.Close()
	newRecorder(w)
	if got := w.SetPath(path); got != "" {
		t.Fatalf("expected rejection, got %q", got)
	}
}

func TestSetPathTwiceSingleSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quest_progress.json")
	writeProgress(t, path, 10)

	w := quietWatcher()
	r := newRecorder(w)

	w.SetPath(path)
	w.SetPath(path)
	if u, _ := r.counts(); u != 2 {
		t.Fatalf("expected two updates, got %d", u)
	}
	if n := w.running.Load(); n != 1 {
		t.Fatalf("expected one running session, got %d", n)
	}

	w.Close()
	if n := w.running.Load(); n != 0 {
		t.Fatalf("expected no running sessions after close, got %d", n)
	}
	if w.Path() != "" {
		t.Fatalf("path should be cleared after close")
	}
}

func TestSetPathRelativeResolved(t *testing.T) {
	dir := t.TempDir()
	writeProgress(t, filepath.Join(dir, "p.json"), 1)
	t.Chdir(dir)

	w := quietWatcher()
	defer w.Close()
	newRecorder(w)
	got := w.SetPath(" p.json ")
	if !filepath.IsAbs(got) || filepath.Base(got) != "p.json" {
		t.Fatalf("expected absolute path, got %q", got)
	}
}

func TestPollReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quest_progress.json")
	writeProgress(t, path, 10)

	w := NewWatcher(Options{PollInterval: 20 * time.Millisecond, DisableNotify: true})
	defer w.Close()
	r := newRecorder(w)

	w.SetPath(path)
	writeProgress(t, path, 20)
	r.waitFor(t, func(u, _ int) bool {
		return u >= 2 && r.lastUpdate().Snapshot.Quests[0].Stage == 20
	})

	// a malformed rewrite is reported but the session stays on the path
	if err := os.WriteFile(path, []byte(`{"quests": [`), 0o644); err != nil {
		t.Fatal(err)
	}
	r.waitFor(t, func(_, e int) bool { return e >= 1 })
	if w.Path() != path {
		t.Fatalf("active path changed after reload failure: %q", w.Path())
	}

	writeProgress(t, path, 30)
	r.waitFor(t, func(u, _ int) bool {
		return r.lastUpdate().Snapshot.Quests[0].Stage == 30
	})
}

func TestNoEmissionAfterReplace(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.json")
	second := filepath.Join(dir, "second.json")
	writeProgress(t, first, 1)
	writeProgress(t, second, 2)

	w := NewWatcher(Options{PollInterval: 5 * time.Millisecond, DisableNotify: true})
	defer w.Close()
	r := newRecorder(w)

	w.SetPath(first)
	time.Sleep(30 * time.Millisecond)
	w.SetPath(second)
	r.mu.Lock()
	mark := len(r.updates)
	r.mu.Unlock()
	time.Sleep(50 * time.Millisecond)

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.updates[mark-1:] {
		if u.Path != second {
			t.Fatalf("stale emission for %q after switching to %q", u.Path, second)
		}
	}
}

func TestNotifyReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quest_progress.json")
	writeProgress(t, path, 10)

	w := NewWatcher(Options{PollInterval: -1, Debounce: 10 * time.Millisecond})
	defer w.Close()
	r := newRecorder(w)

	if got := w.SetPath(path); got != path {
		t.Fatalf("set path: %q", got)
	}
	if _, e := r.counts(); e > 0 {
		t.Skipf("change notification unavailable: %s", r.lastError().Message)
	}
	writeProgress(t, path, 40)
	r.waitFor(t, func(u, _ int) bool {
		return u >= 2 && r.lastUpdate().Snapshot.Quests[0].Stage == 40
	})
}

func TestReadEmitsErrorOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quest_progress.json")
	writeProgress(t, path, 10)

	w := quietWatcher()
	defer w.Close()
	r := newRecorder(w)

	if w.Read() != nil {
		t.Fatalf("expected nil without an active path")
	}
	w.SetPath(path)
	if snap := w.Read(); snap == nil || snap.Quests[0].Stage != 10 {
		t.Fatalf("unexpected read result %+v", snap)
	}
	if u, _ := r.counts(); u != 1 {
		t.Fatalf("Read must not emit updates, got %d", u)
	}
	os.Remove(path)
	if w.Read() != nil {
		t.Fatalf("expected nil after file removal")
	}
	if _, e := r.counts(); e != 1 {
		t.Fatalf("expected an error event")
	}
}

func TestListenerCancel(t *testing.T) {
	w := quietWatcher()
	var n int
	cancel := w.OnUpdate(func(Update) { n++ })
	w.SetPath("")
	cancel()
	w.SetPath("")
	if n != 1 {
		t.Fatalf("expected listener to fire once, got %d", n)
	}
}
