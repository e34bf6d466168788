package app

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jmoiron/questcompanion/internal/companion"
	"github.com/jmoiron/questcompanion/internal/progress"
	"github.com/jmoiron/questcompanion/internal/reconcile"
)

// Event names sent on /events.
const (
	EventSnapshotUpdated = "snapshot-updated"
	EventSnapshotError   = "snapshot-error"
	EventViewChanged     = "view-changed"
)

const keepAlive = 25 * time.Second

type event struct {
	name string
	data []byte
}

// broker fans companion events out to connected event-stream clients.
// Slow clients drop events rather than stall the publisher.
type broker struct {
	mu        sync.Mutex
	clients   map[chan event]struct{}
	cancels   []func()
	closeOnce sync.Once
}

func newBroker() *broker {
	return &broker{clients: make(map[chan event]struct{})}
}

// attach subscribes the broker to c's events.
func (b *broker) attach(c *companion.Companion) {
	b.cancels = append(b.cancels,
		c.OnSnapshotUpdated(func(u progress.Update) { b.publish(EventSnapshotUpdated, u) }),
		c.OnSnapshotError(func(e progress.ReadError) { b.publish(EventSnapshotError, e) }),
		c.OnViewChanged(func(v reconcile.View) {
			b.publish(EventViewChanged, map[string]any{
				"completed": v.Completed,
				"total":     v.Total,
				"generated": v.GeneratedAtUTC,
			})
		}),
	)
}

// close unsubscribes from the companion and disconnects every client.
func (b *broker) close() {
	b.closeOnce.Do(func() {
		for _, cancel := range b.cancels {
			cancel()
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		for ch := range b.clients {
			close(ch)
			delete(b.clients, ch)
		}
	})
}

func (b *broker) subscribe() chan event {
	ch := make(chan event, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *broker) unsubscribe(ch chan event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
	}
}

func (b *broker) publish(name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("encoding event", "event", name, "error", err)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.clients {
		select {
		case ch <- event{name: name, data: data}:
		default:
			slog.Debug("dropping event for slow client", "event", name)
		}
	}
}

// serve handles GET "/events" as a server-sent event stream.
func (b *broker) serve(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ch := b.subscribe()
	defer b.unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.data)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}
