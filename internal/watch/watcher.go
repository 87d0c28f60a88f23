// Package watch reports feedback records appearing, changing and
// disappearing on disk, whichever process wrote them.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"agentfeedback/internal/feedback"
	"agentfeedback/internal/store"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Kind classifies a settled change to a record file.
type Kind string

const (
	KindCreated Kind = "created"
	KindUpdated Kind = "updated"
	KindRemoved Kind = "removed"
)

// DefaultDebounce is how long a record file must be quiet before its event
// is emitted. Atomic rewrites produce several raw events per save.
const DefaultDebounce = 250 * time.Millisecond

// Event is one settled record change.
type Event struct {
	Kind Kind          `json:"kind"`
	Type feedback.Type `json:"type"`
	ID   string        `json:"id"`
	Path string        `json:"path"`
	At   time.Time     `json:"at"`
}

// Stats tracks watcher activity.
type Stats struct {
	Created       int
	Updated       int
	Removed       int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
	LastEventKind Kind
}

// Partitions resolves the directory holding each feedback type.
// *store.Store satisfies it.
type Partitions interface {
	PartitionDir(t feedback.Type) string
}

type pending struct {
	typ  feedback.Type
	id   string
	seen time.Time
}

// Watcher watches every partition directory of a store.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	partitions  Partitions
	logger      *zap.Logger
	debounceDur time.Duration
	pending     map[string]pending
	known       map[string]bool
	events      chan Event
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	started     bool

	stats Stats
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets the quiet period before an event is emitted.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounceDur = d
		}
	}
}

// New creates a Watcher over the partitions of p. Call Start to begin.
func New(p Partitions, opts ...Option) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		watcher:     fw,
		partitions:  p,
		logger:      zap.NewNop(),
		debounceDur: DefaultDebounce,
		pending:     make(map[string]pending),
		known:       make(map[string]bool),
		events:      make(chan Event, 64),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Events returns the channel settled events are delivered on. It is closed
// once the watcher stops.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start begins watching. It is non-blocking; events are processed in a
// goroutine until ctx is cancelled or Stop is called. A Watcher can be
// started once.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = true
	w.running = true
	w.mu.Unlock()

	for _, t := range feedback.Types() {
		dir := w.partitions.PartitionDir(t)
		if err := os.MkdirAll(dir, 0755); err != nil {
			w.abort()
			return fmt.Errorf("create partition %s: %w", t, err)
		}
		// Seed before adding so a file created in between is reported
		// as created rather than updated.
		w.seed(dir)
		if err := w.watcher.Add(dir); err != nil {
			w.abort()
			return fmt.Errorf("watch partition %s: %w", t, err)
		}
	}
	w.logger.Debug("watching partitions", zap.Strings("dirs", w.watcher.WatchList()))

	go w.run(ctx)
	return nil
}

// abort undoes a failed Start.
func (w *Watcher) abort() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	close(w.doneCh)
	close(w.events)
	_ = w.watcher.Close()
}

// seed records the files already present so that later writes to them are
// reported as updates.
func (w *Watcher) seed(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn("failed to list partition", zap.String("dir", dir), zap.Error(err))
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range entries {
		if store.IDFromFilename(e.Name()) != "" {
			w.known[filepath.Join(dir, e.Name())] = true
		}
	}
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.started = true
		w.mu.Unlock()
		close(w.events)
		_ = w.watcher.Close()
		return
	}
	select {
	case <-w.stopCh:
		w.mu.Unlock()
		return
	default:
	}
	close(w.stopCh)
	w.mu.Unlock()

	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("error closing watcher", zap.Error(err))
	}
	w.logger.Debug("watcher stopped")
}

// run is the main event loop.
func (w *Watcher) run(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		close(w.events)
		close(w.doneCh)
	}()

	tick := w.debounceDur / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	debounceTicker := time.NewTicker(tick)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-debounceTicker.C:
			if !w.flush(ctx) {
				return
			}
		}
	}
}

// handleEvent records a raw filesystem event for later settling.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	id := store.IDFromFilename(filepath.Base(event.Name))
	if id == "" {
		return
	}
	typ := feedback.Type(filepath.Base(filepath.Dir(event.Name)))
	if !typ.Valid() {
		return
	}

	w.logger.Debug("raw event", zap.String("op", event.Op.String()), zap.String("path", event.Name))

	w.mu.Lock()
	w.pending[event.Name] = pending{typ: typ, id: id, seen: time.Now()}
	w.mu.Unlock()
}

// flush emits events for paths that have been quiet for the debounce
// window. It returns false if the watcher was stopped while delivering.
func (w *Watcher) flush(ctx context.Context) bool {
	now := time.Now()

	w.mu.Lock()
	var settled []Event
	for path, p := range w.pending {
		if now.Sub(p.seen) < w.debounceDur {
			continue
		}
		delete(w.pending, path)

		ev := Event{Type: p.typ, ID: p.id, Path: path, At: now}
		_, err := os.Stat(path)
		switch {
		case err == nil && w.known[path]:
			ev.Kind = KindUpdated
			w.stats.Updated++
		case err == nil:
			ev.Kind = KindCreated
			w.known[path] = true
			w.stats.Created++
		case os.IsNotExist(err):
			if !w.known[path] {
				// Created and removed within one window.
				continue
			}
			ev.Kind = KindRemoved
			delete(w.known, path)
			w.stats.Removed++
		default:
			w.stats.Errors++
			w.logger.Warn("failed to stat record", zap.String("path", path), zap.Error(err))
			continue
		}
		w.stats.LastEventTime = now
		w.stats.LastEventPath = path
		w.stats.LastEventKind = ev.Kind
		settled = append(settled, ev)
	}
	w.mu.Unlock()

	for _, ev := range settled {
		w.logger.Info("record "+string(ev.Kind), zap.String("type", string(ev.Type)), zap.String("id", ev.ID))
		select {
		case w.events <- ev:
		case <-ctx.Done():
			return false
		case <-w.stopCh:
			return false
		}
	}
	return true
}

// Stats returns the current watcher statistics.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// IsWatching returns true while the event loop is running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// WatchedDirs returns the directories being watched.
func (w *Watcher) WatchedDirs() []string {
	return w.watcher.WatchList()
}
