package cert

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vyrodovalexey/alipaykernel/internal/observability"
)

// DefaultDebounceDelay coalesces bursts of writes to a watched file.
const DefaultDebounceDelay = 100 * time.Millisecond

// EventType represents the type of watcher event.
type EventType int

// Event type constants.
const (
	// EventReloaded indicates the reload callback succeeded.
	EventReloaded EventType = iota

	// EventError indicates the reload callback or the watcher failed.
	EventError
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventReloaded:
		return "reloaded"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is emitted after each reload attempt.
type Event struct {
	Type    EventType
	Path    string
	Error   error
	Message string
}

// ReloadFunc is invoked after a watched file changes.
type ReloadFunc func(ctx context.Context, path string) error

// Watcher watches certificate files and calls a reload function when any
// of them is written or replaced.
type Watcher struct {
	paths  []string
	reload ReloadFunc
	logger observability.Logger

	watcher   *fsnotify.Watcher
	eventCh   chan Event
	stopCh    chan struct{}
	stoppedCh chan struct{}

	mu      sync.Mutex
	closed  bool
	started bool

	debounceDelay time.Duration
}

// WatcherOption is a functional option for configuring Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger for the watcher.
func WithWatcherLogger(logger observability.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithDebounceDelay sets the debounce delay for file change events.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = delay
	}
}

// NewWatcher creates a watcher for the given files. Empty paths are ignored.
func NewWatcher(paths []string, reload ReloadFunc, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		reload:        reload,
		logger:        observability.NopLogger(),
		eventCh:       make(chan Event, 10),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
		debounceDelay: DefaultDebounceDelay,
	}
	for _, p := range paths {
		if p != "" {
			w.paths = append(w.paths, filepath.Clean(p))
		}
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. The parent directories are watched so that
// atomic replacement by rename is observed.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if w.started {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return NewCertificateErrorWithCause("", "failed to create file watcher", err)
	}

	dirs := make(map[string]struct{})
	for _, p := range w.paths {
		dir := filepath.Dir(p)
		if _, seen := dirs[dir]; seen {
			continue
		}
		dirs[dir] = struct{}{}
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return NewCertificateErrorWithCause(dir, "failed to watch certificate directory", err)
		}
		w.logger.Info("watching certificate directory",
			observability.String("path", dir),
		)
	}

	w.watcher = watcher
	w.started = true
	go w.watchLoop(ctx)

	return nil
}

// Events returns a channel that receives reload events.
func (w *Watcher) Events() <-chan Event {
	return w.eventCh
}

// Close stops the file watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	started := w.started
	w.mu.Unlock()

	close(w.stopCh)

	if started {
		<-w.stoppedCh
		if err := w.watcher.Close(); err != nil {
			return NewCertificateErrorWithCause("", "failed to close file watcher", err)
		}
	}

	close(w.eventCh)
	return nil
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer close(w.stoppedCh)

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time
	var changed string

	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("certificate watcher stopped due to context cancellation")
			return

		case <-w.stopCh:
			w.logger.Info("certificate watcher stopped")
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.isRelevant(event) {
				continue
			}
			w.logger.Debug("certificate file changed",
				observability.String("path", event.Name),
				observability.String("op", event.Op.String()),
			)
			changed = filepath.Clean(event.Name)
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.debounceDelay)
			debounceCh = debounceTimer.C

		case <-debounceCh:
			debounceCh = nil
			w.runReload(ctx, changed)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", observability.Error(err))
			w.sendEvent(Event{Type: EventError, Error: err, Message: "file watcher error"})
		}
	}
}

func (w *Watcher) isRelevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Clean(event.Name)
	for _, p := range w.paths {
		if p == name {
			return true
		}
	}
	return false
}

func (w *Watcher) runReload(ctx context.Context, path string) {
	w.logger.Info("reloading certificates", observability.String("path", path))

	if err := w.reload(ctx, path); err != nil {
		w.logger.Error("failed to reload certificates",
			observability.String("path", path),
			observability.Error(err),
		)
		w.sendEvent(Event{Type: EventError, Path: path, Error: err, Message: "failed to reload certificates"})
		return
	}

	w.sendEvent(Event{Type: EventReloaded, Path: path, Message: "certificates reloaded"})
}

func (w *Watcher) sendEvent(event Event) {
	select {
	case w.eventCh <- event:
	default:
		w.logger.Warn("certificate event channel full, dropping event",
			observability.String("type", event.Type.String()),
		)
	}
}
