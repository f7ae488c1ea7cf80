package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is the quiet period the watcher waits after
// a burst of file events before reloading.
const DefaultDebounceInterval = 200 * time.Millisecond

// Watcher reloads the configuration file when it changes on disk.
// Editors and config-management tools often replace the file by
// renaming a temp file over it, so the watcher observes the parent
// directory and filters events down to the one file. Rapid event
// bursts are debounced into a single reload, and a reload that fails
// to parse or validate is logged and discarded so the last good
// configuration stays in effect.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	fsw      *fsnotify.Watcher

	mu       sync.Mutex
	running  bool
	timer    *time.Timer
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWatcher creates a watcher for the configuration file at path.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config watcher: path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}

	return &Watcher{
		path:     filepath.Clean(path),
		debounce: DefaultDebounceInterval,
		logger:   logger.With("component", "config"),
		fsw:      fsw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Watch blocks processing file events until the context is cancelled
// or Stop is called. Each successful reload is delivered to onChange;
// failed reloads are logged and dropped.
func (w *Watcher) Watch(ctx context.Context, onChange func(*Config)) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("config watcher: already running")
	}
	w.running = true
	w.mu.Unlock()

	defer close(w.doneCh)

	dir := filepath.Dir(w.path)
	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("config watcher: watch %q: %w", dir, err)
	}

	w.logger.Info("watching config file",
		"path", w.path,
		"debounce_ms", w.debounce.Milliseconds())

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-w.stopCh:
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return fmt.Errorf("config watcher: events channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			w.scheduleReload(onChange)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return fmt.Errorf("config watcher: errors channel closed")
			}
			w.logger.Error("config watch error", "error", err)
		}
	}
}

// Stop terminates Watch and releases the underlying watcher. It is
// safe to call more than once and before Watch has started.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	running := w.running
	w.mu.Unlock()

	if running {
		<-w.doneCh
	}

	return w.fsw.Close()
}

// relevant reports whether the event concerns the watched file and
// can change its contents.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&fsnotify.Chmod == fsnotify.Chmod {
		return false
	}
	return filepath.Clean(event.Name) == w.path
}

// scheduleReload arms the debounce timer, resetting it on every new
// event so a burst of writes triggers one reload.
func (w *Watcher) scheduleReload(onChange func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.stopCh:
			return
		default:
		}
		w.reload(onChange)
	})
}

// reload re-runs the load pipeline and delivers the result.
func (w *Watcher) reload(onChange func(*Config)) {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload failed, keeping previous config", "error", err)
		return
	}

	w.logger.Info("config reloaded", "path", w.path)
	onChange(cfg)
}
