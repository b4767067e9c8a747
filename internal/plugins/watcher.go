// ABOUTME: Watches the plugin directory and reloads the registry when manifests change.
// ABOUTME: Bursts of filesystem events are debounced into a single reload.

package plugins

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for changes to settle.
const DefaultDebounce = 500 * time.Millisecond

// Reloader is satisfied by *Registry.
type Reloader interface {
	Reload(ctx context.Context) (*LoadReport, error)
}

// Watcher reloads plugins when the plugin directory changes.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	dir      string
	reloader Reloader
	debounce time.Duration
	onReload func(*LoadReport, error)
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	running  bool
}

// WatcherConfig configures a Watcher.
type WatcherConfig struct {
	Dir      string
	Reloader Reloader
	Debounce time.Duration
	// OnReload is called after every reload attempt.
	OnReload func(*LoadReport, error)
	Logger   *slog.Logger
}

// NewWatcher creates a watcher. Start begins watching.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("plugin directory is required")
	}
	if cfg.Reloader == nil {
		return nil, errors.New("reloader is required")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		watcher:  fw,
		dir:      cfg.Dir,
		reloader: cfg.Reloader,
		debounce: debounce,
		onReload: cfg.OnReload,
		logger:   logger.With("component", "plugin-watcher"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start creates the plugin directory if needed and begins watching it.
// It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		w.logger.Warn("creating plugin directory", "dir", w.dir, "error", err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}

	w.logger.Info("watching plugin directory", "dir", w.dir)
	go w.run(ctx)
	return nil
}

// Stop stops watching and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.mu.Unlock()

	if wasRunning {
		close(w.stopCh)
		<-w.doneCh
	}

	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("closing watcher", "error", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

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
			if !IsManifest(event.Name) || !event.Has(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) {
				continue
			}
			w.logger.Debug("plugin manifest changed", "path", event.Name, "op", event.Op.String())
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)

		case <-timer.C:
			report, err := w.reloader.Reload(ctx)
			if err != nil {
				w.logger.Warn("plugin reload failed", "error", err)
			} else {
				w.logger.Info("plugins reloaded after change", "loaded", len(report.Loaded))
			}
			if w.onReload != nil {
				w.onReload(report, err)
			}
		}
	}
}
