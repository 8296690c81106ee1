package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce absorbs the burst of filesystem events editors produce
// when saving a file.
const reloadDebounce = 500 * time.Millisecond

// Watcher reloads a Provider when its configuration file changes on disk.
type Watcher struct {
	provider *Provider
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	stopCh   chan struct{}

	mu      sync.Mutex
	running bool
}

// NewWatcher creates a file watcher for the provider's configuration file.
func NewWatcher(provider *Provider, logger *slog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		provider: provider,
		watcher:  fw,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. Watching the directory rather than the file
// survives rename-based saves (vim, k8s ConfigMap updates).
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("config watcher already running")
	}

	dir := filepath.Dir(w.provider.Path())
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	w.running = true
	go w.watchLoop()

	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.running = false
	close(w.stopCh)

	return w.watcher.Close()
}

func (w *Watcher) watchLoop() {
	var debounce *time.Timer

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.isConfigEvent(event) {
				continue
			}

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Config watcher error", "error", err)

		case <-w.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

func (w *Watcher) isConfigEvent(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(w.provider.Path()) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (w *Watcher) reload() {
	if err := w.provider.Reload(); err != nil {
		w.logger.Error("Failed to reload configuration, keeping previous", "error", err)
		return
	}
	w.logger.Info("Configuration reloaded", "path", w.provider.Path())
}
