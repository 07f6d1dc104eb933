package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gateline/gateline/pkg/logger"
)

const defaultDebounce = 500 * time.Millisecond

// Watcher reloads the config file when it changes on disk and hands the
// fresh Config to registered callbacks. Editors and orchestrators often
// rewrite files as several quick events, so changes are debounced.
type Watcher struct {
	mu        sync.RWMutex
	fs        *fsnotify.Watcher
	loader    *Loader
	path      string
	callbacks []func(*Config)
	debounce  time.Duration
	stopCh    chan struct{}
	running   bool
}

// WatcherOption customizes a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce overrides how long the watcher waits after the last write
// event before reloading.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for the given config file.
func NewWatcher(configPath string, loader *Loader, opts ...WatcherOption) (*Watcher, error) {
	if configPath == "" {
		return nil, fmt.Errorf("config path is required for watching")
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	w := &Watcher{
		fs:       fs,
		loader:   loader,
		path:     configPath,
		debounce: defaultDebounce,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// OnChange registers a callback invoked with the reloaded Config. Callbacks
// run in their own goroutines; a slow callback never blocks the watch loop.
func (w *Watcher) OnChange(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Watch blocks, reloading on file changes, until the context is cancelled or
// Stop is called. Only one Watch may run per Watcher.
func (w *Watcher) Watch(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher is already running")
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	if err := w.fs.Add(w.path); err != nil {
		return fmt.Errorf("watch config file %s: %w", w.path, err)
	}

	// The timer is armed on the first relevant event and pushed back on
	// every following one, so a burst of writes yields a single reload.
	reload := time.NewTimer(w.debounce)
	if !reload.Stop() {
		<-reload.C
	}

	for {
		select {
		case <-ctx.Done():
			reload.Stop()
			return ctx.Err()

		case <-w.stopCh:
			reload.Stop()
			return nil

		case <-reload.C:
			w.reloadConfig(ctx)

		case event, ok := <-w.fs.Events:
			if !ok {
				reload.Stop()
				return nil
			}
			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
				if !reload.Stop() {
					select {
					case <-reload.C:
					default:
					}
				}
				reload.Reset(w.debounce)
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				reload.Stop()
				return nil
			}
			logger.Global().WarnContext(ctx, "config watcher error", "path", w.path, "error", err)
		}
	}
}

// reloadConfig re-reads the file and fans the result out to callbacks. A
// half-written or invalid file keeps the previous config in effect.
func (w *Watcher) reloadConfig(ctx context.Context) {
	cfg, err := w.loader.Load(w.path, nil)
	if err != nil {
		logger.Global().WarnContext(ctx, "config reload failed, keeping previous config",
			"path", w.path, "error", err)
		return
	}

	w.mu.RLock()
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, cb := range callbacks {
		go func(callback func(*Config)) {
			defer func() {
				if r := recover(); r != nil {
					logger.Global().Error("config change callback panicked", "panic", r)
				}
			}()
			callback(cfg)
		}(cb)
	}
}

// Stop ends the watch loop and releases the underlying fsnotify watcher.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	if w.fs != nil {
		return w.fs.Close()
	}
	return nil
}

// IsRunning reports whether a Watch loop is active.
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// ConfigPath returns the watched file path.
func (w *Watcher) ConfigPath() string {
	return w.path
}

// HotReloadableConfig is the slice of Config that may change at runtime
// without a restart. Everything else (ports, backends, signing keys) is fixed
// at startup.
type HotReloadableConfig struct {
	LogLevel  string
	LogFormat string
	LogOutput string
}

// ExtractHotReloadable pulls the runtime-changeable values out of a Config.
func ExtractHotReloadable(cfg *Config) HotReloadableConfig {
	return HotReloadableConfig{
		LogLevel:  cfg.Log.Level,
		LogFormat: cfg.Log.Format,
		LogOutput: cfg.Log.Output,
	}
}

// Changed reports whether any hot-reloadable value differs.
func (h HotReloadableConfig) Changed(other HotReloadableConfig) bool {
	return h != other
}
