package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/yairfalse/pulse/internal/logger"
)

// ReloadFunc receives the freshly loaded configuration after the config
// file changes on disk.
type ReloadFunc func(*Config)

// Watcher watches a config file and delivers reloaded configuration to
// subscribers. Editors tend to emit bursts of write events for one save,
// so deliveries are debounced.
type Watcher struct {
	mu        sync.Mutex
	path      string
	watcher   *fsnotify.Watcher
	callbacks []ReloadFunc
	log       logger.Logger
	debounce  time.Duration
	pending   *time.Timer
	running   bool
}

// NewWatcher creates a watcher for the config file at path.
func NewWatcher(path string, log logger.Logger) *Watcher {
	if log == nil {
		log = logger.NewNop()
	}
	return &Watcher{
		path:     path,
		log:      log.WithField("config", path),
		debounce: 200 * time.Millisecond,
	}
}

// Subscribe registers a callback for reloads.
func (w *Watcher) Subscribe(fn ReloadFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.callbacks = append(w.callbacks, fn)
}

// Start begins watching. Watching the directory rather than the file
// survives the rename-and-replace dance most editors perform.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("config watcher already running")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	w.watcher = fw
	w.running = true

	go w.loop(fw)
	return nil
}

// Stop halts watching. Idempotent.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	w.running = false
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
	w.watcher.Close()
	w.watcher = nil
}

func (w *Watcher) loop(fw *fsnotify.Watcher) {
	base := filepath.Base(w.path)
	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.Error("config watch error", err)
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	if w.pending != nil {
		w.pending.Stop()
	}
	w.pending = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load()
	if err != nil {
		w.log.Error("config reload failed, keeping previous configuration", err)
		return
	}

	w.mu.Lock()
	callbacks := make([]ReloadFunc, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.log.Info("configuration reloaded")
	for _, fn := range callbacks {
		fn(cfg)
	}
}
