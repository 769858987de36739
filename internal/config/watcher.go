package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"eclicrawler/internal/logging"
)

// Watcher hot-reloads the config file on change and notifies subscribers.
// Editors tend to emit several events per save, so reloads are debounced.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	current  *Config
	onChange []func(*Config)
	done     chan struct{}
	stopOnce sync.Once
}

const debounceWindow = 250 * time.Millisecond

// NewWatcher starts watching the config file at path. The initial config is
// loaded immediately.
func NewWatcher(path string) (*Watcher, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fs watcher: %w", err)
	}

	// Watch the directory, not the file: saves that replace the file
	// (rename + create) would otherwise drop the watch.
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &Watcher{
		path:    path,
		watcher: fw,
		current: cfg,
		done:    make(chan struct{}),
	}
	go w.loop()

	logging.Config("Watching config file: %s", path)
	return w, nil
}

// Current returns the most recently loaded config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// OnChange registers a callback invoked after every successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
	})
}

func (w *Watcher) loop() {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
				timerC = timer.C
			} else {
				timer.Reset(debounceWindow)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.ConfigWarn("Config watcher error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logging.ConfigWarn("Config reload failed, keeping previous: %v", err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	callbacks := make([]func(*Config), len(w.onChange))
	copy(callbacks, w.onChange)
	w.mu.Unlock()

	logging.Config("Config reloaded from %s", w.path)
	_ = logging.ReloadConfig()

	for _, fn := range callbacks {
		fn(cfg)
	}
}
