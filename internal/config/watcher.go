package config

import (
	"fmt"
	"path/filepath"
	"reflect"

	"github.com/fsnotify/fsnotify"

	"github.com/conceptixx/AEON/pkg/logging"
)

// Watcher reloads the user configuration document when it changes on disk and
// fires the reload callbacks of every unit whose effective section changed.
type Watcher struct {
	resolver *Resolver
	path     string
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

// WatchUserConfig starts watching the user configuration document. The
// watcher observes the parent directory so editors that replace the file
// (write-then-rename) are still caught.
func (r *Resolver) WatchUserConfig(path string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}

	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{resolver: r, path: path, watcher: fsw, done: make(chan struct{})}
	go w.run()
	logging.Info("Config", "Watching user config %s for changes", path)
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Error("Config", err, "Config watcher error")
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) reload() {
	before := w.sectionsSnapshot()

	if err := w.resolver.LoadUserConfig(w.path); err != nil {
		logging.Error("Config", err, "Failed to reload user config")
		return
	}

	after := w.sectionsSnapshot()

	// Fire callbacks only for keys whose effective value changed.
	for unitID, section := range after {
		w.resolver.mu.RLock()
		callbacks := append([]ReloadCallback(nil), w.resolver.reloadCallbacks[unitID]...)
		w.resolver.mu.RUnlock()
		if len(callbacks) == 0 {
			continue
		}
		for key, value := range section {
			if old, ok := before[unitID][key]; ok && reflect.DeepEqual(old, value) {
				continue
			}
			for _, cb := range callbacks {
				w.resolver.invokeCallback(unitID, key, value, cb)
			}
		}
	}
}

// sectionsSnapshot captures the effective section of every unit with a
// registered reload callback.
func (w *Watcher) sectionsSnapshot() map[string]map[string]interface{} {
	w.resolver.mu.RLock()
	ids := make([]string, 0, len(w.resolver.reloadCallbacks))
	for id := range w.resolver.reloadCallbacks {
		ids = append(ids, id)
	}
	w.resolver.mu.RUnlock()

	out := make(map[string]map[string]interface{}, len(ids))
	for _, id := range ids {
		out[id] = w.resolver.Section(id)
	}
	return out
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
