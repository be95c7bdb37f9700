package mcp

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/hpungsan/tally/internal/datafile"
)

// dirWatcher watches the data directory and remembers whether any data file
// changed since the last Clear. The server's own writes also trip it; the
// resulting reload is redundant but harmless.
type dirWatcher struct {
	fsw *fsnotify.Watcher

	mu    sync.Mutex
	stale bool
}

// newDirWatcher starts watching dir for data file changes.
func newDirWatcher(dir string) (*dirWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &dirWatcher{fsw: fsw}
	go w.run()
	return w, nil
}

func (w *dirWatcher) run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			name := filepath.Base(event.Name)
			if datafile.ValidName(name) || name == "tags.data" || name == "undo.data" {
				w.mu.Lock()
				w.stale = true
				w.mu.Unlock()
			}

		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// A watch error means we may be missing events; assume stale.
			w.mu.Lock()
			w.stale = true
			w.mu.Unlock()
		}
	}
}

// Stale reports whether the directory changed since the last Clear.
func (w *dirWatcher) Stale() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stale
}

// Clear resets the staleness flag after a reload.
func (w *dirWatcher) Clear() {
	w.mu.Lock()
	w.stale = false
	w.mu.Unlock()
}

// Close stops the watcher.
func (w *dirWatcher) Close() error {
	return w.fsw.Close()
}
