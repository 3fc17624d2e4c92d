// Package watch monitors the timetable file and triggers reloads. A change
// on disk replaces the whole timetable snapshot; the watcher only signals,
// the scheduler owns the swap.
package watch

import (
	"context"
	stdlog "log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay coalesces editor write bursts into a single reload.
const settleDelay = 250 * time.Millisecond

// Watcher observes one file and invokes the reload callback after changes
// settle. The containing directory is watched rather than the file itself so
// atomic rename-into-place saves are seen too.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	reload  func()

	mu      sync.Mutex
	pending *time.Timer
}

// New creates a watcher for path. reload runs on the watcher's goroutine
// schedule, never concurrently with itself.
func New(path string, reload func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{path: filepath.Clean(path), watcher: fw, reload: reload}, nil
}

// Start blocks until ctx is cancelled, delivering debounced reloads.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			w.mu.Lock()
			if w.pending != nil {
				w.pending.Stop()
			}
			w.mu.Unlock()
			return nil
		case err := <-w.watcher.Errors:
			if err != nil {
				stdlog.Printf("watch: %v", err)
			}
		case event := <-w.watcher.Events:
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		}
	}
}

// Close releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Reset(settleDelay)
		return
	}
	w.pending = time.AfterFunc(settleDelay, func() {
		w.mu.Lock()
		w.pending = nil
		w.mu.Unlock()
		w.reload()
	})
}
