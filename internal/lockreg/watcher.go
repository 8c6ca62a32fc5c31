package lockreg

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the registry when another process rewrites the registry
// file, and notifies a callback with the fresh entry list. Cooperating
// local processes use it to observe each other's lock activity without
// polling.
type Watcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher

	onChange func([]Entry)

	mu     sync.Mutex
	stopCh chan struct{}
}

// NewWatcher creates a Watcher for the given registry. The registry file's
// directory is watched rather than the file itself, because atomic writes
// replace the file via rename and a file watch would be lost on the first
// update.
func NewWatcher(registry *Registry) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fw.Add(filepath.Dir(registry.Path())); err != nil {
		_ = fw.Close()
		return nil, err
	}

	return &Watcher{
		registry: registry,
		watcher:  fw,
		stopCh:   make(chan struct{}),
	}, nil
}

// SetChangeCallback sets the callback invoked after each observed change.
func (w *Watcher) SetChangeCallback(cb func([]Entry)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = cb
}

// Start begins processing filesystem events.
func (w *Watcher) Start() {
	go w.watchLoop()
}

// Stop stops the watcher and releases its resources.
func (w *Watcher) Stop() {
	close(w.stopCh)
	_ = w.watcher.Close()
}

// watchLoop processes filesystem events. Rapid successive writes are
// debounced; each atomic registry update produces a create+rename burst.
func (w *Watcher) watchLoop() {
	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C // drain initial timer

	pending := false
	target := w.registry.Path()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if event.Name != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}

			pending = true
			debounceTimer.Reset(50 * time.Millisecond)

		case <-debounceTimer.C:
			if !pending {
				continue
			}
			pending = false

			if err := w.registry.Reload(); err != nil {
				// A half-gone file during a concurrent rewrite resolves
				// itself on the next event; skip this round.
				continue
			}

			w.mu.Lock()
			cb := w.onChange
			w.mu.Unlock()

			if cb != nil {
				cb(w.registry.List())
			}

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}
