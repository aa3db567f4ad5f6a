// Package watch observes installed binaries on disk and triggers
// reinstalls when they change.
package watch

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounceWindow coalesces the burst of write events most build tools
// produce for a single file update.
const debounceWindow = 200 * time.Millisecond

// Watcher invokes a callback when a watched file is written or recreated.
type Watcher struct {
	w   *fsnotify.Watcher
	log *zap.Logger

	onChange func(path string)

	mu      sync.Mutex
	files   map[string]bool
	pending map[string]*time.Timer
	closed  bool
}

// New creates a watcher delivering change notifications to onChange. Each
// notification fires on its own goroutine after the debounce window.
func New(onChange func(path string), log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		w:        fw,
		log:      log,
		onChange: onChange,
		files:    map[string]bool{},
		pending:  map[string]*time.Timer{},
	}
	go w.loop()
	return w, nil
}

// Add starts watching a file. The containing directory is watched so the
// file is still seen after rename-replace updates.
func (w *Watcher) Add(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.files[abs] = true
	w.mu.Unlock()
	return w.w.Add(filepath.Dir(abs))
}

// Close stops the watcher and cancels pending notifications.
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	for _, t := range w.pending {
		t.Stop()
	}
	w.pending = map[string]*time.Timer{}
	w.mu.Unlock()
	return w.w.Close()
}

// loop pumps fsnotify events into debounced change callbacks.
func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.w.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			abs, err := filepath.Abs(ev.Name)
			if err != nil {
				continue
			}
			w.mu.Lock()
			watched := w.files[abs]
			if watched && !w.closed {
				if t, ok := w.pending[abs]; ok {
					t.Stop()
				}
				w.pending[abs] = time.AfterFunc(debounceWindow, func() {
					w.mu.Lock()
					delete(w.pending, abs)
					closed := w.closed
					w.mu.Unlock()
					if !closed {
						w.log.Debug("file changed", zap.String("path", abs))
						w.onChange(abs)
					}
				})
			}
			w.mu.Unlock()
		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}
