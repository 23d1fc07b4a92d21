// Package watch re-runs preprocessing when a trace file changes on
// disk. It is a convenience wrapper outside the core's synchronous
// contract (spec §5): the core itself is never made concurrent, only
// this package's single background goroutine is.
package watch

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	cgerrors "github.com/haltmark/cgprof/internal/errors"
)

// Watcher notifies a callback when a file matching a glob pattern is
// written or created inside a watched directory.
type Watcher struct {
	fsw     *fsnotify.Watcher
	pattern string
	debounce time.Duration
	done     chan struct{}
}

// New creates a Watcher on dir for files matching pattern (a
// filepath.Match pattern against the base name), debounced by d to
// collapse editor save storms into a single callback.
func New(dir, pattern string, d time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, cgerrors.NewIoOpenError(dir, err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, cgerrors.NewIoOpenError(dir, err)
	}
	return &Watcher{fsw: fsw, pattern: pattern, debounce: d, done: make(chan struct{})}, nil
}

// Close stops the watcher and releases its OS resources.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}

// OnChange runs in the calling goroutine's background: it blocks
// forever (until Close) dispatching fn for each debounced write/create
// event on a matching path. Callers typically invoke it via `go
// w.OnChange(fn)`.
func (w *Watcher) OnChange(fn func(path string)) {
	var timer *time.Timer
	var timerC <-chan time.Time
	var pending string

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			matched, _ := filepath.Match(w.pattern, filepath.Base(ev.Name))
			if !matched {
				continue
			}
			pending = ev.Name
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			timerC = timer.C
		case <-timerC:
			timerC = nil
			if pending != "" {
				fn(pending)
				pending = ""
			}
		case <-w.fsw.Errors:
			// Surfaced only via Close/recreate in this minimal wrapper;
			// the core's error model does not extend across goroutines.
		}
	}
}
