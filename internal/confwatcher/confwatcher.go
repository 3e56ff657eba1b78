// Package confwatcher notifies changes of the configuration file.
package confwatcher

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bluenviron/camrecorder/internal/logger"
)

const (
	defaultDebounce = 100 * time.Millisecond
)

// ConfWatcher watches the configuration file.
// Editors often write a file in multiple steps, or replace it, or replace
// the target of a symlink: a burst of events produces a single notification.
type ConfWatcher struct {
	FilePath string
	Debounce time.Duration
	Parent   logger.Writer

	inner        *fsnotify.Watcher
	absolutePath string

	terminate chan struct{}
	signal    chan struct{}
	done      chan struct{}
}

// Initialize initializes ConfWatcher.
func (w *ConfWatcher) Initialize() error {
	if _, err := os.Stat(w.FilePath); err != nil {
		return err
	}

	if w.Debounce == 0 {
		w.Debounce = defaultDebounce
	}

	var err error
	w.inner, err = fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// the parent directory is watched, in order to detect replacements.
	w.absolutePath, _ = filepath.Abs(w.FilePath)

	err = w.inner.Add(filepath.Dir(w.absolutePath))
	if err != nil {
		w.inner.Close() //nolint:errcheck
		return err
	}

	w.terminate = make(chan struct{})
	w.signal = make(chan struct{})
	w.done = make(chan struct{})

	go w.run()

	return nil
}

// Close closes ConfWatcher.
func (w *ConfWatcher) Close() {
	close(w.terminate)
	<-w.done
}

// Log implements logger.Writer.
func (w *ConfWatcher) Log(level logger.Level, format string, args ...any) {
	if w.Parent != nil {
		w.Parent.Log(level, "[conf watcher] "+format, args...)
	}
}

func (w *ConfWatcher) resolved() string {
	p, _ := filepath.EvalSymlinks(w.absolutePath)
	return p
}

func (w *ConfWatcher) isRelevant(event fsnotify.Event, previous string, current string) bool {
	if current == "" {
		return false
	}

	// a symlink now points to another file
	if current != previous {
		return true
	}

	if (event.Op&fsnotify.Write) == 0 && (event.Op&fsnotify.Create) == 0 {
		return false
	}

	eventPath, _ := filepath.Abs(event.Name)
	if eventPath == w.absolutePath {
		return true
	}

	eventPath, _ = filepath.EvalSymlinks(eventPath)
	return eventPath == current
}

func (w *ConfWatcher) run() {
	defer close(w.done)
	defer w.inner.Close() //nolint:errcheck

	previous := w.resolved()

	debounce := time.NewTimer(0)
	<-debounce.C
	pending := false

	for {
		select {
		case event := <-w.inner.Events:
			current := w.resolved()

			if w.isRelevant(event, previous, current) {
				debounce.Reset(w.Debounce)
				pending = true
			}

			previous = current

		case <-debounce.C:
			if !pending {
				continue
			}
			pending = false

			w.Log(logger.Debug, "%s has changed", w.FilePath)

			select {
			case w.signal <- struct{}{}:
			case <-w.terminate:
				return
			}

		case err := <-w.inner.Errors:
			w.Log(logger.Error, "%v", err)
			close(w.signal)
			return

		case <-w.terminate:
			return
		}
	}
}

// Watch returns a channel that receives a value after the configuration file has changed.
func (w *ConfWatcher) Watch() chan struct{} {
	return w.signal
}
