package core

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher reports changes to the config file. The parent directory is
// watched because editors usually replace the file instead of writing it.
type ConfigWatcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	changes   chan struct{}
	errors    chan error
	done      chan struct{}
	debounce  time.Duration
	closeOnce sync.Once
}

// NewConfigWatcher starts watching path.
func NewConfigWatcher(path string, debounce time.Duration) (*ConfigWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		_ = fsWatcher.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}

	w := &ConfigWatcher{
		fsWatcher: fsWatcher,
		path:      filepath.Clean(path),
		changes:   make(chan struct{}, 1),
		errors:    make(chan error, 10),
		done:      make(chan struct{}),
		debounce:  debounce,
	}
	go w.run()
	return w, nil
}

// Changes fires once per burst of writes to the config file.
func (w *ConfigWatcher) Changes() <-chan struct{} {
	return w.changes
}

// Errors returns watcher errors.
func (w *ConfigWatcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher.
func (w *ConfigWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
	})
	return err
}

func (w *ConfigWatcher) run() {
	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case <-timerC:
			timerC = nil
			select {
			case w.changes <- struct{}{}:
			default:
			}
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}
