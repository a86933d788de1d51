package config

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/c360/tracekit/errors"
)

// Watcher monitors a configuration file and invokes callbacks on change.
// Create and write events trigger onChange; removal of the file triggers
// onRemove (the tracer disables logging in that case).
type Watcher struct {
	path     string
	logger   *slog.Logger
	onChange func()
	onRemove func()

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	closeOnce sync.Once
}

// NewWatcher creates a watcher for path. Monitoring starts with Start.
func NewWatcher(path string, onChange, onRemove func(), logger *slog.Logger) (*Watcher, error) {
	if path == "" || onChange == nil {
		return nil, errors.WrapInvalid(errors.ErrArgumentNil,
			"config", "NewWatcher", "validate arguments")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		logger:   logger,
		onChange: onChange,
		onRemove: onRemove,
		done:     make(chan struct{}),
	}, nil
}

// Start begins monitoring. The file's directory is watched rather than
// the file itself, so the watch survives editors that replace the file.
func (w *Watcher) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WrapTransient(err, "Watcher", "Start", "create fsnotify watcher")
	}

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return errors.WrapTransient(err, "Watcher", "Start", "watch configuration directory")
	}

	w.watcher = watcher
	w.wg.Add(1)
	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	base := filepath.Base(w.path)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				w.onChange()
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				if w.onRemove != nil {
					w.onRemove()
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("configuration watcher error", "path", w.path, "error", err)

		case <-w.done:
			return
		}
	}
}

// Close stops monitoring and waits for the watch goroutine to exit.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		if w.watcher != nil {
			err = w.watcher.Close()
		}
		w.wg.Wait()
	})
	return err
}
