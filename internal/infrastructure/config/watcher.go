package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/pkg/safego"
)

// watchDebounce absorbs the burst of events editors emit per save.
const watchDebounce = 500 * time.Millisecond

// Watcher invokes a callback when any registered file changes. It
// watches parent directories, not the files themselves, because editors
// replace files by rename and that drops inode-level watches.
type Watcher struct {
	fs       *fsnotify.Watcher
	onChange func(path string)
	logger   *zap.Logger

	mu      sync.Mutex
	files   map[string]struct{}
	dirs    map[string]struct{}
	pending map[string]*time.Timer
}

func NewWatcher(onChange func(path string), logger *zap.Logger) (*Watcher, error) {
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fs:       fs,
		onChange: onChange,
		logger:   logger.With(zap.String("component", "config-watcher")),
		files:    make(map[string]struct{}),
		dirs:     make(map[string]struct{}),
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Add registers one file for change notifications.
func (w *Watcher) Add(path string) error {
	clean := filepath.Clean(path)
	dir := filepath.Dir(clean)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.files[clean] = struct{}{}
	if _, watched := w.dirs[dir]; watched {
		return nil
	}
	if err := w.fs.Add(dir); err != nil {
		return err
	}
	w.dirs[dir] = struct{}{}
	return nil
}

// Start consumes events until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	safego.Go(w.logger, "config-watcher", func() {
		defer w.fs.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.fs.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				w.schedule(filepath.Clean(event.Name))
			case err, ok := <-w.fs.Errors:
				if !ok {
					return
				}
				w.logger.Warn("watch error", zap.Error(err))
			}
		}
	})
}

// schedule debounces one file's events and fires the callback once the
// burst settles.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, tracked := w.files[path]; !tracked {
		return
	}
	if timer, exists := w.pending[path]; exists {
		timer.Reset(watchDebounce)
		return
	}
	w.pending[path] = time.AfterFunc(watchDebounce, func() {
		defer safego.Recover(w.logger, "config-reload")

		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		w.logger.Info("config file changed", zap.String("path", path))
		w.onChange(path)
	})
}
