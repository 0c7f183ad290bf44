package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultReloadDebounce = 500 * time.Millisecond

// reloader watches the config file and calls reload once writes settle.
// The parent directory is watched so atomic replaces (rename over the old
// file) are seen too.
type reloader struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	reload   func() error
	logger   *zap.Logger

	mu    sync.Mutex
	timer *time.Timer
}

func newReloader(path string, debounce time.Duration, reload func() error, logger *zap.Logger) (*reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to resolve %q: %w", path, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", path, err)
	}
	if debounce <= 0 {
		debounce = defaultReloadDebounce
	}
	return &reloader{
		watcher:  watcher,
		path:     abs,
		debounce: debounce,
		reload:   reload,
		logger:   logger,
	}, nil
}

// Run blocks until ctx is cancelled.
func (r *reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			r.mu.Lock()
			if r.timer != nil {
				r.timer.Stop()
			}
			r.mu.Unlock()
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != r.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				r.schedule()
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (r *reloader) schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(r.debounce, func() {
		if err := r.reload(); err != nil {
			r.logger.Error("config reload failed, keeping previous config",
				zap.String("path", r.path), zap.Error(err))
			return
		}
		r.logger.Info("config reloaded", zap.String("path", r.path))
	})
}
