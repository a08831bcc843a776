package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// settleDelay collapses the burst of events an editor save produces
const settleDelay = 100 * time.Millisecond

// Watch calls onChange with the reloaded configuration each time the file is
// written, until ctx is cancelled.  The parent directory is watched so files
// replaced by rename are followed.  Files that fail to load or validate are
// logged and skipped.
func Watch(ctx context.Context, path string, log *zap.Logger, onChange func(Config)) error {

	if log == nil {
		log = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()

	if err != nil {
		return fmt.Errorf("error creating watcher: %w", err)
	}

	defer watcher.Close()

	abs, err := filepath.Abs(path)

	if err != nil {
		return err
	}

	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("error watching %s: %w", path, err)
	}

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != abs {
				continue
			}

			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}

			if timer != nil {
				timer.Stop()
			}

			timer = time.NewTimer(settleDelay)
			pending = timer.C

		case <-pending:
			pending = nil

			cfg, err := Load(abs)

			if err != nil {
				log.Warn("config reload failed", zap.String("path", path), zap.Error(err))
				continue
			}

			log.Info("config reloaded", zap.String("path", path))
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			log.Warn("config watcher error", zap.Error(err))
		}
	}
}
