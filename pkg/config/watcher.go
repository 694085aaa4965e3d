package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/meridianhq/aegis/pkg/observability"
)

// WatchSeed re-parses the seed file whenever it changes and hands the
// result to onChange. It blocks until the context is cancelled. Parse
// failures are logged and the previous seed stays in effect.
func WatchSeed(ctx context.Context, path string, logger *observability.Logger, onChange func(*Seed)) error {
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory rather than the file itself: editors and
	// configmap mounts replace the file, which drops a direct watch.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	logger.WithField("path", path).Info("watching seed file")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			changed, err := filepath.Abs(event.Name)
			if err != nil || changed != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			seed, err := LoadSeed(path)
			if err != nil {
				logger.WithError(err).Warn("seed file changed but could not be parsed")
				continue
			}
			logger.WithField("path", path).Info("seed file reloaded")
			onChange(seed)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Warn("seed watcher error")
		}
	}
}
