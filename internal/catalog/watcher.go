package catalog

import (
	"context"
	"path/filepath"

	"commerce-agent/internal/util"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the local catalog whenever its file is written or replaced.
// The directory is watched so editors that rename-over the file are seen.
func (l *Local) Watch(ctx context.Context) error {
	if l.path == "" {
		return nil
	}
	logger := util.GetLogger()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		return err
	}
	target := filepath.Clean(l.path)

	logger.Info("Watching catalog file", zap.String("path", l.path))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			n, err := l.Reload()
			if err != nil {
				logger.Error("Failed to reload catalog", zap.Error(err))
				continue
			}
			logger.Info("Catalog reloaded from disk", zap.Int("count", n))
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Catalog watcher error", zap.Error(err))
		}
	}
}
