package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the effective config whenever the project config file
// changes and delivers it to onChange. Used by the long-running MCP server;
// the CLI resolves config once per invocation and never watches.
//
// Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, paths Paths, logger *zap.Logger, onChange func(Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// The state directory is watched rather than the file itself: atomic
	// rename writes replace the inode, which would silently detach a
	// file-level watch.
	if err := watcher.Add(paths.StateDir); err != nil {
		return err
	}

	target := filepath.Join(paths.StateDir, ConfigFileName)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			cfg, err := Load(paths)
			if err != nil {
				logger.Warn("config reload failed", zap.Error(err))
				continue
			}
			logger.Info("config reloaded", zap.String("path", target))
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", zap.Error(err))
		}
	}
}
