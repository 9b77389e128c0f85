package config

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch monitors the config file and calls onChange with each successfully
// reloaded Config. A file that fails to parse keeps the previous config.
// Falls back to polling every pollInterval if fsnotify is unavailable.
func Watch(ctx context.Context, path string, pollInterval time.Duration, logger *zap.Logger, onChange func(*Config)) {
	reload := func() {
		cfg, err := Load(path)
		if err != nil {
			logger.Warn("Config reload rejected", zap.String("path", path), zap.Error(err))
			return
		}
		logger.Info("Config reloaded", zap.String("path", path))
		onChange(cfg)
	}

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		// Watch the directory: editors replace the file rather than writing in place.
		if err = watcher.Add(filepath.Dir(path)); err != nil {
			watcher.Close()
		}
	}
	if err != nil {
		logger.Warn("Config watcher unavailable, polling instead", zap.Error(err))
		go poll(ctx, path, pollInterval, reload)
		return
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					// Let the writer finish.
					time.Sleep(100 * time.Millisecond)
					reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("Config watcher error", zap.Error(err))
			}
		}
	}()
}

func poll(ctx context.Context, path string, interval time.Duration, reload func()) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mod, ok := modTime(path)
			if !ok || !mod.After(lastMod) {
				continue
			}
			lastMod = mod
			reload()
		}
	}
}

func modTime(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}
