package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

// WatchLogLevel applies LOG_LEVEL from the dotenv file at path to level
// each time the file is written. It blocks until ctx is done.
func WatchLogLevel(ctx context.Context, path string, level *slog.LevelVar, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	// editors often replace the file, so watch its directory
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}
	target := filepath.Clean(path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			env, err := godotenv.Read(path)
			if err != nil {
				logger.Warn("failed to reload config file", "path", path, "error", err)
				continue
			}
			v, ok := env["LOG_LEVEL"]
			if !ok {
				continue
			}

			var next slog.Level
			if err := next.UnmarshalText([]byte(strings.ToLower(v))); err != nil {
				logger.Warn("ignoring invalid LOG_LEVEL", "value", v)
				continue
			}
			if next != level.Level() {
				level.Set(next)
				logger.Info("log level changed", "level", next.String())
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)
		}
	}
}
