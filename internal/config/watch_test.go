package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchLogLevel(t *testing.T) {
	t.Run("should apply LOG_LEVEL when the file changes", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("LOG_LEVEL=info\n"), 0o600))

		var level slog.LevelVar
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- WatchLogLevel(ctx, path, &level, logger) }()

		assert.Eventually(t, func() bool {
			_ = os.WriteFile(path, []byte("LOG_LEVEL=debug\n"), 0o600)
			return level.Level() == slog.LevelDebug
		}, 2*time.Second, 20*time.Millisecond)

		cancel()
		assert.NoError(t, <-done)
	})

	t.Run("should ignore invalid levels", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte("LOG_LEVEL=info\n"), 0o600))

		var level slog.LevelVar
		level.Set(slog.LevelWarn)
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = WatchLogLevel(ctx, path, &level, logger) }()

		time.Sleep(50 * time.Millisecond)
		require.NoError(t, os.WriteFile(path, []byte("LOG_LEVEL=loud\n"), 0o600))
		time.Sleep(100 * time.Millisecond)
		assert.Equal(t, slog.LevelWarn, level.Level())
	})

	t.Run("should fail for a missing directory", func(t *testing.T) {
		var level slog.LevelVar
		err := WatchLogLevel(context.Background(), "/does/not/exist/.env", &level, slog.Default())
		assert.Error(t, err)
	})
}
