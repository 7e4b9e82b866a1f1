package main

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/terminal-bench/comptroller/internal/config"
	"github.com/terminal-bench/comptroller/pkg/decimal"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sqliteConfig() config.Config {
	cfg := config.Default()
	cfg.DatabaseDriver = "sqlite3"
	cfg.DatabaseURL = ":memory:"
	cfg.BootstrappingPeriod = 1
	return cfg
}

type countingAdvancer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (a *countingAdvancer) AdvanceEpoch(context.Context) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	return uint64(a.calls), a.err
}

func (a *countingAdvancer) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func TestBootstrap(t *testing.T) {
	t.Run("should resume from the persisted state", func(t *testing.T) {
		ctx := context.Background()
		cfg := sqliteConfig()
		db, err := openDB(ctx, cfg)
		require.NoError(t, err)
		defer db.Close()

		first, err := bootstrap(ctx, db, cfg)
		require.NoError(t, err)
		for i := 0; i < 2; i++ {
			_, err := first.controller.AdvanceEpoch(ctx)
			require.NoError(t, err)
		}
		require.NoError(t, first.controller.MintToAccount(ctx, "alice", decimal.NewAmountFromUint64(500)))

		second, err := bootstrap(ctx, db, cfg)
		require.NoError(t, err)

		snap := second.controller.Snapshot()
		assert.Equal(t, uint64(2), snap.Epoch)
		assert.False(t, snap.Bootstrapping)
		assert.Equal(t, "500", snap.TotalDebt.String())
		assert.Equal(t, "500", second.ledger.BalanceOf("alice").String())
	})

	t.Run("should fail on an unreachable database", func(t *testing.T) {
		cfg := sqliteConfig()
		cfg.DatabaseDriver = "unknown"
		_, err := openDB(context.Background(), cfg)
		assert.Error(t, err)
	})

	t.Run("should refuse a closed database", func(t *testing.T) {
		db, err := sql.Open("sqlite3", ":memory:")
		require.NoError(t, err)
		db.Close()

		_, err = bootstrap(context.Background(), db, sqliteConfig())
		assert.Error(t, err)
	})
}

func TestRunEpochTicker(t *testing.T) {
	t.Run("should advance until cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		advancer := &countingAdvancer{}

		done := make(chan error, 1)
		go func() { done <- runEpochTicker(ctx, advancer, 5*time.Millisecond, discardLogger()) }()

		assert.Eventually(t, func() bool { return advancer.count() >= 2 }, time.Second, time.Millisecond)
		cancel()
		assert.NoError(t, <-done)
	})

	t.Run("should keep ticking after a failure", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		advancer := &countingAdvancer{err: errors.New("journal unavailable")}

		go func() { _ = runEpochTicker(ctx, advancer, 5*time.Millisecond, discardLogger()) }()

		assert.Eventually(t, func() bool { return advancer.count() >= 2 }, time.Second, time.Millisecond)
	})
}

func TestAdvanceEpochHandler(t *testing.T) {
	t.Run("should advance on a fire-and-forget message", func(t *testing.T) {
		advancer := &countingAdvancer{}
		handler := advanceEpochHandler(context.Background(), advancer, discardLogger())

		handler(&nats.Msg{Subject: "comptroller.epoch.advance"})
		handler(&nats.Msg{Subject: "comptroller.epoch.advance"})

		assert.Equal(t, 2, advancer.count())
	})
}
