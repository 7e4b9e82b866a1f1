package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/terminal-bench/comptroller/internal/api"
	"github.com/terminal-bench/comptroller/internal/auth"
	"github.com/terminal-bench/comptroller/internal/comptroller"
	"github.com/terminal-bench/comptroller/internal/config"
	"github.com/terminal-bench/comptroller/internal/idempotency"
	"github.com/terminal-bench/comptroller/pkg/circuit"
	"github.com/terminal-bench/comptroller/pkg/messaging"
	"golang.org/x/sync/errgroup"
)

const serviceName = "comptroller"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the epoch ticker and the NATS subscription",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	var level slog.LevelVar
	level.Set(cfg.LogLevel)
	logger := newLogger(&level)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	hub := api.NewHub(logger.With("component", "stream"))
	defer hub.Close()
	opts := []comptroller.Option{comptroller.WithLogger(logger), comptroller.WithPublisher(hub)}

	var natsClient *messaging.Client
	if cfg.NATSURL != "" {
		natsClient, err = messaging.NewClient(messaging.Config{
			URL:            cfg.NATSURL,
			Name:           serviceName,
			ReconnectWait:  2 * time.Second,
			MaxReconnects:  -1,
			ConnectTimeout: 5 * time.Second,
			Breaker: circuit.Config{
				Name:        "nats",
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				HalfOpenMax: 1,
				OnStateChange: func(name string, from, to circuit.State) {
					logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
				},
			},
		})
		if err != nil {
			return err
		}
		defer natsClient.Close()
		opts = append(opts, comptroller.WithPublisher(natsClient))
	} else {
		logger.Warn("NATS_URL not set, broker events are disabled")
	}

	svc, err := bootstrap(ctx, db, cfg, opts...)
	if err != nil {
		return err
	}
	snap := svc.controller.Snapshot()
	logger.Info("state restored",
		"epoch", snap.Epoch,
		"bootstrapping", snap.Bootstrapping,
		"total_supply", snap.TotalSupply.String(),
		"total_debt", snap.TotalDebt.String(),
	)

	var idem api.IdempotencyStore = idempotency.NewMemoryStore()
	if cfg.RedisURL != "" {
		rdb, err := idempotency.Dial(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		idem = idempotency.NewRedisStore(rdb, serviceName+":idempotency:")
	}

	server := api.NewServer(
		api.Config{
			RateLimitMax:    cfg.RateLimitMax,
			RateLimitWindow: cfg.RateLimitWindow,
			IdempotencyTTL:  cfg.IdempotencyTTL,
		},
		svc.controller,
		svc.ledger,
		auth.NewService(cfg.JWTSecret, serviceName),
		api.WithLogger(logger),
		api.WithEntries(svc.store),
		api.WithHub(hub),
		api.WithIdempotency(idem),
	)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if _, err := os.Stat(envFile); err == nil {
		g.Go(func() error {
			if err := config.WatchLogLevel(gctx, envFile, &level, logger); err != nil {
				logger.Warn("config reload disabled", "error", err)
			}
			return nil
		})
	}

	if cfg.EpochInterval > 0 {
		g.Go(func() error {
			return runEpochTicker(gctx, svc.controller, cfg.EpochInterval, logger)
		})
	}

	if natsClient != nil {
		handler := advanceEpochHandler(gctx, svc.controller, logger.With("subject", messaging.SubjectAdvanceEpoch))
		if err := natsClient.QueueSubscribe(messaging.SubjectAdvanceEpoch, serviceName, handler); err != nil {
			stop()
			_ = g.Wait()
			return err
		}
	}

	return g.Wait()
}
