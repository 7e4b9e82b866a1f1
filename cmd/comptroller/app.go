package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/terminal-bench/comptroller/internal/comptroller"
	"github.com/terminal-bench/comptroller/internal/config"
	"github.com/terminal-bench/comptroller/internal/store"
	"github.com/terminal-bench/comptroller/internal/token"
)

type service struct {
	store      *store.Store
	ledger     *token.Ledger
	controller *comptroller.Controller
}

// bootstrap migrates the database and resumes the ledger and controller
// from the persisted state
func bootstrap(ctx context.Context, db *sql.DB, cfg config.Config, opts ...comptroller.Option) (*service, error) {
	st := store.New(db)
	if err := st.Migrate(ctx); err != nil {
		return nil, err
	}

	state, err := st.Load(ctx)
	if err != nil {
		return nil, err
	}

	ledger := token.NewLedger()
	if err := ledger.Restore(state.Balances, state.Allowances); err != nil {
		return nil, fmt.Errorf("failed to restore ledger: %w", err)
	}

	opts = append([]comptroller.Option{comptroller.WithJournal(st)}, opts...)
	ctrl := comptroller.New(comptroller.Config{
		Address:             token.Address(cfg.ControllerAddress),
		BootstrappingPeriod: cfg.BootstrappingPeriod,
	}, ledger, opts...)
	if err := ctrl.Restore(state.Epoch, state.Policy); err != nil {
		return nil, err
	}

	return &service{store: st, ledger: ledger, controller: ctrl}, nil
}

type epochAdvancer interface {
	AdvanceEpoch(ctx context.Context) (uint64, error)
}

// runEpochTicker advances the epoch every interval until ctx is done
func runEpochTicker(ctx context.Context, advancer epochAdvancer, interval time.Duration, logger *slog.Logger) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			epoch, err := advancer.AdvanceEpoch(ctx)
			if err != nil {
				logger.Error("scheduled epoch advance failed", "error", err)
				continue
			}
			logger.Debug("epoch advanced by ticker", "epoch", epoch)
		}
	}
}

type advanceReply struct {
	Epoch uint64 `json:"epoch,omitempty"`
	Error string `json:"error,omitempty"`
}

// advanceEpochHandler serves comptroller.epoch.advance requests
func advanceEpochHandler(ctx context.Context, advancer epochAdvancer, logger *slog.Logger) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var reply advanceReply
		epoch, err := advancer.AdvanceEpoch(ctx)
		if err != nil {
			logger.Error("epoch advance request failed", "error", err)
			reply.Error = err.Error()
		} else {
			reply.Epoch = epoch
		}

		if msg.Reply == "" {
			return
		}
		data, err := json.Marshal(reply)
		if err != nil {
			return
		}
		if err := msg.Respond(data); err != nil {
			logger.Warn("failed to reply to epoch advance request", "error", err)
		}
	}
}
