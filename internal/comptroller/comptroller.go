package comptroller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/terminal-bench/comptroller/internal/epoch"
	"github.com/terminal-bench/comptroller/internal/policy"
	"github.com/terminal-bench/comptroller/internal/token"
	"github.com/terminal-bench/comptroller/pkg/decimal"
	"github.com/terminal-bench/comptroller/pkg/messaging"
)

// DefaultAddress is the pool account used when none is configured
const DefaultAddress token.Address = "comptroller"

// Ledger is the capability the controller holds over the token ledger.
// Every write happens inside a transaction obtained from Begin.
type Ledger interface {
	TotalSupply() decimal.Amount
	BalanceOf(addr token.Address) decimal.Amount
	Begin() token.Tx
}

// Journal durably records an operation before it becomes visible.
// A Record error aborts the operation.
type Journal interface {
	Record(ctx context.Context, entry Entry) error
}

// Publisher receives events for committed operations
type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
}

// Entry is the journal record of one committed operation
type Entry struct {
	ID        uuid.UUID
	Operation Operation
	Epoch     uint64
	Account   token.Address
	Amount    decimal.Amount
	Policy    policy.State
	Changes   token.Changes
	CreatedAt time.Time
}

// Snapshot is a consistent read of the controller and ledger totals
type Snapshot struct {
	Epoch               uint64         `json:"epoch"`
	BootstrappingPeriod uint64         `json:"bootstrapping_period"`
	Bootstrapping       bool           `json:"bootstrapping"`
	TotalSupply         decimal.Amount `json:"total_supply"`
	PoolBalance         decimal.Amount `json:"pool_balance"`
	policy.State
}

// Config holds controller configuration
type Config struct {
	Address             token.Address
	BootstrappingPeriod uint64
}

// Option configures a Controller
type Option func(*Controller)

func WithJournal(j Journal) Option {
	return func(c *Controller) { c.journal = j }
}

// WithPublisher adds an event sink. May be given more than once.
func WithPublisher(p Publisher) Option {
	return func(c *Controller) { c.publishers = append(c.publishers, p) }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// Controller mints and burns tokens and keeps the policy counters
// consistent with them. Operations are serialized: each one runs to
// completion and commits all of its effects or none.
type Controller struct {
	address    token.Address
	ledger     Ledger
	journal    Journal
	publishers []Publisher
	logger     *slog.Logger

	mu    sync.RWMutex
	clock epoch.Clock
	state policy.State
}

// New creates a controller at epoch 0 with zeroed counters
func New(cfg Config, ledger Ledger, opts ...Option) *Controller {
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}

	c := &Controller{
		address: cfg.Address,
		ledger:  ledger,
		clock:   epoch.NewClock(cfg.BootstrappingPeriod),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Restore resumes the controller from persisted counters
func (c *Controller) Restore(current uint64, state policy.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := state.Check(c.ledger.TotalSupply()); err != nil {
		return fmt.Errorf("failed to restore policy state: %w", err)
	}

	c.clock = epoch.Restore(c.clock.BootstrappingPeriod(), current)
	c.state = state
	return nil
}

// Address returns the controller's own pool account
func (c *Controller) Address() token.Address {
	return c.address
}

func (c *Controller) TotalDebt() decimal.Amount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.TotalDebt
}

func (c *Controller) TotalRedeemable() decimal.Amount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.TotalRedeemable
}

func (c *Controller) TotalBonded() decimal.Amount {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.TotalBonded
}

func (c *Controller) CurrentEpoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clock.Current()
}

func (c *Controller) IsBootstrapping() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clock.IsBootstrapping()
}

// Snapshot returns counters and ledger totals read under one lock
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		Epoch:               c.clock.Current(),
		BootstrappingPeriod: c.clock.BootstrappingPeriod(),
		Bootstrapping:       c.clock.IsBootstrapping(),
		TotalSupply:         c.ledger.TotalSupply(),
		PoolBalance:         c.ledger.BalanceOf(c.address),
		State:               c.state,
	}
}

// txn is the staged view an operation mutates
type txn struct {
	ledger token.Tx
	clock  epoch.Clock
	state  policy.State
}

// run applies fn under the controller lock and publishes the committed
// entry once the lock is released.
func (c *Controller) run(ctx context.Context, op Operation, account token.Address, amount decimal.Amount, fn func(tx *txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	logger := c.logger.With("op", string(op), "account", string(account), "amount", amount.String())
	entry, err := c.commit(ctx, logger, op, account, amount, fn)
	if err != nil {
		return err
	}

	c.publish(ctx, logger, entry)
	return nil
}

func (c *Controller) commit(ctx context.Context, logger *slog.Logger, op Operation, account token.Address, amount decimal.Amount, fn func(tx *txn) error) (Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx := &txn{ledger: c.ledger.Begin(), clock: c.clock, state: c.state}
	defer tx.ledger.Rollback()

	if err := fn(tx); err != nil {
		logger.Warn("operation rejected", "reason", err.Error())
		return Entry{}, err
	}
	if err := tx.state.Check(tx.ledger.TotalSupply()); err != nil {
		logger.Error("invariant violated", "error", err)
		return Entry{}, err
	}

	entry := Entry{
		ID:        uuid.New(),
		Operation: op,
		Epoch:     tx.clock.Current(),
		Account:   account,
		Amount:    amount,
		Policy:    tx.state,
		Changes:   tx.ledger.Changes(),
		CreatedAt: time.Now().UTC(),
	}

	if c.journal != nil {
		if err := c.journal.Record(ctx, entry); err != nil {
			logger.Error("failed to record entry", "error", err)
			return Entry{}, fmt.Errorf("failed to record %s: %w", op, err)
		}
	}

	if err := tx.ledger.Commit(); err != nil {
		logger.Error("failed to commit ledger transaction", "error", err)
		return Entry{}, fmt.Errorf("failed to commit %s: %w", op, err)
	}
	c.clock = tx.clock
	c.state = tx.state

	logger.Info("operation committed",
		"epoch", entry.Epoch,
		"total_supply", entry.Changes.TotalSupply.String(),
		"total_debt", entry.Policy.TotalDebt.String(),
		"total_redeemable", entry.Policy.TotalRedeemable.String(),
		"total_bonded", entry.Policy.TotalBonded.String(),
	)
	return entry, nil
}

func (c *Controller) publish(ctx context.Context, logger *slog.Logger, entry Entry) {
	if len(c.publishers) == 0 {
		return
	}

	subject := entry.Operation.Subject()
	event, err := messaging.NewEvent(subject, messaging.PolicyEvent{
		EntryID:         entry.ID,
		Operation:       string(entry.Operation),
		Epoch:           entry.Epoch,
		Account:         string(entry.Account),
		Amount:          entry.Amount.String(),
		TotalSupply:     entry.Changes.TotalSupply.String(),
		TotalDebt:       entry.Policy.TotalDebt.String(),
		TotalRedeemable: entry.Policy.TotalRedeemable.String(),
		TotalBonded:     entry.Policy.TotalBonded.String(),
	}, messaging.EventMetadata{Source: string(c.address)})
	if err != nil {
		logger.Warn("failed to build event", "error", err)
		return
	}

	// The operation is already committed; a lost event is not a rollback.
	for _, p := range c.publishers {
		if err := p.Publish(ctx, subject, event); err != nil {
			logger.Warn("failed to publish event", "subject", subject, "error", err)
		}
	}
}
