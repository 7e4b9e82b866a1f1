package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/terminal-bench/comptroller/internal/comptroller"
	"github.com/terminal-bench/comptroller/internal/policy"
	"github.com/terminal-bench/comptroller/internal/token"
	"github.com/terminal-bench/comptroller/pkg/decimal"
)

// Statements use $n placeholders and ON CONFLICT upserts, which both
// Postgres and SQLite accept.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS policy_state (
		id               INTEGER PRIMARY KEY,
		epoch            BIGINT NOT NULL,
		total_debt       TEXT NOT NULL,
		total_redeemable TEXT NOT NULL,
		total_bonded     TEXT NOT NULL,
		updated_at       TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS balances (
		address    TEXT PRIMARY KEY,
		amount     TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS allowances (
		owner      TEXT NOT NULL,
		spender    TEXT NOT NULL,
		amount     TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (owner, spender)
	)`,
	`CREATE TABLE IF NOT EXISTS entries (
		seq              BIGINT NOT NULL UNIQUE,
		id               TEXT PRIMARY KEY,
		operation        TEXT NOT NULL,
		epoch            BIGINT NOT NULL,
		account          TEXT NOT NULL,
		amount           TEXT NOT NULL,
		total_supply     TEXT NOT NULL,
		total_debt       TEXT NOT NULL,
		total_redeemable TEXT NOT NULL,
		total_bonded     TEXT NOT NULL,
		created_at       TIMESTAMP NOT NULL
	)`,
}

// State is the durable state loaded at startup
type State struct {
	Epoch      uint64
	Policy     policy.State
	Balances   map[token.Address]decimal.Amount
	Allowances []token.Allowance
}

// Entry is one row of the audit trail
type Entry struct {
	Seq             int64          `json:"seq"`
	ID              uuid.UUID      `json:"id"`
	Operation       string         `json:"operation"`
	Epoch           uint64         `json:"epoch"`
	Account         string         `json:"account,omitempty"`
	Amount          decimal.Amount `json:"amount"`
	TotalSupply     decimal.Amount `json:"total_supply"`
	TotalDebt       decimal.Amount `json:"total_debt"`
	TotalRedeemable decimal.Amount `json:"total_redeemable"`
	TotalBonded     decimal.Amount `json:"total_bonded"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Store persists controller state in a SQL database
type Store struct {
	db *sql.DB
}

// New creates a new store
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the tables if they do not exist
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

// Record implements comptroller.Journal. The counters, every touched
// balance and allowance, and the audit row are written in one transaction.
func (s *Store) Record(ctx context.Context, entry comptroller.Entry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	epoch, err := toInt64(entry.Epoch)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO policy_state (id, epoch, total_debt, total_redeemable, total_bonded, updated_at)
		 VALUES (1, $1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET
		   epoch = excluded.epoch,
		   total_debt = excluded.total_debt,
		   total_redeemable = excluded.total_redeemable,
		   total_bonded = excluded.total_bonded,
		   updated_at = excluded.updated_at`,
		epoch, entry.Policy.TotalDebt, entry.Policy.TotalRedeemable, entry.Policy.TotalBonded, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update policy state: %w", err)
	}

	for _, addr := range entry.Changes.Addresses() {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO balances (address, amount, updated_at) VALUES ($1, $2, $3)
			 ON CONFLICT (address) DO UPDATE SET amount = excluded.amount, updated_at = excluded.updated_at`,
			string(addr), entry.Changes.Balances[addr], entry.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update balance of %s: %w", addr, err)
		}
	}

	for _, a := range entry.Changes.Allowances {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO allowances (owner, spender, amount, updated_at) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (owner, spender) DO UPDATE SET amount = excluded.amount, updated_at = excluded.updated_at`,
			string(a.Owner), string(a.Spender), a.Amount, entry.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update allowance: %w", err)
		}
	}

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM entries`).Scan(&seq); err != nil {
		return fmt.Errorf("failed to allocate entry sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO entries (seq, id, operation, epoch, account, amount, total_supply, total_debt, total_redeemable, total_bonded, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		seq, entry.ID.String(), string(entry.Operation), epoch, string(entry.Account), entry.Amount,
		entry.Changes.TotalSupply, entry.Policy.TotalDebt, entry.Policy.TotalRedeemable, entry.Policy.TotalBonded,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Load reads the durable state. A fresh database yields the genesis state.
func (s *Store) Load(ctx context.Context) (*State, error) {
	state := &State{Balances: make(map[token.Address]decimal.Amount)}

	var epoch int64
	err := s.db.QueryRowContext(ctx,
		`SELECT epoch, total_debt, total_redeemable, total_bonded FROM policy_state WHERE id = 1`,
	).Scan(&epoch, &state.Policy.TotalDebt, &state.Policy.TotalRedeemable, &state.Policy.TotalBonded)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to load policy state: %w", err)
	}
	state.Epoch = uint64(epoch)

	rows, err := s.db.QueryContext(ctx, `SELECT address, amount FROM balances`)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var addr string
		var amount decimal.Amount
		if err := rows.Scan(&addr, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		if !amount.IsZero() {
			state.Balances[token.Address(addr)] = amount
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read balances: %w", err)
	}
	rows.Close()

	allowanceRows, err := s.db.QueryContext(ctx, `SELECT owner, spender, amount FROM allowances ORDER BY owner, spender`)
	if err != nil {
		return nil, fmt.Errorf("failed to query allowances: %w", err)
	}
	defer allowanceRows.Close()

	for allowanceRows.Next() {
		var owner, spender string
		var amount decimal.Amount
		if err := allowanceRows.Scan(&owner, &spender, &amount); err != nil {
			return nil, fmt.Errorf("failed to scan allowance: %w", err)
		}
		state.Allowances = append(state.Allowances, token.Allowance{
			Owner:   token.Address(owner),
			Spender: token.Address(spender),
			Amount:  amount,
		})
	}
	if err := allowanceRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read allowances: %w", err)
	}

	return state, nil
}

// Entries returns the most recent audit entries, newest first
func (s *Store) Entries(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, id, operation, epoch, account, amount, total_supply, total_debt, total_redeemable, total_bonded, created_at
		 FROM entries ORDER BY seq DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var id string
		var epoch int64
		err := rows.Scan(&e.Seq, &id, &e.Operation, &epoch, &e.Account, &e.Amount,
			&e.TotalSupply, &e.TotalDebt, &e.TotalRedeemable, &e.TotalBonded, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("failed to parse entry id: %w", err)
		}
		e.Epoch = uint64(epoch)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}

	return entries, nil
}

func toInt64(u uint64) (int64, error) {
	if u > 1<<63-1 {
		return 0, fmt.Errorf("epoch %d does not fit in BIGINT", u)
	}
	return int64(u), nil
}
