package token

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/terminal-bench/comptroller/pkg/decimal"
)

var (
	ErrInsufficientBalance    = errors.New("transfer amount exceeds balance")
	ErrInsufficientAllowance  = errors.New("transfer amount exceeds allowance")
	ErrZeroAddress            = errors.New("zero address")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrTxDone                 = errors.New("transaction already committed or rolled back")
)

// Address identifies a ledger account
type Address string

// Allowance is the amount a spender may pull from an owner
type Allowance struct {
	Owner   Address        `json:"owner"`
	Spender Address        `json:"spender"`
	Amount  decimal.Amount `json:"amount"`
}

// State is a full copy of the ledger contents
type State struct {
	TotalSupply decimal.Amount
	Balances    map[Address]decimal.Amount
	Allowances  []Allowance
}

// Changes lists what a transaction wrote
type Changes struct {
	TotalSupply decimal.Amount
	Balances    map[Address]decimal.Amount
	Allowances  []Allowance
}

// Ledger is an in-memory fungible token book. All writes go through Tx.
type Ledger struct {
	mu          sync.RWMutex
	totalSupply decimal.Amount
	balances    map[Address]decimal.Amount
	allowances  map[Address]map[Address]decimal.Amount
	version     uint64
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{
		balances:   make(map[Address]decimal.Amount),
		allowances: make(map[Address]map[Address]decimal.Amount),
	}
}

// Restore replaces the ledger contents. The total supply is derived from
// the balances so sum(balances) == totalSupply holds after loading.
func (l *Ledger) Restore(balances map[Address]decimal.Amount, allowances []Allowance) error {
	supply := decimal.Zero
	restored := make(map[Address]decimal.Amount, len(balances))
	for addr, amt := range balances {
		var err error
		if supply, err = supply.Add(amt); err != nil {
			return fmt.Errorf("failed to restore balance of %s: %w", addr, err)
		}
		restored[addr] = amt
	}

	allowed := make(map[Address]map[Address]decimal.Amount)
	for _, a := range allowances {
		if allowed[a.Owner] == nil {
			allowed[a.Owner] = make(map[Address]decimal.Amount)
		}
		allowed[a.Owner][a.Spender] = a.Amount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.totalSupply = supply
	l.balances = restored
	l.allowances = allowed
	l.version++
	return nil
}

// TotalSupply returns the amount of tokens in existence
func (l *Ledger) TotalSupply() decimal.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalSupply
}

// BalanceOf returns the balance of an account
func (l *Ledger) BalanceOf(addr Address) decimal.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[addr]
}

// Allowance returns how much spender may still pull from owner
func (l *Ledger) Allowance(owner, spender Address) decimal.Amount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowances[owner][spender]
}

// Snapshot returns a copy of the whole ledger
func (l *Ledger) Snapshot() State {
	l.mu.RLock()
	defer l.mu.RUnlock()

	balances := make(map[Address]decimal.Amount, len(l.balances))
	for addr, amt := range l.balances {
		balances[addr] = amt
	}

	var allowances []Allowance
	for owner, spenders := range l.allowances {
		for spender, amt := range spenders {
			allowances = append(allowances, Allowance{Owner: owner, Spender: spender, Amount: amt})
		}
	}
	sortAllowances(allowances)

	return State{
		TotalSupply: l.totalSupply,
		Balances:    balances,
		Allowances:  allowances,
	}
}

// Begin starts a staged transaction against the current ledger version
func (l *Ledger) Begin() Tx {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return &ledgerTx{
		base:        l,
		version:     l.version,
		totalSupply: l.totalSupply,
		balances:    make(map[Address]decimal.Amount),
		allowances:  make(map[allowanceKey]decimal.Amount),
	}
}

func (l *Ledger) apply(tx *ledgerTx) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.version != tx.version {
		return ErrConcurrentModification
	}

	l.totalSupply = tx.totalSupply
	for addr, amt := range tx.balances {
		if amt.IsZero() {
			delete(l.balances, addr)
			continue
		}
		l.balances[addr] = amt
	}
	for key, amt := range tx.allowances {
		if l.allowances[key.owner] == nil {
			l.allowances[key.owner] = make(map[Address]decimal.Amount)
		}
		l.allowances[key.owner][key.spender] = amt
	}
	l.version++
	return nil
}

func sortAllowances(allowances []Allowance) {
	sort.Slice(allowances, func(i, j int) bool {
		if allowances[i].Owner != allowances[j].Owner {
			return allowances[i].Owner < allowances[j].Owner
		}
		return allowances[i].Spender < allowances[j].Spender
	})
}
