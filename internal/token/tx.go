package token

import (
	"fmt"
	"sort"

	"github.com/terminal-bench/comptroller/pkg/decimal"
)

// Tx stages ledger writes. Nothing is visible to readers of the Ledger
// until Commit succeeds; Rollback (or simply dropping the Tx) discards
// every staged write.
type Tx interface {
	TotalSupply() decimal.Amount
	BalanceOf(addr Address) decimal.Amount
	Allowance(owner, spender Address) decimal.Amount

	Mint(to Address, amount decimal.Amount) error
	Burn(from Address, amount decimal.Amount) error
	Transfer(from, to Address, amount decimal.Amount) error
	TransferFrom(spender, from, to Address, amount decimal.Amount) error
	Approve(owner, spender Address, amount decimal.Amount) error

	Changes() Changes
	Commit() error
	Rollback()
}

type allowanceKey struct {
	owner   Address
	spender Address
}

type ledgerTx struct {
	base        *Ledger
	version     uint64
	done        bool
	totalSupply decimal.Amount
	balances    map[Address]decimal.Amount
	allowances  map[allowanceKey]decimal.Amount
}

func (tx *ledgerTx) TotalSupply() decimal.Amount {
	return tx.totalSupply
}

func (tx *ledgerTx) BalanceOf(addr Address) decimal.Amount {
	if amt, ok := tx.balances[addr]; ok {
		return amt
	}
	return tx.base.BalanceOf(addr)
}

func (tx *ledgerTx) Allowance(owner, spender Address) decimal.Amount {
	if amt, ok := tx.allowances[allowanceKey{owner, spender}]; ok {
		return amt
	}
	return tx.base.Allowance(owner, spender)
}

// Mint creates amount tokens and assigns them to the account
func (tx *ledgerTx) Mint(to Address, amount decimal.Amount) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if to == "" {
		return fmt.Errorf("mint to the %w", ErrZeroAddress)
	}

	supply, err := tx.totalSupply.Add(amount)
	if err != nil {
		return fmt.Errorf("failed to mint %s: %w", amount, err)
	}
	balance, err := tx.BalanceOf(to).Add(amount)
	if err != nil {
		return fmt.Errorf("failed to mint %s: %w", amount, err)
	}

	tx.totalSupply = supply
	tx.balances[to] = balance
	return nil
}

// Burn destroys amount tokens held by the account
func (tx *ledgerTx) Burn(from Address, amount decimal.Amount) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if from == "" {
		return fmt.Errorf("burn from the %w", ErrZeroAddress)
	}

	balance, err := tx.BalanceOf(from).Sub(amount)
	if err != nil {
		return fmt.Errorf("burn amount exceeds balance: %w", ErrInsufficientBalance)
	}
	supply, err := tx.totalSupply.Sub(amount)
	if err != nil {
		return fmt.Errorf("failed to burn %s: %w", amount, err)
	}

	tx.totalSupply = supply
	tx.balances[from] = balance
	return nil
}

// Transfer moves amount from one account to another
func (tx *ledgerTx) Transfer(from, to Address, amount decimal.Amount) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if from == "" || to == "" {
		return fmt.Errorf("transfer with the %w", ErrZeroAddress)
	}

	fromBalance, err := tx.BalanceOf(from).Sub(amount)
	if err != nil {
		return ErrInsufficientBalance
	}
	tx.balances[from] = fromBalance

	toBalance, err := tx.BalanceOf(to).Add(amount)
	if err != nil {
		return fmt.Errorf("failed to transfer %s: %w", amount, err)
	}
	tx.balances[to] = toBalance
	return nil
}

// TransferFrom moves amount using the allowance owner granted to spender
func (tx *ledgerTx) TransferFrom(spender, from, to Address, amount decimal.Amount) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}

	remaining, err := tx.Allowance(from, spender).Sub(amount)
	if err != nil {
		return ErrInsufficientAllowance
	}
	if err := tx.Transfer(from, to, amount); err != nil {
		return err
	}

	tx.allowances[allowanceKey{from, spender}] = remaining
	return nil
}

// Approve sets the amount spender may pull from owner
func (tx *ledgerTx) Approve(owner, spender Address, amount decimal.Amount) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if owner == "" || spender == "" {
		return fmt.Errorf("approve with the %w", ErrZeroAddress)
	}

	tx.allowances[allowanceKey{owner, spender}] = amount
	return nil
}

// Changes returns the staged writes, sorted for stable persistence
func (tx *ledgerTx) Changes() Changes {
	balances := make(map[Address]decimal.Amount, len(tx.balances))
	for addr, amt := range tx.balances {
		balances[addr] = amt
	}

	allowances := make([]Allowance, 0, len(tx.allowances))
	for key, amt := range tx.allowances {
		allowances = append(allowances, Allowance{Owner: key.owner, Spender: key.spender, Amount: amt})
	}
	sortAllowances(allowances)

	return Changes{
		TotalSupply: tx.totalSupply,
		Balances:    balances,
		Allowances:  allowances,
	}
}

// Commit publishes the staged writes to the ledger
func (tx *ledgerTx) Commit() error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if err := tx.base.apply(tx); err != nil {
		return err
	}
	tx.done = true
	return nil
}

// Rollback discards the staged writes. Safe to call after Commit.
func (tx *ledgerTx) Rollback() {
	tx.done = true
}

func (tx *ledgerTx) checkOpen() error {
	if tx.done {
		return ErrTxDone
	}
	return nil
}

// Addresses returns the touched addresses in order
func (c Changes) Addresses() []Address {
	addrs := make([]Address, 0, len(c.Balances))
	for addr := range c.Balances {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}
