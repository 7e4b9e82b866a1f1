package policy

import (
	"errors"
	"fmt"

	"github.com/terminal-bench/comptroller/pkg/decimal"
)

// Reason texts are matched verbatim by clients.
var (
	ErrDebtCeilingExceeded    = errors.New("Debt too large")
	ErrInsufficientDebt       = errors.New("not enough debt")
	ErrInsufficientRedeemable = errors.New("not enough redeemable")
	ErrInsufficientBonded     = errors.New("not enough bonded")
)

// State holds the policy counters. The counters are accounting views over
// ledger balances; keeping them consistent with the ledger is the caller's job.
type State struct {
	TotalDebt       decimal.Amount `json:"total_debt"`
	TotalRedeemable decimal.Amount `json:"total_redeemable"`
	TotalBonded     decimal.Amount `json:"total_bonded"`
}

// IncrementDebt records new debt, which may never exceed the token supply
func (s *State) IncrementDebt(amount, supply decimal.Amount) error {
	debt, err := s.TotalDebt.Add(amount)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDebtCeilingExceeded, err)
	}
	if debt.GreaterThan(supply) {
		return ErrDebtCeilingExceeded
	}
	s.TotalDebt = debt
	return nil
}

// DecrementDebt retires debt
func (s *State) DecrementDebt(amount decimal.Amount) error {
	debt, err := s.TotalDebt.Sub(amount)
	if err != nil {
		return ErrInsufficientDebt
	}
	s.TotalDebt = debt
	return nil
}

func (s *State) IncrementRedeemable(amount decimal.Amount) error {
	redeemable, err := s.TotalRedeemable.Add(amount)
	if err != nil {
		return fmt.Errorf("failed to increment redeemable: %w", err)
	}
	s.TotalRedeemable = redeemable
	return nil
}

func (s *State) DecrementRedeemable(amount decimal.Amount) error {
	redeemable, err := s.TotalRedeemable.Sub(amount)
	if err != nil {
		return ErrInsufficientRedeemable
	}
	s.TotalRedeemable = redeemable
	return nil
}

func (s *State) IncrementBonded(amount decimal.Amount) error {
	bonded, err := s.TotalBonded.Add(amount)
	if err != nil {
		return fmt.Errorf("failed to increment bonded: %w", err)
	}
	s.TotalBonded = bonded
	return nil
}

func (s *State) DecrementBonded(amount decimal.Amount) error {
	bonded, err := s.TotalBonded.Sub(amount)
	if err != nil {
		return ErrInsufficientBonded
	}
	s.TotalBonded = bonded
	return nil
}

// Check verifies the invariants that must hold after every operation
func (s State) Check(supply decimal.Amount) error {
	if s.TotalDebt.GreaterThan(supply) {
		return fmt.Errorf("total debt %s exceeds supply %s: %w", s.TotalDebt, supply, ErrDebtCeilingExceeded)
	}
	return nil
}
