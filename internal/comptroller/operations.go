package comptroller

import (
	"context"

	"github.com/terminal-bench/comptroller/internal/policy"
	"github.com/terminal-bench/comptroller/internal/token"
	"github.com/terminal-bench/comptroller/pkg/decimal"
	"github.com/terminal-bench/comptroller/pkg/messaging"
)

// Operation names a journaled controller operation
type Operation string

const (
	OpAdvanceEpoch             Operation = "advance_epoch"
	OpMintToAccount            Operation = "mint_to_account"
	OpMintTo                   Operation = "mint_to"
	OpBurnFromAccount          Operation = "burn_from_account"
	OpRedeemToAccount          Operation = "redeem_to_account"
	OpIncreaseDebt             Operation = "increase_debt"
	OpDecreaseDebt             Operation = "decrease_debt"
	OpIncrementTotalRedeemable Operation = "increment_total_redeemable"
	OpIncrementTotalBonded     Operation = "increment_total_bonded"
	OpDecrementTotalBonded     Operation = "decrement_total_bonded"
	OpApprove                  Operation = "approve"
)

var subjects = map[Operation]string{
	OpAdvanceEpoch:             messaging.EventTypeEpochAdvanced,
	OpMintToAccount:            messaging.EventTypeMinted,
	OpMintTo:                   messaging.EventTypeMinted,
	OpBurnFromAccount:          messaging.EventTypeBurned,
	OpRedeemToAccount:          messaging.EventTypeRedeemed,
	OpIncreaseDebt:             messaging.EventTypeDebtIncreased,
	OpDecreaseDebt:             messaging.EventTypeDebtDecreased,
	OpIncrementTotalRedeemable: messaging.EventTypeRedeemableChanged,
	OpIncrementTotalBonded:     messaging.EventTypeBondedChanged,
	OpDecrementTotalBonded:     messaging.EventTypeBondedChanged,
	OpApprove:                  messaging.EventTypeAllowanceGranted,
}

// Subject returns the event subject published for the operation
func (op Operation) Subject() string {
	return subjects[op]
}

// reasonError reports a caller-facing reason while still matching the
// underlying policy error with errors.Is.
type reasonError struct {
	reason string
	kind   error
}

func (e *reasonError) Error() string { return e.reason }
func (e *reasonError) Unwrap() error { return e.kind }

// AdvanceEpoch ends the current epoch and returns the new one
func (c *Controller) AdvanceEpoch(ctx context.Context) (uint64, error) {
	var next uint64
	err := c.run(ctx, OpAdvanceEpoch, "", decimal.Zero, func(tx *txn) error {
		next = tx.clock.Advance()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// MintToAccount mints new supply to recipient. Once bootstrapping is over
// the minted amount is also recorded as debt.
func (c *Controller) MintToAccount(ctx context.Context, recipient token.Address, amount decimal.Amount) error {
	return c.run(ctx, OpMintToAccount, recipient, amount, func(tx *txn) error {
		if err := tx.ledger.Mint(recipient, amount); err != nil {
			return err
		}
		if tx.clock.IsBootstrapping() {
			return nil
		}
		return tx.state.IncrementDebt(amount, tx.ledger.TotalSupply())
	})
}

// MintTo mints to target without touching debt. It is how the pool is
// funded ahead of a redemption round.
func (c *Controller) MintTo(ctx context.Context, target token.Address, amount decimal.Amount) error {
	return c.run(ctx, OpMintTo, target, amount, func(tx *txn) error {
		return tx.ledger.Mint(target, amount)
	})
}

// BurnFromAccount pulls amount from holder using the allowance holder
// granted to the controller, burns it and retires the same amount of debt.
func (c *Controller) BurnFromAccount(ctx context.Context, holder token.Address, amount decimal.Amount) error {
	return c.run(ctx, OpBurnFromAccount, holder, amount, func(tx *txn) error {
		if amount.GreaterThan(tx.state.TotalDebt) {
			return &reasonError{reason: "not enough outstanding debt", kind: policy.ErrInsufficientDebt}
		}
		if err := tx.ledger.TransferFrom(c.address, holder, c.address, amount); err != nil {
			return err
		}
		if err := tx.ledger.Burn(c.address, amount); err != nil {
			return err
		}
		return tx.state.DecrementDebt(amount)
	})
}

// RedeemToAccount pays amount out of the pool. Only totalRedeemable gates
// the call; an under-funded pool fails with the ledger's balance error.
func (c *Controller) RedeemToAccount(ctx context.Context, recipient token.Address, amount decimal.Amount) error {
	return c.run(ctx, OpRedeemToAccount, recipient, amount, func(tx *txn) error {
		if amount.GreaterThan(tx.state.TotalRedeemable) {
			return policy.ErrInsufficientRedeemable
		}
		if err := tx.ledger.Transfer(c.address, recipient, amount); err != nil {
			return err
		}
		return tx.state.DecrementRedeemable(amount)
	})
}

func (c *Controller) IncreaseDebt(ctx context.Context, amount decimal.Amount) error {
	return c.run(ctx, OpIncreaseDebt, "", amount, func(tx *txn) error {
		return tx.state.IncrementDebt(amount, tx.ledger.TotalSupply())
	})
}

func (c *Controller) DecreaseDebt(ctx context.Context, amount decimal.Amount) error {
	return c.run(ctx, OpDecreaseDebt, "", amount, func(tx *txn) error {
		return tx.state.DecrementDebt(amount)
	})
}

func (c *Controller) IncrementTotalRedeemable(ctx context.Context, amount decimal.Amount) error {
	return c.run(ctx, OpIncrementTotalRedeemable, "", amount, func(tx *txn) error {
		return tx.state.IncrementRedeemable(amount)
	})
}

func (c *Controller) IncrementTotalBonded(ctx context.Context, amount decimal.Amount) error {
	return c.run(ctx, OpIncrementTotalBonded, "", amount, func(tx *txn) error {
		return tx.state.IncrementBonded(amount)
	})
}

func (c *Controller) DecrementTotalBonded(ctx context.Context, amount decimal.Amount) error {
	return c.run(ctx, OpDecrementTotalBonded, "", amount, func(tx *txn) error {
		return tx.state.DecrementBonded(amount)
	})
}

// Approve records holder's allowance for the controller. Routing the
// approval through the controller journals it with everything else.
func (c *Controller) Approve(ctx context.Context, holder token.Address, amount decimal.Amount) error {
	return c.run(ctx, OpApprove, holder, amount, func(tx *txn) error {
		return tx.ledger.Approve(holder, c.address, amount)
	})
}
