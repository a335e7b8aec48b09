package escrow

import (
	"context"
	"errors"
	"fmt"

	"token-swap-escrow/internal/domain"
	"token-swap-escrow/internal/ledger"
)

// Custodian is the only component permitted to move value into or out of the
// program-controlled custody accounts. Custody account ids are derived from
// the swap id (internal/swapid), so neither party can supply them as a
// source or destination of its own.
type Custodian struct {
	ledger ledger.Ledger
}

// NewCustodian creates a custodian over the given asset ledger.
func NewCustodian(l ledger.Ledger) *Custodian {
	return &Custodian{ledger: l}
}

// lock moves both parties' committed amounts from their source accounts into
// the swap's custody accounts. Called exactly once, during Initiate. If the
// B-side deposit fails, the A-side deposit is compensated before returning
// so no funds are ever stranded in custody without a pending record.
func (c *Custodian) lock(ctx context.Context, rec *domain.SwapRecord) error {
	if err := c.ledger.Move(ctx, rec.MintA, rec.SourceA, rec.CustodyA, rec.AmountA); err != nil {
		return fmt.Errorf("lock party A funds: %w", wrapLedgerErr(err))
	}

	if err := c.ledger.Move(ctx, rec.MintB, rec.SourceB, rec.CustodyB, rec.AmountB); err != nil {
		if undoErr := c.ledger.Move(ctx, rec.MintA, rec.CustodyA, rec.SourceA, rec.AmountA); undoErr != nil {
			return fmt.Errorf("lock party B funds: %w (compensating A-side deposit also failed: %v)", wrapLedgerErr(err), undoErr)
		}
		return fmt.Errorf("lock party B funds: %w", wrapLedgerErr(err))
	}

	return nil
}

// settle cross-delivers both custody balances: A's escrowed MintA goes to
// party B's destination, B's escrowed MintB to party A's destination.
// Called exactly once, by Approve. Compensates the first leg if the second
// fails so settlement is all-or-nothing.
func (c *Custodian) settle(ctx context.Context, rec *domain.SwapRecord) error {
	if err := c.ledger.Move(ctx, rec.MintA, rec.CustodyA, rec.DestB, rec.AmountA); err != nil {
		return fmt.Errorf("deliver custody A to party B: %w", wrapLedgerErr(err))
	}

	if err := c.ledger.Move(ctx, rec.MintB, rec.CustodyB, rec.DestA, rec.AmountB); err != nil {
		if undoErr := c.ledger.Move(ctx, rec.MintA, rec.DestB, rec.CustodyA, rec.AmountA); undoErr != nil {
			return fmt.Errorf("deliver custody B to party A: %w (compensating first leg also failed: %v)", wrapLedgerErr(err), undoErr)
		}
		return fmt.Errorf("deliver custody B to party A: %w", wrapLedgerErr(err))
	}

	return nil
}

// unsettle reverses a completed settlement, pulling both deliveries back
// into custody. Only used when the record update after settle fails.
func (c *Custodian) unsettle(ctx context.Context, rec *domain.SwapRecord) error {
	if err := c.ledger.Move(ctx, rec.MintB, rec.DestA, rec.CustodyB, rec.AmountB); err != nil {
		return fmt.Errorf("pull back party A delivery: %w", wrapLedgerErr(err))
	}
	if err := c.ledger.Move(ctx, rec.MintA, rec.DestB, rec.CustodyA, rec.AmountA); err != nil {
		return fmt.Errorf("pull back party B delivery: %w", wrapLedgerErr(err))
	}
	return nil
}

// refund returns both custody balances to their original depositors.
// Called exactly once, by Expire.
func (c *Custodian) refund(ctx context.Context, rec *domain.SwapRecord) error {
	if err := c.ledger.Move(ctx, rec.MintA, rec.CustodyA, rec.SourceA, rec.AmountA); err != nil {
		return fmt.Errorf("refund party A: %w", wrapLedgerErr(err))
	}

	if err := c.ledger.Move(ctx, rec.MintB, rec.CustodyB, rec.SourceB, rec.AmountB); err != nil {
		if undoErr := c.ledger.Move(ctx, rec.MintA, rec.SourceA, rec.CustodyA, rec.AmountA); undoErr != nil {
			return fmt.Errorf("refund party B: %w (compensating A-side refund also failed: %v)", wrapLedgerErr(err), undoErr)
		}
		return fmt.Errorf("refund party B: %w", wrapLedgerErr(err))
	}

	return nil
}

// hasFunds checks that an account holds at least amount units of mint.
func (c *Custodian) hasFunds(ctx context.Context, mint, account string, amount uint64) (bool, error) {
	balance, err := c.ledger.BalanceOf(ctx, mint, account)
	if err != nil {
		return false, fmt.Errorf("balance of %s: %w", account, err)
	}
	return balance >= amount, nil
}

// wrapLedgerErr maps the ledger's insufficient-funds error onto the escrow
// error taxonomy while preserving the original for errors.Is.
func wrapLedgerErr(err error) error {
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		return fmt.Errorf("%w: %w", ErrInsufficientFunds, err)
	}
	return err
}
