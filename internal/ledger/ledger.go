// Package ledger defines the boundary to the external fungible-token ledger.
// The escrow core never touches raw balance storage; every balance change
// goes through the Ledger interface.
package ledger

import (
	"context"
	"errors"
)

// Ledger errors.
var (
	// ErrInsufficientFunds is returned when the source account does not
	// hold the requested amount of the given mint.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrUnknownAccount is returned when the account has no balance entry
	// for the given mint.
	ErrUnknownAccount = errors.New("unknown account")
)

// Ledger moves value between accounts. Accounts are opaque string ids; an
// account holds an independent balance per mint.
type Ledger interface {
	// Move transfers amount units of mint from one account to another.
	// Returns ErrInsufficientFunds or ErrUnknownAccount; on error no
	// balance changes.
	Move(ctx context.Context, mint, from, to string, amount uint64) error

	// BalanceOf returns the balance of an account for a mint. Accounts
	// without an entry for the mint have balance zero.
	BalanceOf(ctx context.Context, mint, account string) (uint64, error)
}
