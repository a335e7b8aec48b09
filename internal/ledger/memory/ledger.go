package memory

import (
	"context"
	"sync"

	"token-swap-escrow/internal/ledger"
)

// Ledger is an in-memory implementation of ledger.Ledger. It doubles as the
// account-funding collaborator for tests and for --use-memory mode: Mint
// creates balances out of thin air the way a faucet would.
type Ledger struct {
	mu       sync.RWMutex
	balances map[string]map[string]uint64 // mint -> account -> balance
}

// NewLedger creates an empty in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[string]map[string]uint64),
	}
}

// Compile-time interface check.
var _ ledger.Ledger = (*Ledger)(nil)

// Mint credits amount units of mint to an account, creating it if needed.
func (l *Ledger) Mint(_ context.Context, mint, account string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	accounts, ok := l.balances[mint]
	if !ok {
		accounts = make(map[string]uint64)
		l.balances[mint] = accounts
	}
	accounts[account] += amount
	return nil
}

// Move transfers amount units of mint between accounts. The destination
// account is created on demand; the source must exist and hold enough.
func (l *Ledger) Move(_ context.Context, mint, from, to string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	accounts, ok := l.balances[mint]
	if !ok {
		return ledger.ErrUnknownAccount
	}
	balance, ok := accounts[from]
	if !ok {
		return ledger.ErrUnknownAccount
	}
	if balance < amount {
		return ledger.ErrInsufficientFunds
	}

	accounts[from] = balance - amount
	accounts[to] += amount
	return nil
}

// BalanceOf returns the balance of an account for a mint; missing entries
// read as zero.
func (l *Ledger) BalanceOf(_ context.Context, mint, account string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	accounts, ok := l.balances[mint]
	if !ok {
		return 0, nil
	}
	return accounts[account], nil
}

// TotalSupply sums all balances of a mint. Used by tests to assert token
// conservation across escrow operations.
func (l *Ledger) TotalSupply(_ context.Context, mint string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total uint64
	for _, balance := range l.balances[mint] {
		total += balance
	}
	return total, nil
}
