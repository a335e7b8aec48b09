// Package postgres implements the asset ledger on the token_accounts table.
// It exists for deployments without an external chain ledger: balances live
// in the same database as the swap records.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"token-swap-escrow/internal/ledger"
	storepg "token-swap-escrow/internal/storage/postgres"
)

// Ledger implements ledger.Ledger using PostgreSQL.
type Ledger struct {
	pool *storepg.Pool
}

// NewLedger creates a ledger over the given pool. The token_accounts table
// must exist (see storage/migrations).
func NewLedger(pool *storepg.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Compile-time interface check.
var _ ledger.Ledger = (*Ledger)(nil)

// Mint credits amount units of mint to an account, creating it if needed.
func (l *Ledger) Mint(ctx context.Context, mint, account string, amount uint64) error {
	query := `
		INSERT INTO token_accounts (mint, account, balance)
		VALUES ($1, $2, $3)
		ON CONFLICT (mint, account) DO UPDATE
		SET balance = token_accounts.balance + EXCLUDED.balance
	`

	if _, err := l.pool.Exec(ctx, query, mint, account, int64(amount)); err != nil {
		return fmt.Errorf("mint %d of %s to %s: %w", amount, mint, account, err)
	}
	return nil
}

// Move transfers amount units of mint between accounts. The source row is
// locked for the duration of the transaction, the destination is created on
// demand. Returns ErrUnknownAccount if the source does not exist and
// ErrInsufficientFunds if it holds less than amount.
func (l *Ledger) Move(ctx context.Context, mint, from, to string, amount uint64) error {
	return l.pool.InTx(ctx, func(tx pgx.Tx) error {
		var balance int64
		err := tx.QueryRow(ctx,
			`SELECT balance FROM token_accounts WHERE mint = $1 AND account = $2 FOR UPDATE`,
			mint, from,
		).Scan(&balance)
		if err != nil {
			if err == pgx.ErrNoRows {
				return fmt.Errorf("account %s for mint %s: %w", from, mint, ledger.ErrUnknownAccount)
			}
			return fmt.Errorf("lock source account: %w", err)
		}
		if uint64(balance) < amount {
			return fmt.Errorf("account %s holds %d, need %d: %w", from, balance, amount, ledger.ErrInsufficientFunds)
		}

		_, err = tx.Exec(ctx,
			`UPDATE token_accounts SET balance = balance - $3 WHERE mint = $1 AND account = $2`,
			mint, from, int64(amount),
		)
		if err != nil {
			return fmt.Errorf("debit source account: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO token_accounts (mint, account, balance)
			VALUES ($1, $2, $3)
			ON CONFLICT (mint, account) DO UPDATE
			SET balance = token_accounts.balance + EXCLUDED.balance
		`, mint, to, int64(amount))
		if err != nil {
			return fmt.Errorf("credit destination account: %w", err)
		}

		return nil
	})
}

// BalanceOf returns the balance of an account for a mint; missing rows read
// as zero.
func (l *Ledger) BalanceOf(ctx context.Context, mint, account string) (uint64, error) {
	var balance int64
	err := l.pool.QueryRow(ctx,
		`SELECT balance FROM token_accounts WHERE mint = $1 AND account = $2`,
		mint, account,
	).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("balance of %s for mint %s: %w", account, mint, err)
	}
	return uint64(balance), nil
}
