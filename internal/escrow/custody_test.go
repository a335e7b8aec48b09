package escrow

import (
	"context"
	"errors"
	"testing"

	"token-swap-escrow/internal/domain"
	"token-swap-escrow/internal/ledger"
	ledgermem "token-swap-escrow/internal/ledger/memory"
)

// faultyLedger wraps the memory ledger and fails every Move into or out of
// a chosen account, simulating a mid-operation ledger failure.
type faultyLedger struct {
	*ledgermem.Ledger
	failAccount string
}

var errLedgerDown = errors.New("simulated ledger failure")

func (f *faultyLedger) Move(ctx context.Context, mint, from, to string, amount uint64) error {
	if from == f.failAccount || to == f.failAccount {
		return errLedgerDown
	}
	return f.Ledger.Move(ctx, mint, from, to, amount)
}

func custodyFixture(t *testing.T, failAccount string) (*Custodian, *ledgermem.Ledger, *domain.SwapRecord) {
	t.Helper()
	mem := ledgermem.NewLedger()
	ctx := context.Background()

	rec := &domain.SwapRecord{
		ID:       "swap-1",
		MintA:    "mint-a",
		MintB:    "mint-b",
		AmountA:  100000,
		AmountB:  200000,
		SourceA:  "source-a",
		SourceB:  "source-b",
		DestA:    "dest-a",
		DestB:    "dest-b",
		CustodyA: "custody-a",
		CustodyB: "custody-b",
	}
	if err := mem.Mint(ctx, rec.MintA, rec.SourceA, 100000); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := mem.Mint(ctx, rec.MintB, rec.SourceB, 200000); err != nil {
		t.Fatalf("mint: %v", err)
	}

	var l = &faultyLedger{Ledger: mem, failAccount: failAccount}
	return NewCustodian(l), mem, rec
}

func mustBalance(t *testing.T, l *ledgermem.Ledger, mint, account string) uint64 {
	t.Helper()
	bal, err := l.BalanceOf(context.Background(), mint, account)
	if err != nil {
		t.Fatalf("balance of %s: %v", account, err)
	}
	return bal
}

func TestLock_CompensatesFirstLegOnSecondLegFailure(t *testing.T) {
	c, mem, rec := custodyFixture(t, "custody-b")
	ctx := context.Background()

	err := c.lock(ctx, rec)
	if !errors.Is(err, errLedgerDown) {
		t.Fatalf("expected ledger failure, got %v", err)
	}

	// A's deposit was pulled back, nothing stranded in custody.
	if got := mustBalance(t, mem, rec.MintA, rec.SourceA); got != 100000 {
		t.Fatalf("source A balance = %d, want 100000", got)
	}
	if got := mustBalance(t, mem, rec.MintA, rec.CustodyA); got != 0 {
		t.Fatalf("custody A balance = %d, want 0", got)
	}
}

func TestSettle_CompensatesFirstLegOnSecondLegFailure(t *testing.T) {
	c, mem, rec := custodyFixture(t, "dest-a")
	ctx := context.Background()

	// Fund custody directly, as if lock had succeeded.
	if err := mem.Move(ctx, rec.MintA, rec.SourceA, rec.CustodyA, rec.AmountA); err != nil {
		t.Fatalf("fund custody A: %v", err)
	}
	if err := mem.Move(ctx, rec.MintB, rec.SourceB, rec.CustodyB, rec.AmountB); err != nil {
		t.Fatalf("fund custody B: %v", err)
	}

	err := c.settle(ctx, rec)
	if !errors.Is(err, errLedgerDown) {
		t.Fatalf("expected ledger failure, got %v", err)
	}

	// Both custody balances intact; the first delivery was compensated.
	if got := mustBalance(t, mem, rec.MintA, rec.CustodyA); got != rec.AmountA {
		t.Fatalf("custody A balance = %d, want %d", got, rec.AmountA)
	}
	if got := mustBalance(t, mem, rec.MintB, rec.CustodyB); got != rec.AmountB {
		t.Fatalf("custody B balance = %d, want %d", got, rec.AmountB)
	}
	if got := mustBalance(t, mem, rec.MintA, rec.DestB); got != 0 {
		t.Fatalf("dest B balance = %d, want 0", got)
	}
}

func TestRefund_CompensatesFirstLegOnSecondLegFailure(t *testing.T) {
	c, mem, rec := custodyFixture(t, "source-b")
	ctx := context.Background()

	if err := mem.Move(ctx, rec.MintA, rec.SourceA, rec.CustodyA, rec.AmountA); err != nil {
		t.Fatalf("fund custody A: %v", err)
	}
	if err := mem.Move(ctx, rec.MintB, rec.SourceB, rec.CustodyB, rec.AmountB); err != nil {
		t.Fatalf("fund custody B: %v", err)
	}

	err := c.refund(ctx, rec)
	if !errors.Is(err, errLedgerDown) {
		t.Fatalf("expected ledger failure, got %v", err)
	}

	// A's refund was rolled back into custody.
	if got := mustBalance(t, mem, rec.MintA, rec.CustodyA); got != rec.AmountA {
		t.Fatalf("custody A balance = %d, want %d", got, rec.AmountA)
	}
	if got := mustBalance(t, mem, rec.MintB, rec.CustodyB); got != rec.AmountB {
		t.Fatalf("custody B balance = %d, want %d", got, rec.AmountB)
	}
}

func TestWrapLedgerErr(t *testing.T) {
	wrapped := wrapLedgerErr(ledger.ErrInsufficientFunds)
	if !errors.Is(wrapped, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", wrapped)
	}

	other := errors.New("network timeout")
	if got := wrapLedgerErr(other); got != other {
		t.Fatalf("unrelated error must pass through unchanged, got %v", got)
	}
}
