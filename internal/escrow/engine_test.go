package escrow_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-swap-escrow/internal/auth"
	"token-swap-escrow/internal/domain"
	"token-swap-escrow/internal/escrow"
	ledgermem "token-swap-escrow/internal/ledger/memory"
	storemem "token-swap-escrow/internal/storage/memory"
)

const (
	mintA = "MintA1111111111111111111111111111111111111"
	mintB = "MintB1111111111111111111111111111111111111"

	amountA = uint64(100000)
	amountB = uint64(200000)

	day  = int64(86400)
	hour = int64(3600)
)

// fakeClock lets tests move time explicitly; the engine never schedules
// anything, it only reads the clock at call time.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(unix int64) *fakeClock {
	return &fakeClock{t: time.Unix(unix, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(seconds int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Duration(seconds) * time.Second)
}

type party struct {
	addr domain.Address
	priv ed25519.PrivateKey
}

func newParty(t *testing.T) party {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return party{addr: domain.AddressFromBytes(pub), priv: priv}
}

// fixture wires an engine over in-memory store and ledger with two funded
// parties.
type fixture struct {
	engine *escrow.Engine
	ledger *ledgermem.Ledger
	store  *storemem.SwapStore
	events *storemem.SwapEventStore
	clock  *fakeClock
	a, b   party
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		ledger: ledgermem.NewLedger(),
		store:  storemem.NewSwapStore(),
		events: storemem.NewSwapEventStore(),
		clock:  newFakeClock(1_700_000_000),
		a:      newParty(t),
		b:      newParty(t),
	}

	ctx := context.Background()
	require.NoError(t, f.ledger.Mint(ctx, mintA, f.srcA(), 1_000_000))
	require.NoError(t, f.ledger.Mint(ctx, mintB, f.srcB(), 1_000_000))

	f.engine = escrow.NewEngine(escrow.Options{
		Store:  f.store,
		Ledger: f.ledger,
		Events: eventSink{f.events},
		Now:    f.clock.Now,
	})
	return f
}

// eventSink adapts the memory event store without importing the events
// package wiring.
type eventSink struct {
	store *storemem.SwapEventStore
}

func (s eventSink) Emit(ctx context.Context, e *domain.SwapEvent) error {
	return s.store.Insert(ctx, e)
}

func (f *fixture) srcA() string { return "src-" + string(f.a.addr) }
func (f *fixture) srcB() string { return "src-" + string(f.b.addr) }
func (f *fixture) dstA() string { return "dst-" + string(f.a.addr) }
func (f *fixture) dstB() string { return "dst-" + string(f.b.addr) }

// initiateRequest builds a fully signed initiate request with the scenario
// defaults: 100000 A for 200000 B, one day deadline, one hour grace.
func (f *fixture) initiateRequest() escrow.InitiateRequest {
	now := f.clock.Now().Unix()
	req := escrow.InitiateRequest{
		PartyA:      f.a.addr,
		PartyB:      f.b.addr,
		MintA:       mintA,
		MintB:       mintB,
		AmountA:     amountA,
		AmountB:     amountB,
		SourceA:     f.srcA(),
		SourceB:     f.srcB(),
		DestA:       f.dstA(),
		DestB:       f.dstB(),
		Deadline:    now + day,
		GracePeriod: hour,
	}
	payload := auth.InitiatePayload(
		req.PartyA, req.PartyB, req.MintA, req.MintB,
		req.AmountA, req.AmountB,
		req.SourceA, req.SourceB, req.DestA, req.DestB,
		req.Deadline, req.GracePeriod,
	)
	req.SigA = auth.Sign(f.a.priv, payload)
	req.SigB = auth.Sign(f.b.priv, payload)
	return req
}

func (f *fixture) initiate(t *testing.T) *domain.SwapRecord {
	t.Helper()
	rec, err := f.engine.Initiate(context.Background(), f.initiateRequest())
	require.NoError(t, err)
	return rec
}

func (f *fixture) approveRequest(swapID string) escrow.ApproveRequest {
	payload := auth.ApprovePayload(swapID)
	return escrow.ApproveRequest{
		SwapID: swapID,
		SigA:   auth.Sign(f.a.priv, payload),
		SigB:   auth.Sign(f.b.priv, payload),
	}
}

func (f *fixture) extendRequest(swapID string, newDeadline int64, p party) escrow.ExtendDeadlineRequest {
	return escrow.ExtendDeadlineRequest{
		SwapID:      swapID,
		NewDeadline: newDeadline,
		Party:       p.addr,
		Sig:         auth.Sign(p.priv, auth.ExtendPayload(swapID, newDeadline)),
	}
}

func (f *fixture) balance(t *testing.T, mint, account string) uint64 {
	t.Helper()
	bal, err := f.ledger.BalanceOf(context.Background(), mint, account)
	require.NoError(t, err)
	return bal
}

func TestInitiate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.initiate(t)

	assert.Equal(t, domain.SwapStatePending, rec.State)
	assert.Equal(t, amountA, rec.AmountA)
	assert.Equal(t, amountB, rec.AmountB)
	assert.NotEmpty(t, rec.ID)
	assert.NotEmpty(t, rec.CustodyA)
	assert.NotEmpty(t, rec.CustodyB)
	assert.Equal(t, rec.CreatedAt+day, rec.Deadline)

	// Custody holds exactly the committed amounts; sources are debited.
	assert.Equal(t, amountA, f.balance(t, mintA, rec.CustodyA))
	assert.Equal(t, amountB, f.balance(t, mintB, rec.CustodyB))
	assert.Equal(t, uint64(1_000_000-100000), f.balance(t, mintA, f.srcA()))
	assert.Equal(t, uint64(1_000_000-200000), f.balance(t, mintB, f.srcB()))

	// Token conservation: nothing minted or burned.
	totalA, err := f.ledger.TotalSupply(ctx, mintA)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), totalA)
	totalB, err := f.ledger.TotalSupply(ctx, mintB)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), totalB)

	// The initiation is auditable.
	evs, err := f.events.GetBySwapID(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, domain.EventSwapInitiated, evs[0].Kind)
}

func TestInitiate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now().Unix()

	tests := []struct {
		name    string
		mutate  func(*escrow.InitiateRequest)
		wantErr error
	}{
		{
			name:    "zero amount A",
			mutate:  func(r *escrow.InitiateRequest) { r.AmountA = 0 },
			wantErr: escrow.ErrInvalidAmount,
		},
		{
			name:    "zero amount B",
			mutate:  func(r *escrow.InitiateRequest) { r.AmountB = 0 },
			wantErr: escrow.ErrInvalidAmount,
		},
		{
			name:    "deadline in the past",
			mutate:  func(r *escrow.InitiateRequest) { r.Deadline = now - 1 },
			wantErr: escrow.ErrInvalidDeadline,
		},
		{
			name:    "deadline exactly now",
			mutate:  func(r *escrow.InitiateRequest) { r.Deadline = now },
			wantErr: escrow.ErrInvalidDeadline,
		},
		{
			name:    "negative grace period",
			mutate:  func(r *escrow.InitiateRequest) { r.GracePeriod = -1 },
			wantErr: escrow.ErrInvalidGracePeriod,
		},
		{
			name:    "same party on both sides",
			mutate:  func(r *escrow.InitiateRequest) { r.PartyB = r.PartyA },
			wantErr: escrow.ErrDuplicateParty,
		},
		{
			name:    "malformed party address",
			mutate:  func(r *escrow.InitiateRequest) { r.PartyB = "not-a-key" },
			wantErr: escrow.ErrInvalidParty,
		},
		{
			name:    "missing mint",
			mutate:  func(r *escrow.InitiateRequest) { r.MintA = "" },
			wantErr: escrow.ErrInvalidAccount,
		},
		{
			name:    "amount above signed 64-bit range",
			mutate:  func(r *escrow.InitiateRequest) { r.AmountA = math.MaxInt64 + 1 },
			wantErr: escrow.ErrInvalidAmount,
		},
		{
			name:    "shared source account",
			mutate:  func(r *escrow.InitiateRequest) { r.SourceB = r.SourceA },
			wantErr: escrow.ErrInvalidAccount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.initiateRequest()
			tt.mutate(&req)

			_, err := f.engine.Initiate(ctx, req)
			assert.ErrorIs(t, err, tt.wantErr)

			// Nothing moved on rejection.
			assert.Equal(t, uint64(1_000_000), f.balance(t, mintA, f.srcA()))
			assert.Equal(t, uint64(1_000_000), f.balance(t, mintB, f.srcB()))
		})
	}
}

func TestInitiate_InsufficientFunds(t *testing.T) {
	f := newFixture(t)

	req := f.initiateRequest()
	req.AmountA = 2_000_000 // more than minted
	payload := auth.InitiatePayload(
		req.PartyA, req.PartyB, req.MintA, req.MintB,
		req.AmountA, req.AmountB,
		req.SourceA, req.SourceB, req.DestA, req.DestB,
		req.Deadline, req.GracePeriod,
	)
	req.SigA = auth.Sign(f.a.priv, payload)
	req.SigB = auth.Sign(f.b.priv, payload)

	_, err := f.engine.Initiate(context.Background(), req)
	assert.ErrorIs(t, err, escrow.ErrInsufficientFunds)
	assert.Equal(t, uint64(1_000_000), f.balance(t, mintA, f.srcA()))
	assert.Equal(t, uint64(1_000_000), f.balance(t, mintB, f.srcB()))
}

func TestInitiate_BadSignature(t *testing.T) {
	f := newFixture(t)

	req := f.initiateRequest()
	req.SigB = req.SigA // B did not actually sign

	_, err := f.engine.Initiate(context.Background(), req)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)
	assert.Equal(t, uint64(1_000_000), f.balance(t, mintB, f.srcB()))
}

func TestApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.initiate(t)

	got, err := f.engine.Approve(ctx, f.approveRequest(rec.ID))
	require.NoError(t, err)
	assert.Equal(t, domain.SwapStateCompleted, got.State)

	// Cross-delivery: A receives B's asset and vice versa.
	assert.Equal(t, amountB, f.balance(t, mintB, f.dstA()))
	assert.Equal(t, amountA, f.balance(t, mintA, f.dstB()))

	// Custody is drained.
	assert.Zero(t, f.balance(t, mintA, rec.CustodyA))
	assert.Zero(t, f.balance(t, mintB, rec.CustodyB))

	evs, err := f.events.GetBySwapID(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, domain.EventSwapCompleted, evs[1].Kind)
}

func TestApprove_AtExactDeadline(t *testing.T) {
	f := newFixture(t)

	rec := f.initiate(t)
	f.clock.Advance(day) // now == deadline

	got, err := f.engine.Approve(context.Background(), f.approveRequest(rec.ID))
	require.NoError(t, err)
	assert.Equal(t, domain.SwapStateCompleted, got.State)
}

func TestApprove_AfterDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.initiate(t)

	// Past the deadline but still inside the grace window: approval is
	// rejected, only the expiry path remains.
	f.clock.Advance(day + 1)

	_, err := f.engine.Approve(ctx, f.approveRequest(rec.ID))
	assert.ErrorIs(t, err, escrow.ErrDeadlinePassed)

	got, err := f.engine.Fetch(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapStatePending, got.State)
	assert.Equal(t, amountA, f.balance(t, mintA, rec.CustodyA))
}

func TestApprove_RequiresBothSignatures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.initiate(t)

	req := f.approveRequest(rec.ID)
	req.SigB = auth.Sign(f.a.priv, auth.ApprovePayload(rec.ID)) // A signing for B

	_, err := f.engine.Approve(ctx, req)
	assert.ErrorIs(t, err, auth.ErrUnauthorized)

	got, err := f.engine.Fetch(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapStatePending, got.State)
}

func TestExpire(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.initiate(t)
	f.clock.Advance(day + hour + 1) // past deadline + grace

	got, err := f.engine.Expire(ctx, escrow.ExpireRequest{SwapID: rec.ID})
	require.NoError(t, err)
	assert.Equal(t, domain.SwapStateExpired, got.State)

	// Both parties regain their original balances.
	assert.Equal(t, uint64(1_000_000), f.balance(t, mintA, f.srcA()))
	assert.Equal(t, uint64(1_000_000), f.balance(t, mintB, f.srcB()))
	assert.Zero(t, f.balance(t, mintA, rec.CustodyA))
	assert.Zero(t, f.balance(t, mintB, rec.CustodyB))

	evs, err := f.events.GetBySwapID(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, domain.EventSwapExpired, evs[1].Kind)
}

func TestExpire_GraceNotElapsed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.initiate(t)

	// Inside the grace window, including its exact end.
	for _, advance := range []int64{day, hour - 1, 1} {
		f.clock.Advance(advance)
		_, err := f.engine.Expire(ctx, escrow.ExpireRequest{SwapID: rec.ID})
		assert.ErrorIs(t, err, escrow.ErrGracePeriodNotElapsed)
	}

	got, err := f.engine.Fetch(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SwapStatePending, got.State)
}

func TestExtendDeadline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.initiate(t)
	newDeadline := rec.Deadline + day

	got, err := f.engine.ExtendDeadline(ctx, f.extendRequest(rec.ID, newDeadline, f.a))
	require.NoError(t, err)
	assert.Equal(t, newDeadline, got.Deadline)
	assert.Equal(t, domain.SwapStatePending, got.State)
	assert.Equal(t, amountA, got.AmountA)
	assert.Equal(t, hour, got.GracePeriod)

	// Approval after the original deadline now succeeds.
	f.clock.Advance(day + hour)
	approved, err := f.engine.Approve(ctx, f.approveRequest(rec.ID))
	require.NoError(t, err)
	assert.Equal(t, domain.SwapStateCompleted, approved.State)
}

func TestExtendDeadline_EitherPartyMayExtend(t *testing.T) {
	f := newFixture(t)

	rec := f.initiate(t)

	_, err := f.engine.ExtendDeadline(context.Background(), f.extendRequest(rec.ID, rec.Deadline+1, f.b))
	require.NoError(t, err)
}

func TestExtendDeadline_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.initiate(t)

	t.Run("not moving forward", func(t *testing.T) {
		_, err := f.engine.ExtendDeadline(ctx, f.extendRequest(rec.ID, rec.Deadline, f.a))
		assert.ErrorIs(t, err, escrow.ErrInvalidNewDeadline)
	})

	t.Run("stranger may not extend", func(t *testing.T) {
		stranger := newParty(t)
		_, err := f.engine.ExtendDeadline(ctx, f.extendRequest(rec.ID, rec.Deadline+1, stranger))
		assert.ErrorIs(t, err, auth.ErrUnauthorized)
	})

	t.Run("wrong signer", func(t *testing.T) {
		req := f.extendRequest(rec.ID, rec.Deadline+1, f.a)
		req.Sig = auth.Sign(f.b.priv, auth.ExtendPayload(rec.ID, rec.Deadline+1))
		_, err := f.engine.ExtendDeadline(ctx, req)
		assert.ErrorIs(t, err, auth.ErrUnauthorized)
	})

	t.Run("after deadline", func(t *testing.T) {
		f.clock.Advance(day + 1)
		_, err := f.engine.ExtendDeadline(ctx, f.extendRequest(rec.ID, rec.Deadline+day, f.a))
		assert.ErrorIs(t, err, escrow.ErrDeadlineAlreadyPassed)
	})
}

func TestTerminalLaw(t *testing.T) {
	ctx := context.Background()

	t.Run("after completion", func(t *testing.T) {
		f := newFixture(t)
		rec := f.initiate(t)
		_, err := f.engine.Approve(ctx, f.approveRequest(rec.ID))
		require.NoError(t, err)

		_, err = f.engine.Approve(ctx, f.approveRequest(rec.ID))
		assert.ErrorIs(t, err, escrow.ErrNotPending)

		f.clock.Advance(2 * day)
		_, err = f.engine.Expire(ctx, escrow.ExpireRequest{SwapID: rec.ID})
		assert.ErrorIs(t, err, escrow.ErrNotPending)

		_, err = f.engine.ExtendDeadline(ctx, f.extendRequest(rec.ID, rec.Deadline+day, f.a))
		assert.ErrorIs(t, err, escrow.ErrNotPending)
	})

	t.Run("after expiry", func(t *testing.T) {
		f := newFixture(t)
		rec := f.initiate(t)
		f.clock.Advance(day + hour + 1)
		_, err := f.engine.Expire(ctx, escrow.ExpireRequest{SwapID: rec.ID})
		require.NoError(t, err)

		_, err = f.engine.Expire(ctx, escrow.ExpireRequest{SwapID: rec.ID})
		assert.ErrorIs(t, err, escrow.ErrNotPending)

		_, err = f.engine.Approve(ctx, f.approveRequest(rec.ID))
		assert.ErrorIs(t, err, escrow.ErrNotPending)
	})
}

func TestFetch_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Fetch(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, escrow.ErrNotFound)
}

func TestConcurrentApprove_ExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := f.initiate(t)

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Approve(ctx, f.approveRequest(rec.ID))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, rejected int
	for err := range errs {
		if err == nil {
			succeeded++
		} else if errors.Is(err, escrow.ErrNotPending) {
			rejected++
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one approval must win")
	assert.Equal(t, attempts-1, rejected)

	// Funds delivered exactly once.
	assert.Equal(t, amountB, f.balance(t, mintB, f.dstA()))
	assert.Equal(t, amountA, f.balance(t, mintA, f.dstB()))
}
