// Package escrow implements the swap escrow state machine: it decides
// whether a requested operation is legal given the current record and time,
// and applies its effect atomically through the custodian.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"token-swap-escrow/internal/auth"
	"token-swap-escrow/internal/domain"
	"token-swap-escrow/internal/ledger"
	"token-swap-escrow/internal/observability"
	"token-swap-escrow/internal/storage"
	"token-swap-escrow/internal/swapid"
)

// EventSink receives swap events on every successful transition. Sinks are
// best-effort: a sink error is logged and never fails the operation.
type EventSink interface {
	Emit(ctx context.Context, e *domain.SwapEvent) error
}

// Options configures the engine.
type Options struct {
	Store  storage.SwapStore
	Ledger ledger.Ledger
	Events EventSink   // optional
	Logger *log.Logger // optional
	Now    func() time.Time
}

// Engine is the sole authority over swap state transitions. Operations on
// the same swap id are serialized; different ids proceed independently.
type Engine struct {
	store     storage.SwapStore
	custodian *Custodian
	events    EventSink
	logger    *log.Logger
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per swap id
}

// NewEngine creates an engine over the given store and ledger.
func NewEngine(opts Options) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		store:     opts.Store,
		custodian: NewCustodian(opts.Ledger),
		events:    opts.Events,
		logger:    logger,
		now:       now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// lockID serializes the read-check-mutate cycle for one swap id. Two
// concurrent transitions against the same pending record must not both
// succeed.
func (e *Engine) lockID(id string) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Initiate validates the request, verifies both parties' authorization,
// escrows both deposits and creates the pending record. On any failure no
// record is created and no funds remain moved.
func (e *Engine) Initiate(ctx context.Context, req InitiateRequest) (*domain.SwapRecord, error) {
	now := e.now().Unix()

	if err := validateInitiate(req, now); err != nil {
		observability.RecordOperationError("initiate", "validation")
		return nil, err
	}

	payload := auth.InitiatePayload(
		req.PartyA, req.PartyB, req.MintA, req.MintB,
		req.AmountA, req.AmountB,
		req.SourceA, req.SourceB, req.DestA, req.DestB,
		req.Deadline, req.GracePeriod,
	)
	if err := auth.Verify(req.PartyA, payload, req.SigA); err != nil {
		observability.RecordOperationError("initiate", "unauthorized")
		return nil, fmt.Errorf("party A: %w", err)
	}
	if err := auth.Verify(req.PartyB, payload, req.SigB); err != nil {
		observability.RecordOperationError("initiate", "unauthorized")
		return nil, fmt.Errorf("party B: %w", err)
	}

	ok, err := e.custodian.hasFunds(ctx, req.MintA, req.SourceA, req.AmountA)
	if err != nil {
		return nil, err
	}
	if !ok {
		observability.RecordOperationError("initiate", "insufficient_funds")
		return nil, fmt.Errorf("party A source: %w", ErrInsufficientFunds)
	}
	ok, err = e.custodian.hasFunds(ctx, req.MintB, req.SourceB, req.AmountB)
	if err != nil {
		return nil, err
	}
	if !ok {
		observability.RecordOperationError("initiate", "insufficient_funds")
		return nil, fmt.Errorf("party B source: %w", ErrInsufficientFunds)
	}

	id := swapid.ComputeSwapID(
		string(req.PartyA), string(req.PartyB),
		req.MintA, req.MintB, req.AmountA, req.AmountB, now,
	)
	rec := &domain.SwapRecord{
		ID:          id,
		PartyA:      req.PartyA,
		PartyB:      req.PartyB,
		MintA:       req.MintA,
		MintB:       req.MintB,
		AmountA:     req.AmountA,
		AmountB:     req.AmountB,
		SourceA:     req.SourceA,
		SourceB:     req.SourceB,
		DestA:       req.DestA,
		DestB:       req.DestB,
		CustodyA:    swapid.CustodyAccount(id, swapid.SideA),
		CustodyB:    swapid.CustodyAccount(id, swapid.SideB),
		Deadline:    req.Deadline,
		GracePeriod: req.GracePeriod,
		State:       domain.SwapStatePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	unlock := e.lockID(id)
	defer unlock()

	if err := e.custodian.lock(ctx, rec); err != nil {
		observability.RecordOperationError("initiate", "custody")
		return nil, err
	}

	if err := e.store.Create(ctx, rec); err != nil {
		// Return the deposits; the swap does not exist.
		if undoErr := e.custodian.refund(ctx, rec); undoErr != nil {
			e.logger.Printf("initiate %s: record create failed and refund failed: %v", id, undoErr)
		}
		observability.RecordOperationError("initiate", "store")
		return nil, fmt.Errorf("create swap record: %w", err)
	}

	observability.RecordSwapInitiated()
	e.emit(ctx, &domain.SwapEvent{
		SwapID:    id,
		Kind:      domain.EventSwapInitiated,
		PartyA:    rec.PartyA,
		PartyB:    rec.PartyB,
		AmountA:   rec.AmountA,
		AmountB:   rec.AmountB,
		Deadline:  rec.Deadline,
		Timestamp: now,
	})

	return rec.Clone(), nil
}

// Approve settles a pending swap: custody A is delivered to party B's
// destination and custody B to party A's destination. Requires both
// parties' signatures and now <= deadline.
func (e *Engine) Approve(ctx context.Context, req ApproveRequest) (*domain.SwapRecord, error) {
	unlock := e.lockID(req.SwapID)
	defer unlock()

	rec, err := e.get(ctx, req.SwapID)
	if err != nil {
		return nil, err
	}

	if rec.State != domain.SwapStatePending {
		observability.RecordOperationError("approve", "not_pending")
		return nil, fmt.Errorf("%w: state is %s", ErrNotPending, rec.State)
	}

	now := e.now().Unix()
	if now > rec.Deadline {
		observability.RecordOperationError("approve", "deadline_passed")
		return nil, ErrDeadlinePassed
	}

	payload := auth.ApprovePayload(rec.ID)
	if err := auth.Verify(rec.PartyA, payload, req.SigA); err != nil {
		observability.RecordOperationError("approve", "unauthorized")
		return nil, fmt.Errorf("party A: %w", err)
	}
	if err := auth.Verify(rec.PartyB, payload, req.SigB); err != nil {
		observability.RecordOperationError("approve", "unauthorized")
		return nil, fmt.Errorf("party B: %w", err)
	}

	if err := e.custodian.settle(ctx, rec); err != nil {
		observability.RecordOperationError("approve", "custody")
		return nil, err
	}

	rec.State = domain.SwapStateCompleted
	rec.UpdatedAt = now
	if err := e.store.Update(ctx, rec); err != nil {
		// Put the funds back so record and custody stay consistent.
		if undoErr := e.custodian.unsettle(ctx, rec); undoErr != nil {
			e.logger.Printf("approve %s: record update failed and unsettle failed: %v", rec.ID, undoErr)
		}
		observability.RecordOperationError("approve", "store")
		return nil, fmt.Errorf("update swap record: %w", err)
	}

	observability.RecordSwapCompleted()
	e.emit(ctx, &domain.SwapEvent{
		SwapID:    rec.ID,
		Kind:      domain.EventSwapCompleted,
		PartyA:    rec.PartyA,
		PartyB:    rec.PartyB,
		AmountA:   rec.AmountA,
		AmountB:   rec.AmountB,
		Deadline:  rec.Deadline,
		Timestamp: now,
	})

	return rec.Clone(), nil
}

// Expire refunds a pending swap whose deadline and grace period both lapsed.
// Permissionless: the only possible effect is returning funds to their
// original depositors.
func (e *Engine) Expire(ctx context.Context, req ExpireRequest) (*domain.SwapRecord, error) {
	unlock := e.lockID(req.SwapID)
	defer unlock()

	rec, err := e.get(ctx, req.SwapID)
	if err != nil {
		return nil, err
	}

	if rec.State != domain.SwapStatePending {
		observability.RecordOperationError("expire", "not_pending")
		return nil, fmt.Errorf("%w: state is %s", ErrNotPending, rec.State)
	}

	now := e.now().Unix()
	if now <= rec.ExpiresAt() {
		observability.RecordOperationError("expire", "grace_not_elapsed")
		return nil, fmt.Errorf("%w: callable after %d", ErrGracePeriodNotElapsed, rec.ExpiresAt())
	}

	if err := e.custodian.refund(ctx, rec); err != nil {
		observability.RecordOperationError("expire", "custody")
		return nil, err
	}

	rec.State = domain.SwapStateExpired
	rec.UpdatedAt = now
	if err := e.store.Update(ctx, rec); err != nil {
		// Re-lock the deposits so record and custody stay consistent.
		if undoErr := e.custodian.lock(ctx, rec); undoErr != nil {
			e.logger.Printf("expire %s: record update failed and re-lock failed: %v", rec.ID, undoErr)
		}
		observability.RecordOperationError("expire", "store")
		return nil, fmt.Errorf("update swap record: %w", err)
	}

	observability.RecordSwapExpired()
	e.emit(ctx, &domain.SwapEvent{
		SwapID:    rec.ID,
		Kind:      domain.EventSwapExpired,
		PartyA:    rec.PartyA,
		PartyB:    rec.PartyB,
		AmountA:   rec.AmountA,
		AmountB:   rec.AmountB,
		Deadline:  rec.Deadline,
		Timestamp: now,
	})

	return rec.Clone(), nil
}

// ExtendDeadline pushes the deadline strictly forward on a still-live
// pending swap. Amounts, custody and grace period are untouched.
func (e *Engine) ExtendDeadline(ctx context.Context, req ExtendDeadlineRequest) (*domain.SwapRecord, error) {
	unlock := e.lockID(req.SwapID)
	defer unlock()

	rec, err := e.get(ctx, req.SwapID)
	if err != nil {
		return nil, err
	}

	if rec.State != domain.SwapStatePending {
		observability.RecordOperationError("extend", "not_pending")
		return nil, fmt.Errorf("%w: state is %s", ErrNotPending, rec.State)
	}

	now := e.now().Unix()
	if now > rec.Deadline {
		observability.RecordOperationError("extend", "deadline_passed")
		return nil, ErrDeadlineAlreadyPassed
	}
	if req.NewDeadline <= rec.Deadline {
		observability.RecordOperationError("extend", "invalid_deadline")
		return nil, ErrInvalidNewDeadline
	}

	if req.Party != rec.PartyA && req.Party != rec.PartyB {
		observability.RecordOperationError("extend", "unauthorized")
		return nil, fmt.Errorf("%w: %s is not a counterparty", auth.ErrUnauthorized, req.Party)
	}
	if err := auth.Verify(req.Party, auth.ExtendPayload(rec.ID, req.NewDeadline), req.Sig); err != nil {
		observability.RecordOperationError("extend", "unauthorized")
		return nil, err
	}

	rec.Deadline = req.NewDeadline
	rec.UpdatedAt = now
	if err := e.store.Update(ctx, rec); err != nil {
		observability.RecordOperationError("extend", "store")
		return nil, fmt.Errorf("update swap record: %w", err)
	}

	observability.RecordDeadlineExtended()
	e.emit(ctx, &domain.SwapEvent{
		SwapID:    rec.ID,
		Kind:      domain.EventDeadlineExtended,
		PartyA:    rec.PartyA,
		PartyB:    rec.PartyB,
		AmountA:   rec.AmountA,
		AmountB:   rec.AmountB,
		Deadline:  req.NewDeadline,
		Timestamp: now,
	})

	return rec.Clone(), nil
}

// Fetch returns a snapshot of the record.
func (e *Engine) Fetch(ctx context.Context, id string) (*domain.SwapRecord, error) {
	return e.get(ctx, id)
}

// FetchByParty returns every swap the address participates in, oldest first.
func (e *Engine) FetchByParty(ctx context.Context, party domain.Address) ([]*domain.SwapRecord, error) {
	recs, err := e.store.GetByParty(ctx, party)
	if err != nil {
		return nil, fmt.Errorf("get swap records by party: %w", err)
	}
	return recs, nil
}

func (e *Engine) get(ctx context.Context, id string) (*domain.SwapRecord, error) {
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get swap record: %w", err)
	}
	return rec, nil
}

func (e *Engine) emit(ctx context.Context, event *domain.SwapEvent) {
	if e.events == nil {
		return
	}
	if err := e.events.Emit(ctx, event); err != nil {
		e.logger.Printf("emit %s for swap %s: %v", event.Kind, event.SwapID, err)
	}
}

func validateInitiate(req InitiateRequest, now int64) error {
	if req.AmountA == 0 || req.AmountB == 0 {
		return ErrInvalidAmount
	}
	// Persistent backends store amounts as signed 64-bit integers.
	if req.AmountA > math.MaxInt64 || req.AmountB > math.MaxInt64 {
		return fmt.Errorf("%w: amount exceeds signed 64-bit range", ErrInvalidAmount)
	}
	if req.Deadline <= now {
		return ErrInvalidDeadline
	}
	if req.GracePeriod < 0 {
		return ErrInvalidGracePeriod
	}
	if req.PartyA == req.PartyB {
		return ErrDuplicateParty
	}
	if err := req.PartyA.Validate(); err != nil {
		return fmt.Errorf("%w: party A: %w", ErrInvalidParty, err)
	}
	if err := req.PartyB.Validate(); err != nil {
		return fmt.Errorf("%w: party B: %w", ErrInvalidParty, err)
	}
	if req.MintA == "" || req.MintB == "" ||
		req.SourceA == "" || req.SourceB == "" ||
		req.DestA == "" || req.DestB == "" {
		return ErrInvalidAccount
	}
	if req.SourceA == req.SourceB {
		return fmt.Errorf("%w: source accounts must differ", ErrInvalidAccount)
	}
	return nil
}
