package events

import (
	"context"
	"errors"
	"testing"

	"token-swap-escrow/internal/domain"
	storemem "token-swap-escrow/internal/storage/memory"
)

type failingSink struct {
	err error
}

func (s failingSink) Emit(context.Context, *domain.SwapEvent) error {
	return s.err
}

type countingSink struct {
	n int
}

func (s *countingSink) Emit(context.Context, *domain.SwapEvent) error {
	s.n++
	return nil
}

func testEvent() *domain.SwapEvent {
	return &domain.SwapEvent{
		SwapID:    "swap-1",
		Kind:      domain.EventSwapInitiated,
		Timestamp: 1000,
	}
}

func TestStoreSink(t *testing.T) {
	store := storemem.NewSwapEventStore()
	sink := NewStoreSink(store)
	ctx := context.Background()

	if err := sink.Emit(ctx, testEvent()); err != nil {
		t.Fatalf("emit: %v", err)
	}

	got, err := store.GetBySwapID(ctx, "swap-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 || got[0].Kind != domain.EventSwapInitiated {
		t.Fatalf("stored events = %+v", got)
	}
}

func TestFanout_DeliversToAllSinks(t *testing.T) {
	first := &countingSink{}
	second := &countingSink{}
	fanout := NewFanout(first, second)

	if err := fanout.Emit(context.Background(), testEvent()); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if first.n != 1 || second.n != 1 {
		t.Fatalf("deliveries = %d, %d; want 1, 1", first.n, second.n)
	}
}

func TestFanout_FailureDoesNotStopDelivery(t *testing.T) {
	boom := errors.New("sink down")
	counting := &countingSink{}
	fanout := NewFanout(failingSink{err: boom}, counting)

	err := fanout.Emit(context.Background(), testEvent())
	if err == nil {
		t.Fatal("expected an error")
	}
	if counting.n != 1 {
		t.Fatalf("later sink deliveries = %d, want 1", counting.n)
	}
}
