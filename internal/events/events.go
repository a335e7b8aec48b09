// Package events wires swap event sinks together. The engine emits one
// event per successful transition; sinks persist it, broadcast it, or both.
package events

import (
	"context"
	"fmt"
	"strings"

	"token-swap-escrow/internal/domain"
	"token-swap-escrow/internal/escrow"
	"token-swap-escrow/internal/storage"
)

// StoreSink persists events to a storage.SwapEventStore.
type StoreSink struct {
	store storage.SwapEventStore
}

// NewStoreSink creates a sink over an event store.
func NewStoreSink(store storage.SwapEventStore) *StoreSink {
	return &StoreSink{store: store}
}

// Emit appends the event to the store.
func (s *StoreSink) Emit(ctx context.Context, e *domain.SwapEvent) error {
	if err := s.store.Insert(ctx, e); err != nil {
		return fmt.Errorf("store event: %w", err)
	}
	return nil
}

// Fanout delivers each event to every sink. Delivery is attempted to all
// sinks even when one fails; errors are collected.
type Fanout struct {
	sinks []escrow.EventSink
}

// NewFanout creates a fan-out over the given sinks.
func NewFanout(sinks ...escrow.EventSink) *Fanout {
	return &Fanout{sinks: sinks}
}

// Emit delivers the event to all sinks.
func (f *Fanout) Emit(ctx context.Context, e *domain.SwapEvent) error {
	var errs []string
	for _, sink := range f.sinks {
		if err := sink.Emit(ctx, e); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("emit event %s: %s", e.Kind, strings.Join(errs, "; "))
	}
	return nil
}

// Compile-time interface checks.
var (
	_ escrow.EventSink = (*StoreSink)(nil)
	_ escrow.EventSink = (*Fanout)(nil)
)
