package memory

import (
	"context"
	"sort"
	"sync"

	"token-swap-escrow/internal/domain"
	"token-swap-escrow/internal/storage"
)

// SwapEventStore is an in-memory implementation of storage.SwapEventStore.
type SwapEventStore struct {
	mu     sync.RWMutex
	events []*domain.SwapEvent
}

// NewSwapEventStore creates a new in-memory event store.
func NewSwapEventStore() *SwapEventStore {
	return &SwapEventStore{}
}

// Insert appends an event.
func (s *SwapEventStore) Insert(_ context.Context, e *domain.SwapEvent) error {
	if e == nil || e.SwapID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	s.events = append(s.events, &cp)
	return nil
}

// GetBySwapID retrieves all events for a swap, ordered by timestamp ASC.
func (s *SwapEventStore) GetBySwapID(_ context.Context, swapID string) ([]*domain.SwapEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SwapEvent
	for _, e := range s.events {
		if e.SwapID == swapID {
			cp := *e
			result = append(result, &cp)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})

	return result, nil
}

var _ storage.SwapEventStore = (*SwapEventStore)(nil)
