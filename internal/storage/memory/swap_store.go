package memory

import (
	"context"
	"sort"
	"sync"

	"token-swap-escrow/internal/domain"
	"token-swap-escrow/internal/storage"
)

// SwapStore is an in-memory implementation of storage.SwapStore.
type SwapStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SwapRecord // keyed by swap id
}

// NewSwapStore creates a new in-memory swap store.
func NewSwapStore() *SwapStore {
	return &SwapStore{
		data: make(map[string]*domain.SwapRecord),
	}
}

// Create adds a new swap record. Returns ErrDuplicateKey if the id exists.
func (s *SwapStore) Create(_ context.Context, rec *domain.SwapRecord) error {
	if rec == nil || rec.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[rec.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[rec.ID] = rec.Clone()
	return nil
}

// Get retrieves a record by id. Returns ErrNotFound if not exists.
func (s *SwapStore) Get(_ context.Context, id string) (*domain.SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.data[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return rec.Clone(), nil
}

// Update overwrites an existing record in place.
func (s *SwapStore) Update(_ context.Context, rec *domain.SwapRecord) error {
	if rec == nil || rec.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[rec.ID]; !exists {
		return storage.ErrNotFound
	}

	s.data[rec.ID] = rec.Clone()
	return nil
}

// GetByParty retrieves all records involving the address, ordered by
// creation time ASC.
func (s *SwapStore) GetByParty(_ context.Context, party domain.Address) ([]*domain.SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SwapRecord
	for _, rec := range s.data {
		if rec.PartyA == party || rec.PartyB == party {
			result = append(result, rec.Clone())
		}
	}

	sortByCreatedAt(result)
	return result, nil
}

// GetLapsed retrieves pending records with deadline+grace strictly before asOf.
func (s *SwapStore) GetLapsed(_ context.Context, asOf int64) ([]*domain.SwapRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SwapRecord
	for _, rec := range s.data {
		if rec.State == domain.SwapStatePending && rec.ExpiresAt() < asOf {
			result = append(result, rec.Clone())
		}
	}

	sortByCreatedAt(result)
	return result, nil
}

func sortByCreatedAt(recs []*domain.SwapRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CreatedAt != recs[j].CreatedAt {
			return recs[i].CreatedAt < recs[j].CreatedAt
		}
		return recs[i].ID < recs[j].ID
	})
}

var _ storage.SwapStore = (*SwapStore)(nil)
