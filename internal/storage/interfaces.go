package storage

import (
	"context"

	"token-swap-escrow/internal/domain"
)

// SwapStore provides durable keyed storage of swap records, addressed by id.
// Records are created once, mutated in place, and never deleted: terminal
// records remain for audit and query.
type SwapStore interface {
	// Create adds a new swap record. Returns ErrDuplicateKey if the id exists.
	Create(ctx context.Context, rec *domain.SwapRecord) error

	// Get retrieves a record by id. Returns ErrNotFound if not exists.
	Get(ctx context.Context, id string) (*domain.SwapRecord, error)

	// Update overwrites an existing record in place. Returns ErrNotFound
	// if the id does not exist.
	Update(ctx context.Context, rec *domain.SwapRecord) error

	// GetByParty retrieves all records where the address is party A or
	// party B, ordered by creation time ASC.
	GetByParty(ctx context.Context, party domain.Address) ([]*domain.SwapRecord, error)

	// GetLapsed retrieves pending records whose deadline plus grace period
	// lies strictly before asOf, ordered by creation time ASC. Used by the
	// sweep command to expire abandoned swaps.
	GetLapsed(ctx context.Context, asOf int64) ([]*domain.SwapRecord, error)
}

// SwapEventStore provides access to the append-only swap event audit log.
type SwapEventStore interface {
	// Insert appends an event.
	Insert(ctx context.Context, e *domain.SwapEvent) error

	// GetBySwapID retrieves all events for a swap, ordered by timestamp ASC.
	GetBySwapID(ctx context.Context, swapID string) ([]*domain.SwapEvent, error)
}
