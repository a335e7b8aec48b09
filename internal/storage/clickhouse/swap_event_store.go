package clickhouse

import (
	"context"
	"fmt"

	"token-swap-escrow/internal/domain"
	"token-swap-escrow/internal/storage"
)

// SwapEventStore implements storage.SwapEventStore using ClickHouse. The
// swap_events table is an append-only audit log; events are never updated
// or deleted.
type SwapEventStore struct {
	conn *Conn
}

// NewSwapEventStore creates a new SwapEventStore.
func NewSwapEventStore(conn *Conn) *SwapEventStore {
	return &SwapEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.SwapEventStore = (*SwapEventStore)(nil)

// Insert appends an event.
func (s *SwapEventStore) Insert(ctx context.Context, e *domain.SwapEvent) error {
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO swap_events (
			swap_id, kind, party_a, party_b, amount_a, amount_b, deadline, timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		e.SwapID,
		e.Kind,
		string(e.PartyA),
		string(e.PartyB),
		e.AmountA,
		e.AmountB,
		e.Deadline,
		e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetBySwapID retrieves all events for a swap, ordered by timestamp ASC.
func (s *SwapEventStore) GetBySwapID(ctx context.Context, swapID string) ([]*domain.SwapEvent, error) {
	query := `
		SELECT swap_id, kind, party_a, party_b, amount_a, amount_b, deadline, timestamp
		FROM swap_events
		WHERE swap_id = ?
		ORDER BY timestamp ASC
	`

	rows, err := s.conn.Query(ctx, query, swapID)
	if err != nil {
		return nil, fmt.Errorf("get swap events: %w", err)
	}
	defer rows.Close()

	var events []*domain.SwapEvent
	for rows.Next() {
		var (
			e              domain.SwapEvent
			partyA, partyB string
		)
		err := rows.Scan(
			&e.SwapID,
			&e.Kind,
			&partyA,
			&partyB,
			&e.AmountA,
			&e.AmountB,
			&e.Deadline,
			&e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan swap event row: %w", err)
		}
		e.PartyA = domain.Address(partyA)
		e.PartyB = domain.Address(partyB)
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swap event rows: %w", err)
	}

	return events, nil
}
