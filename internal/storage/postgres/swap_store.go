package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"token-swap-escrow/internal/domain"
	"token-swap-escrow/internal/storage"
)

// SwapStore implements storage.SwapStore using PostgreSQL.
type SwapStore struct {
	pool *Pool
}

// NewSwapStore creates a new SwapStore.
func NewSwapStore(pool *Pool) *SwapStore {
	return &SwapStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SwapStore = (*SwapStore)(nil)

const swapColumns = `
	id, party_a, party_b, mint_a, mint_b, amount_a, amount_b,
	source_a, source_b, dest_a, dest_b, custody_a, custody_b,
	deadline, grace_period, state, created_at, updated_at
`

// Create adds a new swap record. Returns ErrDuplicateKey if the id exists.
func (s *SwapStore) Create(ctx context.Context, rec *domain.SwapRecord) error {
	query := `
		INSERT INTO swaps (` + swapColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := s.pool.Exec(ctx, query,
		rec.ID,
		string(rec.PartyA),
		string(rec.PartyB),
		rec.MintA,
		rec.MintB,
		int64(rec.AmountA),
		int64(rec.AmountB),
		rec.SourceA,
		rec.SourceB,
		rec.DestA,
		rec.DestB,
		rec.CustodyA,
		rec.CustodyB,
		rec.Deadline,
		rec.GracePeriod,
		rec.State,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert swap record: %w", err)
	}
	return nil
}

// Get retrieves a record by id. Returns ErrNotFound if not exists.
func (s *SwapStore) Get(ctx context.Context, id string) (*domain.SwapRecord, error) {
	query := `SELECT ` + swapColumns + ` FROM swaps WHERE id = $1`

	row := s.pool.QueryRow(ctx, query, id)
	rec, err := scanSwapRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get swap record: %w", err)
	}
	return rec, nil
}

// Update overwrites an existing record in place. Returns ErrNotFound if the
// id does not exist.
func (s *SwapStore) Update(ctx context.Context, rec *domain.SwapRecord) error {
	query := `
		UPDATE swaps
		SET deadline = $2, grace_period = $3, state = $4, updated_at = $5
		WHERE id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		rec.ID,
		rec.Deadline,
		rec.GracePeriod,
		rec.State,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update swap record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByParty retrieves all records where the address is party A or party B,
// ordered by creation time ASC.
func (s *SwapStore) GetByParty(ctx context.Context, party domain.Address) ([]*domain.SwapRecord, error) {
	query := `
		SELECT ` + swapColumns + `
		FROM swaps
		WHERE party_a = $1 OR party_b = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, string(party))
	if err != nil {
		return nil, fmt.Errorf("get swap records by party: %w", err)
	}
	defer rows.Close()

	return scanSwapRecords(rows)
}

// GetLapsed retrieves pending records whose deadline plus grace period lies
// strictly before asOf, ordered by creation time ASC.
func (s *SwapStore) GetLapsed(ctx context.Context, asOf int64) ([]*domain.SwapRecord, error) {
	query := `
		SELECT ` + swapColumns + `
		FROM swaps
		WHERE state = $1 AND deadline + grace_period < $2
		ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, domain.SwapStatePending, asOf)
	if err != nil {
		return nil, fmt.Errorf("get lapsed swap records: %w", err)
	}
	defer rows.Close()

	return scanSwapRecords(rows)
}

// scanSwapRecord scans a single row into a SwapRecord.
func scanSwapRecord(row pgx.Row) (*domain.SwapRecord, error) {
	var (
		rec              domain.SwapRecord
		partyA, partyB   string
		amountA, amountB int64
	)

	err := row.Scan(
		&rec.ID,
		&partyA,
		&partyB,
		&rec.MintA,
		&rec.MintB,
		&amountA,
		&amountB,
		&rec.SourceA,
		&rec.SourceB,
		&rec.DestA,
		&rec.DestB,
		&rec.CustodyA,
		&rec.CustodyB,
		&rec.Deadline,
		&rec.GracePeriod,
		&rec.State,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.PartyA = domain.Address(partyA)
	rec.PartyB = domain.Address(partyB)
	rec.AmountA = uint64(amountA)
	rec.AmountB = uint64(amountB)
	return &rec, nil
}

// scanSwapRecords scans multiple rows into a slice of SwapRecord.
func scanSwapRecords(rows pgx.Rows) ([]*domain.SwapRecord, error) {
	var recs []*domain.SwapRecord

	for rows.Next() {
		rec, err := scanSwapRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan swap row: %w", err)
		}
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate swap rows: %w", err)
	}

	return recs, nil
}
