package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-swap-escrow/internal/domain"
	"token-swap-escrow/internal/storage"
	"token-swap-escrow/internal/storage/postgres"
)

func testSwapRecord(id string, createdAt int64) *domain.SwapRecord {
	return &domain.SwapRecord{
		ID:          id,
		PartyA:      domain.Address("party-a"),
		PartyB:      domain.Address("party-b"),
		MintA:       "mint-a",
		MintB:       "mint-b",
		AmountA:     100000,
		AmountB:     200000,
		SourceA:     "source-a",
		SourceB:     "source-b",
		DestA:       "dest-a",
		DestB:       "dest-b",
		CustodyA:    "custody-a-" + id,
		CustodyB:    "custody-b-" + id,
		Deadline:    createdAt + 86400,
		GracePeriod: 3600,
		State:       domain.SwapStatePending,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

func TestSwapStore_CreateAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewSwapStore(pool)
	ctx := context.Background()

	rec := testSwapRecord("swap-1", 1000)
	require.NoError(t, store.Create(ctx, rec))

	got, err := store.Get(ctx, "swap-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestSwapStore_Create_Duplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewSwapStore(pool)
	ctx := context.Background()

	rec := testSwapRecord("swap-1", 1000)
	require.NoError(t, store.Create(ctx, rec))

	err := store.Create(ctx, rec)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestSwapStore_Get_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewSwapStore(pool)

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSwapStore_Update(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewSwapStore(pool)
	ctx := context.Background()

	rec := testSwapRecord("swap-1", 1000)
	require.NoError(t, store.Create(ctx, rec))

	rec.State = domain.SwapStateCompleted
	rec.Deadline += 1000
	rec.UpdatedAt = 2000
	require.NoError(t, store.Update(ctx, rec))

	got, err := store.Get(ctx, "swap-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SwapStateCompleted, got.State)
	assert.Equal(t, rec.Deadline, got.Deadline)
	assert.Equal(t, int64(2000), got.UpdatedAt)
}

func TestSwapStore_Update_NotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewSwapStore(pool)

	err := store.Update(context.Background(), testSwapRecord("missing", 1000))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSwapStore_GetByParty(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewSwapStore(pool)
	ctx := context.Background()

	first := testSwapRecord("swap-1", 1000)
	second := testSwapRecord("swap-2", 2000)
	second.PartyA = domain.Address("other")
	second.PartyB = domain.Address("party-a") // same address, B side
	third := testSwapRecord("swap-3", 3000)
	third.PartyA = domain.Address("unrelated-1")
	third.PartyB = domain.Address("unrelated-2")

	require.NoError(t, store.Create(ctx, first))
	require.NoError(t, store.Create(ctx, second))
	require.NoError(t, store.Create(ctx, third))

	got, err := store.GetByParty(ctx, domain.Address("party-a"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "swap-1", got[0].ID)
	assert.Equal(t, "swap-2", got[1].ID)

	empty, err := store.GetByParty(ctx, domain.Address("nobody"))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSwapStore_GetLapsed(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewSwapStore(pool)
	ctx := context.Background()

	// Lapses at 1000+86400+3600 = 90000.
	lapsed := testSwapRecord("swap-lapsed", 1000)
	// Lapses at 91000; still inside its window at asOf 90001.
	live := testSwapRecord("swap-live", 2000)
	// Past its window but already terminal.
	done := testSwapRecord("swap-done", 1000)
	done.State = domain.SwapStateCompleted

	require.NoError(t, store.Create(ctx, lapsed))
	require.NoError(t, store.Create(ctx, live))
	require.NoError(t, store.Create(ctx, done))

	got, err := store.GetLapsed(ctx, 90001)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "swap-lapsed", got[0].ID)

	// The boundary instant itself is not lapsed.
	got, err = store.GetLapsed(ctx, 90000)
	require.NoError(t, err)
	assert.Empty(t, got)
}
