package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optfolio/optfolio/internal/domain"
)

func storedPosition(id string) domain.Position {
	return domain.Position{
		ID:         id,
		Ticker:     "AAPL",
		Expiration: time.Date(2026, 1, 16, 0, 0, 0, 0, time.UTC),
		Strike:     150,
		Type:       domain.OptionTypeCall,
		Action:     domain.ActionBuy,
		Quantity:   1,
	}
}

func TestPositionStore_CreateAndGet(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, storedPosition("p1")))

	got, err := store.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Ticker)
}

func TestPositionStore_CreateDuplicateRejected(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, storedPosition("p1")))
	err := store.Create(ctx, storedPosition("p1"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPositionStore_Update(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, storedPosition("p1")))

	updated := storedPosition("p1")
	updated.Strike = 160
	require.NoError(t, store.Update(ctx, updated))

	got, err := store.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.InDelta(t, 160.0, got.Strike, 1e-9)
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestPositionStore_UpdateMissing(t *testing.T) {
	store := NewPositionStore()
	err := store.Update(context.Background(), storedPosition("ghost"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPositionStore_Delete(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, storedPosition("p1")))
	require.NoError(t, store.Create(ctx, storedPosition("p2")))

	require.NoError(t, store.Delete(ctx, "p1"))

	_, err := store.GetByID(ctx, "p1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestPositionStore_DeleteMissing(t *testing.T) {
	store := NewPositionStore()
	err := store.Delete(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPositionStore_ListPreservesInsertionOrder(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Create(ctx, storedPosition(fmt.Sprintf("p%d", i))))
	}

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 5)
	for i, p := range list {
		assert.Equal(t, fmt.Sprintf("p%d", i), p.ID)
	}
}

func TestPositionStore_ReplaceAllIsAtomic(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, storedPosition("old")))

	replacement := []domain.Position{storedPosition("a"), storedPosition("b")}
	require.NoError(t, store.ReplaceAll(ctx, replacement))

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "b", list[1].ID)
}

func TestPositionStore_ReplaceAllCopiesInput(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	input := []domain.Position{storedPosition("p1")}
	require.NoError(t, store.ReplaceAll(ctx, input))

	// Mutating the caller's slice must not leak into the store.
	input[0].Ticker = "HACKED"

	got, err := store.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Ticker)
}

func TestPositionStore_SnapshotStableUnderWrites(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, storedPosition("p1")))

	snapshot, err := store.List(ctx)
	require.NoError(t, err)

	require.NoError(t, store.ReplaceAll(ctx, nil))

	// The snapshot taken before the replacement is unaffected by it.
	require.Len(t, snapshot, 1)
	assert.Equal(t, "p1", snapshot[0].ID)
}

func TestPositionStore_ConcurrentReadersAndWriters(t *testing.T) {
	store := NewPositionStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = store.Create(ctx, storedPosition(fmt.Sprintf("w%d", i)))
		}(i)
		go func() {
			defer wg.Done()
			list, err := store.List(ctx)
			assert.NoError(t, err)
			// Readers always see a consistent (possibly stale) list.
			for _, p := range list {
				assert.NotEmpty(t, p.ID)
			}
		}()
	}
	wg.Wait()

	list, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 8)
}
