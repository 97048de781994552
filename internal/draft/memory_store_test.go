package draft

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/go_till/internal/clock"
	"github.com/fjod/go_till/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *MemoryStore {
	return NewMemoryStore(clock.NewFixed(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)))
}

func TestMemoryStore_SaveAndLoad(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	saved, err := store.Save(ctx, Draft{
		Title:       "table 4",
		CustomerRef: "walk-in",
		Snapshot:    []byte(`{"lines":[]}`),
		Total:       1250,
	})
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	loaded, err := store.Load(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved, loaded)
}

func TestMemoryStore_UpsertByReference(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	first, err := store.Save(ctx, Draft{Reference: "table-4", Title: "table 4", Total: 100})
	require.NoError(t, err)

	second, err := store.Save(ctx, Draft{Reference: "table-4", Title: "table 4 updated", Total: 350})
	require.NoError(t, err)

	// same draft, not a new one
	assert.Equal(t, first.ID, second.ID)

	summaries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "table 4 updated", summaries[0].Title)
	assert.Equal(t, domain.Money(350), summaries[0].Total)
}

func TestMemoryStore_NoReferenceAlwaysCreates(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	a, err := store.Save(ctx, Draft{Title: "a"})
	require.NoError(t, err)
	b, err := store.Save(ctx, Draft{Title: "b"})
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestMemoryStore_LoadKeepsDraft(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	saved, err := store.Save(ctx, Draft{Title: "parked"})
	require.NoError(t, err)

	_, err = store.Load(ctx, saved.ID)
	require.NoError(t, err)

	// loading is not consuming
	_, err = store.Load(ctx, saved.ID)
	require.NoError(t, err)
}

func TestMemoryStore_Discard(t *testing.T) {
	store := newTestStore()
	ctx := context.Background()

	saved, err := store.Save(ctx, Draft{Title: "parked"})
	require.NoError(t, err)

	require.NoError(t, store.Discard(ctx, saved.ID))
	_, err = store.Load(ctx, saved.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.ErrorIs(t, store.Discard(ctx, saved.ID), domain.ErrNotFound)
	assert.ErrorIs(t, store.Discard(ctx, "missing"), domain.ErrNotFound)
}
