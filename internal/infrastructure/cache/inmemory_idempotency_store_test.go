package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *InMemoryIdempotencyStore {
	t.Helper()
	store := NewInMemoryIdempotencyStore()
	t.Cleanup(func() { store.Close() })
	return store
}

// mark is a shorthand that fails the test on storage errors.
func mark(t *testing.T, store *InMemoryIdempotencyStore, eventID string, ttl time.Duration) bool {
	t.Helper()
	isNew, err := store.MarkProcessed(context.Background(), eventID, ttl)
	require.NoError(t, err)
	return isNew
}

func TestInMemoryIdempotencyStore_MarkProcessed(t *testing.T) {
	store := newTestStore(t)

	t.Run("marks new event as processed", func(t *testing.T) {
		assert.True(t, mark(t, store, "evt-entry-posted-1", time.Hour), "first mark should report new")
	})

	t.Run("returns false for already processed event", func(t *testing.T) {
		assert.True(t, mark(t, store, "evt-payment-recorded-2", time.Hour))
		assert.False(t, mark(t, store, "evt-payment-recorded-2", time.Hour), "repeat mark should report duplicate")
	})

	t.Run("allows reprocessing after expiration", func(t *testing.T) {
		assert.True(t, mark(t, store, "evt-balance-applied-3", 10*time.Millisecond))

		time.Sleep(20 * time.Millisecond)

		assert.True(t, mark(t, store, "evt-balance-applied-3", 10*time.Millisecond),
			"an expired mark frees the event id")
	})
}

func TestInMemoryIdempotencyStore_IsProcessed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	t.Run("returns false for unprocessed event", func(t *testing.T) {
		processed, err := store.IsProcessed(ctx, "evt-never-seen")
		require.NoError(t, err)
		assert.False(t, processed)
	})

	t.Run("returns true for processed event", func(t *testing.T) {
		mark(t, store, "evt-entry-voided-9", time.Hour)

		processed, err := store.IsProcessed(ctx, "evt-entry-voided-9")
		require.NoError(t, err)
		assert.True(t, processed)
	})

	t.Run("returns false for expired event", func(t *testing.T) {
		mark(t, store, "evt-stale-watermark", 10*time.Millisecond)

		time.Sleep(20 * time.Millisecond)

		processed, err := store.IsProcessed(ctx, "evt-stale-watermark")
		require.NoError(t, err)
		assert.False(t, processed, "expired mark should have lapsed")
	})
}

func TestInMemoryIdempotencyStore_Size(t *testing.T) {
	store := newTestStore(t)

	assert.Equal(t, 0, store.Size(), "empty store should have size 0")

	mark(t, store, "evt-entry-posted-1", time.Hour)
	assert.Equal(t, 1, store.Size())

	mark(t, store, "evt-payment-recorded-2", time.Hour)
	assert.Equal(t, 2, store.Size())

	// duplicate mark keeps the size stable
	mark(t, store, "evt-entry-posted-1", time.Hour)
	assert.Equal(t, 2, store.Size())
}

func TestInMemoryIdempotencyStore_Cleanup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mark(t, store, "evt-due-generated-1", 10*time.Millisecond)
	mark(t, store, "evt-due-generated-2", 10*time.Millisecond)
	mark(t, store, "evt-settle-completed", time.Hour)

	assert.Equal(t, 3, store.Size())

	time.Sleep(20 * time.Millisecond)

	store.cleanup()

	assert.Equal(t, 1, store.Size())

	processed, err := store.IsProcessed(ctx, "evt-settle-completed")
	require.NoError(t, err)
	assert.True(t, processed)

	processed, err = store.IsProcessed(ctx, "evt-due-generated-1")
	require.NoError(t, err)
	assert.False(t, processed)
}

func TestInMemoryIdempotencyStore_ConcurrentAccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const goroutines = 100
	const eventID = "evt-race-entry-posted"

	var wg sync.WaitGroup
	var newCount atomic.Int64

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			isNew, err := store.MarkProcessed(ctx, eventID, time.Hour)
			if err == nil && isNew {
				newCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), newCount.Load(), "exactly one goroutine should mark as new")
}

func TestInMemoryIdempotencyStore_Close(t *testing.T) {
	store := NewInMemoryIdempotencyStore()

	assert.NoError(t, store.Close())
	// Close is idempotent.
	assert.NoError(t, store.Close())
}
