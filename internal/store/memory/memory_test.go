package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perpstack/simcore/internal/domain"
)

func TestSessionStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	_, err := store.GetByID(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)

	rec := domain.SessionRecord{SessionID: "s1", Status: domain.SessionRunning, Model: domain.ModelCrash}
	require.NoError(t, store.Upsert(ctx, rec))

	rec.Status = domain.SessionStopped
	require.NoError(t, store.Upsert(ctx, rec))

	got, err := store.GetByID(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStopped, got.Status)
}

func TestTickStoreLimitsToTail(t *testing.T) {
	ctx := context.Background()
	store := NewTickStore()

	batch := make([]domain.PriceSample, 5)
	for i := range batch {
		batch[i] = domain.PriceSample{
			PriceE6:         int64(1_000_000 + i),
			TimestampMs:     int64(i * 100),
			SourceSessionID: "s1",
		}
	}
	require.NoError(t, store.InsertBatch(ctx, batch))

	got, err := store.ListBySession(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1_000_004), got[1].PriceE6, "tail of the series")

	empty, err := store.ListBySession(ctx, "other", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTradeLogStore(t *testing.T) {
	ctx := context.Background()
	store := NewTradeLogStore()

	require.NoError(t, store.Insert(ctx, domain.TradeRecord{ID: "t1", SessionID: "s1", Success: true}))
	require.NoError(t, store.Insert(ctx, domain.TradeRecord{ID: "t2", SessionID: "s1", Success: false}))

	got, err := store.ListBySession(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "t1", got[0].ID)
}

func TestPriceCacheKeepsLatestPerSession(t *testing.T) {
	ctx := context.Background()
	cache := NewPriceCache()

	_, err := cache.GetLatest(ctx, "s1")
	require.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, cache.SetLatest(ctx, domain.PriceSample{PriceE6: 1, SourceSessionID: "s1"}))
	require.NoError(t, cache.SetLatest(ctx, domain.PriceSample{PriceE6: 2, SourceSessionID: "s1"}))

	got, err := cache.GetLatest(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.PriceE6)
}

func TestSessionLockerExcludesSecondHolder(t *testing.T) {
	ctx := context.Background()
	locker := NewSessionLocker()

	unlock, err := locker.Acquire(ctx, "slot", time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "slot", time.Minute)
	require.ErrorIs(t, err, domain.ErrLockHeld)

	unlock()
	unlock2, err := locker.Acquire(ctx, "slot", time.Minute)
	require.NoError(t, err)
	unlock2()
}
