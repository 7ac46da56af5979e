package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAvailabilityCache(t *testing.T) {
	cache := NewMemoryAvailabilityCache(time.Minute)
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, cache.SetDay(ctx, testSnapshot(1, day)))
	require.NoError(t, cache.SetDay(ctx, testSnapshot(1, day.AddDate(0, 0, 1))))
	require.NoError(t, cache.SetDay(ctx, testSnapshot(2, day)))

	got, err := cache.GetDay(ctx, 1, day)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1), got.VenueID)

	require.NoError(t, cache.InvalidateDay(ctx, 1, day))
	got, _ = cache.GetDay(ctx, 1, day)
	assert.Nil(t, got)

	require.NoError(t, cache.InvalidateVenue(ctx, 1))
	got, _ = cache.GetDay(ctx, 1, day.AddDate(0, 0, 1))
	assert.Nil(t, got)
	got, _ = cache.GetDay(ctx, 2, day)
	assert.NotNil(t, got)

	now = now.Add(2 * time.Minute)
	got, _ = cache.GetDay(ctx, 2, day)
	assert.Nil(t, got, "entry past its ttl is a miss")
}

func TestMemorySlotLocker(t *testing.T) {
	locker := NewMemorySlotLocker()
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	locker.now = func() time.Time { return now }
	ctx := context.Background()

	token, ok, err := locker.Acquire(ctx, "k", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = locker.Acquire(ctx, "k", 30*time.Second)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "k", "wrong"))
	_, ok, _ = locker.Acquire(ctx, "k", 30*time.Second)
	assert.False(t, ok)

	require.NoError(t, locker.Release(ctx, "k", token))
	_, ok, _ = locker.Acquire(ctx, "k", 30*time.Second)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok, _ = locker.Acquire(ctx, "k", 30*time.Second)
	assert.True(t, ok, "expired hold is replaced")
}

func TestMemorySlotLocker_Concurrent(t *testing.T) {
	locker := NewMemorySlotLocker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := locker.Acquire(ctx, "slot", time.Minute); ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}
