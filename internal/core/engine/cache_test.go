package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCacheSetGet(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache := NewCache[string](time.Minute)
	cache.Clock = func() time.Time { return now }

	cache.Set("floor", "0.42", 0)

	value, ok := cache.Get("floor")
	require.True(t, ok)
	require.Equal(t, "0.42", value)
	require.True(t, cache.Has("floor"))

	_, ok = cache.Get("missing")
	require.False(t, ok)
}

func TestCacheLazyExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache := NewCache[int](time.Minute)
	cache.Clock = func() time.Time { return now }

	cache.Set("a", 1, 30*time.Second)
	cache.Set("b", 2, 0) // default TTL

	now = now.Add(31 * time.Second)
	_, ok := cache.Get("a")
	require.False(t, ok)

	value, ok := cache.Get("b")
	require.True(t, ok)
	require.Equal(t, 2, value)

	// Entry lives up to and including its expiry instant.
	cache.Set("edge", 3, 10*time.Second)
	now = now.Add(10 * time.Second)
	_, ok = cache.Get("edge")
	require.True(t, ok)
}

func TestCacheSizeSweeps(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache := NewCache[int](time.Minute)
	cache.Clock = func() time.Time { return now }

	cache.Set("a", 1, 10*time.Second)
	cache.Set("b", 2, time.Hour)
	require.Equal(t, 2, cache.Size())

	now = now.Add(time.Minute)
	require.Equal(t, 1, cache.Size())
}

func TestCacheDeleteAndClear(t *testing.T) {
	cache := NewCache[int](time.Minute)
	cache.Set("a", 1, 0)
	cache.Set("b", 2, 0)

	cache.Delete("a")
	require.False(t, cache.Has("a"))
	require.True(t, cache.Has("b"))

	cache.Clear()
	require.Equal(t, 0, cache.Size())
}

func TestCacheGetOrSetCachesResult(t *testing.T) {
	cache := NewCache[string](time.Minute)

	calls := 0
	factory := func(ctx context.Context) (string, error) {
		calls++
		return "value", nil
	}

	value, err := cache.GetOrSet(context.Background(), "k", factory, 0)
	require.NoError(t, err)
	require.Equal(t, "value", value)

	value, err = cache.GetOrSet(context.Background(), "k", factory, 0)
	require.NoError(t, err)
	require.Equal(t, "value", value)
	require.Equal(t, 1, calls)
}

func TestCacheGetOrSetErrorNotCached(t *testing.T) {
	cache := NewCache[string](time.Minute)

	boom := errors.New("upstream down")
	calls := 0

	_, err := cache.GetOrSet(context.Background(), "k", func(ctx context.Context) (string, error) {
		calls++
		return "", boom
	}, 0)
	require.ErrorIs(t, err, boom)
	require.False(t, cache.Has("k"))

	value, err := cache.GetOrSet(context.Background(), "k", func(ctx context.Context) (string, error) {
		calls++
		return "recovered", nil
	}, 0)
	require.NoError(t, err)
	require.Equal(t, "recovered", value)
	require.Equal(t, 2, calls)
}

func TestCacheGetOrSetSingleFlight(t *testing.T) {
	cache := NewCache[string](time.Minute)

	var calls atomic.Int64
	release := make(chan struct{})
	factory := func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			value, err := cache.GetOrSet(context.Background(), "k", factory, 0)
			require.NoError(t, err)
			results[idx] = value
		}(i)
	}

	// Let every goroutine reach the cache before the factory returns.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int64(1), calls.Load())
	for _, value := range results {
		require.Equal(t, "shared", value)
	}
}

func TestCacheGetOrSetWaiterHonorsContext(t *testing.T) {
	cache := NewCache[string](time.Minute)

	release := make(chan struct{})
	go func() {
		_, _ = cache.GetOrSet(context.Background(), "k", func(ctx context.Context) (string, error) {
			<-release
			return "late", nil
		}, 0)
	}()

	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := cache.GetOrSet(ctx, "k", func(ctx context.Context) (string, error) {
		return "unused", nil
	}, 0)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
}
