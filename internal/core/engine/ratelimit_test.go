package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterWindowInvariant(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(RateLimitConfig{MaxRequests: 3, Window: time.Minute})
	limiter.Clock = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		require.True(t, limiter.TryAcquire("opensea"))
	}
	require.False(t, limiter.TryAcquire("opensea"))
	require.Equal(t, 3, limiter.InWindow("opensea"))

	// The oldest admission ages out exactly one window later.
	now = now.Add(time.Minute + time.Millisecond)
	require.True(t, limiter.TryAcquire("opensea"))
}

func TestRateLimiterPerServiceIsolation(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(RateLimitConfig{MaxRequests: 1, Window: time.Minute})
	limiter.Clock = func() time.Time { return now }

	require.True(t, limiter.TryAcquire("opensea"))
	require.False(t, limiter.TryAcquire("opensea"))

	// A saturated service never blocks another one.
	require.True(t, limiter.TryAcquire("blur"))
}

func TestRateLimiterWaitTime(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(RateLimitConfig{MaxRequests: 1, Window: time.Minute})
	limiter.Clock = func() time.Time { return now }

	require.Equal(t, time.Duration(0), limiter.WaitTime("opensea"))

	require.True(t, limiter.TryAcquire("opensea"))
	require.Equal(t, time.Minute, limiter.WaitTime("opensea"))

	now = now.Add(40 * time.Second)
	require.Equal(t, 20*time.Second, limiter.WaitTime("opensea"))
}

func TestRateLimiterSetLimitReinterpretsWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(RateLimitConfig{MaxRequests: 1, Window: time.Hour})
	limiter.Clock = func() time.Time { return now }

	require.True(t, limiter.TryAcquire("opensea"))
	require.False(t, limiter.TryAcquire("opensea"))

	// Narrowing the window ages the recorded admission out immediately.
	limiter.SetLimit("opensea", RateLimitConfig{MaxRequests: 1, Window: time.Second})
	now = now.Add(2 * time.Second)
	require.True(t, limiter.TryAcquire("opensea"))

	require.Equal(t, RateLimitConfig{MaxRequests: 1, Window: time.Second}, limiter.Limit("opensea"))
	require.Contains(t, limiter.Configs(), "opensea")
}

func TestRateLimiterAcquireBlocksUntilSlotFrees(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{MaxRequests: 1, Window: 50 * time.Millisecond})

	require.NoError(t, limiter.Acquire(context.Background(), "opensea"))

	start := time.Now()
	require.NoError(t, limiter.Acquire(context.Background(), "opensea"))
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestRateLimiterAcquireFIFO(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{MaxRequests: 1, Window: 20 * time.Millisecond})
	require.NoError(t, limiter.Acquire(context.Background(), "opensea"))

	var (
		mu    sync.Mutex
		order []int
		wg    sync.WaitGroup
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			// Stagger arrival so queue order is deterministic.
			time.Sleep(time.Duration(idx) * 10 * time.Millisecond)
			require.NoError(t, limiter.Acquire(context.Background(), "opensea"))
			mu.Lock()
			order = append(order, idx)
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	require.Equal(t, []int{0, 1, 2, 3}, order)
}

func TestRateLimiterAcquireHonorsContext(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{MaxRequests: 1, Window: time.Hour})
	require.NoError(t, limiter.Acquire(context.Background(), "opensea"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := limiter.Acquire(ctx, "opensea")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimiterTryAcquireYieldsToWaiters(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{MaxRequests: 1, Window: 80 * time.Millisecond})
	require.True(t, limiter.TryAcquire("opensea"))

	acquired := make(chan struct{})
	go func() {
		_ = limiter.Acquire(context.Background(), "opensea")
		close(acquired)
	}()

	// Give the waiter time to enqueue, then verify TryAcquire does not
	// jump the queue even once a slot frees.
	time.Sleep(20 * time.Millisecond)
	require.False(t, limiter.TryAcquire("opensea"))

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("queued waiter was never admitted")
	}
}

func TestRateLimiterReset(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(RateLimitConfig{MaxRequests: 1, Window: time.Hour})
	limiter.Clock = func() time.Time { return now }

	require.True(t, limiter.TryAcquire("opensea"))
	require.True(t, limiter.TryAcquire("blur"))
	require.False(t, limiter.TryAcquire("opensea"))

	limiter.Reset("opensea")
	require.True(t, limiter.TryAcquire("opensea"))

	limiter.ResetAll()
	require.Equal(t, 0, limiter.InWindow("opensea"))
	require.Equal(t, 0, limiter.InWindow("blur"))

	require.ElementsMatch(t, []string{"opensea", "blur"}, limiter.Services())
}

func TestWaitTimeConsistentWithQueuedWaiters(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{MaxRequests: 1, Window: time.Hour})

	// A queued waiter with an empty admission log is the state Reset leaves
	// behind before the head waiter wakes. A new request still yields to the
	// queue, so WaitTime must agree with TryAcquire refusing admission.
	w := limiter.window("opensea")
	w.mu.Lock()
	w.waiters = append(w.waiters, &waiter{ready: make(chan struct{}, 1)})
	w.mu.Unlock()

	require.False(t, limiter.TryAcquire("opensea"))
	require.Positive(t, limiter.WaitTime("opensea"))

	w.mu.Lock()
	w.waiters = nil
	w.mu.Unlock()

	require.Zero(t, limiter.WaitTime("opensea"))
	require.True(t, limiter.TryAcquire("opensea"))
}
