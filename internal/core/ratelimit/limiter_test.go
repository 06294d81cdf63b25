package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a mutable time source for deterministic window tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestCheckAndConsume_SixthRequestRejected(t *testing.T) {
	clock := newFakeClock()
	limiter := New(5, 5*time.Minute, WithClock(clock.Now))

	for i := 0; i < 5; i++ {
		result := limiter.CheckAndConsume("10.0.0.1")
		assert.True(t, result.Allowed, "request %d should be admitted", i+1)
	}

	result := limiter.CheckAndConsume("10.0.0.1")
	assert.False(t, result.Allowed)
	assert.GreaterOrEqual(t, result.RetryAfterSeconds, 1)
	assert.LessOrEqual(t, result.RetryAfterSeconds, 300)
}

func TestCheckAndConsume_WindowResets(t *testing.T) {
	clock := newFakeClock()
	limiter := New(3, 10*time.Minute, WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		require.True(t, limiter.CheckAndConsume("client").Allowed)
	}
	require.False(t, limiter.CheckAndConsume("client").Allowed)

	// Past resetAt the next request starts a fresh window with count=1.
	clock.Advance(10*time.Minute + time.Second)

	assert.True(t, limiter.CheckAndConsume("client").Allowed)
	assert.True(t, limiter.CheckAndConsume("client").Allowed)
	assert.True(t, limiter.CheckAndConsume("client").Allowed)
	assert.False(t, limiter.CheckAndConsume("client").Allowed)
}

func TestCheckAndConsume_RetryAfterFlooredAtOne(t *testing.T) {
	clock := newFakeClock()
	limiter := New(1, 500*time.Millisecond, WithClock(clock.Now))

	require.True(t, limiter.CheckAndConsume("k").Allowed)

	result := limiter.CheckAndConsume("k")
	require.False(t, result.Allowed)
	assert.Equal(t, 1, result.RetryAfterSeconds)
}

func TestCheckAndConsume_KeysAreIndependent(t *testing.T) {
	clock := newFakeClock()
	limiter := New(1, time.Minute, WithClock(clock.Now))

	assert.True(t, limiter.CheckAndConsume("a").Allowed)
	assert.False(t, limiter.CheckAndConsume("a").Allowed)
	assert.True(t, limiter.CheckAndConsume("b").Allowed)
}

func TestCheckAndConsume_ConcurrentSingleKey(t *testing.T) {
	limiter := New(50, time.Minute)

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if limiter.CheckAndConsume("shared").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Exactly the limit is admitted; races that double-admit are a defect.
	assert.Equal(t, 50, allowed)
}

func TestSweep_RemovesExpiredEntries(t *testing.T) {
	clock := newFakeClock()
	limiter := New(5, time.Minute, WithClock(clock.Now))

	limiter.CheckAndConsume("old")
	clock.Advance(30 * time.Second)
	limiter.CheckAndConsume("young")
	require.Equal(t, 2, limiter.Len())

	clock.Advance(31 * time.Second) // "old" expired, "young" still live
	limiter.Sweep()

	assert.Equal(t, 1, limiter.Len())

	// The surviving key keeps its window state.
	require.True(t, limiter.CheckAndConsume("young").Allowed)
	assert.Equal(t, 1, limiter.Len())
}

func TestStartSweeper_StopsOnCancel(t *testing.T) {
	limiter := New(1, time.Nanosecond)
	limiter.CheckAndConsume("gone")

	ctx, cancel := context.WithCancel(context.Background())
	limiter.StartSweeper(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool { return limiter.Len() == 0 },
		time.Second, 5*time.Millisecond)

	cancel()
}
