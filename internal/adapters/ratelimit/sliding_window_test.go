package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

func newLimiter(maxRequests int, window time.Duration) (*SlidingWindow, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
	return NewSlidingWindow(SlidingWindowOptions{MaxRequests: maxRequests, Window: window, Now: clock.Now}), clock
}

func TestAllowOnePerMinute(t *testing.T) {
	l, clock := newLimiter(1, 60*time.Second)
	ctx := context.Background()

	d, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	clock.Advance(500 * time.Millisecond)
	d, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.Equal(t, 59500*time.Millisecond, d.RetryAfter)
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newLimiter(1, time.Minute)
	ctx := context.Background()

	a, _ := l.Allow(ctx, "a")
	b, _ := l.Allow(ctx, "b")
	assert.True(t, a.Allowed)
	assert.True(t, b.Allowed)
}

func TestWindowSlides(t *testing.T) {
	l, clock := newLimiter(2, 10*time.Second)
	ctx := context.Background()

	for range 2 {
		d, _ := l.Allow(ctx, "k")
		require.True(t, d.Allowed)
		clock.Advance(4 * time.Second)
	}
	d, _ := l.Allow(ctx, "k")
	assert.False(t, d.Allowed)
	assert.Equal(t, 2*time.Second, d.RetryAfter)

	clock.Advance(2*time.Second + time.Millisecond)
	d, _ = l.Allow(ctx, "k")
	assert.True(t, d.Allowed, "oldest hit left the window")
}

func TestDeniedCallsAreNotRecorded(t *testing.T) {
	l, clock := newLimiter(1, 10*time.Second)
	ctx := context.Background()

	_, _ = l.Allow(ctx, "k")
	for range 5 {
		clock.Advance(time.Second)
		d, _ := l.Allow(ctx, "k")
		require.False(t, d.Allowed)
	}
	clock.Advance(5*time.Second + time.Millisecond)
	d, _ := l.Allow(ctx, "k")
	assert.True(t, d.Allowed)
}

func TestSweepDropsExpiredBuckets(t *testing.T) {
	l, clock := newLimiter(5, time.Second)
	ctx := context.Background()

	for i := range 10 {
		_, _ = l.Allow(ctx, fmt.Sprintf("client-%d", i))
	}
	require.Equal(t, 10, l.Len())

	clock.Advance(500 * time.Millisecond)
	_, _ = l.Allow(ctx, "fresh")
	clock.Advance(600 * time.Millisecond)

	assert.Equal(t, 10, l.Sweep())
	assert.Equal(t, 1, l.Len())
}

func TestConcurrentAllowNeverExceedsMax(t *testing.T) {
	l := NewSlidingWindow(SlidingWindowOptions{MaxRequests: 20, Window: time.Hour})
	ctx := context.Background()

	var (
		mu      sync.Mutex
		allowed int
		wg      sync.WaitGroup
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := l.Allow(ctx, "shared")
			if err == nil && d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, allowed)
}

func TestRunStopsOnCancel(t *testing.T) {
	l := NewSlidingWindow(SlidingWindowOptions{MaxRequests: 1, Window: time.Second, SweepInterval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNonPositiveMaxAllowsEverything(t *testing.T) {
	for _, maxRequests := range []int{0, -3} {
		l, clock := newLimiter(maxRequests, time.Minute)
		for i := 0; i < 5; i++ {
			d, err := l.Allow(context.Background(), "k")
			require.NoError(t, err)
			assert.True(t, d.Allowed, "max=%d call=%d", maxRequests, i)
			clock.Advance(time.Millisecond)
		}
		assert.Zero(t, l.Len(), "unlimited limiter keeps no buckets")
	}
}
