// Package ratelimit implements the in-process sliding-window admission limiter.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cutline/cutline-jobs/internal/core"
)

// SlidingWindowOptions configures a SlidingWindow.
type SlidingWindowOptions struct {
	// MaxRequests per key and window. Zero or less disables limiting.
	MaxRequests int
	Window      time.Duration
	// SweepInterval drives Run; defaults to five minutes.
	SweepInterval time.Duration
	// Now overrides the clock in tests.
	Now    func() time.Time
	Logger *slog.Logger
}

// SlidingWindow counts hits per key over a trailing window. Denied calls are not recorded.
type SlidingWindow struct {
	mu      sync.Mutex
	hits    map[string][]time.Time
	max     int
	window  time.Duration
	sweepIv time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

var _ core.RateLimiter = (*SlidingWindow)(nil)

// NewSlidingWindow creates an in-memory limiter.
func NewSlidingWindow(opts SlidingWindowOptions) *SlidingWindow {
	l := &SlidingWindow{
		hits:    make(map[string][]time.Time),
		max:     opts.MaxRequests,
		window:  opts.Window,
		sweepIv: opts.SweepInterval,
		now:     opts.Now,
		logger:  opts.Logger,
	}
	if l.sweepIv <= 0 {
		l.sweepIv = 5 * time.Minute
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	l.logger = l.logger.With("component", "rate_limiter")
	return l
}

// Allow records a hit for key when the window has room.
// A denied decision carries the time until the oldest in-window hit expires.
func (l *SlidingWindow) Allow(_ context.Context, key string) (core.RateDecision, error) {
	if l.max <= 0 {
		return core.RateDecision{Allowed: true}, nil
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	bucket := evict(l.hits[key], now, l.window)
	if len(bucket) >= l.max {
		l.hits[key] = bucket
		retry := l.window - now.Sub(bucket[0])
		if retry < 0 {
			retry = 0
		}
		return core.RateDecision{Allowed: false, RetryAfter: retry}, nil
	}
	l.hits[key] = append(bucket, now)
	return core.RateDecision{Allowed: true}, nil
}

// Sweep drops buckets whose hits have all left the window and returns how many were dropped.
func (l *SlidingWindow) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	dropped := 0
	for key, bucket := range l.hits {
		bucket = evict(bucket, now, l.window)
		if len(bucket) == 0 {
			delete(l.hits, key)
			dropped++
			continue
		}
		l.hits[key] = bucket
	}
	return dropped
}

// Len reports the number of tracked keys.
func (l *SlidingWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

// Run sweeps on the configured interval until ctx is canceled.
func (l *SlidingWindow) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.sweepIv)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				l.logger.Debug("rate limiter sweep", "dropped_keys", n)
			}
		}
	}
}

// evict removes leading hits older than window. Hits are kept in append order.
func evict(bucket []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(bucket) && now.Sub(bucket[i]) > window {
		i++
	}
	if i == 0 {
		return bucket
	}
	return append(bucket[:0:0], bucket[i:]...)
}
