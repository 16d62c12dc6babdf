package redis

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/cutline/cutline-jobs/internal/core"
)

// slidingWindowScript evicts hits older than the window, then records the new
// hit only when the window has room. Returns {allowed, retry_after_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window - 1)
local count = redis.call('ZCARD', key)
if count >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local retry = 0
  if oldest[2] then
    retry = window - (now - tonumber(oldest[2]))
  end
  if retry < 0 then retry = 0 end
  return {0, retry}
end
redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, window)
return {1, 0}
`)

var _ core.RateLimiter = (*RateLimiter)(nil)

// RateLimiterOptions configures a RateLimiter.
type RateLimiterOptions struct {
	Client      redis.UniversalClient // required
	KeyPrefix   string
	MaxRequests int // zero or less disables limiting
	Window      time.Duration
	Now         func() time.Time
	Logger      *slog.Logger
}

// RateLimiter is a sliding-window limiter shared by every API replica.
// Redis errors fail open.
type RateLimiter struct {
	client redis.UniversalClient
	keys   keyspace
	max    int
	window time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewRateLimiter creates a Redis-backed limiter.
func NewRateLimiter(opts RateLimiterOptions) *RateLimiter {
	l := &RateLimiter{
		client: opts.Client,
		keys:   newKeyspace(opts.KeyPrefix),
		max:    opts.MaxRequests,
		window: opts.Window,
		now:    opts.Now,
		logger: opts.Logger,
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	l.logger = l.logger.With("component", "redis_rate_limiter")
	return l
}

// Allow checks and records one hit for key.
func (l *RateLimiter) Allow(ctx context.Context, key string) (core.RateDecision, error) {
	if l.max <= 0 {
		return core.RateDecision{Allowed: true}, nil
	}
	now := l.now().UnixMilli()
	member := strconv.FormatInt(now, 10) + "-" + uuid.NewString()

	res, err := slidingWindowScript.Run(ctx, l.client,
		[]string{l.keys.key("ratelimit", key)},
		now, l.window.Milliseconds(), l.max, member,
	).Int64Slice()
	if err != nil {
		l.logger.Warn("rate limiter unavailable, allowing request", "error", err)
		return core.RateDecision{Allowed: true}, nil
	}
	if len(res) != 2 {
		l.logger.Warn("unexpected rate limiter reply", "reply", res)
		return core.RateDecision{Allowed: true}, nil
	}
	return core.RateDecision{
		Allowed:    res[0] == 1,
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
	}, nil
}
