package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cutline/cutline-jobs/internal/core"
	apperrors "github.com/cutline/cutline-jobs/internal/errors"
)

const promoteBatch = 100

var (
	_ core.JobQueue       = (*Queue)(nil)
	_ core.StaleJobSource = (*Queue)(nil)
)

// QueueOptions configures a Queue.
type QueueOptions struct {
	Client    redis.UniversalClient // required
	KeyPrefix string
	Name      string
	// ResultTTL is how long metadata of a finished job is kept.
	ResultTTL time.Duration
	Now       func() time.Time
	Logger    *slog.Logger
}

// Queue is a Redis list based work queue.
//
// Keys:
//   - <prefix>:queue:<name>              pending messages (LPUSH / BRPOPLPUSH)
//   - <prefix>:queue:<name>:processing   messages held by a worker
//   - <prefix>:queue:<name>:delayed      zset of deferred messages, score = due unix ms
//   - <prefix>:queue:<name>:job:<id>     hash with status, timestamps, error and the raw message
type Queue struct {
	client     redis.UniversalClient
	pending    string
	processing string
	delayed    string
	metaPrefix string
	resultTTL  time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// NewQueue creates a Redis queue.
func NewQueue(opts QueueOptions) *Queue {
	ks := newKeyspace(opts.KeyPrefix)
	name := opts.Name
	if name == "" {
		name = "video-edit"
	}
	q := &Queue{
		client:     opts.Client,
		pending:    ks.key("queue", name),
		processing: ks.key("queue", name, "processing"),
		delayed:    ks.key("queue", name, "delayed"),
		metaPrefix: ks.key("queue", name, "job") + ":",
		resultTTL:  opts.ResultTTL,
		now:        opts.Now,
		logger:     opts.Logger,
	}
	if q.resultTTL <= 0 {
		q.resultTTL = 24 * time.Hour
	}
	if q.now == nil {
		q.now = func() time.Time { return time.Now().UTC() }
	}
	if q.logger == nil {
		q.logger = slog.Default()
	}
	q.logger = q.logger.With("component", "redis_queue", "queue", name)
	return q
}

func (q *Queue) metaKey(jobID string) string { return q.metaPrefix + jobID }

// Enqueue pushes msg onto the pending list.
func (q *Queue) Enqueue(ctx context.Context, msg core.QueueMessage) error {
	if msg.JobID == "" {
		return apperrors.ValidationField("job_id", "job id is required")
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = q.now()
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode queue message %s: %w", msg.JobID, err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.metaKey(msg.JobID), map[string]any{
			"status":      string(core.QueueStatusQueued),
			"enqueued_at": formatTime(msg.EnqueuedAt),
			"message":     string(raw),
		})
		pipe.LPush(ctx, q.pending, raw)
		return nil
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "enqueue job")
	}
	return nil
}

// Dequeue promotes due deferred messages, then blocks up to wait for the next
// message and moves it to the processing list.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*core.QueueMessage, error) {
	if _, err := q.promoteDue(ctx); err != nil {
		q.logger.Warn("promote deferred jobs failed", "error", err)
	}

	raw, err := q.client.BRPopLPush(ctx, q.pending, q.processing, wait).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil //nolint:nilerr // shutdown while blocked is not an error
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "dequeue job")
	}

	var msg core.QueueMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		// Drop poison messages so workers do not loop on them.
		if remErr := q.client.LRem(ctx, q.processing, 1, raw).Err(); remErr != nil {
			q.logger.Error("drop undecodable message", "error", remErr)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode queue message")
	}

	if err := q.client.HSet(ctx, q.metaKey(msg.JobID), map[string]any{
		"status":     string(core.QueueStatusStarted),
		"started_at": formatTime(q.now()),
		"message":    string(raw),
	}).Err(); err != nil {
		q.logger.Warn("mark job started", "job_id", msg.JobID, "error", err)
	}
	return &msg, nil
}

// Ack records the terminal outcome and releases the processing slot.
func (q *Queue) Ack(ctx context.Context, jobID string, outcome core.QueueOutcome, cause string) error {
	meta := q.metaKey(jobID)
	raw, err := q.client.HGet(ctx, meta, "message").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "ack job")
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if raw != "" {
			pipe.LRem(ctx, q.processing, 1, raw)
		}
		pipe.HSet(ctx, meta, map[string]any{
			"status":   string(outcome),
			"ended_at": formatTime(q.now()),
			"error":    cause,
		})
		pipe.Expire(ctx, meta, q.resultTTL)
		return nil
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "ack job")
	}
	return nil
}

// Requeue defers msg for delay. The previous delivery is removed from the processing list.
func (q *Queue) Requeue(ctx context.Context, msg core.QueueMessage, delay time.Duration) error {
	meta := q.metaKey(msg.JobID)
	prev, err := q.client.HGet(ctx, meta, "message").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "requeue job")
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode queue message %s: %w", msg.JobID, err)
	}
	due := q.now().Add(delay)

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if prev != "" {
			pipe.LRem(ctx, q.processing, 1, prev)
		}
		pipe.ZAdd(ctx, q.delayed, redis.Z{Score: float64(due.UnixMilli()), Member: string(raw)})
		pipe.HSet(ctx, meta, map[string]any{
			"status":  string(core.QueueStatusDeferred),
			"message": string(raw),
			"error":   "",
		})
		return nil
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "requeue job")
	}
	return nil
}

// Status returns the queue's view of jobID, or (nil, nil) when unknown.
func (q *Queue) Status(ctx context.Context, jobID string) (*core.QueueEntry, error) {
	fields, err := q.client.HGetAll(ctx, q.metaKey(jobID)).Result()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "queue status")
	}
	if len(fields) == 0 {
		return nil, nil
	}
	entry := &core.QueueEntry{
		JobID:      jobID,
		Status:     core.QueueOutcome(fields["status"]),
		EnqueuedAt: parseTime(fields["enqueued_at"]),
		Error:      fields["error"],
	}
	if t := parseTime(fields["started_at"]); !t.IsZero() {
		entry.StartedAt = &t
	}
	if t := parseTime(fields["ended_at"]); !t.IsZero() {
		entry.EndedAt = &t
	}
	return entry, nil
}

// ReclaimStale takes back deliveries whose worker stopped acknowledging them.
// A delivery is stale when its started_at plus the message timeout plus grace
// lies in the past, or when its metadata is gone. Deliveries whose metadata
// does not yet say started are skipped: Dequeue writes it right after the move.
func (q *Queue) ReclaimStale(ctx context.Context, grace time.Duration) ([]core.QueueMessage, error) {
	raws, err := q.client.LRange(ctx, q.processing, 0, -1).Result()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "list in-flight jobs")
	}

	now := q.now()
	var reclaimed []core.QueueMessage
	for _, raw := range raws {
		var msg core.QueueMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			if remErr := q.client.LRem(ctx, q.processing, 1, raw).Err(); remErr != nil {
				q.logger.Error("drop undecodable in-flight message", "error", remErr)
			}
			continue
		}

		stale, err := q.deliveryStale(ctx, msg, now, grace)
		if err != nil {
			return reclaimed, err
		}
		if !stale {
			continue
		}

		// Whoever removes the entry owns the reclaim.
		removed, err := q.client.LRem(ctx, q.processing, 1, raw).Result()
		if err != nil {
			return reclaimed, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "reclaim in-flight job")
		}
		if removed == 0 {
			continue
		}
		reclaimed = append(reclaimed, msg)
	}
	return reclaimed, nil
}

func (q *Queue) deliveryStale(ctx context.Context, msg core.QueueMessage, now time.Time, grace time.Duration) (bool, error) {
	vals, err := q.client.HMGet(ctx, q.metaKey(msg.JobID), "status", "started_at").Result()
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "read in-flight job metadata")
	}
	status, _ := vals[0].(string)
	startedRaw, _ := vals[1].(string)

	switch {
	case status == "" && startedRaw == "":
		return true, nil
	case core.QueueOutcome(status) != core.QueueStatusStarted:
		return false, nil
	}
	started := parseTime(startedRaw)
	if started.IsZero() {
		return true, nil
	}
	return now.Sub(started) > msg.Timeout+grace, nil
}

// promoteDue moves deferred messages whose delay elapsed back onto the pending list.
func (q *Queue) promoteDue(ctx context.Context) (int, error) {
	due, err := q.client.ZRangeByScore(ctx, q.delayed, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(q.now().UnixMilli(), 10),
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("fetch due messages: %w", err)
	}

	promoted := 0
	for _, raw := range due {
		// Whoever removes the member owns the promotion.
		removed, err := q.client.ZRem(ctx, q.delayed, raw).Result()
		if err != nil {
			return promoted, fmt.Errorf("claim due message: %w", err)
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.pending, raw).Err(); err != nil {
			return promoted, fmt.Errorf("promote due message: %w", err)
		}
		promoted++
	}
	return promoted, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
