package redis

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cutline/cutline-jobs/internal/core"
	"github.com/cutline/cutline-jobs/internal/domain/model"
	"github.com/cutline/cutline-jobs/internal/testutil"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestQueue(t *testing.T) (*Queue, *testClock) {
	t.Helper()
	client := testutil.SetupTestRedis(t)
	clock := &testClock{now: time.Now().UTC()}
	return NewQueue(QueueOptions{Client: client, KeyPrefix: "test", Name: "edits", Now: clock.Now}), clock
}

func testMessage(id string) core.QueueMessage {
	return core.QueueMessage{
		JobID:   id,
		Kind:    model.JobKindEdit,
		Payload: json.RawMessage(`{"url":"https://example.com/a","music":"track-1"}`),
		Timeout: time.Minute,
	}
}

func TestQueueLifecycle(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testMessage("job-1")))

	entry, err := q.Status(ctx, "job-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, core.QueueStatusQueued, entry.Status)
	assert.Equal(t, model.JobStatusQueued, entry.JobStatus())
	assert.False(t, entry.EnqueuedAt.IsZero())

	msg, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "job-1", msg.JobID)
	assert.Equal(t, model.JobKindEdit, msg.Kind)
	assert.Equal(t, time.Minute, msg.Timeout)

	entry, err = q.Status(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, core.QueueStatusStarted, entry.Status)
	require.NotNil(t, entry.StartedAt)

	n, err := q.client.LLen(ctx, q.processing).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, q.Ack(ctx, "job-1", core.QueueStatusFailed, "render produced no output"))
	entry, err = q.Status(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, entry.JobStatus())
	assert.Equal(t, "render produced no output", entry.Error)
	require.NotNil(t, entry.EndedAt)

	n, err = q.client.LLen(ctx, q.processing).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestQueueDequeueIdle(t *testing.T) {
	q, _ := newTestQueue(t)
	msg, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestQueueFIFO(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, testMessage(id)))
	}
	for _, want := range []string{"a", "b", "c"} {
		msg, err := q.Dequeue(ctx, time.Second)
		require.NoError(t, err)
		require.NotNil(t, msg)
		assert.Equal(t, want, msg.JobID)
	}
}

func TestQueueRequeueDelay(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testMessage("job-r")))
	msg, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)

	msg.Attempt++
	require.NoError(t, q.Requeue(ctx, *msg, 10*time.Second))

	entry, err := q.Status(ctx, "job-r")
	require.NoError(t, err)
	assert.Equal(t, core.QueueStatusDeferred, entry.Status)
	assert.Equal(t, model.JobStatusQueued, entry.JobStatus())

	early, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	assert.Nil(t, early, "deferred message must wait for its delay")

	clock.Advance(11 * time.Second)
	again, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, "job-r", again.JobID)
	assert.Equal(t, 1, again.Attempt)

	n, err := q.client.LLen(ctx, q.processing).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "only the redelivery is in flight")
}

func TestQueueStatusUnknown(t *testing.T) {
	q, _ := newTestQueue(t)
	entry, err := q.Status(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestQueueReclaimStale(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testMessage("job-lost")))
	require.NoError(t, q.Enqueue(ctx, testMessage("job-waiting")))
	msg, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, "job-lost", msg.JobID)

	clock.Advance(90 * time.Second)
	got, err := q.ReclaimStale(ctx, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, got, "still inside timeout plus grace")

	clock.Advance(time.Minute)
	got, err = q.ReclaimStale(ctx, time.Minute)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "job-lost", got[0].JobID)
	assert.Equal(t, time.Minute, got[0].Timeout)

	n, err := q.client.LLen(ctx, q.processing).Result()
	require.NoError(t, err)
	assert.Zero(t, n)

	again, err := q.ReclaimStale(ctx, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again, "a delivery is reclaimed once")

	pending, err := q.client.LLen(ctx, q.pending).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending, "queued jobs are not touched")
}

func TestQueueReclaimStaleSkipsAcked(t *testing.T) {
	q, clock := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testMessage("job-done")))
	_, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NoError(t, q.Ack(ctx, "job-done", core.QueueStatusFinished, ""))

	clock.Advance(time.Hour)
	got, err := q.ReclaimStale(ctx, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, got)
}
