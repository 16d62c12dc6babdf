package memqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cutline/cutline-jobs/internal/core"
	"github.com/cutline/cutline-jobs/internal/domain/model"
	apperrors "github.com/cutline/cutline-jobs/internal/errors"
)

func TestQueueLifecycle(t *testing.T) {
	q := New(Options{})
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, core.QueueMessage{JobID: "j1", Kind: model.JobKindEdit}))
	entry, err := q.Status(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, entry.JobStatus())

	msg, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "j1", msg.JobID)

	entry, _ = q.Status(ctx, "j1")
	assert.Equal(t, core.QueueStatusStarted, entry.Status)
	assert.NotNil(t, entry.StartedAt)

	require.NoError(t, q.Ack(ctx, "j1", core.QueueStatusFinished, ""))
	entry, _ = q.Status(ctx, "j1")
	assert.Equal(t, model.JobStatusDone, entry.JobStatus())
}

func TestDequeueIdleAndCanceled(t *testing.T) {
	q := New(Options{})
	msg, err := q.Dequeue(context.Background(), 10*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, msg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	msg, err = q.Dequeue(ctx, time.Hour)
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestEnqueueFull(t *testing.T) {
	q := New(Options{Capacity: 1})
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, core.QueueMessage{JobID: "a"}))

	err := q.Enqueue(ctx, core.QueueMessage{JobID: "b"})
	assert.True(t, apperrors.IsUnavailable(err))
	entry, _ := q.Status(ctx, "b")
	assert.Nil(t, entry)
}

func TestRequeueRedelivers(t *testing.T) {
	q := New(Options{})
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, core.QueueMessage{JobID: "r"}))
	msg, _ := q.Dequeue(ctx, time.Second)
	require.NotNil(t, msg)

	msg.Attempt++
	require.NoError(t, q.Requeue(ctx, *msg, 20*time.Millisecond))
	entry, _ := q.Status(ctx, "r")
	assert.Equal(t, core.QueueStatusDeferred, entry.Status)

	again, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, again)
	assert.Equal(t, 1, again.Attempt)
}

func TestAckExpiresEntry(t *testing.T) {
	q := New(Options{ResultTTL: 10 * time.Millisecond})
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, core.QueueMessage{JobID: "x"}))
	_, _ = q.Dequeue(ctx, time.Second)
	require.NoError(t, q.Ack(ctx, "x", core.QueueStatusFailed, "boom"))

	assert.Eventually(t, func() bool {
		e, _ := q.Status(ctx, "x")
		return e == nil
	}, time.Second, 5*time.Millisecond)
}

func TestRequeueImmediateFullBuffer(t *testing.T) {
	q := New(Options{Capacity: 1})
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, core.QueueMessage{JobID: "b"}))
	msg, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.NoError(t, q.Enqueue(ctx, core.QueueMessage{JobID: "a"}))

	err = q.Requeue(ctx, *msg, 0)
	assert.True(t, apperrors.IsUnavailable(err))
	entry, _ := q.Status(ctx, "b")
	require.NotNil(t, entry)
	assert.Equal(t, core.QueueStatusStarted, entry.Status, "a refused requeue leaves the delivery with its worker")
	assert.Equal(t, 1, q.Len())
}

func TestRequeueDelayedParksWhenFull(t *testing.T) {
	q := New(Options{Capacity: 1})
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, core.QueueMessage{JobID: "b"}))
	msg, _ := q.Dequeue(ctx, time.Second)
	require.NotNil(t, msg)
	require.NoError(t, q.Requeue(ctx, *msg, 10*time.Millisecond))
	require.NoError(t, q.Enqueue(ctx, core.QueueMessage{JobID: "a"}))

	assert.Eventually(t, func() bool { return q.Len() == 2 }, time.Second, 5*time.Millisecond)
	entry, _ := q.Status(ctx, "b")
	assert.Equal(t, core.QueueStatusQueued, entry.Status)

	first, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "b", first.JobID)
	second, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "a", second.JobID)
	assert.Zero(t, q.Len())
}
