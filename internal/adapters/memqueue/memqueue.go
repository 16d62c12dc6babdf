// Package memqueue is an in-process core.JobQueue for single-binary async
// deployments and tests. Messages do not survive a restart.
package memqueue

import (
	"context"
	"sync"
	"time"

	"github.com/cutline/cutline-jobs/internal/core"
	apperrors "github.com/cutline/cutline-jobs/internal/errors"
)

var _ core.JobQueue = (*Queue)(nil)

// Options configures a Queue.
type Options struct {
	// Capacity bounds buffered messages; Enqueue fails with Unavailable when full.
	Capacity int
	// ResultTTL is how long finished entries stay visible to Status.
	ResultTTL time.Duration
	Now       func() time.Time
}

// Queue is a buffered channel plus a status table.
type Queue struct {
	ch        chan core.QueueMessage
	resultTTL time.Duration
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*core.QueueEntry
	timers  map[string]*time.Timer
	// parked holds delayed redeliveries that came due while ch was full.
	// Dequeue drains it before ch.
	parked []core.QueueMessage
}

// New creates an in-memory queue.
func New(opts Options) *Queue {
	if opts.Capacity <= 0 {
		opts.Capacity = 1024
	}
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = 24 * time.Hour
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Queue{
		ch:        make(chan core.QueueMessage, opts.Capacity),
		resultTTL: opts.ResultTTL,
		now:       opts.Now,
		entries:   make(map[string]*core.QueueEntry),
		timers:    make(map[string]*time.Timer),
	}
}

// Enqueue buffers msg without blocking.
func (q *Queue) Enqueue(_ context.Context, msg core.QueueMessage) error {
	if msg.JobID == "" {
		return apperrors.ValidationField("job_id", "job id is required")
	}
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = q.now()
	}

	q.mu.Lock()
	q.entries[msg.JobID] = &core.QueueEntry{
		JobID:      msg.JobID,
		Status:     core.QueueStatusQueued,
		EnqueuedAt: msg.EnqueuedAt,
	}
	q.mu.Unlock()

	select {
	case q.ch <- msg:
		return nil
	default:
		q.mu.Lock()
		delete(q.entries, msg.JobID)
		q.mu.Unlock()
		return apperrors.New(apperrors.ErrCodeUnavailable, "job queue is full")
	}
}

// Dequeue waits up to wait for a message. It returns (nil, nil) on idle or shutdown.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*core.QueueMessage, error) {
	q.mu.Lock()
	if len(q.parked) > 0 {
		msg := q.parked[0]
		q.parked = q.parked[1:]
		q.markStarted(msg.JobID)
		q.mu.Unlock()
		return &msg, nil
	}
	q.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, nil
	case <-timer.C:
		return nil, nil
	case msg := <-q.ch:
		q.mu.Lock()
		q.markStarted(msg.JobID)
		q.mu.Unlock()
		return &msg, nil
	}
}

// markStarted must be called with mu held.
func (q *Queue) markStarted(jobID string) {
	started := q.now()
	if e, ok := q.entries[jobID]; ok {
		e.Status = core.QueueStatusStarted
		e.StartedAt = &started
	}
}

// Ack records the outcome; the entry is forgotten after ResultTTL.
func (q *Queue) Ack(_ context.Context, jobID string, outcome core.QueueOutcome, cause string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[jobID]
	if !ok {
		return nil
	}
	ended := q.now()
	e.Status = outcome
	e.EndedAt = &ended
	e.Error = cause

	if t, exists := q.timers[jobID]; exists {
		t.Stop()
	}
	q.timers[jobID] = time.AfterFunc(q.resultTTL, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.entries, jobID)
		delete(q.timers, jobID)
	})
	return nil
}

// Requeue redelivers msg after delay. An immediate requeue fails with
// Unavailable when the buffer is full; a delayed one that comes due while the
// buffer is full is parked and handed out by the next Dequeue.
func (q *Queue) Requeue(_ context.Context, msg core.QueueMessage, delay time.Duration) error {
	if delay <= 0 {
		q.mu.Lock()
		defer q.mu.Unlock()
		select {
		case q.ch <- msg:
			q.setStatus(msg, core.QueueStatusQueued)
			return nil
		default:
			return apperrors.New(apperrors.ErrCodeUnavailable, "job queue is full")
		}
	}

	q.mu.Lock()
	q.setStatus(msg, core.QueueStatusDeferred)
	q.mu.Unlock()

	time.AfterFunc(delay, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.setStatus(msg, core.QueueStatusQueued)
		select {
		case q.ch <- msg:
		default:
			q.parked = append(q.parked, msg)
		}
	})
	return nil
}

// setStatus must be called with mu held.
func (q *Queue) setStatus(msg core.QueueMessage, status core.QueueOutcome) {
	if e, ok := q.entries[msg.JobID]; ok {
		e.Status = status
		return
	}
	q.entries[msg.JobID] = &core.QueueEntry{JobID: msg.JobID, Status: status, EnqueuedAt: msg.EnqueuedAt}
}

// Status returns a copy of the queue's entry for jobID.
func (q *Queue) Status(_ context.Context, jobID string) (*core.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[jobID]
	if !ok {
		return nil, nil
	}
	out := *e
	return &out, nil
}

// Len returns the number of messages waiting for a worker.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ch) + len(q.parked)
}
