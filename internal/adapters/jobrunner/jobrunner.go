// Package jobrunner drains the job queue and hands each message to the executor.
package jobrunner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cutline/cutline-jobs/internal/core"
	domainjob "github.com/cutline/cutline-jobs/internal/domain/job"
	apperrors "github.com/cutline/cutline-jobs/internal/errors"
	"github.com/cutline/cutline-jobs/internal/observability/metrics"
	"github.com/cutline/cutline-jobs/internal/observability/statsd"
	"github.com/cutline/cutline-jobs/internal/service"
)

const (
	defaultPollWait = 5 * time.Second
	// maxDequeueFailures is how many back-to-back Dequeue errors a worker
	// tolerates before the runner gives up.
	maxDequeueFailures = 5
	ackTimeout         = 10 * time.Second
)

// RunnerOptions configures the queue worker pool.
type RunnerOptions struct {
	Queue    core.JobQueue
	Executor service.JobExecutor
	Logger   *slog.Logger

	Concurrency int           // number of worker goroutines; defaults to 1
	PollWait    time.Duration // how long one Dequeue blocks; defaults to 5s

	// RetryPolicy decides whether a job that lost the render slot is requeued.
	// Nil means never requeue.
	RetryPolicy *domainjob.RetryPolicy
	Metrics     statsd.Sink
}

// Runner pulls queue messages and executes them.
type Runner struct {
	queue    core.JobQueue
	executor service.JobExecutor
	logger   *slog.Logger
	workers  int
	pollWait time.Duration
	retry    *domainjob.RetryPolicy
	metrics  statsd.Sink
}

// NewRunner constructs a worker pool.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Queue == nil {
		return nil, errors.New("JobQueue is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("Executor is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}
	pollWait := opts.PollWait
	if pollWait <= 0 {
		pollWait = defaultPollWait
	}
	return &Runner{
		queue:    opts.Queue,
		executor: opts.Executor,
		logger:   logger.With("component", "job_runner"),
		workers:  workers,
		pollWait: pollWait,
		retry:    opts.RetryPolicy,
		metrics:  opts.Metrics,
	}, nil
}

// Run starts the workers and blocks until ctx is cancelled or a worker fails.
// A cancelled context is a clean shutdown and returns nil.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting job runner", "workers", r.workers, "poll_wait", r.pollWait)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	for i := range r.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.workerLoop(ctx, i); err != nil {
				// first error wins, cancels all workers
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}()
	}

	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

func (r *Runner) workerLoop(ctx context.Context, worker int) error {
	failures := 0
	for ctx.Err() == nil {
		msg, err := r.queue.Dequeue(ctx, r.pollWait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			if failures >= maxDequeueFailures {
				return fmt.Errorf("dequeue: %w", err)
			}
			r.logger.WarnContext(ctx, "dequeue failed", "worker", worker, "attempt", failures, "error", err)
			if !r.pause(ctx) {
				return nil
			}
			continue
		}
		failures = 0
		if msg != nil {
			r.process(ctx, *msg)
		}
	}
	return nil
}

func (r *Runner) pause(ctx context.Context) bool {
	t := time.NewTimer(r.pollWait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// process runs one message and settles it in the queue. It never returns an
// error: every outcome ends as an Ack or a Requeue.
func (r *Runner) process(ctx context.Context, msg core.QueueMessage) {
	logger := r.logger.With("job_id", msg.JobID, "kind", msg.Kind, "attempt", msg.Attempt)

	defer func() {
		if p := recover(); p != nil {
			logger.ErrorContext(ctx, "job panicked", "panic", p)
			r.drop(ctx, msg, fmt.Sprintf("job panicked: %v", p), "panic")
		}
	}()

	kind, err := domainjob.Parse(msg.Kind, msg.Payload)
	if err != nil {
		logger.WarnContext(ctx, "discarding malformed job", "error", err)
		r.drop(ctx, msg, "invalid job payload: "+apperrors.Message(err), "bad_payload")
		return
	}

	runCtx := ctx
	if msg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, msg.Timeout)
		defer cancel()
	}

	err = r.executor.Run(runCtx, msg.JobID, kind)
	switch {
	case err == nil:
		r.ack(ctx, msg.JobID, core.QueueStatusFinished, "")
	case service.IsRenderSlotBusy(err):
		r.retrySlot(ctx, logger, msg)
	default:
		logger.InfoContext(ctx, "job failed", "error", err)
		r.ack(ctx, msg.JobID, core.QueueStatusFailed, apperrors.Message(err))
	}
}

// retrySlot requeues a job that timed out waiting for the render slot, or
// fails it once the retry budget is spent.
func (r *Runner) retrySlot(ctx context.Context, logger *slog.Logger, msg core.QueueMessage) {
	decision := r.retry.Decide(msg.Attempt + 1)
	if !decision.Retry() {
		logger.WarnContext(ctx, "render slot retries exhausted")
		r.drop(ctx, msg, service.MessageSlotUnavailable, "slot_exhausted")
		return
	}

	next := msg
	next.Attempt++
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()
	if err := r.queue.Requeue(wctx, next, decision.Delay); err != nil {
		logger.ErrorContext(ctx, "requeue failed", "error", err)
		r.drop(ctx, msg, service.MessageSlotUnavailable, "requeue_failed")
		return
	}
	metrics.EmitQueueEvent(r.metrics, metrics.QueueRequeued, string(msg.Kind), "slot_busy")
	logger.InfoContext(ctx, "job requeued",
		"delay", decision.Delay,
		"source", decision.Source,
	)
}

// drop fails the job record and acks the message as failed.
func (r *Runner) drop(ctx context.Context, msg core.QueueMessage, message, reason string) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()
	if err := r.executor.MarkFailed(wctx, msg.JobID, msg.Kind, message); err != nil {
		r.logger.ErrorContext(ctx, "mark job failed", "job_id", msg.JobID, "error", err)
	}
	metrics.EmitQueueEvent(r.metrics, metrics.QueueDropped, string(msg.Kind), reason)
	r.ack(ctx, msg.JobID, core.QueueStatusFailed, message)
}

func (r *Runner) ack(ctx context.Context, jobID string, outcome core.QueueOutcome, cause string) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()
	if err := r.queue.Ack(wctx, jobID, outcome, cause); err != nil {
		r.logger.ErrorContext(ctx, "ack job", "job_id", jobID, "outcome", outcome, "error", err)
	}
}
