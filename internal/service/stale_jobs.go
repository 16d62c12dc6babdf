package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cutline/cutline-jobs/internal/core"
	apperrors "github.com/cutline/cutline-jobs/internal/errors"
	"github.com/cutline/cutline-jobs/internal/observability/metrics"
	"github.com/cutline/cutline-jobs/internal/observability/statsd"
)

// StaleJobReaperOptions groups dependencies for StaleJobReaper.
type StaleJobReaperOptions struct {
	Source  core.StaleJobSource // Required: queue that can hand back lost deliveries
	Queue   core.JobQueue       // Required: receives the failed ack
	Store   core.JobRecordStore // Required: record store the executor writes to
	Grace   time.Duration       // Required: slack on top of each delivery's timeout
	Logger  *slog.Logger        // Optional
	Metrics statsd.Sink         // Optional
}

// StaleJobReaper fails jobs whose worker died after taking them off the queue.
type StaleJobReaper struct {
	source  core.StaleJobSource
	queue   core.JobQueue
	store   core.JobRecordStore
	grace   time.Duration
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewStaleJobReaper constructs a StaleJobReaper.
func NewStaleJobReaper(opts StaleJobReaperOptions) (*StaleJobReaper, error) {
	if opts.Source == nil || opts.Queue == nil || opts.Store == nil {
		return nil, errors.New("stale job reaper requires a queue and a record store")
	}
	if opts.Grace <= 0 {
		return nil, errors.New("stale job grace must be positive")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StaleJobReaper{
		source:  opts.Source,
		queue:   opts.Queue,
		store:   opts.Store,
		grace:   opts.Grace,
		logger:  logger.With("component", "stale_job_reaper"),
		metrics: opts.Metrics,
	}, nil
}

// RunOnce reclaims lost deliveries, fails their records and acks them as failed.
// It returns how many jobs were failed.
func (r *StaleJobReaper) RunOnce(ctx context.Context) (int, error) {
	msgs, err := r.source.ReclaimStale(ctx, r.grace)
	if len(msgs) == 0 {
		return 0, err
	}
	errs := []error{err}

	failed := 0
	for _, msg := range msgs {
		cause := fmt.Sprintf("worker lost: job did not finish within %s", msg.Timeout+r.grace)
		if ferr := FailRecord(ctx, r.store, msg.JobID, cause); ferr != nil && !apperrors.IsNotFound(ferr) {
			errs = append(errs, ferr)
		}
		if aerr := r.queue.Ack(ctx, msg.JobID, core.QueueStatusFailed, cause); aerr != nil {
			errs = append(errs, fmt.Errorf("ack stale job %s: %w", msg.JobID, aerr))
		}
		metrics.EmitQueueEvent(r.metrics, metrics.QueueStale, string(msg.Kind), "worker_lost")
		r.logger.WarnContext(ctx, "failed stale job",
			"job_id", msg.JobID,
			"kind", msg.Kind,
			"timeout", msg.Timeout,
		)
		failed++
	}
	return failed, errors.Join(errs...)
}
