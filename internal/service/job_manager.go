package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cutline/cutline-jobs/config"
	"github.com/cutline/cutline-jobs/internal/core"
	domainjob "github.com/cutline/cutline-jobs/internal/domain/job"
	"github.com/cutline/cutline-jobs/internal/domain/model"
	apperrors "github.com/cutline/cutline-jobs/internal/errors"
)

// JobManagerOptions groups dependencies for JobManager.
type JobManagerOptions struct {
	Store core.JobRecordStore  // Required
	Mode  config.ExecutionMode // Required: sync or async

	Executor JobExecutor   // Required in sync mode
	Queue    core.JobQueue // Required in async mode

	// JobTimeout bounds one execution; defaults to 30m.
	JobTimeout time.Duration
	// RetryPolicy governs sync-mode retries after a render-slot timeout.
	// Nil means no retries.
	RetryPolicy *domainjob.RetryPolicy

	Logger *slog.Logger                               // Optional
	NewID  func() string                              // Optional: defaults to uuid.NewString
	Now    func() time.Time                           // Optional
	Sleep  func(context.Context, time.Duration) error // Optional: test hook for retry delays
}

// JobManager accepts job submissions and answers status queries.
type JobManager struct {
	store    core.JobRecordStore
	mode     config.ExecutionMode
	executor JobExecutor
	queue    core.JobQueue
	timeout  time.Duration
	retry    *domainjob.RetryPolicy
	logger   *slog.Logger
	newID    func() string
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

// NewJobManager constructs a JobManager for one execution mode.
func NewJobManager(opts JobManagerOptions) (*JobManager, error) {
	if opts.Store == nil {
		return nil, errors.New("JobRecordStore is required")
	}
	switch opts.Mode {
	case config.ExecutionModeSync:
		if opts.Executor == nil {
			return nil, errors.New("Executor is required in sync mode")
		}
	case config.ExecutionModeAsync:
		if opts.Queue == nil {
			return nil, errors.New("JobQueue is required in async mode")
		}
	default:
		return nil, fmt.Errorf("unknown execution mode %q", opts.Mode)
	}

	m := &JobManager{
		store:    opts.Store,
		mode:     opts.Mode,
		executor: opts.Executor,
		queue:    opts.Queue,
		timeout:  opts.JobTimeout,
		retry:    opts.RetryPolicy,
		newID:    opts.NewID,
		now:      opts.Now,
		sleep:    opts.Sleep,
	}
	if m.timeout <= 0 {
		m.timeout = 30 * time.Minute
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.sleep == nil {
		m.sleep = sleepContext
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m.logger = logger.With("component", "job_manager", "mode", opts.Mode)
	return m, nil
}

// Mode returns the execution mode the manager was built for.
func (m *JobManager) Mode() config.ExecutionMode {
	return m.mode
}

// Submit records a new job and either runs it to completion (sync) or
// enqueues it (async). In sync mode a failed job is not an error: the record
// carries the failure. In async mode an enqueue failure fails the record and
// is returned.
func (m *JobManager) Submit(ctx context.Context, kind domainjob.Kind) (string, error) {
	if kind == nil {
		return "", apperrors.Validation("job kind is required")
	}
	if err := kind.Validate(); err != nil {
		return "", err
	}

	request, err := domainjob.EncodeRequest(kind)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(kind)
	if err != nil {
		return "", fmt.Errorf("encode %s payload: %w", kind.JobKind(), err)
	}

	jobID := m.newID()
	if _, err := m.store.Create(ctx, jobID, request); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	m.logger.InfoContext(ctx, "job submitted", "job_id", jobID, "kind", kind.JobKind())

	if m.mode == config.ExecutionModeSync {
		m.runSync(ctx, jobID, kind)
		return jobID, nil
	}

	msg := core.QueueMessage{
		JobID:      jobID,
		Kind:       kind.JobKind(),
		Payload:    payload,
		Timeout:    m.timeout,
		EnqueuedAt: m.now().UTC(),
	}
	if err := m.queue.Enqueue(ctx, msg); err != nil {
		wctx, cancel := detached(ctx)
		defer cancel()
		if ferr := FailRecord(wctx, m.store, jobID, "enqueue failed: "+err.Error()); ferr != nil {
			m.logger.ErrorContext(ctx, "record enqueue failure", "job_id", jobID, "error", ferr)
		}
		return "", fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	return jobID, nil
}

// runSync executes the job inline. The job outlives a disconnecting client:
// it is detached from ctx cancellation and bounded by the job timeout instead.
func (m *JobManager) runSync(ctx context.Context, jobID string, kind domainjob.Kind) {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()
	logger := m.logger.With("job_id", jobID, "kind", kind.JobKind())

	for attempt := 1; ; attempt++ {
		err := m.executor.Run(runCtx, jobID, kind)
		if err == nil {
			return
		}
		if !IsRenderSlotBusy(err) {
			logger.WarnContext(ctx, "sync job failed", "error", err)
			return
		}

		decision := m.retry.Decide(attempt)
		if !decision.Retry() {
			logger.WarnContext(ctx, "render slot retries exhausted", "attempts", attempt)
			m.markFailed(runCtx, jobID, kind.JobKind(), MessageSlotUnavailable)
			return
		}
		logger.InfoContext(ctx, "retrying after render slot timeout",
			"attempt", attempt,
			"delay", decision.Delay,
			"source", decision.Source,
		)
		if err := m.sleep(runCtx, decision.Delay); err != nil {
			m.markFailed(runCtx, jobID, kind.JobKind(), MessageSlotUnavailable)
			return
		}
	}
}

func (m *JobManager) markFailed(ctx context.Context, jobID string, kind model.JobKind, message string) {
	if err := m.executor.MarkFailed(ctx, jobID, kind, message); err != nil {
		m.logger.ErrorContext(ctx, "mark job failed", "job_id", jobID, "error", err)
	}
}

// Get returns the job record. In async mode a job the store does not know
// yet is looked up in the queue and a minimal record is synthesized.
func (m *JobManager) Get(ctx context.Context, jobID string) (*model.JobRecord, error) {
	rec, err := m.store.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if rec != nil {
		return rec, nil
	}

	if m.mode == config.ExecutionModeAsync && m.queue != nil {
		entry, err := m.queue.Status(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("get queued job: %w", err)
		}
		if entry != nil {
			return recordFromQueue(jobID, entry), nil
		}
	}
	return nil, apperrors.NotFoundf("job %s not found", jobID)
}

func recordFromQueue(jobID string, entry *core.QueueEntry) *model.JobRecord {
	rec := model.NewJobRecord(jobID, nil, entry.EnqueuedAt)
	rec.Status = entry.JobStatus()
	if entry.Error != "" {
		ended := entry.EnqueuedAt
		if entry.EndedAt != nil {
			ended = *entry.EndedAt
		}
		rec.ApplyError(entry.Error, ended)
	}
	return rec
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
