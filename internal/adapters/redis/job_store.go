package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cutline/cutline-jobs/internal/core"
	"github.com/cutline/cutline-jobs/internal/domain/model"
	apperrors "github.com/cutline/cutline-jobs/internal/errors"
)

// maxTxRetries bounds optimistic transaction retries under contention on one job key.
const maxTxRetries = 32

var _ core.JobRecordStore = (*JobStore)(nil)

// JobStoreOptions configures a JobStore.
type JobStoreOptions struct {
	Client    redis.UniversalClient // required
	KeyPrefix string
	// TTL expires records; zero keeps them until deleted externally.
	TTL    time.Duration
	Now    func() time.Time
	Logger *slog.Logger
}

// JobStore keeps each job record as one JSON string value. Create uses SET NX;
// updates run a WATCH/MULTI read-modify-write so concurrent writers never lose
// a history entry.
type JobStore struct {
	client redis.UniversalClient
	keys   keyspace
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewJobStore creates a Redis-backed job record store.
func NewJobStore(opts JobStoreOptions) *JobStore {
	s := &JobStore{
		client: opts.Client,
		keys:   newKeyspace(opts.KeyPrefix),
		ttl:    opts.TTL,
		now:    opts.Now,
		logger: opts.Logger,
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "redis_job_store")
	return s
}

func (s *JobStore) recordKey(jobID string) string {
	return s.keys.key("job", jobID)
}

// Create stores a new queued record, failing with AlreadyExists on collision.
func (s *JobStore) Create(ctx context.Context, jobID string, request json.RawMessage) (*model.JobRecord, error) {
	if jobID == "" {
		return nil, apperrors.ValidationField("job_id", "invalid job id")
	}
	rec := model.NewJobRecord(jobID, request, s.now())
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode job %s: %w", jobID, err)
	}

	err = s.client.SetArgs(ctx, s.recordKey(jobID), raw, redis.SetArgs{Mode: "NX", TTL: s.ttl}).Err()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.AlreadyExistsf("job %s already exists", jobID)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "redis create job")
	}
	return rec, nil
}

// UpdateStatus appends a history entry and moves the status forward.
func (s *JobStore) UpdateStatus(
	ctx context.Context,
	jobID string,
	status model.JobStatus,
	detail any,
) (*model.JobRecord, error) {
	return s.mutate(ctx, jobID, func(rec *model.JobRecord) error {
		return rec.ApplyStatus(status, detail, s.now())
	})
}

// SetResult stores the result descriptor.
func (s *JobStore) SetResult(ctx context.Context, jobID string, result any) (*model.JobRecord, error) {
	return s.mutate(ctx, jobID, func(rec *model.JobRecord) error {
		return rec.ApplyResult(result)
	})
}

// Complete stores the result and marks the job done in one write.
func (s *JobStore) Complete(ctx context.Context, jobID string, result, detail any) (*model.JobRecord, error) {
	return s.mutate(ctx, jobID, func(rec *model.JobRecord) error {
		return rec.ApplyCompletion(result, detail, s.now())
	})
}

// SetError stores the failure message.
func (s *JobStore) SetError(ctx context.Context, jobID, message string) (*model.JobRecord, error) {
	return s.mutate(ctx, jobID, func(rec *model.JobRecord) error {
		rec.ApplyError(message, s.now())
		return nil
	})
}

// Get returns the record or (nil, nil) when absent.
func (s *JobStore) Get(ctx context.Context, jobID string) (*model.JobRecord, error) {
	if jobID == "" {
		return nil, nil
	}
	raw, err := s.client.Get(ctx, s.recordKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "redis get job")
	}
	return decodeRecord(jobID, raw)
}

func (s *JobStore) mutate(
	ctx context.Context,
	jobID string,
	apply func(*model.JobRecord) error,
) (*model.JobRecord, error) {
	key := s.recordKey(jobID)
	var out *model.JobRecord

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return apperrors.NotFoundf("job %s not found", jobID)
		}
		if err != nil {
			return err
		}
		rec, err := decodeRecord(jobID, raw)
		if err != nil {
			return err
		}
		if err := apply(rec); err != nil {
			return err
		}
		next, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode job %s: %w", jobID, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, next, redis.SetArgs{KeepTTL: true})
			return nil
		})
		if err == nil {
			out = rec
		}
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "redis update job")
	}
	s.logger.Warn("job update kept conflicting", "job_id", jobID, "attempts", maxTxRetries)
	return nil, apperrors.Timeoutf("job %s: too much contention updating record", jobID)
}

func decodeRecord(jobID string, raw []byte) (*model.JobRecord, error) {
	var rec model.JobRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "decode job record %s", jobID)
	}
	return &rec, nil
}
