package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cutline/cutline-jobs/internal/core"
	"github.com/cutline/cutline-jobs/internal/data/pgxutil"
	"github.com/cutline/cutline-jobs/internal/domain/model"
	apperrors "github.com/cutline/cutline-jobs/internal/errors"
)

var _ core.JobRecordStore = (*PostgresJobStore)(nil)

const jobRecordColumns = `job_id, created_at, status, request, history, result, error`

// PostgresJobStore keeps job records in the job_records table.
// Mutations lock the row with SELECT ... FOR UPDATE, so concurrent writers
// from any process serialize on the database.
type PostgresJobStore struct {
	db    *sql.DB
	clock TimeProvider
}

// NewPostgresJobStore wraps an open pgx-backed *sql.DB.
func NewPostgresJobStore(db *sql.DB, clock TimeProvider) *PostgresJobStore {
	return &PostgresJobStore{db: db, clock: timeProviderOrDefault(clock)}
}

// Create inserts a queued record; a duplicate id maps to AlreadyExists.
func (s *PostgresJobStore) Create(ctx context.Context, jobID string, request json.RawMessage) (*model.JobRecord, error) {
	rec := model.NewJobRecord(jobID, request, s.now())
	history, err := json.Marshal(rec.History)
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO job_records (job_id, created_at, updated_at, status, request, history)
		VALUES ($1, $2, $2, $3, $4::jsonb, $5::jsonb)`,
		rec.JobID, rec.CreatedAt, string(rec.Status), string(rec.Request), string(history),
	)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return rec, nil
}

// UpdateStatus appends a history entry and moves the status forward.
func (s *PostgresJobStore) UpdateStatus(
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
func (s *PostgresJobStore) SetResult(ctx context.Context, jobID string, result any) (*model.JobRecord, error) {
	return s.mutate(ctx, jobID, func(rec *model.JobRecord) error {
		return rec.ApplyResult(result)
	})
}

// Complete stores the result and marks the job done in one write.
func (s *PostgresJobStore) Complete(ctx context.Context, jobID string, result, detail any) (*model.JobRecord, error) {
	return s.mutate(ctx, jobID, func(rec *model.JobRecord) error {
		return rec.ApplyCompletion(result, detail, s.now())
	})
}

// SetError stores the failure message.
func (s *PostgresJobStore) SetError(ctx context.Context, jobID, message string) (*model.JobRecord, error) {
	return s.mutate(ctx, jobID, func(rec *model.JobRecord) error {
		rec.ApplyError(message, s.now())
		return nil
	})
}

// Get returns the record or (nil, nil) when absent.
func (s *PostgresJobStore) Get(ctx context.Context, jobID string) (*model.JobRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobRecordColumns+` FROM job_records WHERE job_id = $1`, jobID)
	rec, err := scanJobRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}
	return rec, nil
}

func (s *PostgresJobStore) mutate(
	ctx context.Context,
	jobID string,
	apply func(*model.JobRecord) error,
) (*model.JobRecord, error) {
	var out *model.JobRecord
	err := pgxutil.WithPgxTx(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT `+jobRecordColumns+` FROM job_records WHERE job_id = $1 FOR UPDATE`, jobID)
		rec, err := scanJobRecord(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFoundf("job %s not found", jobID)
		}
		if err != nil {
			return apperrors.MapDBError(err)
		}

		if err := apply(rec); err != nil {
			return err
		}

		history, err := json.Marshal(rec.History)
		if err != nil {
			return fmt.Errorf("encode history: %w", err)
		}
		var jobErr *string
		if rec.Error != nil {
			raw, mErr := json.Marshal(rec.Error)
			if mErr != nil {
				return fmt.Errorf("encode error: %w", mErr)
			}
			v := string(raw)
			jobErr = &v
		}
		var result *string
		if rec.HasResult() {
			v := string(rec.Result)
			result = &v
		}

		if _, err := tx.Exec(ctx, `
			UPDATE job_records
			SET status = $2, history = $3::jsonb, result = $4::jsonb, error = $5::jsonb, updated_at = $6
			WHERE job_id = $1`,
			rec.JobID, string(rec.Status), string(history), result, jobErr, s.now(),
		); err != nil {
			return apperrors.MapDBError(err)
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// now truncates to the microsecond precision of TIMESTAMPTZ so returned and re-read records agree.
func (s *PostgresJobStore) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJobRecord(row rowScanner) (*model.JobRecord, error) {
	var (
		rec                         model.JobRecord
		status                      string
		request, history, res, jErr []byte
	)
	if err := row.Scan(&rec.JobID, &rec.CreatedAt, &status, &request, &history, &res, &jErr); err != nil {
		return nil, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.Status = model.JobStatus(status)
	rec.Request = json.RawMessage(request)
	if len(res) > 0 {
		rec.Result = json.RawMessage(res)
	} else {
		rec.Result = json.RawMessage("null")
	}
	if err := json.Unmarshal(history, &rec.History); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "decode history of job %s", rec.JobID)
	}
	if len(jErr) > 0 && string(jErr) != "null" {
		rec.Error = &model.JobError{}
		if err := json.Unmarshal(jErr, rec.Error); err != nil {
			return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "decode error of job %s", rec.JobID)
		}
	}
	return &rec, nil
}
