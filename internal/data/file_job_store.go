package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cutline/cutline-jobs/internal/core"
	"github.com/cutline/cutline-jobs/internal/domain/model"
	apperrors "github.com/cutline/cutline-jobs/internal/errors"
)

var _ core.JobRecordStore = (*FileJobStore)(nil)

// FileJobStoreOptions configures a FileJobStore.
type FileJobStoreOptions struct {
	Dir          string // required
	TimeProvider TimeProvider
	Logger       *slog.Logger
}

// FileJobStore keeps one JSON document per job in Dir. Every write goes to a
// temporary file in the same directory that is then renamed over <id>.json,
// so readers see either the previous or the next complete record. Create
// hard-links the temporary file instead, so only one writer can claim an id.
type FileJobStore struct {
	dir    string
	clock  TimeProvider
	logger *slog.Logger

	// mu serializes read-modify-write cycles of this process.
	mu sync.Mutex
}

// NewFileJobStore creates the directory if needed and returns the store.
func NewFileJobStore(opts FileJobStoreOptions) (*FileJobStore, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("file job store: dir is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("file job store: create %s: %w", opts.Dir, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FileJobStore{
		dir:    opts.Dir,
		clock:  timeProviderOrDefault(opts.TimeProvider),
		logger: logger.With("component", "file_job_store"),
	}, nil
}

// Create writes a new queued record.
func (s *FileJobStore) Create(_ context.Context, jobID string, request json.RawMessage) (*model.JobRecord, error) {
	path, err := s.pathFor(jobID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := model.NewJobRecord(jobID, request, s.clock.Now())
	tmpName, err := s.writeTemp(rec)
	if err != nil {
		return nil, err
	}
	defer s.removeTemp(tmpName)

	// Link fails when path exists, which makes the claim atomic across
	// processes sharing the directory.
	if err := os.Link(tmpName, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, apperrors.AlreadyExistsf("job %s already exists", jobID)
		}
		return nil, fmt.Errorf("create job %s: %w", jobID, err)
	}
	return rec, nil
}

// UpdateStatus appends a history entry and moves the status forward.
func (s *FileJobStore) UpdateStatus(
	ctx context.Context,
	jobID string,
	status model.JobStatus,
	detail any,
) (*model.JobRecord, error) {
	return s.mutate(ctx, jobID, func(rec *model.JobRecord) error {
		return rec.ApplyStatus(status, detail, s.clock.Now())
	})
}

// SetResult stores the result descriptor.
func (s *FileJobStore) SetResult(ctx context.Context, jobID string, result any) (*model.JobRecord, error) {
	return s.mutate(ctx, jobID, func(rec *model.JobRecord) error {
		return rec.ApplyResult(result)
	})
}

// Complete stores the result and marks the job done in one write.
func (s *FileJobStore) Complete(ctx context.Context, jobID string, result, detail any) (*model.JobRecord, error) {
	return s.mutate(ctx, jobID, func(rec *model.JobRecord) error {
		return rec.ApplyCompletion(result, detail, s.clock.Now())
	})
}

// SetError stores the failure message.
func (s *FileJobStore) SetError(ctx context.Context, jobID, message string) (*model.JobRecord, error) {
	return s.mutate(ctx, jobID, func(rec *model.JobRecord) error {
		rec.ApplyError(message, s.clock.Now())
		return nil
	})
}

// Get returns the record or (nil, nil) when absent.
func (s *FileJobStore) Get(_ context.Context, jobID string) (*model.JobRecord, error) {
	path, err := s.pathFor(jobID)
	if err != nil {
		// An id that cannot name a file cannot exist in this store.
		return nil, nil //nolint:nilerr // unknown ids are reported as absent
	}
	return s.read(path)
}

func (s *FileJobStore) mutate(
	_ context.Context,
	jobID string,
	apply func(*model.JobRecord) error,
) (*model.JobRecord, error) {
	path, err := s.pathFor(jobID)
	if err != nil {
		return nil, apperrors.NotFoundf("job %s not found", jobID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.read(path)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperrors.NotFoundf("job %s not found", jobID)
	}
	if err := apply(rec); err != nil {
		return nil, err
	}
	if err := s.write(path, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *FileJobStore) read(path string) (*model.JobRecord, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var rec model.JobRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "decode job record %s", filepath.Base(path))
	}
	return &rec, nil
}

func (s *FileJobStore) write(path string, rec *model.JobRecord) error {
	tmpName, err := s.writeTemp(rec)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		s.removeTemp(tmpName)
		return fmt.Errorf("replace job %s: %w", rec.JobID, err)
	}
	return nil
}

// writeTemp writes rec to a synced temporary file in the store directory and
// returns its name.
func (s *FileJobStore) writeTemp(rec *model.JobRecord) (string, error) {
	raw, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode job %s: %w", rec.JobID, err)
	}

	tmp, err := os.CreateTemp(s.dir, rec.JobID+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp for job %s: %w", rec.JobID, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		s.removeTemp(tmpName)
		return "", fmt.Errorf("write job %s: %w", rec.JobID, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		s.removeTemp(tmpName)
		return "", fmt.Errorf("sync job %s: %w", rec.JobID, err)
	}
	if err := tmp.Close(); err != nil {
		s.removeTemp(tmpName)
		return "", fmt.Errorf("close job %s: %w", rec.JobID, err)
	}
	return tmpName, nil
}

func (s *FileJobStore) removeTemp(name string) {
	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("failed to remove temp record", "path", name, "error", err)
	}
}

func (s *FileJobStore) pathFor(jobID string) (string, error) {
	if !ValidJobID(jobID) {
		return "", apperrors.ValidationField("job_id", "invalid job id")
	}
	return filepath.Join(s.dir, jobID+".json"), nil
}

// ValidJobID reports whether id is safe to use as a file name or key suffix.
func ValidJobID(id string) bool {
	if id == "" || len(id) > 128 || strings.HasPrefix(id, ".") {
		return false
	}
	for _, r := range id {
		ok := r == '-' || r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return false
		}
	}
	return true
}
