package core

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cutline/cutline-jobs/internal/domain/model"
)

// This file contains the port definitions (hexagonal architecture).
// Services depend on these interfaces; adapters under internal/adapters and
// internal/data implement them.

// JobRecordStore persists one record per job with atomic per-record writes.
// Get returns (nil, nil) for an unknown id; the mutators return NotFound.
type JobRecordStore interface {
	Create(ctx context.Context, jobID string, request json.RawMessage) (*model.JobRecord, error)
	UpdateStatus(ctx context.Context, jobID string, status model.JobStatus, detail any) (*model.JobRecord, error)
	SetResult(ctx context.Context, jobID string, result any) (*model.JobRecord, error)
	// Complete stores result and moves the record to done in a single write.
	Complete(ctx context.Context, jobID string, result, detail any) (*model.JobRecord, error)
	SetError(ctx context.Context, jobID, message string) (*model.JobRecord, error)
	Get(ctx context.Context, jobID string) (*model.JobRecord, error)
}

// JobQueue hands jobs to workers in async mode.
type JobQueue interface {
	Enqueue(ctx context.Context, msg QueueMessage) error
	// Dequeue blocks up to wait and returns (nil, nil) when nothing arrived.
	Dequeue(ctx context.Context, wait time.Duration) (*QueueMessage, error)
	Ack(ctx context.Context, jobID string, outcome QueueOutcome, cause string) error
	Requeue(ctx context.Context, msg QueueMessage, delay time.Duration) error
	// Status returns (nil, nil) when the queue does not know the job.
	Status(ctx context.Context, jobID string) (*QueueEntry, error)
}

// StaleJobSource is implemented by queues whose deliveries outlive the worker
// that took them. ReclaimStale removes every in-flight delivery started more
// than its timeout plus grace ago and returns it; each delivery is returned to
// exactly one caller.
type StaleJobSource interface {
	ReclaimStale(ctx context.Context, grace time.Duration) ([]QueueMessage, error)
}

// Permit is the node-wide exclusive render slot.
type Permit interface {
	// Acquire waits at most timeout. The returned release is idempotent.
	Acquire(ctx context.Context, timeout time.Duration) (release func(), err error)
}

// RateLimiter admits or rejects requests per client key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (RateDecision, error)
}

// Downloader fetches a remote video to a local file.
type Downloader interface {
	Download(ctx context.Context, url, credentialsFile string) (string, error)
}

// Renderer produces an output file from a video and a music track.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (string, error)
}

// AssetResolver maps asset names from payloads to local files.
type AssetResolver interface {
	ResolveMusic(name string) (string, error)
	ResolveIngest(ingestID string) (string, error)
}
