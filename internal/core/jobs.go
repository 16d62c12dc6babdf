// Package core declares the ports between the job orchestration services and their adapters.
package core

import (
	"encoding/json"
	"time"

	"github.com/cutline/cutline-jobs/internal/domain/model"
)

// QueueOutcome is the terminal state of a queued work item.
type QueueOutcome string

const (
	// QueueStatusQueued means the item waits in the list.
	QueueStatusQueued QueueOutcome = "queued"
	// QueueStatusDeferred means the item waits in the delayed set for a retry.
	QueueStatusDeferred QueueOutcome = "deferred"
	// QueueStatusStarted means a worker dequeued the item.
	QueueStatusStarted QueueOutcome = "started"
	// QueueStatusFinished means the worker completed the item.
	QueueStatusFinished QueueOutcome = "finished"
	// QueueStatusFailed means the worker gave up on the item.
	QueueStatusFailed QueueOutcome = "failed"
)

// QueueMessage is the unit handed from the job manager to a worker.
type QueueMessage struct {
	JobID   string          `json:"job_id"`
	Kind    model.JobKind   `json:"kind"`
	Payload json.RawMessage `json:"payload"`
	// Timeout bounds one execution attempt.
	Timeout time.Duration `json:"timeout"`
	// Attempt counts permit-contention retries, starting at 0.
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// QueueEntry is the queue backend's own view of a job, used before the
// executor writes its first status.
type QueueEntry struct {
	JobID      string
	Status     QueueOutcome
	EnqueuedAt time.Time
	StartedAt  *time.Time
	EndedAt    *time.Time
	Error      string
}

// JobStatus maps the queue view onto the job lifecycle.
func (e QueueEntry) JobStatus() model.JobStatus {
	switch e.Status {
	case QueueStatusStarted:
		return model.JobStatusAnalyzing
	case QueueStatusFinished:
		return model.JobStatusDone
	case QueueStatusFailed:
		return model.JobStatusFailed
	default:
		return model.JobStatusQueued
	}
}

// RateDecision is the outcome of one admission check.
type RateDecision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RenderRequest describes one ffmpeg render.
type RenderRequest struct {
	VideoPath  string
	MusicPath  string
	OutputPath string
	// VideoImpact is the moment in the video that should line up with MusicImpact in the track.
	VideoImpact float64
	MusicImpact float64
	// TrimStart/TrimDuration cut the video before muxing when TrimDuration > 0.
	TrimStart    float64
	TrimDuration float64
}
