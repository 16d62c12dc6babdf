// Package model defines the core data types shared by the cutline job stores, executor and API.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/cutline/cutline-jobs/internal/errors"
)

// JobKind identifies which executor variant runs a job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobKind string

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobKindEdit combines one downloaded video with one music track.
	JobKindEdit JobKind = "edit"
	// JobKindClipRender renders several trimmed variants of an ingested video.
	JobKindClipRender JobKind = "clip_render"

	// JobStatusQueued indicates the job was accepted and waits for a worker.
	JobStatusQueued JobStatus = "queued"
	// JobStatusAnalyzing indicates inputs are being fetched and validated.
	JobStatusAnalyzing JobStatus = "analyzing"
	// JobStatusRendering indicates the render toolchain is running.
	JobStatusRendering JobStatus = "rendering"
	// JobStatusDone indicates the job produced its result.
	JobStatusDone JobStatus = "done"
	// JobStatusFailed indicates the job ended with an error.
	JobStatusFailed JobStatus = "failed"
)

// UnmarshalText implements encoding.TextUnmarshaler for JobKind.
func (k *JobKind) UnmarshalText(text []byte) error {
	v := JobKind(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid JobKind: %q", v)
	}
	*k = v
	return nil
}

// Valid returns true if the JobKind is known.
func (k JobKind) Valid() bool {
	return k == JobKindEdit || k == JobKindClipRender
}

// Valid returns true if the JobStatus is known.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusAnalyzing, JobStatusRendering, JobStatusDone, JobStatusFailed:
		return true
	}
	return false
}

// Rank orders statuses along queued < analyzing < rendering < {done, failed}.
// Unknown statuses rank -1.
func (s JobStatus) Rank() int {
	switch s {
	case JobStatusQueued:
		return 0
	case JobStatusAnalyzing:
		return 1
	case JobStatusRendering:
		return 2
	case JobStatusDone, JobStatusFailed:
		return 3
	}
	return -1
}

// IsTerminal reports whether no further transitions are permitted.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// CanTransitionTo reports whether a job in status s may move to next.
// Re-entering the same non-terminal status is allowed so progress detail can be appended.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if !next.Valid() || s.IsTerminal() {
		return false
	}
	if next == JobStatusFailed {
		return true
	}
	return next.Rank() >= s.Rank()
}

// HistoryEntry is one append-only step of a job's lifecycle.
type HistoryEntry struct {
	Status    JobStatus       `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
	Detail    json.RawMessage `json:"detail,omitempty"`
}

// JobError describes why a job failed.
type JobError struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// JobRecord is the persisted state of one job.
type JobRecord struct {
	JobID     string          `json:"job_id"`
	CreatedAt time.Time       `json:"created_at"`
	Status    JobStatus       `json:"status"`
	Request   json.RawMessage `json:"request"`
	History   []HistoryEntry  `json:"history"`
	Result    json.RawMessage `json:"result"`
	Error     *JobError       `json:"error"`
}

// InitialDetail is the detail recorded on the first history entry.
const InitialDetail = "job enqueued"

// NewJobRecord builds a freshly queued record with a one-entry history.
func NewJobRecord(jobID string, request json.RawMessage, now time.Time) *JobRecord {
	if len(request) == 0 {
		request = json.RawMessage("{}")
	}
	now = now.UTC()
	return &JobRecord{
		JobID:     jobID,
		CreatedAt: now,
		Status:    JobStatusQueued,
		Request:   request,
		History: []HistoryEntry{{
			Status:    JobStatusQueued,
			Timestamp: now,
			Detail:    mustDetail(InitialDetail),
		}},
		Result: json.RawMessage("null"),
	}
}

// ApplyStatus appends a history entry for next and then moves Status forward.
// It rejects transitions out of terminal states and backwards moves.
func (r *JobRecord) ApplyStatus(next JobStatus, detail any, now time.Time) error {
	if !r.Status.CanTransitionTo(next) {
		return apperrors.InvalidTransitionf("job %s: cannot move from %s to %s", r.JobID, r.Status, next)
	}
	raw, err := EncodeDetail(detail)
	if err != nil {
		return err
	}
	r.History = append(r.History, HistoryEntry{Status: next, Timestamp: now.UTC(), Detail: raw})
	r.Status = next
	return nil
}

// ApplyResult stores the result descriptor.
func (r *JobRecord) ApplyResult(result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeValidation, "encode job result")
	}
	r.Result = raw
	return nil
}

// ApplyCompletion stores result and moves the record to done in one step, so
// no reader sees a result on a record that is still in progress.
func (r *JobRecord) ApplyCompletion(result, detail any, now time.Time) error {
	if !r.Status.CanTransitionTo(JobStatusDone) {
		return apperrors.InvalidTransitionf("job %s: cannot move from %s to %s", r.JobID, r.Status, JobStatusDone)
	}
	if err := r.ApplyResult(result); err != nil {
		return err
	}
	return r.ApplyStatus(JobStatusDone, detail, now)
}

// ApplyError stores the failure message.
func (r *JobRecord) ApplyError(message string, now time.Time) {
	r.Error = &JobError{Message: message, Timestamp: now.UTC()}
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (r *JobRecord) Clone() *JobRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Request = append(json.RawMessage(nil), r.Request...)
	out.Result = append(json.RawMessage(nil), r.Result...)
	out.History = make([]HistoryEntry, len(r.History))
	for i, h := range r.History {
		h.Detail = append(json.RawMessage(nil), h.Detail...)
		out.History[i] = h
	}
	if r.Error != nil {
		e := *r.Error
		out.Error = &e
	}
	return &out
}

// HasResult reports whether a non-null result was stored.
func (r *JobRecord) HasResult() bool {
	return len(r.Result) > 0 && string(r.Result) != "null"
}

// EncodeDetail converts a history detail into raw JSON. A nil detail encodes as empty.
func EncodeDetail(detail any) (json.RawMessage, error) {
	switch d := detail.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return d, nil
	case string:
		if d == "" {
			return nil, nil
		}
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "encode history detail")
	}
	return raw, nil
}

func mustDetail(s string) json.RawMessage {
	raw, _ := json.Marshal(s)
	return raw
}
