// Package metrics names the metrics emitted by the job services.
package metrics

import (
	"time"

	obserrors "github.com/cutline/cutline-jobs/internal/observability/errors"
	"github.com/cutline/cutline-jobs/internal/observability/statsd"
)

// Metric names.
const (
	VideoJobsTotal      = "video_jobs_total"
	VideoJobDurationMS  = "video_job_duration_ms"
	VideoJobPermitWaits = "video_job_permit_waits"

	SweeperFilesDeleted    = "sweeper.files_deleted"
	SweeperRun             = "sweeper.run"
	SweeperRunDuration     = "sweeper.run_duration"
	SweeperLastSuccessUnix = "sweeper.last_success_epoch"

	RateLimitDenied = "ratelimit.denied"

	QueueRequeued = "queue.requeued"
	QueueDropped  = "queue.dropped"
	QueueStale    = "queue.stale_failed"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// JobMetric describes one finished job execution.
type JobMetric struct {
	// Mode is the execution mode: sync or async.
	Mode string
	// Kind is the job kind: edit or clip_render.
	Kind string
	// Status is the terminal job status: done or failed.
	Status   string
	Duration time.Duration
	Err      error
}

// EmitJobLifecycle emits video_jobs_total{mode,kind,status} and
// video_job_duration_ms{mode,kind}.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"mode":   in.Mode,
		"kind":   in.Kind,
		"status": in.Status,
	}
	if in.Err != nil {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}
	sink.Count(VideoJobsTotal, 1, tags)

	if in.Duration > 0 {
		sink.Timing(VideoJobDurationMS, in.Duration, map[string]string{
			"mode": in.Mode,
			"kind": in.Kind,
		})
	}
}

// EmitPermitWait counts one job that lost the race for the render slot.
func EmitPermitWait(sink statsd.Sink, mode, kind string) {
	if sink == nil {
		return
	}
	sink.Count(VideoJobPermitWaits, 1, map[string]string{"mode": mode, "kind": kind})
}

// EmitQueueEvent counts a queue decision: requeued, dropped or failed as stale.
func EmitQueueEvent(sink statsd.Sink, name, kind, reason string) {
	if sink == nil {
		return
	}
	sink.Count(name, 1, map[string]string{"kind": kind, "reason": reason})
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
