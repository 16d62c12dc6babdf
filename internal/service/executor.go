package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cutline/cutline-jobs/config"
	"github.com/cutline/cutline-jobs/internal/core"
	domainjob "github.com/cutline/cutline-jobs/internal/domain/job"
	"github.com/cutline/cutline-jobs/internal/domain/model"
	apperrors "github.com/cutline/cutline-jobs/internal/errors"
	obserrors "github.com/cutline/cutline-jobs/internal/observability/errors"
	"github.com/cutline/cutline-jobs/internal/observability/metrics"
	"github.com/cutline/cutline-jobs/internal/observability/notify"
	"github.com/cutline/cutline-jobs/internal/observability/statsd"
	"github.com/cutline/cutline-jobs/internal/service/failurenotifier"
)

// ErrRenderSlotBusy is wrapped in the Timeout error returned when the render
// permit could not be acquired in time. The job stays non-terminal.
var ErrRenderSlotBusy = errors.New("render slot busy")

// IsRenderSlotBusy reports whether err means "try again later" rather than failure.
func IsRenderSlotBusy(err error) bool {
	return errors.Is(err, ErrRenderSlotBusy)
}

// History details written by the executor.
const (
	DetailStartingAnalysis    = "starting analysis"
	DetailRendering           = "rendering"
	DetailWaitingForSlot      = "waiting for render slot"
	DetailEditComplete        = "edit complete"
	MessageSlotUnavailable    = "render slot unavailable"
	MessageSessionFileMissing = "session file not found"
)

// JobExecutor runs one job to a terminal state, or returns a render-slot
// Timeout leaving it non-terminal.
type JobExecutor interface {
	Run(ctx context.Context, jobID string, kind domainjob.Kind) error
	MarkFailed(ctx context.Context, jobID string, kind model.JobKind, message string) error
}

// ExecutorOptions groups dependencies for Executor.
type ExecutorOptions struct {
	Store      core.JobRecordStore // Required
	Permit     core.Permit         // Required
	Downloader core.Downloader     // Required
	Renderer   core.Renderer       // Required
	Assets     core.AssetResolver  // Required

	Media config.MediaConfig // Required: ProcessedDir, SessionFile, PublicURLPrefix
	// PermitTimeout bounds one wait for the render slot; defaults to 5s.
	PermitTimeout time.Duration
	// Mode tags metrics and notifications with the execution mode.
	Mode config.ExecutionMode

	Logger          *slog.Logger             // Optional
	Metrics         statsd.Sink              // Optional
	FailureNotifier *failurenotifier.Service // Optional
	Now             func() time.Time         // Optional
}

// Executor drives a job through analyzing, rendering and a terminal status.
// It never deletes files; the sweeper owns cleanup.
type Executor struct {
	store      core.JobRecordStore
	permit     core.Permit
	downloader core.Downloader
	renderer   core.Renderer
	assets     core.AssetResolver

	media         config.MediaConfig
	permitTimeout time.Duration
	mode          string

	logger   *slog.Logger
	metrics  statsd.Sink
	notifier *failurenotifier.Service
	now      func() time.Time
}

var _ JobExecutor = (*Executor)(nil)

// NewExecutor constructs an Executor.
func NewExecutor(opts ExecutorOptions) (*Executor, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("JobRecordStore is required")
	case opts.Permit == nil:
		return nil, errors.New("Permit is required")
	case opts.Downloader == nil:
		return nil, errors.New("Downloader is required")
	case opts.Renderer == nil:
		return nil, errors.New("Renderer is required")
	case opts.Assets == nil:
		return nil, errors.New("AssetResolver is required")
	case strings.TrimSpace(opts.Media.ProcessedDir) == "":
		return nil, errors.New("processed directory is required")
	}

	timeout := opts.PermitTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	mode := opts.Mode
	if mode == "" {
		mode = config.ExecutionModeAsync
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Executor{
		store:         opts.Store,
		permit:        opts.Permit,
		downloader:    opts.Downloader,
		renderer:      opts.Renderer,
		assets:        opts.Assets,
		media:         opts.Media,
		permitTimeout: timeout,
		mode:          string(mode),
		logger:        logger.With("component", "executor"),
		metrics:       opts.Metrics,
		notifier:      opts.FailureNotifier,
		now:           now,
	}, nil
}

// Run executes kind for the already created record jobID.
//
// On success the record is done with a result. On a render-slot timeout the
// record keeps its status, gains a "waiting for render slot" entry, and the
// Timeout error is returned for the caller to retry. Any other error marks the
// record failed and is returned.
func (e *Executor) Run(ctx context.Context, jobID string, kind domainjob.Kind) error {
	if kind == nil {
		return apperrors.Validation("job kind is required")
	}
	start := e.now()
	jobKind := kind.JobKind()
	logger := e.logger.With("job_id", jobID, "kind", jobKind)

	var err error
	switch k := kind.(type) {
	case domainjob.EditSpec:
		err = e.runEdit(ctx, jobID, k)
	case domainjob.ClipRenderSpec:
		err = e.runClipRender(ctx, jobID, k)
	default:
		err = apperrors.Validationf("unsupported job kind %T", kind)
	}

	switch {
	case err == nil:
		logger.InfoContext(ctx, "job done", "duration", e.now().Sub(start))
		metrics.EmitJobLifecycle(e.metrics, metrics.JobMetric{
			Mode:     e.mode,
			Kind:     string(jobKind),
			Status:   string(model.JobStatusDone),
			Duration: e.now().Sub(start),
		})
		return nil

	case IsRenderSlotBusy(err):
		logger.InfoContext(ctx, "render slot busy", "timeout", e.permitTimeout)
		metrics.EmitPermitWait(e.metrics, e.mode, string(jobKind))
		wctx, cancel := detached(ctx)
		defer cancel()
		if _, uerr := e.store.UpdateStatus(wctx, jobID, model.JobStatusAnalyzing, DetailWaitingForSlot); uerr != nil {
			logger.ErrorContext(ctx, "record permit wait", "error", uerr)
		}
		return err

	default:
		logger.WarnContext(ctx, "job failed", "error", err)
		if ferr := e.fail(ctx, jobID, jobKind, err, start); ferr != nil {
			logger.ErrorContext(ctx, "record job failure", "error", ferr, "original_error", err)
		}
		return err
	}
}

// MarkFailed fails a job that will not be run again, e.g. after its permit
// retries ran out.
func (e *Executor) MarkFailed(ctx context.Context, jobID string, kind model.JobKind, message string) error {
	err := apperrors.Timeoutf("%s", message)
	return e.fail(ctx, jobID, kind, err, time.Time{})
}

func (e *Executor) fail(ctx context.Context, jobID string, kind model.JobKind, cause error, start time.Time) error {
	var duration time.Duration
	if !start.IsZero() {
		duration = e.now().Sub(start)
	}
	metrics.EmitJobLifecycle(e.metrics, metrics.JobMetric{
		Mode:     e.mode,
		Kind:     string(kind),
		Status:   string(model.JobStatusFailed),
		Duration: duration,
		Err:      cause,
	})

	wctx, cancel := detached(ctx)
	defer cancel()
	err := FailRecord(wctx, e.store, jobID, cause.Error())

	e.notifier.NotifyJobFailure(ctx, notify.JobFailurePayload{
		JobID:      jobID,
		Kind:       string(kind),
		Mode:       e.mode,
		Error:      cause.Error(),
		ErrorClass: obserrors.Classify(cause),
		OccurredAt: e.now().UTC(),
	})
	return err
}

// FailRecord stores message as the job error and moves the record to failed.
// A record that is already terminal is left alone.
func FailRecord(ctx context.Context, store core.JobRecordStore, jobID, message string) error {
	rec, err := store.Get(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job %s: %w", jobID, err)
	}
	if rec == nil {
		return apperrors.NotFoundf("job %s not found", jobID)
	}
	if rec.Status.IsTerminal() {
		return nil
	}
	if _, err := store.SetError(ctx, jobID, message); err != nil {
		return fmt.Errorf("set error on job %s: %w", jobID, err)
	}
	if _, err := store.UpdateStatus(ctx, jobID, model.JobStatusFailed, message); err != nil {
		if apperrors.IsInvalidTransition(err) {
			return nil
		}
		return fmt.Errorf("mark job %s failed: %w", jobID, err)
	}
	return nil
}

func (e *Executor) runEdit(ctx context.Context, jobID string, spec domainjob.EditSpec) error {
	if err := e.status(ctx, jobID, model.JobStatusAnalyzing, DetailStartingAnalysis); err != nil {
		return err
	}

	credentials := e.media.SessionFile
	if credentials != "" && !regularFile(credentials) {
		return apperrors.ValidationField("session_file", MessageSessionFileMissing)
	}

	videoPath, err := e.downloader.Download(ctx, spec.URL, credentials)
	if err != nil {
		return err
	}
	if !regularFile(videoPath) {
		return apperrors.ExternalFailuref("downloaded file missing: %s", filepath.Base(videoPath))
	}

	musicPath, err := e.assets.ResolveMusic(spec.Music)
	if err != nil {
		return err
	}

	release, err := e.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := e.status(ctx, jobID, model.JobStatusRendering, DetailRendering); err != nil {
		return err
	}

	output := filepath.Join(e.media.ProcessedDir, fmt.Sprintf("%s_%s.mp4", stem(videoPath), stem(spec.Music)))
	out, err := e.render(ctx, core.RenderRequest{
		VideoPath:   videoPath,
		MusicPath:   musicPath,
		OutputPath:  output,
		VideoImpact: spec.VideoImpact,
		MusicImpact: spec.MusicImpact,
	})
	if err != nil {
		return err
	}
	release()

	result, err := e.describe(out, spec.ReturnFormat.OrDefault())
	if err != nil {
		return err
	}
	if _, err := e.store.Complete(ctx, jobID, result, DetailEditComplete); err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	return nil
}

// ClipOutput is one rendered variant in a clip render result.
type ClipOutput struct {
	ClipID      string `json:"clip_id"`
	Filename    string `json:"filename"`
	VideoURL    string `json:"video_url,omitempty"`
	VideoPath   string `json:"video_path,omitempty"`
	OptionOrder int    `json:"option_order"`
}

// ClipRenderResult is the result document of a clip render job.
type ClipRenderResult struct {
	Outputs []ClipOutput `json:"outputs"`
}

type clipProgress struct {
	Message     string `json:"message"`
	ClipID      string `json:"clip_id,omitempty"`
	OptionOrder *int   `json:"option_order,omitempty"`
	Current     int    `json:"current,omitempty"`
	Total       int    `json:"total,omitempty"`
	Count       *int   `json:"count,omitempty"`
}

func (e *Executor) runClipRender(ctx context.Context, jobID string, spec domainjob.ClipRenderSpec) error {
	if err := e.status(ctx, jobID, model.JobStatusAnalyzing, DetailStartingAnalysis); err != nil {
		return err
	}

	videoPath, err := e.assets.ResolveIngest(spec.VideoIngestID)
	if err != nil {
		return err
	}
	music := make([]string, len(spec.Clips))
	for i, clip := range spec.Clips {
		if music[i], err = e.assets.ResolveMusic(clip.Music); err != nil {
			return err
		}
	}

	release, err := e.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	total := len(spec.Clips)
	if err := e.status(ctx, jobID, model.JobStatusRendering, clipProgress{Message: "rendering clips", Total: total}); err != nil {
		return err
	}

	format := spec.ReturnFormat.OrDefault()
	outputs := make([]ClipOutput, 0, total)
	for i, clip := range spec.Clips {
		order := clip.OptionOrder
		progress := clipProgress{
			Message:     "rendering clip",
			ClipID:      clip.ClipID,
			OptionOrder: &order,
			Current:     i + 1,
			Total:       total,
		}
		if err := e.status(ctx, jobID, model.JobStatusRendering, progress); err != nil {
			return err
		}

		req := core.RenderRequest{
			VideoPath:   videoPath,
			MusicPath:   music[i],
			OutputPath:  filepath.Join(e.media.ProcessedDir, clipFilename(spec.VideoIngestID, clip)),
			VideoImpact: 0,
			MusicImpact: clip.MusicStart,
		}
		if start, dur, ok := clip.Trim(); ok {
			req.TrimStart, req.TrimDuration = start, dur
		}

		out, err := e.render(ctx, req)
		if err != nil {
			return batchError(err, clip.ClipID, outputs, total)
		}
		desc, err := e.describe(out, format)
		if err != nil {
			return batchError(err, clip.ClipID, outputs, total)
		}
		outputs = append(outputs, ClipOutput{
			ClipID:      clip.ClipID,
			Filename:    desc.Filename,
			VideoURL:    desc.VideoURL,
			VideoPath:   desc.VideoPath,
			OptionOrder: clip.OptionOrder,
		})
	}
	release()

	count := len(outputs)
	done := clipProgress{Message: "clips rendered", Count: &count}
	if _, err := e.store.Complete(ctx, jobID, ClipRenderResult{Outputs: outputs}, done); err != nil {
		return fmt.Errorf("complete job %s: %w", jobID, err)
	}
	return nil
}

// batchError keeps the code of cause and names the variants that did render,
// since the batch is aborted on the first failure.
func batchError(cause error, clipID string, done []ClipOutput, total int) error {
	code := apperrors.GetCode(cause)
	if code == "" {
		code = apperrors.ErrCodeExternalFailure
	}
	rendered := make([]string, len(done))
	for i, o := range done {
		rendered[i] = o.ClipID
	}
	return apperrors.Wrapf(cause, code,
		"clip %s failed after %d of %d variants rendered [%s]",
		clipID, len(done), total, strings.Join(rendered, ","),
	)
}

func clipFilename(ingestID string, clip domainjob.ClipVariant) string {
	short := clip.ClipID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s_%d_%s.mp4", ingestID, clip.OptionOrder, short)
}

// OutputDescriptor describes a produced file in the requested return format.
type OutputDescriptor struct {
	Filename    string `json:"filename"`
	VideoURL    string `json:"video_url,omitempty"`
	VideoPath   string `json:"video_path,omitempty"`
	VideoBase64 string `json:"video_base64,omitempty"`
}

func (e *Executor) describe(path string, format domainjob.ReturnFormat) (OutputDescriptor, error) {
	desc := OutputDescriptor{Filename: filepath.Base(path)}
	switch format {
	case domainjob.ReturnFormatPath:
		desc.VideoPath = path
	case domainjob.ReturnFormatBase64:
		raw, err := os.ReadFile(path)
		if err != nil {
			return desc, apperrors.Wrap(err, apperrors.ErrCodeExternalFailure, "read rendered output")
		}
		desc.VideoBase64 = base64.StdEncoding.EncodeToString(raw)
	default:
		desc.VideoURL = e.media.PublicURLPrefix + desc.Filename
	}
	return desc, nil
}

func (e *Executor) render(ctx context.Context, req core.RenderRequest) (string, error) {
	out, err := e.renderer.Render(ctx, req)
	if err != nil {
		return "", err
	}
	if out == "" {
		out = req.OutputPath
	}
	if !regularFile(out) {
		return "", apperrors.ExternalFailuref("render produced no output")
	}
	return out, nil
}

// acquire waits for the render slot. A timeout is reported as ErrRenderSlotBusy.
func (e *Executor) acquire(ctx context.Context) (func(), error) {
	release, err := e.permit.Acquire(ctx, e.permitTimeout)
	if err != nil {
		if apperrors.IsTimeout(err) {
			return nil, apperrors.Wrap(fmt.Errorf("%w: %w", ErrRenderSlotBusy, err), apperrors.ErrCodeTimeout, DetailWaitingForSlot)
		}
		return nil, err
	}
	return release, nil
}

func (e *Executor) status(ctx context.Context, jobID string, status model.JobStatus, detail any) error {
	if _, err := e.store.UpdateStatus(ctx, jobID, status, detail); err != nil {
		return fmt.Errorf("update job %s to %s: %w", jobID, status, err)
	}
	return nil
}

// detached keeps values but drops cancellation so terminal writes still land
// when the job context has ended.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func regularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
