// Package httpx exposes the cutline job API over HTTP.
package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cutline/cutline-jobs/config"
	domainjob "github.com/cutline/cutline-jobs/internal/domain/job"
	"github.com/cutline/cutline-jobs/internal/domain/model"
)

// JobService is the part of service.JobManager the handlers depend on.
type JobService interface {
	Submit(ctx context.Context, kind domainjob.Kind) (string, error)
	Get(ctx context.Context, jobID string) (*model.JobRecord, error)
	Mode() config.ExecutionMode
}

// JobHandlers provides HTTP handlers for job submission and polling.
type JobHandlers struct {
	Svc    JobService
	Logger *slog.Logger
}

// SubmitResponse is returned for accepted async submissions.
type SubmitResponse struct {
	JobID  string          `json:"job_id"`
	Status model.JobStatus `json:"status"`
}

// SubmitEdit handles POST /api/jobs/edit.
func (h *JobHandlers) SubmitEdit(w http.ResponseWriter, r *http.Request) {
	var spec domainjob.EditSpec
	if !DecodeJSON(w, r, &spec) {
		return
	}
	h.submit(w, r, spec)
}

// SubmitClipRender handles POST /api/jobs/clip-render.
func (h *JobHandlers) SubmitClipRender(w http.ResponseWriter, r *http.Request) {
	var spec domainjob.ClipRenderSpec
	if !DecodeJSON(w, r, &spec) {
		return
	}
	h.submit(w, r, spec)
}

// submit answers 202 with the job id in async mode. In sync mode the job has
// already finished when Submit returns, so the full record is sent with 200.
func (h *JobHandlers) submit(w http.ResponseWriter, r *http.Request, kind domainjob.Kind) {
	jobID, err := h.Svc.Submit(r.Context(), kind)
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}

	if h.Svc.Mode() == config.ExecutionModeSync {
		rec, err := h.Svc.Get(r.Context(), jobID)
		if err != nil {
			RenderError(w, r, h.Logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, rec)
		return
	}

	w.Header().Set("Location", "/api/jobs/"+jobID)
	WriteJSON(w, http.StatusAccepted, SubmitResponse{JobID: jobID, Status: model.JobStatusQueued})
}

// GetJob handles GET /api/jobs/{id}.
func (h *JobHandlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(r.PathValue("id"))
	if jobID == "" {
		WriteError(
			w,
			ErrorParams{Code: http.StatusBadRequest, ErrCode: ErrCodeInvalidPath, Err: errors.New("job id is required")},
		)
		return
	}

	rec, err := h.Svc.Get(r.Context(), jobID)
	if err != nil {
		RenderError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}
