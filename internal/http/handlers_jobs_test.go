package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cutline/cutline-jobs/config"
	domainjob "github.com/cutline/cutline-jobs/internal/domain/job"
	"github.com/cutline/cutline-jobs/internal/domain/model"
	apperrors "github.com/cutline/cutline-jobs/internal/errors"
)

type fakeJobService struct {
	mode      config.ExecutionMode
	submitted []domainjob.Kind
	submitErr error
	records   map[string]*model.JobRecord
}

func newFakeJobService(mode config.ExecutionMode) *fakeJobService {
	return &fakeJobService{mode: mode, records: map[string]*model.JobRecord{}}
}

func (f *fakeJobService) Submit(_ context.Context, kind domainjob.Kind) (string, error) {
	if err := kind.Validate(); err != nil {
		return "", err
	}
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, kind)
	id := "job-" + string(rune('a'+len(f.submitted)-1))
	rec := model.NewJobRecord(id, nil, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if f.mode == config.ExecutionModeSync {
		_ = rec.ApplyStatus(model.JobStatusDone, "edit complete", rec.CreatedAt)
	}
	f.records[id] = rec
	return id, nil
}

func (f *fakeJobService) Get(_ context.Context, jobID string) (*model.JobRecord, error) {
	if rec, ok := f.records[jobID]; ok {
		return rec, nil
	}
	return nil, apperrors.NotFoundf("job %s not found", jobID)
}

func (f *fakeJobService) Mode() config.ExecutionMode { return f.mode }

func postJSON(t *testing.T, h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSubmitEditAsyncAccepted(t *testing.T) {
	svc := newFakeJobService(config.ExecutionModeAsync)
	h := &JobHandlers{Svc: svc}

	rec := postJSON(t, h.SubmitEdit, PathSubmitEdit,
		`{"url":"https://example.com/v","music":"track","impact_video":1.5,"impact_music":3}`)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "/api/jobs/job-a", rec.Header().Get("Location"))
	var got SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, SubmitResponse{JobID: "job-a", Status: model.JobStatusQueued}, got)

	require.Len(t, svc.submitted, 1)
	assert.Equal(t, domainjob.EditSpec{
		URL: "https://example.com/v", Music: "track", VideoImpact: 1.5, MusicImpact: 3,
	}, svc.submitted[0])
}

func TestSubmitEditSyncReturnsRecord(t *testing.T) {
	h := &JobHandlers{Svc: newFakeJobService(config.ExecutionModeSync)}

	rec := postJSON(t, h.SubmitEdit, PathSubmitEdit, `{"url":"https://example.com/v","music":"track"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var got model.JobRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "job-a", got.JobID)
	assert.Equal(t, model.JobStatusDone, got.Status)
	assert.Len(t, got.History, 2)
}

func TestSubmitClipRender(t *testing.T) {
	svc := newFakeJobService(config.ExecutionModeAsync)
	h := &JobHandlers{Svc: svc}

	body := `{"video_ingest_id":"ing1","clips":[{"clip_id":"c1","option_order":1,"music":"calm","video_start_seconds":2,"video_end_seconds":5}]}`
	rec := postJSON(t, h.SubmitClipRender, PathSubmitClipRender, body)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, svc.submitted, 1)
	spec, ok := svc.submitted[0].(domainjob.ClipRenderSpec)
	require.True(t, ok)
	assert.Equal(t, "ing1", spec.VideoIngestID)
	start, dur, trimmed := spec.Clips[0].Trim()
	assert.True(t, trimmed)
	assert.InDelta(t, 2.0, start, 1e-9)
	assert.InDelta(t, 3.0, dur, 1e-9)
}

func TestSubmitValidationErrors(t *testing.T) {
	h := &JobHandlers{Svc: newFakeJobService(config.ExecutionModeAsync)}

	tests := []struct {
		name    string
		handler http.HandlerFunc
		body    string
		code    int
		errCode string
		field   string
	}{
		{"malformed json", h.SubmitEdit, `{bad`, http.StatusBadRequest, ErrCodeInvalidJSON, ""},
		{"empty body", h.SubmitEdit, ``, http.StatusBadRequest, ErrCodeInvalidJSON, ""},
		{"unknown field", h.SubmitEdit, `{"url":"https://e.com","music":"m","extra":1}`, http.StatusBadRequest, ErrCodeInvalidJSON, ""},
		{"trailing data", h.SubmitEdit, `{"url":"https://e.com","music":"m"}{}`, http.StatusBadRequest, ErrCodeInvalidJSON, ""},
		{"missing url", h.SubmitEdit, `{"music":"m"}`, http.StatusBadRequest, ErrCodeValidation, "url"},
		{"path traversal", h.SubmitEdit, `{"url":"https://e.com","music":"../etc"}`, http.StatusBadRequest, ErrCodeValidation, "music"},
		{"no clips", h.SubmitClipRender, `{"video_ingest_id":"x","clips":[]}`, http.StatusBadRequest, ErrCodeValidation, "clips"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, tt.handler, "/", tt.body)
			require.Equal(t, tt.code, rec.Code)
			body := decodeError(t, rec)
			assert.Equal(t, tt.errCode, body.Error)
			assert.Equal(t, tt.field, body.Field)
		})
	}
}

func TestSubmitBackendUnavailable(t *testing.T) {
	svc := newFakeJobService(config.ExecutionModeAsync)
	svc.submitErr = apperrors.New(apperrors.ErrCodeUnavailable, "job queue is full")
	h := &JobHandlers{Svc: svc}

	rec := postJSON(t, h.SubmitEdit, PathSubmitEdit, `{"url":"https://example.com/v","music":"track"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, ErrCodeUnavailable, decodeError(t, rec).Error)
}

func TestGetJob(t *testing.T) {
	svc := newFakeJobService(config.ExecutionModeAsync)
	id, err := svc.Submit(context.Background(), domainjob.EditSpec{URL: "https://e.com/v", Music: "m"})
	require.NoError(t, err)

	mux := http.NewServeMux()
	h := &JobHandlers{Svc: svc}
	mux.HandleFunc("GET "+PathJob, h.GetJob)

	t.Run("found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/"+id, nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var got model.JobRecord
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, id, got.JobID)
		assert.Equal(t, model.JobStatusQueued, got.Status)
	})

	t.Run("unknown", func(t *testing.T) {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, ErrCodeNotFound, decodeError(t, rec).Error)
	})

	t.Run("blank id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/jobs/%20", nil)
		req.SetPathValue("id", " ")
		rec := httptest.NewRecorder()
		h.GetJob(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDecodeJSONBodyTooLarge(t *testing.T) {
	big := bytes.Repeat([]byte("a"), 64)
	body := `{"url":"https://e.com/` + string(big) + `","music":"m"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rec, req.Body, 16)

	var spec domainjob.EditSpec
	assert.False(t, DecodeJSON(rec, req, &spec))
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, ErrCodeBodyTooLarge, decodeError(t, rec).Error)
}
