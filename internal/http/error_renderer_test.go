package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/cutline/cutline-jobs/internal/errors"
)

func TestDetermineErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"nil", nil, http.StatusOK, ""},
		{"validation", apperrors.ValidationField("url", "bad"), http.StatusBadRequest, ErrCodeValidation},
		{"not found", apperrors.NotFoundf("job x not found"), http.StatusNotFound, ErrCodeNotFound},
		{"wrapped not found", fmt.Errorf("get job: %w", apperrors.NotFoundf("x")), http.StatusNotFound, ErrCodeNotFound},
		{"already exists", apperrors.AlreadyExistsf("dup"), http.StatusConflict, ErrCodeConflict},
		{"invalid transition", apperrors.InvalidTransitionf("back"), http.StatusConflict, ErrCodeConflict},
		{"timeout", apperrors.Timeoutf("slow"), http.StatusGatewayTimeout, ErrCodeTimeout},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, ErrCodeTimeout},
		{"unavailable", apperrors.New(apperrors.ErrCodeUnavailable, "down"), http.StatusServiceUnavailable, ErrCodeUnavailable},
		{"external", apperrors.ExternalFailuref("yt-dlp"), http.StatusBadGateway, ErrCodeUpstreamError},
		{"unique violation", &pgconn.PgError{Code: pgerrcode.UniqueViolation}, http.StatusConflict, ErrCodeConflict},
		{"plain", errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := DetermineErrorStatus(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestRenderErrorHidesInternalMessages(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/x", nil)

	RenderError(rec, req, nil, errors.New("open /srv/runtime/jobs/x.json: permission denied"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body.Message)
}

func TestRenderErrorCarriesField(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/jobs/edit", nil)

	RenderError(rec, req, nil, apperrors.ValidationField("music", "music asset not found: x"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, errorBody{Error: ErrCodeValidation, Message: "music asset not found: x", Field: "music"}, body)
}
