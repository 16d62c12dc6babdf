package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/cutline/cutline-jobs/internal/errors"
)

// errorStatus maps application error codes to HTTP status and wire code.
//
//nolint:gochecknoglobals // static read-only lookup
var errorStatus = map[apperrors.ErrorCode]struct {
	status int
	code   string
}{
	apperrors.ErrCodeValidation:        {http.StatusBadRequest, ErrCodeValidation},
	apperrors.ErrCodeNotFound:          {http.StatusNotFound, ErrCodeNotFound},
	apperrors.ErrCodeAlreadyExists:     {http.StatusConflict, ErrCodeConflict},
	apperrors.ErrCodeInvalidTransition: {http.StatusConflict, ErrCodeConflict},
	apperrors.ErrCodeTimeout:           {http.StatusGatewayTimeout, ErrCodeTimeout},
	apperrors.ErrCodeUnavailable:       {http.StatusServiceUnavailable, ErrCodeUnavailable},
	apperrors.ErrCodeExternalFailure:   {http.StatusBadGateway, ErrCodeUpstreamError},
}

// DetermineErrorStatus returns the HTTP status and wire error code for err.
// Database errors are mapped through apperrors.MapDBError first; anything
// unrecognized is a 500.
func DetermineErrorStatus(err error) (int, string) {
	if err == nil {
		return http.StatusOK, ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, ErrCodeTimeout
	}

	code := apperrors.GetCode(err)
	if code == "" {
		code = apperrors.GetCode(apperrors.MapDBError(err))
	}
	if m, ok := errorStatus[code]; ok {
		return m.status, m.code
	}
	return http.StatusInternalServerError, ErrCodeInternal
}

// RenderError writes err as a JSON error body. Internal errors are logged
// and their message is replaced so implementation details stay server-side.
func RenderError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code := DetermineErrorStatus(err)
	params := ErrorParams{Code: status, ErrCode: code, Err: err, Field: apperrors.GetField(err)}

	if status >= http.StatusInternalServerError {
		if logger == nil {
			logger = slog.Default()
		}
		logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
	}
	if status == http.StatusInternalServerError {
		params.Err = errors.New("internal server error")
	}
	WriteError(w, params)
}
