package httpx

// Machine-readable error codes returned in the "error" field of JSON error bodies.
const (
	ErrCodeInvalidJSON   = "invalid_json"
	ErrCodeInvalidPath   = "invalid_path"
	ErrCodeRateLimited   = "rate_limited"
	ErrCodeBodyTooLarge  = "body_too_large"
	ErrCodeInternal      = "internal_error"
	ErrCodeNotFound      = "not_found"
	ErrCodeValidation    = "validation_failed"
	ErrCodeUnavailable   = "unavailable"
	ErrCodeTimeout       = "timeout"
	ErrCodeConflict      = "conflict"
	ErrCodeUpstreamError = "external_failure"
)

// Route paths.
const (
	PathSubmitEdit       = "/api/jobs/edit"
	PathSubmitClipRender = "/api/jobs/clip-render"
	PathJob              = "/api/jobs/{id}"
	PathHealth           = "/healthz"
	PathReady            = "/readyz"
	PathVideos           = "/videos/"
)

// HeaderRequestID carries the per-request correlation id.
const HeaderRequestID = "X-Request-ID"
