package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/cutline/cutline-jobs/config"
	"github.com/cutline/cutline-jobs/internal/core"
	"github.com/cutline/cutline-jobs/internal/observability/statsd"
)

// RouterServices holds everything the HTTP router needs.
type RouterServices struct {
	Jobs    JobService
	Limiter core.RateLimiter // optional; nil disables rate limiting
	HTTP    config.HTTPConfig
	// OutputsDir is served under /videos/ when HTTP.ServeOutputs is set.
	OutputsDir string
	Readiness  map[string]ReadinessCheck
	Metrics    statsd.Sink
	Logger     *slog.Logger
}

// NewRouter creates the API router wrapped in the request middleware chain.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	jobHandlers := &JobHandlers{Svc: services.Jobs, Logger: logger}
	submit := func(h http.HandlerFunc) http.Handler {
		return Chain(h,
			RateLimit(RateLimitOptions{
				Limiter:    services.Limiter,
				TrustProxy: services.HTTP.TrustProxy,
				Metrics:    services.Metrics,
				Logger:     logger,
			}),
			MaxBody(services.HTTP.MaxBodyBytes),
		)
	}

	mux.Handle("POST "+PathSubmitEdit, submit(jobHandlers.SubmitEdit))
	mux.Handle("POST "+PathSubmitClipRender, submit(jobHandlers.SubmitClipRender))
	mux.HandleFunc("GET "+PathJob, jobHandlers.GetJob)
	mux.HandleFunc("GET "+PathHealth, healthHandler)
	mux.HandleFunc("HEAD "+PathHealth, healthHandler)
	mux.Handle("GET "+PathReady, readyHandler(services.Readiness))
	if services.HTTP.ServeOutputs && services.OutputsDir != "" {
		mux.Handle("GET "+PathVideos, outputsHandler(services.OutputsDir))
	}
	mux.HandleFunc("/", notFound)

	return Chain(mux, RequestID(), Recover(logger), Logging(logger))
}

func notFound(w http.ResponseWriter, r *http.Request) {
	WriteError(w, ErrorParams{
		Code:    http.StatusNotFound,
		ErrCode: ErrCodeNotFound,
		Err:     errors.New("no route for " + r.Method + " " + r.URL.Path),
	})
}

// outputsHandler serves rendered files. Directory listings and dotfiles
// (in-progress renders) are hidden.
func outputsHandler(dir string) http.Handler {
	files := http.StripPrefix(strings.TrimSuffix(PathVideos, "/"), http.FileServer(filesOnlyFS{http.Dir(dir)}))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		files.ServeHTTP(w, r)
	})
}

// filesOnlyFS refuses directories and dotfiles.
type filesOnlyFS struct {
	fs http.FileSystem
}

func (f filesOnlyFS) Open(name string) (http.File, error) {
	if strings.HasPrefix(path.Base(name), ".") {
		return nil, os.ErrNotExist
	}
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if info.IsDir() {
		_ = file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}
