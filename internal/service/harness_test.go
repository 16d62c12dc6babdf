package service

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cutline/cutline-jobs/config"
	"github.com/cutline/cutline-jobs/internal/adapters/media"
	"github.com/cutline/cutline-jobs/internal/adapters/permit"
	"github.com/cutline/cutline-jobs/internal/core"
	"github.com/cutline/cutline-jobs/internal/data"
	"github.com/cutline/cutline-jobs/internal/domain/model"
	"github.com/cutline/cutline-jobs/internal/observability/notify"
	"github.com/cutline/cutline-jobs/internal/observability/statsd"
	"github.com/cutline/cutline-jobs/internal/service/failurenotifier"
)

// stubDownloader writes a small file named after the last URL path segment.
type stubDownloader struct {
	dir string
	err error

	mu    sync.Mutex
	calls []string
}

func (d *stubDownloader) Download(_ context.Context, url, _ string) (string, error) {
	d.mu.Lock()
	d.calls = append(d.calls, url)
	d.mu.Unlock()
	if d.err != nil {
		return "", d.err
	}
	path := filepath.Join(d.dir, "source clip.mp4")
	if err := os.WriteFile(path, []byte("video"), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

// stubRenderer writes the requested output unless told otherwise.
type stubRenderer struct {
	failOn   map[string]error // keyed by output file name
	noOutput bool

	mu       sync.Mutex
	requests []core.RenderRequest
}

func (r *stubRenderer) Render(_ context.Context, req core.RenderRequest) (string, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
	if err := r.failOn[filepath.Base(req.OutputPath)]; err != nil {
		return "", err
	}
	if r.noOutput {
		return req.OutputPath, nil
	}
	if err := os.WriteFile(req.OutputPath, []byte("rendered"), 0o600); err != nil {
		return "", err
	}
	return req.OutputPath, nil
}

type fixture struct {
	store      *data.FileJobStore
	permit     core.Permit
	downloader *stubDownloader
	renderer   *stubRenderer
	assets     media.DirResolver
	media      config.MediaConfig
	metrics    *statsd.Recorder

	mu       sync.Mutex
	notified []notify.JobFailurePayload
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	mediaCfg := config.MediaConfig{
		VideosDir:       filepath.Join(root, "videos"),
		ProcessedDir:    filepath.Join(root, "processed"),
		MusicDir:        filepath.Join(root, "musicas"),
		IngestDir:       filepath.Join(root, "ingest"),
		PublicURLPrefix: "/videos/",
	}
	for _, dir := range []string{mediaCfg.VideosDir, mediaCfg.ProcessedDir, mediaCfg.MusicDir, mediaCfg.IngestDir} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}

	store, err := data.NewFileJobStore(data.FileJobStoreOptions{Dir: filepath.Join(root, "jobs")})
	require.NoError(t, err)
	p, err := permit.NewFilePermit(permit.FilePermitOptions{LockPath: filepath.Join(root, "locks", "video_job.lock")})
	require.NoError(t, err)

	return &fixture{
		store:      store,
		permit:     p,
		downloader: &stubDownloader{dir: mediaCfg.VideosDir},
		renderer:   &stubRenderer{},
		assets:     media.DirResolver{MusicDir: mediaCfg.MusicDir, IngestDir: mediaCfg.IngestDir},
		media:      mediaCfg,
		metrics:    &statsd.Recorder{},
	}
}

func (f *fixture) addMusic(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(f.media.MusicDir, n+".mp3"), []byte("mp3"), 0o600))
	}
}

func (f *fixture) addIngest(t *testing.T, id string) string {
	t.Helper()
	path := filepath.Join(f.media.IngestDir, id+".mp4")
	require.NoError(t, os.WriteFile(path, []byte("ingest"), 0o600))
	return path
}

func (f *fixture) executor(t *testing.T, mode config.ExecutionMode) *Executor {
	t.Helper()
	notifier := failurenotifier.NewService(failurenotifier.Options{Sinks: []failurenotifier.SinkRegistration{{
		Name: "capture",
		Sink: notify.SinkFunc(func(_ context.Context, p notify.JobFailurePayload) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.notified = append(f.notified, p)
			return nil
		}),
	}}})

	exec, err := NewExecutor(ExecutorOptions{
		Store:           f.store,
		Permit:          f.permit,
		Downloader:      f.downloader,
		Renderer:        f.renderer,
		Assets:          f.assets,
		Media:           f.media,
		Mode:            mode,
		Metrics:         f.metrics,
		FailureNotifier: notifier,
	})
	require.NoError(t, err)
	return exec
}

func (f *fixture) create(t *testing.T, jobID string) {
	t.Helper()
	_, err := f.store.Create(context.Background(), jobID, nil)
	require.NoError(t, err)
}

func (f *fixture) record(t *testing.T, jobID string) *model.JobRecord {
	t.Helper()
	rec, err := f.store.Get(context.Background(), jobID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec
}

func statuses(rec *model.JobRecord) []model.JobStatus {
	out := make([]model.JobStatus, len(rec.History))
	for i, h := range rec.History {
		out[i] = h.Status
	}
	return out
}
