package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cutline/cutline-jobs/config"
	"github.com/cutline/cutline-jobs/internal/adapters/memqueue"
	"github.com/cutline/cutline-jobs/internal/data"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	base := t.TempDir()
	cfg := &config.AppConfig{
		Services: "http,worker",
		Jobs: config.JobsConfig{
			ExecutionMode:  config.ExecutionModeAsync,
			RuntimeBaseDir: filepath.Join(base, "runtime"),
			StoreBackend:   config.StoreBackendFile,
			QueueBackend:   config.QueueBackendMemory,
		},
		Media: config.MediaConfig{
			VideosDir:    filepath.Join(base, "videos"),
			ProcessedDir: filepath.Join(base, "processed"),
			MusicDir:     filepath.Join(base, "musicas"),
			IngestDir:    filepath.Join(base, "ingest"),
		},
		RateLimit: config.RateLimitConfig{
			MaxRequests:   10,
			WindowSeconds: 60,
			Backend:       config.RateLimitBackendMemory,
		},
	}
	cfg.Sanitize()
	return cfg
}

func TestEnabledBackgroundServices(t *testing.T) {
	all := []backgroundService{
		{mode: config.ServiceModeHTTP, name: "http server"},
		{mode: config.ServiceModeHTTP, name: "rate limit sweeper"},
		{mode: config.ServiceModeWorker, name: "job worker"},
		{mode: config.ServiceModeSweeper, name: "sweeper"},
	}

	tests := []struct {
		name  string
		modes []config.ServiceMode
		want  []string
	}{
		{name: "no services enabled"},
		{
			name:  "http only",
			modes: []config.ServiceMode{config.ServiceModeHTTP},
			want:  []string{"http server", "rate limit sweeper"},
		},
		{
			name:  "worker and sweeper",
			modes: []config.ServiceMode{config.ServiceModeWorker, config.ServiceModeSweeper},
			want:  []string{"job worker", "sweeper"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enabled := make(map[config.ServiceMode]bool, len(tt.modes))
			for _, mode := range tt.modes {
				enabled[mode] = true
			}
			var got []string
			for _, svc := range enabledBackgroundServices(enabled, all) {
				got = append(got, svc.name)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func blockUntilDone(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func TestRunServices_FirstFailureStopsOthers(t *testing.T) {
	var stopped atomic.Int32
	services := []backgroundService{
		{name: "steady", start: func(ctx context.Context) error {
			err := blockUntilDone(ctx)
			stopped.Add(1)
			return err
		}},
		{name: "broken", start: func(context.Context) error { return errors.New("boom") }},
	}

	err := runServices(context.Background(), discardLogger(), services, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken failed: boom")
	assert.Equal(t, int32(1), stopped.Load())
}

func TestRunServices_CancelIsClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	services := []backgroundService{
		{name: "a", start: blockUntilDone},
		{name: "b", start: blockUntilDone},
	}

	time.AfterFunc(20*time.Millisecond, cancel)
	assert.NoError(t, runServices(ctx, discardLogger(), services, time.Second))
}

func TestRunServices_StuckServiceTimesOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	defer close(release)
	services := []backgroundService{
		{name: "stuck", start: func(context.Context) error {
			<-release
			return nil
		}},
	}

	cancel()
	err := runServices(ctx, discardLogger(), services, 20*time.Millisecond)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestRunServices_NothingToRun(t *testing.T) {
	assert.Error(t, runServices(context.Background(), discardLogger(), nil, time.Second))
}

func TestValidateServiceConfig(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, ValidateServiceConfig(cfg))

	cfg.Jobs.ExecutionMode = config.ExecutionModeSync
	assert.ErrorContains(t, ValidateServiceConfig(cfg), "JOB_EXECUTION_MODE=async")

	cfg.Services = "bogus"
	assert.Error(t, ValidateServiceConfig(cfg))
	assert.Error(t, ValidateServiceConfig(nil))
}

func TestGetEnabledServices_Sorted(t *testing.T) {
	cfg := &config.AppConfig{Services: "worker, sweeper,http"}
	assert.Equal(t, []string{"http", "sweeper", "worker"}, GetEnabledServices(cfg))
	assert.Empty(t, GetEnabledServices(&config.AppConfig{Services: ""}))
}

func TestNewLogger_LevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, &config.AppConfig{LogLevel: "warn"})
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.True(t, strings.HasPrefix(buf.String(), "{"), "json output expected")

	buf.Reset()
	newLogger(&buf, &config.AppConfig{LogLevel: "nonsense", IsDev: true}).Info("text")
	assert.Contains(t, buf.String(), "msg=text")
}

func TestNewJobRecordStore(t *testing.T) {
	cfg := testConfig(t)

	store, err := NewJobRecordStore(cfg, Infrastructure{}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &data.FileJobStore{}, store)

	cfg.Jobs.StoreBackend = config.StoreBackendRedis
	_, err = NewJobRecordStore(cfg, Infrastructure{}, discardLogger())
	assert.ErrorContains(t, err, "no redis client")

	cfg.Jobs.StoreBackend = config.StoreBackendPostgres
	_, err = NewJobRecordStore(cfg, Infrastructure{}, discardLogger())
	assert.ErrorContains(t, err, "no database")
}

func TestNewJobQueue(t *testing.T) {
	cfg := testConfig(t)

	q, err := NewJobQueue(cfg, Infrastructure{}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &memqueue.Queue{}, q)

	cfg.Jobs.QueueBackend = config.QueueBackendRedis
	_, err = NewJobQueue(cfg, Infrastructure{}, discardLogger())
	assert.Error(t, err)

	cfg.Jobs.ExecutionMode = config.ExecutionModeSync
	q, err = NewJobQueue(cfg, Infrastructure{}, discardLogger())
	require.NoError(t, err)
	assert.Nil(t, q)
}

func TestNewRateLimiter(t *testing.T) {
	cfg := testConfig(t)

	rl, err := newRateLimiter(cfg, Infrastructure{}, discardLogger())
	require.NoError(t, err)
	assert.NotNil(t, rl.RateLimiter)
	assert.NotNil(t, rl.sweeper)

	cfg.RateLimit.MaxRequests = 0
	rl, err = newRateLimiter(cfg, Infrastructure{}, discardLogger())
	require.NoError(t, err)
	assert.Nil(t, rl.RateLimiter)
	assert.Nil(t, rl.sweeper)
}

func TestReadinessChecks_JobsDir(t *testing.T) {
	cfg := testConfig(t)
	checks := readinessChecks(cfg, Infrastructure{})
	require.Contains(t, checks, "jobs_dir")
	assert.NotContains(t, checks, "redis")
	assert.NotContains(t, checks, "postgres")

	assert.Error(t, checks["jobs_dir"](context.Background()))

	_, err := NewJobRecordStore(cfg, Infrastructure{}, discardLogger())
	require.NoError(t, err)
	assert.NoError(t, checks["jobs_dir"](context.Background()))
}

func TestNewServices_AsyncWithWorker(t *testing.T) {
	cfg := testConfig(t)

	c, err := NewServices(&ServiceDeps{Config: cfg, Logger: discardLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.NotNil(t, c.Jobs)
	assert.NotNil(t, c.Executor)
	assert.NotNil(t, c.Queue)
	assert.Equal(t, config.ExecutionModeAsync, c.Jobs.Mode())
	assert.DirExists(t, cfg.Media.VideosDir)
	assert.DirExists(t, cfg.Media.ProcessedDir)

	services, err := buildBackgroundServices(&ServiceOrchestrationConfig{Config: cfg, Services: c}, discardLogger())
	require.NoError(t, err)
	names := make([]string, 0, len(services))
	for _, svc := range services {
		names = append(names, svc.name)
	}
	assert.Equal(t, []string{"http server", "rate limit sweeper", "job worker"}, names)
}

func TestNewServices_HTTPOnlySkipsExecutor(t *testing.T) {
	cfg := testConfig(t)
	cfg.Services = "http"

	c, err := NewServices(&ServiceDeps{Config: cfg, Logger: discardLogger()})
	require.NoError(t, err)
	assert.Nil(t, c.Executor)
	assert.NotNil(t, c.Jobs)
}

func TestBuildFailureNotifier(t *testing.T) {
	disabled := buildFailureNotifier(discardLogger(), config.ObservabilityNotificationsConfig{})
	assert.False(t, disabled.Enabled())

	enabled := buildFailureNotifier(discardLogger(), config.ObservabilityNotificationsConfig{
		Enabled:    true,
		Timeout:    time.Second,
		RetryLimit: 1,
		Slack:      config.SlackNotificationConfig{Enabled: true, WebhookURL: "https://hooks.example.com/x"},
		Webhook:    config.WebhookNotificationConfig{Enabled: true, URL: "https://alerts.example.com", BodyExpr: "{id: job_id}"},
	})
	assert.True(t, enabled.Enabled())
}
