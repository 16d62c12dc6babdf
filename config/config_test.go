package config

import (
	"reflect"
	"strings"
	"testing"
	"time"

	env "github.com/caarlos0/env/v11"
)

func TestParseServices(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    map[ServiceMode]bool
		expectError bool
	}{
		{
			name:     "single service - http",
			input:    "http",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true},
		},
		{
			name:     "single service - worker",
			input:    "worker",
			expected: map[ServiceMode]bool{ServiceModeWorker: true},
		},
		{
			name:  "all services with spaces",
			input: " http , worker , sweeper ",
			expected: map[ServiceMode]bool{
				ServiceModeHTTP:    true,
				ServiceModeWorker:  true,
				ServiceModeSweeper: true,
			},
		},
		{
			name:     "duplicate services",
			input:    "http,http,sweeper",
			expected: map[ServiceMode]bool{ServiceModeHTTP: true, ServiceModeSweeper: true},
		},
		{name: "empty string", input: "", expectError: true},
		{name: "only commas", input: ",,", expectError: true},
		{name: "invalid service", input: "http,reaper", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ParseServices(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for input %q, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestAppConfig_Defaults(t *testing.T) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Jobs.ExecutionMode != ExecutionModeAsync {
		t.Errorf("expected async default, got %q", cfg.Jobs.ExecutionMode)
	}
	if cfg.Jobs.QueueName != "video-edit" {
		t.Errorf("expected queue name video-edit, got %q", cfg.Jobs.QueueName)
	}
	if cfg.Jobs.QueueTimeout() != 30*time.Minute {
		t.Errorf("expected 30m job timeout, got %s", cfg.Jobs.QueueTimeout())
	}
	if cfg.Jobs.LockPath() != "runtime/locks/video_job.lock" {
		t.Errorf("unexpected lock path %q", cfg.Jobs.LockPath())
	}
	if cfg.Jobs.JobsDir() != "runtime/jobs" {
		t.Errorf("unexpected jobs dir %q", cfg.Jobs.JobsDir())
	}
	if cfg.Jobs.PermitTimeout != 5*time.Second {
		t.Errorf("expected 5s permit timeout, got %s", cfg.Jobs.PermitTimeout)
	}
	if cfg.Cleanup.TTL() != time.Hour || cfg.Cleanup.Interval() != 10*time.Minute {
		t.Errorf("unexpected cleanup defaults: ttl=%s interval=%s", cfg.Cleanup.TTL(), cfg.Cleanup.Interval())
	}
	if !reflect.DeepEqual(cfg.Cleanup.Directories, []string{"videos", "processed"}) {
		t.Errorf("expected media dirs as cleanup defaults, got %v", cfg.Cleanup.Directories)
	}
	if cfg.Media.PublicURLPrefix != "/videos/" {
		t.Errorf("unexpected public url prefix %q", cfg.Media.PublicURLPrefix)
	}
	if !cfg.IsHTTPServerEnabled() || !cfg.IsSweeperEnabled() || cfg.IsWorkerEnabled() {
		t.Errorf("unexpected default services %q", cfg.Services)
	}
	if w := cfg.Warnings(); len(w) != 0 {
		t.Errorf("expected no warnings for defaults, got %v", w)
	}
}

func TestAppConfig_ParseJobEnv(t *testing.T) {
	t.Setenv("JOB_EXECUTION_MODE", "SYNC")
	t.Setenv("JOB_TIMEOUT_SECONDS", "90")
	t.Setenv("RUNTIME_BASE_DIR", "/var/lib/cutline")
	t.Setenv("JOBS_STORE_BACKEND", "postgres")
	t.Setenv("RATE_LIMIT_REQUESTS", "1")
	t.Setenv("RATE_LIMIT_WINDOW_SECONDS", "60")
	t.Setenv("RATE_LIMIT_BACKEND", "redis")
	t.Setenv("JOB_CLEANUP_TTL_SECONDS", "3600")
	t.Setenv("JOB_CLEANUP_INTERVAL_SECONDS", "30")
	t.Setenv("JOB_CLEANUP_DIRECTORIES", "/data/videos, /data/processed")
	t.Setenv("MEDIA_PUBLIC_URL_PREFIX", "https://cdn.example.com/v")
	t.Setenv("MEDIA_ALLOWED_SOURCE_DOMAINS", " Instagram.com ,,example.org")

	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.Sanitize()

	if cfg.Jobs.ExecutionMode != ExecutionModeSync {
		t.Errorf("expected sync, got %q", cfg.Jobs.ExecutionMode)
	}
	if cfg.Jobs.QueueTimeout() != 90*time.Second {
		t.Errorf("expected 90s, got %s", cfg.Jobs.QueueTimeout())
	}
	if !cfg.NeedsPostgres() {
		t.Error("expected postgres to be required")
	}
	if !cfg.NeedsRedis() {
		t.Error("expected redis to be required by the redis rate limiter")
	}
	if cfg.RateLimit.Window() != time.Minute || !cfg.RateLimit.Enabled() {
		t.Errorf("unexpected rate limit config %+v", cfg.RateLimit)
	}
	if !reflect.DeepEqual(cfg.Cleanup.Directories, []string{"/data/videos", "/data/processed"}) {
		t.Errorf("unexpected cleanup dirs %v", cfg.Cleanup.Directories)
	}
	if cfg.Media.PublicURLPrefix != "https://cdn.example.com/v/" {
		t.Errorf("expected trailing slash, got %q", cfg.Media.PublicURLPrefix)
	}
	if !reflect.DeepEqual(cfg.Media.AllowedSourceDomains, []string{"instagram.com", "example.org"}) {
		t.Errorf("unexpected domains %v", cfg.Media.AllowedSourceDomains)
	}
}

func TestCleanupConfig_FractionalSeconds(t *testing.T) {
	t.Setenv("JOB_CLEANUP_TTL_SECONDS", "0.5")
	t.Setenv("JOB_CLEANUP_INTERVAL_SECONDS", "2.25")

	var cfg CleanupConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse cleanup config: %v", err)
	}
	cfg.Sanitize(MediaConfig{VideosDir: "/v", ProcessedDir: "/p"})

	if cfg.TTL() != 500*time.Millisecond {
		t.Errorf("expected 500ms TTL, got %s", cfg.TTL())
	}
	if cfg.Interval() != 2250*time.Millisecond {
		t.Errorf("expected 2.25s interval, got %s", cfg.Interval())
	}

	zero := CleanupConfig{TTLSeconds: 0, IntervalSeconds: -1}
	zero.Sanitize(MediaConfig{})
	if zero.TTL() != time.Hour || zero.Interval() != 10*time.Minute {
		t.Errorf("expected defaults, got ttl=%s interval=%s", zero.TTL(), zero.Interval())
	}
}

func TestAppConfig_InvalidEnums(t *testing.T) {
	tests := map[string]string{
		"JOB_EXECUTION_MODE": "later",
		"JOBS_STORE_BACKEND": "mongo",
		"JOBS_QUEUE_BACKEND": "sqs",
		"RATE_LIMIT_BACKEND": "memcached",
	}
	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			var cfg AppConfig
			if err := env.Parse(&cfg); err == nil {
				t.Fatalf("expected parse error for %s=%s", key, value)
			}
		})
	}
}

func TestAppConfig_Warnings(t *testing.T) {
	cfg := AppConfig{
		Services: "http",
		Jobs: JobsConfig{
			ExecutionMode:  ExecutionModeAsync,
			QueueBackend:   QueueBackendMemory,
			TimeoutSeconds: 1800,
		},
		Cleanup: CleanupConfig{TTLSeconds: 600},
	}

	warnings := cfg.Warnings()
	if len(warnings) != 2 {
		t.Fatalf("expected two warnings, got %v", warnings)
	}
	if !strings.Contains(warnings[0], "cleanup TTL") {
		t.Errorf("expected TTL warning first, got %q", warnings[0])
	}
}

func TestJobsConfig_Sanitize(t *testing.T) {
	cfg := JobsConfig{
		TimeoutSeconds:    0,
		WorkerConcurrency: -2,
		PermitRetryDelay:  30 * time.Second,
		PermitRetryMax:    time.Second,
		PermitMaxRetries:  -1,
		QueuePollWait:     0,
	}
	cfg.Sanitize()

	if cfg.WorkerConcurrency != 1 {
		t.Errorf("expected concurrency clamp to 1, got %d", cfg.WorkerConcurrency)
	}
	if cfg.PermitRetryMax != 30*time.Second {
		t.Errorf("expected retry max raised to delay, got %s", cfg.PermitRetryMax)
	}
	if cfg.PermitMaxRetries != 0 {
		t.Errorf("expected retries clamp to 0, got %d", cfg.PermitMaxRetries)
	}
	if cfg.QueuePollWait != time.Second {
		t.Errorf("expected poll wait clamp to 1s, got %s", cfg.QueuePollWait)
	}
	if cfg.StaleJobGrace != time.Minute {
		t.Errorf("expected stale grace clamp to 1m, got %s", cfg.StaleJobGrace)
	}
	if cfg.ExecutionMode != ExecutionModeAsync || cfg.StoreBackend != StoreBackendFile {
		t.Errorf("expected enum defaults, got %q/%q", cfg.ExecutionMode, cfg.StoreBackend)
	}
}

func TestConfig_ServiceEnabledMethodsWithInvalidConfig(t *testing.T) {
	cfg := &AppConfig{Services: "invalid-service"}

	if cfg.IsHTTPServerEnabled() || cfg.IsWorkerEnabled() || cfg.IsSweeperEnabled() {
		t.Error("expected all services disabled with invalid config")
	}
}

func TestValidServiceModes(t *testing.T) {
	modes := ValidServiceModes()
	expected := []ServiceMode{ServiceModeHTTP, ServiceModeWorker, ServiceModeSweeper}
	if !reflect.DeepEqual(modes, expected) {
		t.Errorf("expected %v, got %v", expected, modes)
	}
}

func TestDBConfig_DSN(t *testing.T) {
	cfg := DBConfig{Host: "db", Port: 5433, User: "u", Password: "p@ss", Name: "jobs", SSLMode: "require"}
	want := "postgres://u:p%40ss@db:5433/jobs?sslmode=require"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}

func TestObservabilityMetricsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityMetricsConfig{Enabled: true, StatsdAddress: " "}
	cfg.Sanitize()
	if cfg.Enabled {
		t.Fatalf("expected enabled to be false when address is empty")
	}

	cfg = ObservabilityMetricsConfig{Enabled: true, StatsdAddress: " statsd:1234 ", Prefix: ".cutline."}
	cfg.Sanitize()
	if !cfg.IsEnabled() {
		t.Fatalf("expected metrics to remain enabled")
	}
	if cfg.StatsdAddress != "statsd:1234" || cfg.Prefix != "cutline" {
		t.Fatalf("unexpected sanitised metrics config %+v", cfg)
	}
}

func TestObservabilityNotificationsConfig_Sanitize(t *testing.T) {
	cfg := ObservabilityNotificationsConfig{
		Enabled:    true,
		RetryLimit: -1,
		Slack:      SlackNotificationConfig{Enabled: true, WebhookURL: " "},
		Webhook:    WebhookNotificationConfig{Enabled: true, URL: " https://hooks.example.com/jobs ", BodyExpr: " {id: job_id} "},
	}
	cfg.Sanitize()

	if cfg.Timeout != 5*time.Second {
		t.Fatalf("expected timeout to fall back to default, got %v", cfg.Timeout)
	}
	if cfg.RetryLimit != 0 {
		t.Fatalf("expected retry limit to be clamped to 0, got %d", cfg.RetryLimit)
	}
	if cfg.Slack.Enabled {
		t.Fatal("expected slack to be disabled without a webhook url")
	}
	if cfg.Slack.Username != "cutline" {
		t.Fatalf("expected slack username default, got %q", cfg.Slack.Username)
	}
	if !cfg.Webhook.Enabled || cfg.Webhook.URL != "https://hooks.example.com/jobs" || cfg.Webhook.BodyExpr != "{id: job_id}" {
		t.Fatalf("unexpected webhook config %+v", cfg.Webhook)
	}

	// Disabled top-level should disable child sinks.
	cfg = ObservabilityNotificationsConfig{
		Enabled: false,
		Slack:   SlackNotificationConfig{Enabled: true, WebhookURL: "https://hooks.slack.com/services/test"},
		Webhook: WebhookNotificationConfig{Enabled: true, URL: "https://hooks.example.com"},
	}
	cfg.Sanitize()
	if cfg.Slack.Enabled || cfg.Webhook.Enabled {
		t.Fatal("expected child sinks disabled when notifications are off")
	}
}
