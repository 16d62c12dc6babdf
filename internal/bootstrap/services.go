package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cutline/cutline-jobs/config"
	"github.com/cutline/cutline-jobs/internal/adapters/jobrunner"
	"github.com/cutline/cutline-jobs/internal/adapters/sweeper"
	"github.com/cutline/cutline-jobs/internal/core"
	domainjob "github.com/cutline/cutline-jobs/internal/domain/job"
	"github.com/cutline/cutline-jobs/internal/observability/notify/slack"
	"github.com/cutline/cutline-jobs/internal/observability/notify/webhook"
	"github.com/cutline/cutline-jobs/internal/observability/statsd"
	"github.com/cutline/cutline-jobs/internal/service"
	"github.com/cutline/cutline-jobs/internal/service/failurenotifier"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Store   core.JobRecordStore
	Queue   core.JobQueue // nil in sync mode
	Limiter rateLimiter
	// Executor is nil when neither sync mode nor the worker service needs it.
	Executor      *service.Executor
	Jobs          *service.JobManager
	RetryPolicy   *domainjob.RetryPolicy
	Observability ObservabilityContainer
}

// Close releases resources owned by the container. Connections in
// Infrastructure are closed by their owner.
func (c *ServiceContainer) Close() error {
	if c == nil {
		return nil
	}
	return c.Observability.MetricsSink.Close()
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	// MetricsSink is never nil; a disabled client drops every sample.
	MetricsSink     *statsd.Client
	FailureNotifier *failurenotifier.Service
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config *config.AppConfig
	Infra  Infrastructure
	Logger *slog.Logger
}

// NewServices wires stores, queue, limiter, executor and job manager for the
// enabled services.
func NewServices(deps *ServiceDeps) (*ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return nil, errors.New("service deps with config are required")
	}
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if err := ensureMediaDirs(cfg.Media); err != nil {
		return nil, err
	}

	obs := buildObservability(logger, cfg.Observability)
	c := &ServiceContainer{Observability: obs}

	var err error
	if c.Store, err = NewJobRecordStore(cfg, deps.Infra, logger); err != nil {
		return nil, fmt.Errorf("job record store: %w", err)
	}
	if c.Queue, err = NewJobQueue(cfg, deps.Infra, logger); err != nil {
		return nil, fmt.Errorf("job queue: %w", err)
	}
	if c.Limiter, err = newRateLimiter(cfg, deps.Infra, logger); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	if c.RetryPolicy, err = domainjob.NewRetryPolicy(
		cfg.Jobs.PermitMaxRetries, cfg.Jobs.PermitRetryDelay, cfg.Jobs.PermitRetryMax,
	); err != nil {
		return nil, fmt.Errorf("permit retry policy: %w", err)
	}

	if cfg.Jobs.ExecutionMode == config.ExecutionModeSync || cfg.IsWorkerEnabled() {
		if c.Executor, err = newExecutor(cfg, c, logger); err != nil {
			return nil, err
		}
	}

	mgrOpts := service.JobManagerOptions{
		Store:       c.Store,
		Mode:        cfg.Jobs.ExecutionMode,
		Queue:       c.Queue,
		JobTimeout:  cfg.Jobs.QueueTimeout(),
		RetryPolicy: c.RetryPolicy,
		Logger:      logger,
	}
	if c.Executor != nil {
		mgrOpts.Executor = c.Executor
	}
	if c.Jobs, err = service.NewJobManager(mgrOpts); err != nil {
		return nil, fmt.Errorf("job manager: %w", err)
	}
	return c, nil
}

func newExecutor(cfg *config.AppConfig, c *ServiceContainer, logger *slog.Logger) (*service.Executor, error) {
	adapters, err := newMediaAdapters(cfg, logger)
	if err != nil {
		return nil, err
	}
	exec, err := service.NewExecutor(service.ExecutorOptions{
		Store:           c.Store,
		Permit:          adapters.Permit,
		Downloader:      adapters.Downloader,
		Renderer:        adapters.Renderer,
		Assets:          adapters.Assets,
		Media:           cfg.Media,
		PermitTimeout:   cfg.Jobs.PermitTimeout,
		Mode:            cfg.Jobs.ExecutionMode,
		Logger:          logger,
		Metrics:         c.Observability.MetricsSink,
		FailureNotifier: c.Observability.FailureNotifier,
	})
	if err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}
	return exec, nil
}

func ensureMediaDirs(media config.MediaConfig) error {
	for _, dir := range []string{media.VideosDir, media.ProcessedDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create media dir %s: %w", dir, err)
		}
	}
	return nil
}

// buildObservability configures metrics and notification adapters.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	metricsCfg := statsd.Config{
		Enabled: cfg.Metrics.IsEnabled(),
		Address: cfg.Metrics.StatsdAddress,
		Prefix:  cfg.Metrics.Prefix,
		Logger:  logger,
	}
	client, err := statsd.NewClient(metricsCfg)
	if err != nil {
		logger.Error("failed to initialise statsd client; metrics disabled", "error", err)
		metricsCfg.Enabled = false
		client, _ = statsd.NewClient(metricsCfg)
	}

	return ObservabilityContainer{
		MetricsSink:     client,
		FailureNotifier: buildFailureNotifier(logger, cfg.Notifications),
	}
}

func buildFailureNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *failurenotifier.Service {
	if !cfg.Enabled {
		return failurenotifier.NewService(failurenotifier.Options{Logger: logger})
	}

	sinks := make([]failurenotifier.SinkRegistration, 0, 2)

	if cfg.Slack.Enabled {
		client, err := slack.NewClient(slack.Config{
			WebhookURL:   cfg.Slack.WebhookURL,
			Channel:      cfg.Slack.Channel,
			Username:     cfg.Slack.Username,
			Timeout:      cfg.Timeout,
			RetryLimit:   cfg.RetryLimit,
			JobURLPrefix: cfg.Slack.JobURLPrefix,
		})
		if err != nil {
			logger.Error("failed to initialise slack notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "slack", Sink: client})
		}
	}

	if cfg.Webhook.Enabled {
		client, err := webhook.NewClient(webhook.Config{
			URL:        cfg.Webhook.URL,
			BodyExpr:   cfg.Webhook.BodyExpr,
			Headers:    cfg.Webhook.Headers,
			Timeout:    cfg.Timeout,
			RetryLimit: cfg.RetryLimit,
		})
		if err != nil {
			logger.Error("failed to initialise webhook notifier", "error", err)
		} else {
			sinks = append(sinks, failurenotifier.SinkRegistration{Name: "webhook", Sink: client})
		}
	}

	return failurenotifier.NewService(failurenotifier.Options{
		Logger: logger,
		Sinks:  sinks,
		// Covers every retry of the slowest sink.
		Timeout: cfg.Timeout * time.Duration(cfg.RetryLimit+1),
	})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	Infra    Infrastructure
	Logger   *slog.Logger
}

// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
const shutdownWaitTimeout = 15 * time.Second

// backgroundService describes a startable component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

func buildBackgroundServices(cfg *ServiceOrchestrationConfig, logger *slog.Logger) ([]backgroundService, error) {
	appCfg := cfg.Config
	c := cfg.Services
	var out []backgroundService

	server, err := NewHTTPServer(&HTTPServerConfig{
		Config:   appCfg,
		Services: c,
		Infra:    cfg.Infra,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	out = append(out, backgroundService{
		mode: config.ServiceModeHTTP,
		name: "http server",
		start: func(ctx context.Context) error {
			return serveHTTP(ctx, server, appCfg.HTTP.ShutdownTimeout, logger)
		},
	})
	if c.Limiter.sweeper != nil {
		out = append(out, backgroundService{
			mode:  config.ServiceModeHTTP,
			name:  "rate limit sweeper",
			start: c.Limiter.sweeper.Run,
		})
	}

	if appCfg.IsWorkerEnabled() {
		if c.Queue == nil || c.Executor == nil {
			return nil, errors.New("the worker service needs a job queue and an executor")
		}
		runner, err := jobrunner.NewRunner(jobrunner.RunnerOptions{
			Queue:       c.Queue,
			Executor:    c.Executor,
			Logger:      logger,
			Concurrency: appCfg.Jobs.WorkerConcurrency,
			PollWait:    appCfg.Jobs.QueuePollWait,
			RetryPolicy: c.RetryPolicy,
			Metrics:     c.Observability.MetricsSink,
		})
		if err != nil {
			return nil, fmt.Errorf("wire job runner: %w", err)
		}
		out = append(out, backgroundService{mode: config.ServiceModeWorker, name: "job worker", start: runner.Run})
	}

	if appCfg.IsSweeperEnabled() {
		stale, err := newStaleJobPass(c, appCfg, logger)
		if err != nil {
			return nil, err
		}
		runner, err := sweeper.NewRunner(sweeper.RunnerOptions{
			Config:    appCfg.Cleanup,
			Logger:    logger,
			Metrics:   c.Observability.MetricsSink,
			StaleJobs: stale,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, backgroundService{mode: config.ServiceModeSweeper, name: "sweeper", start: runner.Run})
	}
	return out, nil
}

// enabledBackgroundServices keeps the services whose mode is enabled.
func enabledBackgroundServices(enabled map[config.ServiceMode]bool, all []backgroundService) []backgroundService {
	out := make([]backgroundService, 0, len(all))
	for _, svc := range all {
		if enabled[svc.mode] {
			out = append(out, svc)
		}
	}
	return out
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// It blocks until SIGINT/SIGTERM or until a service fails.
func RunServicesWithShutdown(ctx context.Context, cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil || cfg.Services == nil {
		return errors.New("service orchestration config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	all, err := buildBackgroundServices(cfg, logger)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runServices(sigCtx, logger, enabledBackgroundServices(enabled, all), shutdownWaitTimeout)
}

// runServices runs every service in its own goroutine. The first failure
// cancels the rest. Once ctx is done, services get wait to return before
// runServices gives up on them.
func runServices(ctx context.Context, logger *slog.Logger, services []backgroundService, wait time.Duration) error {
	if len(services) == 0 {
		return errors.New("no services to run")
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, svc := range services {
		g.Go(func() error {
			logger.InfoContext(gctx, "service started", "service", svc.name, "mode", svc.mode)
			if err := svc.start(gctx); err != nil {
				logger.ErrorContext(gctx, "service error", "service", svc.name, "error", err)
				return fmt.Errorf("%s failed: %w", svc.name, err)
			}
			logger.Info(svc.name + " stopped")
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-gctx.Done():
	}
	logger.Info("shutting down services...")

	select {
	case err := <-done:
		return err
	case <-time.After(wait):
		logger.Warn("timeout waiting for services to stop", "timeout", wait)
		return errors.New("timed out waiting for services to stop")
	}
}

// newStaleJobPass returns nil when the queue cannot hand back lost deliveries.
//
//nolint:ireturn // nil interface keeps the sweeper's optional step unset
func newStaleJobPass(c *ServiceContainer, appCfg *config.AppConfig, logger *slog.Logger) (service.StaleJobPass, error) {
	source, ok := c.Queue.(core.StaleJobSource)
	if !ok {
		return nil, nil
	}
	reaper, err := service.NewStaleJobReaper(service.StaleJobReaperOptions{
		Source:  source,
		Queue:   c.Queue,
		Store:   c.Store,
		Grace:   appCfg.Jobs.StaleJobGrace,
		Logger:  logger,
		Metrics: c.Observability.MetricsSink,
	})
	if err != nil {
		return nil, fmt.Errorf("wire stale job reaper: %w", err)
	}
	return reaper, nil
}
