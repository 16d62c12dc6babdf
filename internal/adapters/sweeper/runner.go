// Package sweeper runs the media artifact cleanup loop as a service.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cutline/cutline-jobs/config"
	"github.com/cutline/cutline-jobs/internal/observability/statsd"
	"github.com/cutline/cutline-jobs/internal/service"
)

// Sweeper is the loop the runner drives.
type Sweeper interface {
	Run(ctx context.Context) error
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Config  config.CleanupConfig
	Logger  *slog.Logger
	Metrics statsd.Sink

	// StaleJobs is handed to the service built from Config.
	StaleJobs service.StaleJobPass

	// Sweeper overrides the service built from Config.
	Sweeper Sweeper
}

// Runner owns one sweeper loop for the lifetime of its Run call.
type Runner struct {
	sweeper Sweeper
	logger  *slog.Logger
}

// NewRunner wires the sweeper service.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	sw := opts.Sweeper
	if sw == nil {
		svc, err := service.NewSweeperService(service.SweeperServiceOptions{
			Config:    opts.Config,
			Logger:    opts.Logger,
			Metrics:   opts.Metrics,
			StaleJobs: opts.StaleJobs,
		})
		if err != nil {
			return nil, fmt.Errorf("wire sweeper service: %w", err)
		}
		sw = svc
	}

	return &Runner{sweeper: sw, logger: opts.Logger.With("component", "sweeper_runner")}, nil
}

// Run blocks until ctx is cancelled. Cancellation is not an error.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting sweeper runner")
	err := r.sweeper.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
