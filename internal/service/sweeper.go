package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cutline/cutline-jobs/config"
	obserrors "github.com/cutline/cutline-jobs/internal/observability/errors"
	"github.com/cutline/cutline-jobs/internal/observability/metrics"
	"github.com/cutline/cutline-jobs/internal/observability/statsd"
)

// CleanupDirectory removes regular, non-hidden files in dir whose modification
// time is more than olderThan before now. Subdirectories are not descended.
// A missing directory yields an empty result. Failures on individual files do
// not stop the sweep; they are joined into the returned error alongside the
// files that were removed.
func CleanupDirectory(dir string, olderThan time.Duration, now time.Time) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	var (
		removed []string
		errs    []error
	)
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// Vanished between ReadDir and Info.
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, fmt.Errorf("stat %s: %w", name, err))
			}
			continue
		}
		if now.Sub(info.ModTime()) <= olderThan {
			continue
		}

		path := filepath.Join(dir, name)
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, fmt.Errorf("remove %s: %w", name, err))
			}
			continue
		}
		removed = append(removed, path)
	}
	return removed, errors.Join(errs...)
}

// SweepOutcome is the result of sweeping one directory.
type SweepOutcome struct {
	Dir     string
	Removed []string
	Err     error
}

// SweeperServiceOptions groups dependencies for SweeperService.
type SweeperServiceOptions struct {
	Config  config.CleanupConfig // Required: directories, TTL and interval
	Logger  *slog.Logger         // Optional: structured logger
	Metrics statsd.Sink          // Optional: metrics sink (StatsD-compatible)
	Now     func() time.Time     // Optional: clock override for tests

	// StaleJobs runs after every file sweep when set.
	StaleJobs StaleJobPass
}

// StaleJobPass fails jobs abandoned by their worker.
type StaleJobPass interface {
	RunOnce(ctx context.Context) (int, error)
}

// SweeperService deletes expired media artifacts from the configured directories.
type SweeperService struct {
	config  config.CleanupConfig
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time
	stale   StaleJobPass
}

// NewSweeperService constructs a new SweeperService.
func NewSweeperService(opts SweeperServiceOptions) (*SweeperService, error) {
	if len(opts.Config.Directories) == 0 {
		return nil, errors.New("at least one cleanup directory is required")
	}
	if opts.Config.TTL() <= 0 || opts.Config.Interval() <= 0 {
		return nil, errors.New("cleanup TTL and interval must be positive")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &SweeperService{
		config:  opts.Config,
		logger:  logger.With("component", "sweeper_service"),
		metrics: opts.Metrics,
		now:     now,
		stale:   opts.StaleJobs,
	}, nil
}

// RunOnce sweeps every configured directory once. The returned error joins
// the per-directory errors; outcomes are returned either way.
func (s *SweeperService) RunOnce(ctx context.Context) ([]SweepOutcome, error) {
	start := time.Now()
	now := s.now()

	outcomes := make([]SweepOutcome, 0, len(s.config.Directories))
	var errs []error
	for _, dir := range s.config.Directories {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		removed, err := CleanupDirectory(dir, s.config.TTL(), now)
		outcomes = append(outcomes, SweepOutcome{Dir: dir, Removed: removed, Err: err})
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep %s: %w", dir, err))
		}
		if len(removed) > 0 {
			s.logger.InfoContext(ctx, "removed expired files",
				"dir", dir,
				"count", len(removed),
				"ttl", s.config.TTL(),
			)
		}
	}

	err := errors.Join(errs...)
	s.emitMetrics(outcomes, err, time.Since(start))
	return outcomes, err
}

// Run sweeps immediately after a short jitter and then every interval until
// the context is cancelled. Returns nil on graceful shutdown.
func (s *SweeperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting sweeper service",
		"interval", s.config.Interval(),
		"ttl", s.config.TTL(),
		"directories", s.config.Directories,
	)

	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval())
	defer ticker.Stop()

	s.runCycle(ctx, "initial sweep")

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "sweeper service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			s.runCycle(ctx, "sweep")
		}
	}
}

// runCycle sweeps files, then fails stale jobs.
func (s *SweeperService) runCycle(ctx context.Context, label string) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logSweepError(ctx, err, label)
	}
	if s.stale == nil {
		return
	}
	if n, err := s.stale.RunOnce(ctx); err != nil {
		s.logSweepError(ctx, err, "stale job pass")
	} else if n > 0 {
		s.logger.InfoContext(ctx, "failed stale jobs", "count", n)
	}
}

// waitWithJitter delays up to 10% of the interval so replicas started together do not sweep in lockstep.
func (s *SweeperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval() / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter))) // #nosec G115 - bounded by maxJitter

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (s *SweeperService) emitMetrics(outcomes []SweepOutcome, err error, elapsed time.Duration) {
	if s.metrics == nil {
		return
	}

	var total int
	for _, o := range outcomes {
		total += len(o.Removed)
		if len(o.Removed) > 0 {
			s.metrics.Count(metrics.SweeperFilesDeleted, int64(len(o.Removed)), map[string]string{"dir": filepath.Base(o.Dir)})
		}
	}

	result := metrics.ResultSuccess
	tags := map[string]string{}
	switch {
	case err != nil:
		result = metrics.ResultError
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	case total == 0:
		result = "noop"
	}
	tags["result"] = result

	s.metrics.Count(metrics.SweeperRun, 1, tags)
	if elapsed > 0 {
		s.metrics.Timing(metrics.SweeperRunDuration, elapsed, metrics.CloneTags(tags))
	}
	if err == nil {
		s.metrics.Gauge(metrics.SweeperLastSuccessUnix, float64(s.now().Unix()), nil)
	}
}

func (s *SweeperService) logSweepError(ctx context.Context, err error, label string) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		s.logger.DebugContext(ctx, label+" cancelled by context", "error", err)
		return
	}
	s.logger.ErrorContext(ctx, label+" failed", "error", err)
}
