package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cutline/cutline-jobs/config"
	"github.com/cutline/cutline-jobs/internal/service"
)

type sweepOptions struct {
	// TTL overrides the configured artifact age limit when positive.
	TTL time.Duration
}

func parseSweepFlags(args []string) (sweepOptions, error) {
	fs := flag.NewFlagSet("sweep", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts sweepOptions
	fs.DurationVar(&opts.TTL, "ttl", 0, "Delete files older than this instead of JOB_CLEANUP_TTL_SECONDS")
	if err := fs.Parse(args); err != nil {
		return sweepOptions{}, err
	}
	if opts.TTL < 0 {
		return sweepOptions{}, errors.New("--ttl must not be negative")
	}
	if opts.TTL > 0 && opts.TTL < time.Second {
		return sweepOptions{}, errors.New("--ttl must be at least one second")
	}
	return opts, nil
}

func runSweep(cmdCtx *commandContext, args []string) error {
	opts, err := parseSweepFlags(args)
	if err != nil {
		return err
	}

	cleanup := cmdCtx.Config.Cleanup
	if opts.TTL > 0 {
		cleanup.TTLSeconds = opts.TTL.Seconds()
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcomes, sweepErr := sweepOnce(ctx, cleanup, cmdCtx)
	if err := printSweepOutcomes(cmdCtx.Out, outcomes); err != nil {
		return err
	}
	return sweepErr
}

func sweepOnce(ctx context.Context, cleanup config.CleanupConfig, cmdCtx *commandContext) ([]service.SweepOutcome, error) {
	svc, err := service.NewSweeperService(service.SweeperServiceOptions{
		Config: cleanup,
		Logger: cmdCtx.Logger,
	})
	if err != nil {
		return nil, err
	}
	return svc.RunOnce(ctx)
}

func printSweepOutcomes(w io.Writer, outcomes []service.SweepOutcome) error {
	total := 0
	for _, o := range outcomes {
		total += len(o.Removed)
		status := "ok"
		if o.Err != nil {
			status = o.Err.Error()
		}
		if err := writef(w, "%s: removed %d (%s)\n", o.Dir, len(o.Removed), status); err != nil {
			return fmt.Errorf("print sweep outcome: %w", err)
		}
	}
	if err := writef(w, "total removed: %d\n", total); err != nil {
		return fmt.Errorf("print sweep total: %w", err)
	}
	return nil
}
