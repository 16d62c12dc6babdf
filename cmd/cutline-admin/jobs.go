package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/cutline/cutline-jobs/internal/bootstrap"
	"github.com/cutline/cutline-jobs/internal/core"
	"github.com/cutline/cutline-jobs/internal/domain/model"
	"github.com/cutline/cutline-jobs/internal/util"
)

type jobOptions struct {
	JobID   string
	RawJSON bool
}

func parseJobFlags(args []string) (jobOptions, error) {
	fs := flag.NewFlagSet("job", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts jobOptions
	fs.BoolVar(&opts.RawJSON, "json", false, "Print the record as JSON")
	if err := fs.Parse(args); err != nil {
		return jobOptions{}, err
	}
	if fs.NArg() != 1 {
		return jobOptions{}, errors.New("usage: cutline-admin job [--json] <job-id>")
	}
	opts.JobID = strings.TrimSpace(fs.Arg(0))
	if opts.JobID == "" {
		return jobOptions{}, errors.New("job id is required")
	}
	return opts, nil
}

func runJob(cmdCtx *commandContext, args []string) error {
	opts, err := parseJobFlags(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, 30*time.Second)
	defer cancel()

	infra, err := connectInfraForStore(ctx, cmdCtx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeInfra(infra); cerr != nil {
			cmdCtx.Logger.Warn("close infrastructure failed", "error", cerr)
		}
	}()

	store, err := bootstrap.NewJobRecordStore(&cmdCtx.Config, infra, cmdCtx.Logger)
	if err != nil {
		return err
	}
	queue, err := bootstrap.NewJobQueue(&cmdCtx.Config, infra, cmdCtx.Logger)
	if err != nil {
		return err
	}

	return showJob(ctx, cmdCtx.Out, store, queue, opts)
}

// showJob prints the stored record, or the queue entry when the store has none.
func showJob(ctx context.Context, w io.Writer, store core.JobRecordStore, queue core.JobQueue, opts jobOptions) error {
	rec, err := store.Get(ctx, opts.JobID)
	if err != nil {
		return fmt.Errorf("get job record: %w", err)
	}
	if rec != nil {
		if opts.RawJSON {
			return printJSON(w, rec)
		}
		return printJobRecord(w, rec)
	}

	if queue != nil {
		entry, qerr := queue.Status(ctx, opts.JobID)
		if qerr != nil {
			return fmt.Errorf("get queue status: %w", qerr)
		}
		if entry != nil {
			if opts.RawJSON {
				return printJSON(w, entry)
			}
			return printQueueEntry(w, entry)
		}
	}
	return fmt.Errorf("job %s not found", opts.JobID)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printJobRecord(w io.Writer, rec *model.JobRecord) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	var last time.Time
	if n := len(rec.History); n > 0 {
		last = rec.History[n-1].Timestamp
	}
	if err := writef(tw, "Job:\t%s\nStatus:\t%s\nCreated:\t%s\nElapsed:\t%s\n",
		rec.JobID, rec.Status, rec.CreatedAt.Format(time.RFC3339),
		util.FormatElapsed(util.JobElapsed(rec.CreatedAt, last))); err != nil {
		return fmt.Errorf("write job header: %w", err)
	}
	if rec.Error != nil {
		if err := writef(tw, "Error:\t%s\n", rec.Error.Message); err != nil {
			return fmt.Errorf("write job error: %w", err)
		}
	}
	if rec.HasResult() {
		if err := writef(tw, "Result:\t%s\n", rec.Result); err != nil {
			return fmt.Errorf("write job result: %w", err)
		}
	}
	if err := writef(tw, "\nSTATUS\tTIME\tDETAIL\n"); err != nil {
		return fmt.Errorf("write history header: %w", err)
	}
	for _, h := range rec.History {
		detail := "-"
		if len(h.Detail) > 0 {
			detail = string(h.Detail)
		}
		if err := writef(tw, "%s\t%s\t%s\n", h.Status, h.Timestamp.Format(time.RFC3339), detail); err != nil {
			return fmt.Errorf("write history entry: %w", err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush job table: %w", err)
	}
	return nil
}

func printQueueEntry(w io.Writer, entry *core.QueueEntry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if err := writef(tw, "Job:\t%s\nQueue status:\t%s\nJob status:\t%s\nEnqueued:\t%s\n",
		entry.JobID, entry.Status, entry.JobStatus(), entry.EnqueuedAt.Format(time.RFC3339)); err != nil {
		return fmt.Errorf("write queue entry: %w", err)
	}
	if entry.Error != "" {
		if err := writef(tw, "Error:\t%s\n", entry.Error); err != nil {
			return fmt.Errorf("write queue error: %w", err)
		}
	}
	if err := writeln(tw, "(no job record; showing queue metadata)"); err != nil {
		return fmt.Errorf("write queue note: %w", err)
	}
	return tw.Flush()
}
