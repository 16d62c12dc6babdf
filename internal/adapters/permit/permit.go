// Package permit provides the render slot: a mutual-exclusion permit held for the
// duration of one render. Inside a process the permit is a weighted semaphore of
// size one; across processes it is an advisory file lock on a shared lock file.
package permit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/semaphore"

	apperrors "github.com/cutline/cutline-jobs/internal/errors"
)

const defaultRetryDelay = 50 * time.Millisecond

// FilePermitOptions configures a FilePermit.
type FilePermitOptions struct {
	// LockPath is the lock file shared by every process rendering into the same runtime dir.
	// Empty means in-process exclusion only.
	LockPath string
	// RetryDelay is the poll interval while waiting on the file lock.
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// FilePermit implements core.Permit.
type FilePermit struct {
	sem        *semaphore.Weighted
	lock       *flock.Flock
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewFilePermit creates the permit, creating the lock file's directory if needed.
func NewFilePermit(opts FilePermitOptions) (*FilePermit, error) {
	p := &FilePermit{
		sem:        semaphore.NewWeighted(1),
		retryDelay: opts.RetryDelay,
		logger:     opts.Logger,
	}
	if p.retryDelay <= 0 {
		p.retryDelay = defaultRetryDelay
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("component", "permit")

	if opts.LockPath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.LockPath), 0o755); err != nil {
			return nil, fmt.Errorf("create lock dir: %w", err)
		}
		p.lock = flock.New(opts.LockPath)
	}
	return p, nil
}

// Acquire blocks until the permit is held, ctx is done, or timeout elapses.
// A non-positive timeout waits without bound. The returned release func is
// safe to call more than once.
func (p *FilePermit) Acquire(ctx context.Context, timeout time.Duration) (func(), error) {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		return nil, p.waitError(ctx, timeout)
	}

	if p.lock != nil {
		locked, err := p.lock.TryLockContext(waitCtx, p.retryDelay)
		if err != nil || !locked {
			p.sem.Release(1)
			if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
				return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "lock render slot")
			}
			return nil, p.waitError(ctx, timeout)
		}
	}

	p.logger.Debug("render slot acquired", "waited", time.Since(start))

	var once sync.Once
	return func() {
		once.Do(p.release)
	}, nil
}

func (p *FilePermit) release() {
	if p.lock != nil {
		if err := p.lock.Unlock(); err != nil {
			p.logger.Error("release file lock", "error", err, "path", p.lock.Path())
		}
	}
	p.sem.Release(1)
	p.logger.Debug("render slot released")
}

// waitError distinguishes caller cancellation from our own deadline.
func (p *FilePermit) waitError(ctx context.Context, timeout time.Duration) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return apperrors.Wrap(ctxErr, apperrors.ErrCodeTimeout, "render slot wait exceeded job deadline")
		}
		return apperrors.Wrap(ctxErr, apperrors.ErrCodeCanceled, "render slot wait canceled")
	}
	return apperrors.Timeoutf("render slot not available within %s", timeout)
}
