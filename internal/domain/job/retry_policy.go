package job

import (
	"errors"
	"time"
)

// ErrInvalidRetryDelay indicates the configured base delay is not positive.
var ErrInvalidRetryDelay = errors.New("retry delay must be positive")

// RetrySource identifies how a retry decision was reached.
type RetrySource string

const (
	// RetrySourceBackoff indicates another attempt is scheduled.
	RetrySourceBackoff RetrySource = "backoff"
	// RetrySourceClamped indicates the backoff hit the configured ceiling.
	RetrySourceClamped RetrySource = "clamped"
	// RetrySourceExhausted indicates no attempts remain.
	RetrySourceExhausted RetrySource = "exhausted"
)

// RetryPolicy decides what happens when a job could not get the render permit in time.
// Permit contention is transient, so the job stays non-terminal and is retried
// with exponential backoff until MaxRetries is reached.
type RetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetryPolicy constructs a RetryPolicy. A maxDelay below baseDelay is raised to baseDelay.
func NewRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration) (*RetryPolicy, error) {
	if baseDelay <= 0 {
		return nil, ErrInvalidRetryDelay
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &RetryPolicy{maxRetries: maxRetries, baseDelay: baseDelay, maxDelay: maxDelay}, nil
}

// MaxRetries returns the configured retry budget.
func (p *RetryPolicy) MaxRetries() int {
	if p == nil {
		return 0
	}
	return p.maxRetries
}

// RetryDecision captures the outcome for one failed permit acquisition.
type RetryDecision struct {
	Attempt int
	Delay   time.Duration
	Source  RetrySource
}

// Retry reports whether another attempt should be made.
func (d RetryDecision) Retry() bool {
	return d.Source != RetrySourceExhausted
}

// Decide returns the decision after attempt failed attempts (1-based).
func (p *RetryPolicy) Decide(attempt int) RetryDecision {
	if p == nil || attempt > p.maxRetries {
		return RetryDecision{Attempt: attempt, Source: RetrySourceExhausted}
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := p.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.maxDelay || delay <= 0 {
			return RetryDecision{Attempt: attempt, Delay: p.maxDelay, Source: RetrySourceClamped}
		}
	}
	return RetryDecision{Attempt: attempt, Delay: delay, Source: RetrySourceBackoff}
}
