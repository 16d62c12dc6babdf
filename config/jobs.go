package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ExecutionMode selects whether submitted jobs run inline or through the queue.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver
type ExecutionMode string

const (
	// ExecutionModeSync runs the executor in the submitting goroutine.
	ExecutionModeSync ExecutionMode = "sync"
	// ExecutionModeAsync hands jobs to the queue for a worker to pick up.
	ExecutionModeAsync ExecutionMode = "async"
)

// UnmarshalText implements encoding.TextUnmarshaler for env parsing.
func (m *ExecutionMode) UnmarshalText(text []byte) error {
	v := ExecutionMode(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case ExecutionModeSync, ExecutionModeAsync:
		*m = v
		return nil
	}
	return fmt.Errorf("invalid execution mode: %q (valid options: sync, async)", v)
}

// StoreBackend selects the job record store implementation.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver
type StoreBackend string

const (
	// StoreBackendFile keeps one JSON file per job under the runtime directory.
	StoreBackendFile StoreBackend = "file"
	// StoreBackendRedis keeps one JSON value per job in Redis.
	StoreBackendRedis StoreBackend = "redis"
	// StoreBackendPostgres keeps job records in the job_records table.
	StoreBackendPostgres StoreBackend = "postgres"
)

// UnmarshalText implements encoding.TextUnmarshaler for env parsing.
func (b *StoreBackend) UnmarshalText(text []byte) error {
	v := StoreBackend(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case StoreBackendFile, StoreBackendRedis, StoreBackendPostgres:
		*b = v
		return nil
	}
	return fmt.Errorf("invalid store backend: %q (valid options: file, redis, postgres)", v)
}

// QueueBackend selects the async queue implementation.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver
type QueueBackend string

const (
	// QueueBackendRedis uses Redis lists shared between processes.
	QueueBackendRedis QueueBackend = "redis"
	// QueueBackendMemory uses an in-process queue; worker and API must share the process.
	QueueBackendMemory QueueBackend = "memory"
)

// UnmarshalText implements encoding.TextUnmarshaler for env parsing.
func (b *QueueBackend) UnmarshalText(text []byte) error {
	v := QueueBackend(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case QueueBackendRedis, QueueBackendMemory:
		*b = v
		return nil
	}
	return fmt.Errorf("invalid queue backend: %q (valid options: redis, memory)", v)
}

// JobsConfig contains job execution, persistence and queue configuration.
type JobsConfig struct {
	// ExecutionMode is a static choice: sync or async.
	ExecutionMode ExecutionMode `env:"JOB_EXECUTION_MODE" envDefault:"async"`

	// RuntimeBaseDir holds jobs/ (file record store) and locks/ (render permit).
	RuntimeBaseDir string `env:"RUNTIME_BASE_DIR" envDefault:"runtime"`

	// TimeoutSeconds bounds one job execution in async mode.
	TimeoutSeconds int `env:"JOB_TIMEOUT_SECONDS" envDefault:"1800"`

	StoreBackend StoreBackend `env:"JOBS_STORE_BACKEND" envDefault:"file"`
	// RedisRecordTTL expires Redis job records; zero keeps them forever.
	RedisRecordTTL time.Duration `env:"JOBS_REDIS_RECORD_TTL" envDefault:"0s"`

	QueueBackend QueueBackend `env:"JOBS_QUEUE_BACKEND" envDefault:"redis"`
	QueueName    string       `env:"JOBS_QUEUE_NAME"    envDefault:"video-edit"`
	// QueueResultTTL is how long queue metadata outlives a finished job.
	QueueResultTTL time.Duration `env:"JOBS_QUEUE_RESULT_TTL" envDefault:"24h"`
	// QueuePollWait is the blocking dequeue window of one worker iteration.
	QueuePollWait time.Duration `env:"JOBS_QUEUE_POLL_WAIT" envDefault:"5s"`

	// StaleJobGrace is added to a delivery's timeout before the sweeper treats
	// a started job whose worker vanished as lost and fails it.
	StaleJobGrace time.Duration `env:"JOBS_STALE_GRACE" envDefault:"5m"`

	// WorkerConcurrency is the number of worker goroutines.
	WorkerConcurrency int `env:"JOBS_WORKER_CONCURRENCY" envDefault:"2"`

	// PermitTimeout bounds the wait for the render permit.
	PermitTimeout time.Duration `env:"JOBS_PERMIT_TIMEOUT" envDefault:"5s"`
	// PermitMaxRetries is how often a job that lost the permit race is retried before it fails.
	PermitMaxRetries int           `env:"JOBS_PERMIT_MAX_RETRIES" envDefault:"5"`
	PermitRetryDelay time.Duration `env:"JOBS_PERMIT_RETRY_DELAY" envDefault:"10s"`
	PermitRetryMax   time.Duration `env:"JOBS_PERMIT_RETRY_MAX"   envDefault:"2m"`
}

// Sanitize applies guardrails to job configuration values.
func (c *JobsConfig) Sanitize() {
	if c.ExecutionMode == "" {
		c.ExecutionMode = ExecutionModeAsync
	}
	if c.StoreBackend == "" {
		c.StoreBackend = StoreBackendFile
	}
	if c.QueueBackend == "" {
		c.QueueBackend = QueueBackendRedis
	}
	c.RuntimeBaseDir = strings.TrimSpace(c.RuntimeBaseDir)
	if c.RuntimeBaseDir == "" {
		c.RuntimeBaseDir = "runtime"
	}
	c.QueueName = strings.TrimSpace(c.QueueName)
	if c.QueueName == "" {
		c.QueueName = "video-edit"
	}
	if c.TimeoutSeconds < 1 {
		c.TimeoutSeconds = 1800
	}
	if c.QueuePollWait < time.Second {
		c.QueuePollWait = time.Second
	}
	if c.StaleJobGrace < time.Minute {
		c.StaleJobGrace = time.Minute
	}
	if c.WorkerConcurrency < 1 {
		c.WorkerConcurrency = 1
	}
	if c.PermitTimeout <= 0 {
		c.PermitTimeout = 5 * time.Second
	}
	if c.PermitMaxRetries < 0 {
		c.PermitMaxRetries = 0
	}
	if c.PermitRetryDelay <= 0 {
		c.PermitRetryDelay = 10 * time.Second
	}
	if c.PermitRetryMax < c.PermitRetryDelay {
		c.PermitRetryMax = c.PermitRetryDelay
	}
	if c.RedisRecordTTL < 0 {
		c.RedisRecordTTL = 0
	}
}

// QueueTimeout returns the per-job execution bound.
func (c JobsConfig) QueueTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// JobsDir is where the file record store writes.
func (c JobsConfig) JobsDir() string {
	return filepath.Join(c.RuntimeBaseDir, "jobs")
}

// LockPath is the render permit lock file.
func (c JobsConfig) LockPath() string {
	return filepath.Join(c.RuntimeBaseDir, "locks", "video_job.lock")
}
