package config

import (
	"fmt"
	"strings"
	"time"
)

// RateLimitBackend selects where sliding windows are kept.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver
type RateLimitBackend string

const (
	// RateLimitBackendMemory keeps windows in process memory.
	RateLimitBackendMemory RateLimitBackend = "memory"
	// RateLimitBackendRedis shares windows between API replicas.
	RateLimitBackendRedis RateLimitBackend = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for env parsing.
func (b *RateLimitBackend) UnmarshalText(text []byte) error {
	v := RateLimitBackend(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case RateLimitBackendMemory, RateLimitBackendRedis:
		*b = v
		return nil
	}
	return fmt.Errorf("invalid rate limit backend: %q (valid options: memory, redis)", v)
}

// RateLimitConfig controls admission of job submissions per client.
type RateLimitConfig struct {
	// MaxRequests per window; zero or less disables limiting.
	MaxRequests   int              `env:"RATE_LIMIT_REQUESTS"       envDefault:"10"`
	WindowSeconds float64          `env:"RATE_LIMIT_WINDOW_SECONDS" envDefault:"60"`
	Backend       RateLimitBackend `env:"RATE_LIMIT_BACKEND"        envDefault:"memory"`
	// SweepInterval is how often fully expired buckets are dropped.
	SweepInterval time.Duration `env:"RATE_LIMIT_SWEEP_INTERVAL" envDefault:"5m"`
}

// Sanitize applies guardrails to rate limit configuration values.
func (c *RateLimitConfig) Sanitize() {
	if c.WindowSeconds <= 0 {
		c.WindowSeconds = 60
	}
	if c.SweepInterval < time.Second {
		c.SweepInterval = time.Second
	}
	if c.Backend == "" {
		c.Backend = RateLimitBackendMemory
	}
}

// Enabled reports whether submissions are limited at all.
func (c RateLimitConfig) Enabled() bool {
	return c.MaxRequests > 0
}

// Window returns the sliding window length.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds * float64(time.Second))
}

// CleanupConfig controls the artifact sweeper.
type CleanupConfig struct {
	TTLSeconds      float64 `env:"JOB_CLEANUP_TTL_SECONDS"      envDefault:"3600"`
	IntervalSeconds float64 `env:"JOB_CLEANUP_INTERVAL_SECONDS" envDefault:"600"`
	// Directories to sweep; defaults to the downloaded and processed media directories.
	Directories []string `env:"JOB_CLEANUP_DIRECTORIES" envSeparator:","`
}

// Sanitize applies guardrails and fills default directories from the media config.
func (c *CleanupConfig) Sanitize(media MediaConfig) {
	if c.TTLSeconds <= 0 {
		c.TTLSeconds = 3600
	}
	if c.IntervalSeconds <= 0 {
		c.IntervalSeconds = 600
	}

	dirs := make([]string, 0, len(c.Directories))
	for _, d := range c.Directories {
		if d = strings.TrimSpace(d); d != "" {
			dirs = append(dirs, d)
		}
	}
	if len(dirs) == 0 {
		dirs = []string{media.VideosDir, media.ProcessedDir}
	}
	c.Directories = dirs
}

// TTL returns the file age beyond which artifacts are deleted.
func (c CleanupConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds * float64(time.Second))
}

// Interval returns the delay between sweeps.
func (c CleanupConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds * float64(time.Second))
}
