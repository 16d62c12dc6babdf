package config

import (
	"fmt"
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - jobs.go: execution mode, record store, queue and permit
//   - limits.go: admission rate limiting and artifact cleanup
//   - media.go: media directories and external toolchain
//   - database.go: Postgres and Redis connections
//   - http.go: HTTP server configuration
//   - services.go: service modes
type AppConfig struct {
	// IsDev controls development mode behavior (.env loading, text logs).
	// Set DEV=true or APP_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Services is a comma-delimited list of enabled services: http, worker, sweeper.
	Services string `env:"SERVICES" envDefault:"http,sweeper"`

	Jobs      JobsConfig
	RateLimit RateLimitConfig
	Cleanup   CleanupConfig
	Media     MediaConfig

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	HTTP HTTPConfig

	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.Jobs.Sanitize()
	c.RateLimit.Sanitize()
	c.Media.Sanitize()
	c.Cleanup.Sanitize(c.Media)
	c.HTTP.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// Warnings reports configuration combinations that are legal but risky.
// They are logged at startup rather than rejected.
func (c *AppConfig) Warnings() []string {
	var out []string
	if c.Cleanup.TTL() <= c.Jobs.QueueTimeout() {
		out = append(out, fmt.Sprintf(
			"cleanup TTL (%s) does not exceed the job timeout (%s); the sweeper may delete files of in-flight jobs",
			c.Cleanup.TTL(), c.Jobs.QueueTimeout(),
		))
	}
	if c.Jobs.ExecutionMode == ExecutionModeAsync && c.Jobs.QueueBackend == QueueBackendMemory {
		services, err := c.GetEnabledServices()
		if err == nil && !services[ServiceModeWorker] {
			out = append(out, "async mode with the in-memory queue needs the worker service in the same process")
		}
	}
	return out
}

func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.isEnabled(ServiceModeHTTP)
}

// IsWorkerEnabled returns true if the queue worker service is enabled.
func (c *AppConfig) IsWorkerEnabled() bool {
	return c.isEnabled(ServiceModeWorker)
}

// IsSweeperEnabled returns true if the cleanup sweeper service is enabled.
func (c *AppConfig) IsSweeperEnabled() bool {
	return c.isEnabled(ServiceModeSweeper)
}

func (c *AppConfig) isEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

// NeedsRedis reports whether any configured component talks to Redis.
func (c *AppConfig) NeedsRedis() bool {
	return c.Jobs.StoreBackend == StoreBackendRedis ||
		(c.Jobs.ExecutionMode == ExecutionModeAsync && c.Jobs.QueueBackend == QueueBackendRedis) ||
		(c.RateLimit.Enabled() && c.RateLimit.Backend == RateLimitBackendRedis)
}

// NeedsPostgres reports whether the Postgres record store is selected.
func (c *AppConfig) NeedsPostgres() bool {
	return c.Jobs.StoreBackend == StoreBackendPostgres
}
