package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/cutline/cutline-jobs/config"
	"github.com/cutline/cutline-jobs/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger(nil)
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	logger = bootstrap.InitLogger(&cfg)

	if err = bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}
	logStartupInfo(ctx, logger, &cfg)

	infra, err := initInfrastructure(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeInfrastructure(infra); cerr != nil {
			logger.ErrorContext(ctx, "close infrastructure failed", "error", cerr)
		}
	}()

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config: &cfg,
		Infra:  infra,
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("wire services: %w", err)
	}
	defer func() {
		if cerr := services.Close(); cerr != nil {
			logger.WarnContext(ctx, "close services failed", "error", cerr)
		}
	}()

	return bootstrap.RunServicesWithShutdown(ctx, &bootstrap.ServiceOrchestrationConfig{
		Config:   &cfg,
		Services: services,
		Infra:    infra,
		Logger:   logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting cutline service",
		"enabled_services", bootstrap.GetEnabledServices(cfg),
		"execution_mode", cfg.Jobs.ExecutionMode,
		"store_backend", cfg.Jobs.StoreBackend,
		"queue_backend", cfg.Jobs.QueueBackend,
		"rate_limit_backend", cfg.RateLimit.Backend,
	)
	for _, w := range cfg.Warnings() {
		logger.WarnContext(ctx, "configuration warning", "warning", w)
	}
}

// initInfrastructure connects only the backends the configuration selects.
func initInfrastructure(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (bootstrap.Infrastructure, error) {
	var infra bootstrap.Infrastructure

	if cfg.NeedsPostgres() {
		db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, Logger: logger})
		if err != nil {
			return infra, fmt.Errorf("connect db: %w", err)
		}
		infra.DB = db

		if cfg.Postgres.RunMigrationsOnStart {
			if err = bootstrap.RunMigrations(ctx, db, logger); err != nil {
				return infra, errors.Join(err, closeInfrastructure(infra))
			}
		} else {
			logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
		}
	}

	if cfg.NeedsRedis() {
		client, err := bootstrap.ConnectRedis(ctx, bootstrap.DatabaseConfig{RedisConfig: cfg.Redis, Logger: logger})
		if err != nil {
			return infra, errors.Join(fmt.Errorf("connect redis: %w", err), closeInfrastructure(infra))
		}
		infra.Redis = client
	}

	return infra, nil
}

func closeInfrastructure(infra bootstrap.Infrastructure) error {
	var closeErr error
	if infra.DB != nil {
		if err := infra.DB.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close db: %w", err))
		}
	}
	if infra.Redis != nil {
		if err := infra.Redis.Close(); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close redis: %w", err))
		}
	}
	return closeErr
}
