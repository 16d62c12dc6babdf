package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cutline/cutline-jobs/config"
	"github.com/cutline/cutline-jobs/internal/bootstrap"
)

type connectInfraOptions struct {
	Logger    *slog.Logger
	Config    *config.AppConfig
	WantDB    bool
	WantRedis bool
}

var errRedisNotConfigured = errors.New("redis not configured")

// connectInfraForStore connects whatever the configured store and queue need.
func connectInfraForStore(ctx context.Context, cmdCtx *commandContext) (bootstrap.Infrastructure, error) {
	return connectInfra(ctx, &connectInfraOptions{
		Logger:    cmdCtx.Logger,
		Config:    &cmdCtx.Config,
		WantDB:    cmdCtx.Config.NeedsPostgres(),
		WantRedis: cmdCtx.Config.NeedsRedis(),
	})
}

// connectInfra wires up infrastructure dependencies based on CLI options.
func connectInfra(ctx context.Context, opts *connectInfraOptions) (bootstrap.Infrastructure, error) {
	var infra bootstrap.Infrastructure

	if opts.WantDB {
		db, err := bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{DBConfig: opts.Config.Postgres, Logger: opts.Logger})
		if err != nil {
			return infra, fmt.Errorf("connect db: %w", err)
		}
		infra.DB = db
	}

	if opts.WantRedis {
		if !hasRedisConfig(&opts.Config.Redis) {
			return infra, errors.Join(errRedisNotConfigured, closeInfra(infra))
		}
		client, err := bootstrap.ConnectRedis(ctx, bootstrap.DatabaseConfig{RedisConfig: opts.Config.Redis, Logger: opts.Logger})
		if err != nil {
			return infra, errors.Join(fmt.Errorf("connect redis: %w", err), closeInfra(infra))
		}
		infra.Redis = client
	}

	return infra, nil
}

func hasRedisConfig(cfg *config.RedisConfig) bool {
	if cfg == nil {
		return false
	}
	if cfg.UseCluster {
		return len(cfg.ClusterNodes) > 0 || cfg.URI != ""
	}
	if cfg.UseSentinel {
		return len(cfg.SentinelNodes) > 0
	}
	return cfg.URI != ""
}

func closeInfra(infra bootstrap.Infrastructure) error {
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
