package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/cutline/cutline-jobs/config"
	"github.com/cutline/cutline-jobs/internal/adapters/media"
	"github.com/cutline/cutline-jobs/internal/adapters/memqueue"
	"github.com/cutline/cutline-jobs/internal/adapters/permit"
	"github.com/cutline/cutline-jobs/internal/adapters/ratelimit"
	redisadapter "github.com/cutline/cutline-jobs/internal/adapters/redis"
	"github.com/cutline/cutline-jobs/internal/core"
	"github.com/cutline/cutline-jobs/internal/data"
)

// Infrastructure holds the shared connections. Either field may be nil when
// no configured component needs it.
type Infrastructure struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

// NewJobRecordStore selects the record store backend.
//
//nolint:ireturn // the backend is chosen at runtime.
func NewJobRecordStore(cfg *config.AppConfig, infra Infrastructure, logger *slog.Logger) (core.JobRecordStore, error) {
	switch cfg.Jobs.StoreBackend {
	case config.StoreBackendFile:
		store, err := data.NewFileJobStore(data.FileJobStoreOptions{
			Dir:    cfg.Jobs.JobsDir(),
			Logger: logger,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreBackendRedis:
		if infra.Redis == nil {
			return nil, errors.New("redis record store selected but no redis client is configured")
		}
		return redisadapter.NewJobStore(redisadapter.JobStoreOptions{
			Client:    infra.Redis,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       cfg.Jobs.RedisRecordTTL,
			Logger:    logger,
		}), nil
	case config.StoreBackendPostgres:
		if infra.DB == nil {
			return nil, errors.New("postgres record store selected but no database is configured")
		}
		return data.NewPostgresJobStore(infra.DB, nil), nil
	default:
		return nil, fmt.Errorf("unknown record store backend %q", cfg.Jobs.StoreBackend)
	}
}

// NewJobQueue selects the queue backend. Sync mode has no queue and returns nil.
//
//nolint:ireturn // the backend is chosen at runtime.
func NewJobQueue(cfg *config.AppConfig, infra Infrastructure, logger *slog.Logger) (core.JobQueue, error) {
	if cfg.Jobs.ExecutionMode != config.ExecutionModeAsync {
		return nil, nil
	}
	switch cfg.Jobs.QueueBackend {
	case config.QueueBackendMemory:
		return memqueue.New(memqueue.Options{ResultTTL: cfg.Jobs.QueueResultTTL}), nil
	case config.QueueBackendRedis:
		if infra.Redis == nil {
			return nil, errors.New("redis queue selected but no redis client is configured")
		}
		return redisadapter.NewQueue(redisadapter.QueueOptions{
			Client:    infra.Redis,
			KeyPrefix: cfg.Redis.KeyPrefix,
			Name:      cfg.Jobs.QueueName,
			ResultTTL: cfg.Jobs.QueueResultTTL,
			Logger:    logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Jobs.QueueBackend)
	}
}

// rateLimiter is the admission limiter plus, for the in-process backend, the
// sweep loop that evicts idle keys.
type rateLimiter struct {
	core.RateLimiter
	sweeper *ratelimit.SlidingWindow
}

// newRateLimiter returns a zero value when rate limiting is disabled.
func newRateLimiter(cfg *config.AppConfig, infra Infrastructure, logger *slog.Logger) (rateLimiter, error) {
	if !cfg.RateLimit.Enabled() {
		return rateLimiter{}, nil
	}
	switch cfg.RateLimit.Backend {
	case config.RateLimitBackendMemory:
		sw := ratelimit.NewSlidingWindow(ratelimit.SlidingWindowOptions{
			MaxRequests:   cfg.RateLimit.MaxRequests,
			Window:        cfg.RateLimit.Window(),
			SweepInterval: cfg.RateLimit.SweepInterval,
			Logger:        logger,
		})
		return rateLimiter{RateLimiter: sw, sweeper: sw}, nil
	case config.RateLimitBackendRedis:
		if infra.Redis == nil {
			return rateLimiter{}, errors.New("redis rate limiter selected but no redis client is configured")
		}
		return rateLimiter{RateLimiter: redisadapter.NewRateLimiter(redisadapter.RateLimiterOptions{
			Client:      infra.Redis,
			KeyPrefix:   cfg.Redis.KeyPrefix,
			MaxRequests: cfg.RateLimit.MaxRequests,
			Window:      cfg.RateLimit.Window(),
			Logger:      logger,
		})}, nil
	default:
		return rateLimiter{}, fmt.Errorf("unknown rate limit backend %q", cfg.RateLimit.Backend)
	}
}

// mediaAdapters are the collaborators the executor drives.
type mediaAdapters struct {
	Permit     *permit.FilePermit
	Downloader *media.YTDLP
	Renderer   *media.FFmpeg
	Assets     media.DirResolver
}

func newMediaAdapters(cfg *config.AppConfig, logger *slog.Logger) (mediaAdapters, error) {
	p, err := permit.NewFilePermit(permit.FilePermitOptions{
		LockPath: cfg.Jobs.LockPath(),
		Logger:   logger,
	})
	if err != nil {
		return mediaAdapters{}, fmt.Errorf("render permit: %w", err)
	}

	dl, err := media.NewYTDLP(media.YTDLPOptions{
		Binary:            cfg.Media.YTDLPPath,
		OutputDir:         cfg.Media.VideosDir,
		Timeout:           cfg.Media.DownloadTimeout,
		RequestsPerMinute: cfg.Media.DownloadsPerMinute,
		AllowedDomains:    cfg.Media.AllowedSourceDomains,
		Logger:            logger,
	})
	if err != nil {
		return mediaAdapters{}, fmt.Errorf("downloader: %w", err)
	}

	return mediaAdapters{
		Permit:     p,
		Downloader: dl,
		Renderer: media.NewFFmpeg(media.FFmpegOptions{
			FFmpegPath:  cfg.Media.FFmpegPath,
			FFprobePath: cfg.Media.FFprobePath,
			GainDB:      cfg.Media.AudioGainDB,
			Timeout:     cfg.Media.RenderTimeout,
			Logger:      logger,
		}),
		Assets: media.DirResolver{MusicDir: cfg.Media.MusicDir, IngestDir: cfg.Media.IngestDir},
	}, nil
}
