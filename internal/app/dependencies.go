// Package app opens the shared infrastructure both binaries depend on.
package app

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-payments/internal/config"
	"github.com/noah-isme/toko-payments/internal/db"
	dbgen "github.com/noah-isme/toko-payments/internal/db/gen"
	"github.com/noah-isme/toko-payments/internal/obs"
	"github.com/noah-isme/toko-payments/internal/ratelimit"
	"github.com/noah-isme/toko-payments/internal/resilience"
)

// Dependencies enumerates core services shared across modules.
type Dependencies struct {
	DB              *pgxpool.Pool
	Queries         *dbgen.Queries
	Redis           *redis.Client
	RedisOpts       *redis.Options
	TaskClient      *asynq.Client
	MetricsRegistry *prometheus.Registry
}

// Open connects to Postgres and Redis, applies migrations when enabled and
// registers metrics on a fresh registry.
func Open(ctx context.Context, cfg *config.Config, component string, logger zerolog.Logger) (*Dependencies, error) {
	deps := &Dependencies{MetricsRegistry: prometheus.NewRegistry()}
	deps.MetricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	obs.MustRegisterDomainMetrics(cfg.MetricsNamespace, deps.MetricsRegistry)
	if err := resilience.RegisterMetrics(deps.MetricsRegistry); err != nil {
		return nil, fmt.Errorf("register breaker metrics: %w", err)
	}

	if cfg.DBAutoMigrate {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			return nil, err
		}
		logger.Info().Msg("database migrations applied")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = component
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	deps.DB = pool
	deps.Queries = dbgen.New(pool)

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		deps.Close(logger)
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	deps.RedisOpts = redisOpts
	deps.Redis = redis.NewClient(redisOpts)
	if cfg.TracingEnabled {
		if err := redisotel.InstrumentTracing(deps.Redis); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
	}
	if cfg.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(deps.Redis); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := deps.Redis.Ping(ctx).Err(); err != nil {
		deps.Close(logger)
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	deps.TaskClient = asynq.NewClient(RedisConnOpt(redisOpts))
	return deps, nil
}

// RedisConnOpt maps go-redis options onto the asynq connection options.
func RedisConnOpt(o *redis.Options) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Network:   o.Network,
		Addr:      o.Addr,
		Username:  o.Username,
		Password:  o.Password,
		DB:        o.DB,
		TLSConfig: o.TLSConfig,
	}
}

// NewRateLimiter picks the limiter backend named by RATE_LIMIT_BACKEND.
func NewRateLimiter(cfg *config.Config, rdb *redis.Client) (ratelimit.Allower, error) {
	switch cfg.RateLimitBackend {
	case "fixed", "ulule":
		return ratelimit.NewFixedWindow(rdb, "ratelimit")
	case "sliding", "":
		return ratelimit.Limiter{Client: rdb, Prefix: "ratelimit:"}, nil
	default:
		return nil, fmt.Errorf("unsupported rate limit backend: %s", cfg.RateLimitBackend)
	}
}

// Close releases every opened resource.
func (d *Dependencies) Close(logger zerolog.Logger) {
	if d.TaskClient != nil {
		if err := d.TaskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
