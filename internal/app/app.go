// Package app connects the shared dependencies used by the binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/hackgods/pool-availability/internal/availability"
	"github.com/hackgods/pool-availability/internal/busy"
	"github.com/hackgods/pool-availability/internal/cache"
	"github.com/hackgods/pool-availability/internal/config"
	"github.com/hackgods/pool-availability/internal/db"
	redisclient "github.com/hackgods/pool-availability/internal/redis"
	"github.com/hackgods/pool-availability/internal/store"
)

type App struct {
	Postgres *pgxpool.Pool
	Redis    *redis.Client
	Engine   *availability.Engine
}

// Open connects Postgres and Redis and builds the engine on top of them.
func Open(ctx context.Context, cfg config.Config) (*App, error) {
	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.Options{
		MaxConns:  int32(cfg.PGMaxConns),
		SlowQuery: cfg.SlowQuery,
	})
	cancel()
	if err != nil {
		return nil, fmt.Errorf("postgres connection: %w", err)
	}
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		PoolSize: cfg.RedisPoolSize,
	})
	if err != nil {
		pgPool.Close()
		return nil, fmt.Errorf("redis connection: %w", err)
	}
	log.Info().Msg("connected to Redis")

	var c cache.Cache = cache.Noop{}
	if cfg.CacheEnabled {
		c = redisclient.NewCache(rdb, cfg.ServiceName)
	}

	repo := store.NewPgRepository(pgPool, cfg.MinimumNotice)
	engine := availability.NewEngine(
		store.NewCachedCalendars(repo, c, cfg.CacheTTL),
		store.NewCachedPools(repo, c, cfg.CacheTTL),
		repo,
		busy.Multi{repo},
		redisclient.NewRedisPoolLocker(rdb, cfg.LockTTL),
		c,
		availability.Config{
			ServerLocation:     cfg.ServerLocation,
			DefaultHorizonDays: cfg.HorizonDays,
			DatesTTL:           cfg.CacheTTL,
		},
	)

	return &App{Postgres: pgPool, Redis: rdb, Engine: engine}, nil
}

func (a *App) Close() {
	if err := a.Redis.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing redis")
	}
	a.Postgres.Close()
}
