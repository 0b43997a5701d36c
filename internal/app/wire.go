package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/perpstack/simcore/internal/cache/redis"
	"github.com/perpstack/simcore/internal/config"
	"github.com/perpstack/simcore/internal/domain"
	"github.com/perpstack/simcore/internal/session"
	"github.com/perpstack/simcore/internal/store/memory"
	"github.com/perpstack/simcore/internal/store/postgres"
)

// Dependencies bundles the storage and locking collaborators the session
// manager needs. It is constructed by Wire and torn down by the returned
// cleanup function.
type Dependencies struct {
	Sinks  session.Sinks
	Locker domain.SessionLocker
	Trades domain.TradeLogStore
}

// Wire constructs concrete store, cache, and lock implementations from the
// configuration. Disabled backends fall back to the in-memory versions so a
// bare config still yields a fully working simulator.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL record sinks ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Sinks.Sessions = postgres.NewSessionStore(pool)
		deps.Sinks.Ticks = postgres.NewTickStore(pool)
		deps.Trades = postgres.NewTradeLogStore(pool)
	} else {
		deps.Sinks.Sessions = memory.NewSessionStore()
		deps.Sinks.Ticks = memory.NewTickStore()
		deps.Trades = memory.NewTradeLogStore()
	}
	deps.Sinks.Trades = deps.Trades

	// --- Redis cache, publisher, and session slot lock ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Sinks.Cache = redis.NewPriceCache(redisClient)
		deps.Sinks.Publisher = redis.NewPublisher(redisClient)
		if cfg.Session.UseLock {
			deps.Locker = redis.NewSessionLocker(redisClient)
		}
	} else {
		deps.Sinks.Cache = memory.NewPriceCache()
		if cfg.Session.UseLock {
			deps.Locker = memory.NewSessionLocker()
		}
	}

	return deps, cleanup, nil
}

// lockTTL converts the configured lease length, defaulting when unset.
func lockTTL(cfg *config.Config) time.Duration {
	if cfg.Session.LockTTLMs <= 0 {
		return 0
	}
	return time.Duration(cfg.Session.LockTTLMs) * time.Millisecond
}
