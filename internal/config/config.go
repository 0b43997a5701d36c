// Package config defines the top-level configuration for the simulator and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"

	"github.com/perpstack/simcore/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SIMCORE_* environment
// variables.
type Config struct {
	Engine   EngineConfig       `toml:"engine"`
	Bots     []domain.BotConfig `toml:"bots"`
	Session  SessionConfig      `toml:"session"`
	Executor ExecutorConfig     `toml:"executor"`
	Feed     FeedConfig         `toml:"feed"`
	Postgres PostgresConfig     `toml:"postgres"`
	Redis    RedisConfig        `toml:"redis"`
	LogLevel string             `toml:"log_level"`
}

// EngineConfig selects the base price model and tick cadence. Exactly the
// sub-table matching Model is read; the others are ignored.
type EngineConfig struct {
	Model        string `toml:"model"`
	StartPriceE6 int64  `toml:"start_price_e6"`
	IntervalMs   int64  `toml:"interval_ms"`
	// Seed pins the random source for reproducible runs. Zero draws from the
	// clock.
	Seed       int64 `toml:"seed"`
	MaxUpdates int64 `toml:"max_updates"`

	RandomWalk domain.RandomWalkParams `toml:"random_walk"`
	MeanRevert domain.MeanRevertParams `toml:"mean_revert"`
	Trending   domain.TrendingParams   `toml:"trending"`
	Crash      domain.CrashParams      `toml:"crash"`
	Squeeze    domain.SqueezeParams    `toml:"squeeze"`
}

// ModelParams returns the parameter set for the configured model.
func (e EngineConfig) ModelParams() (domain.ModelParams, error) {
	switch domain.PriceModelKind(e.Model) {
	case domain.ModelRandomWalk:
		return e.RandomWalk, nil
	case domain.ModelMeanRevert:
		return e.MeanRevert, nil
	case domain.ModelTrending:
		return e.Trending, nil
	case domain.ModelCrash:
		return e.Crash, nil
	case domain.ModelSqueeze:
		return e.Squeeze, nil
	default:
		return nil, fmt.Errorf("%w: unknown model %q", domain.ErrInvalidConfig, e.Model)
	}
}

// SessionConfig tunes the session manager.
type SessionConfig struct {
	// LockTTLMs is the cross-process slot lease when Redis locking is on.
	LockTTLMs int64 `toml:"lock_ttl_ms"`
	// UseLock enables the Redis session slot lock. Requires redis.enabled.
	UseLock bool `toml:"use_lock"`
	// HistorySize bounds the rolling price history handed to agents.
	HistorySize int `toml:"history_size"`
}

// ExecutorConfig tunes retries and the simulated settlement layer.
type ExecutorConfig struct {
	MaxAttempts    int   `toml:"max_attempts"`
	RetryBackoffMs int64 `toml:"retry_backoff_ms"`
	// SimFailureRate is the per-attempt rejection probability of the
	// simulated submitter, in [0, 1].
	SimFailureRate float64 `toml:"sim_failure_rate"`
	SimSeed        int64   `toml:"sim_seed"`
}

// FeedConfig points at the external reference price stream.
type FeedConfig struct {
	Enabled      bool     `toml:"enabled"`
	WsURL        string   `toml:"ws_url"`
	Symbols      []string `toml:"symbols"`
	StaleAfterMs int64    `toml:"stale_after_ms"`
	// StartPriceSymbol, when set, seeds the session start price from the
	// latest reference quote for that symbol. The configured
	// engine.start_price_e6 remains the fallback when no quote arrives.
	StartPriceSymbol string `toml:"start_price_symbol"`
}

// PostgresConfig holds PostgreSQL connection parameters for the record sinks.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters for the price cache, the
// publisher, and the session lock.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// Defaults returns the built-in configuration: a seeded random walk around
// 100.000000 with one degen bot, everything external disabled.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			Model:        string(domain.ModelRandomWalk),
			StartPriceE6: 100_000_000,
			IntervalMs:   1000,
			RandomWalk:   domain.RandomWalkParams{Volatility: 0.01},
			MeanRevert: domain.MeanRevertParams{
				MeanPriceE6: 100_000_000,
				RevertSpeed: 0.1,
			},
			Crash: domain.CrashParams{
				CrashMagnitude:  0.3,
				CrashDurationMs: 30_000,
				RecoverySpeed:   0.02,
			},
			Squeeze: domain.SqueezeParams{
				SqueezeMagnitude:  0.5,
				SqueezeDurationMs: 30_000,
				RecoverySpeed:     0.02,
			},
		},
		Bots: []domain.BotConfig{
			{
				Type:            domain.BotDegen,
				Name:            "degen-1",
				MaxPositionSize: 1_000,
			},
		},
		Session: SessionConfig{
			LockTTLMs:   30_000,
			HistorySize: 100,
		},
		Executor: ExecutorConfig{
			MaxAttempts:    3,
			RetryBackoffMs: 100,
		},
		Feed: FeedConfig{
			StaleAfterMs: 10_000,
		},
		Postgres: PostgresConfig{
			Port:         5432,
			SSLMode:      "disable",
			PoolMaxConns: 4,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if c.Engine.StartPriceE6 <= 0 {
		errs = append(errs, "engine: start_price_e6 must be > 0")
	}
	if c.Engine.IntervalMs < 0 {
		errs = append(errs, "engine: interval_ms must be >= 0")
	}
	if c.Engine.MaxUpdates < 0 {
		errs = append(errs, "engine: max_updates must be >= 0")
	}
	params, err := c.Engine.ModelParams()
	if err != nil {
		errs = append(errs, fmt.Sprintf("engine: %v", err))
	} else if err := params.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("engine: %s params: %v", c.Engine.Model, err))
	}

	// Bots
	seen := make(map[string]bool, len(c.Bots))
	for i, bot := range c.Bots {
		if err := bot.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("bots[%d]: %v", i, err))
			continue
		}
		if seen[bot.Name] {
			errs = append(errs, fmt.Sprintf("bots[%d]: duplicate name %q", i, bot.Name))
		}
		seen[bot.Name] = true
	}

	// Session
	if c.Session.UseLock && !c.Redis.Enabled {
		errs = append(errs, "session: use_lock requires redis.enabled")
	}
	if c.Session.HistorySize < 0 {
		errs = append(errs, "session: history_size must be >= 0")
	}

	// Executor
	if c.Executor.MaxAttempts < 0 {
		errs = append(errs, "executor: max_attempts must be >= 0")
	}
	if c.Executor.SimFailureRate < 0 || c.Executor.SimFailureRate > 1 {
		errs = append(errs, "executor: sim_failure_rate must be in [0, 1]")
	}

	// Feed
	if c.Feed.Enabled {
		if c.Feed.WsURL == "" {
			errs = append(errs, "feed: ws_url must not be empty when enabled")
		}
		if len(c.Feed.Symbols) == 0 {
			errs = append(errs, "feed: symbols must not be empty when enabled")
		}
		if c.Feed.StartPriceSymbol != "" {
			found := false
			for _, s := range c.Feed.Symbols {
				if s == c.Feed.StartPriceSymbol {
					found = true
					break
				}
			}
			if !found {
				errs = append(errs, "feed: start_price_symbol must be one of feed.symbols")
			}
		}
	} else if c.Feed.StartPriceSymbol != "" {
		errs = append(errs, "feed: start_price_symbol requires feed.enabled")
	}

	// Postgres
	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.Enabled && c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
