package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SIMCORE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load. An empty path skips the
// file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SIMCORE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject endpoints and secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setStr(&cfg.Engine.Model, "SIMCORE_ENGINE_MODEL")
	setInt64(&cfg.Engine.StartPriceE6, "SIMCORE_ENGINE_START_PRICE_E6")
	setInt64(&cfg.Engine.IntervalMs, "SIMCORE_ENGINE_INTERVAL_MS")
	setInt64(&cfg.Engine.Seed, "SIMCORE_ENGINE_SEED")
	setInt64(&cfg.Engine.MaxUpdates, "SIMCORE_ENGINE_MAX_UPDATES")

	// ── Session ──
	setInt64(&cfg.Session.LockTTLMs, "SIMCORE_SESSION_LOCK_TTL_MS")
	setBool(&cfg.Session.UseLock, "SIMCORE_SESSION_USE_LOCK")
	setInt(&cfg.Session.HistorySize, "SIMCORE_SESSION_HISTORY_SIZE")

	// ── Executor ──
	setInt(&cfg.Executor.MaxAttempts, "SIMCORE_EXECUTOR_MAX_ATTEMPTS")
	setInt64(&cfg.Executor.RetryBackoffMs, "SIMCORE_EXECUTOR_RETRY_BACKOFF_MS")
	setFloat64(&cfg.Executor.SimFailureRate, "SIMCORE_EXECUTOR_SIM_FAILURE_RATE")
	setInt64(&cfg.Executor.SimSeed, "SIMCORE_EXECUTOR_SIM_SEED")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, "SIMCORE_FEED_ENABLED")
	setStr(&cfg.Feed.WsURL, "SIMCORE_FEED_WS_URL")
	setStringSlice(&cfg.Feed.Symbols, "SIMCORE_FEED_SYMBOLS")
	setInt64(&cfg.Feed.StaleAfterMs, "SIMCORE_FEED_STALE_AFTER_MS")
	setStr(&cfg.Feed.StartPriceSymbol, "SIMCORE_FEED_START_PRICE_SYMBOL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "SIMCORE_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "SIMCORE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SIMCORE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SIMCORE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SIMCORE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SIMCORE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SIMCORE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SIMCORE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SIMCORE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SIMCORE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SIMCORE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "SIMCORE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SIMCORE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SIMCORE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SIMCORE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SIMCORE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SIMCORE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SIMCORE_REDIS_TLS_ENABLED")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "SIMCORE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
