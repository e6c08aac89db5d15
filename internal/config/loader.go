package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FLASHCORE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FLASHCORE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Signing ──
	setStr(&cfg.Signing.PrivateKey, "FLASHCORE_SIGNING_PRIVATE_KEY")
	setStr(&cfg.Signing.EncryptedKeyPath, "FLASHCORE_SIGNING_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Signing.KeyPassword, "FLASHCORE_SIGNING_KEY_PASSWORD")

	// ── Feed ──
	setStr(&cfg.Feed.WsURL, "FLASHCORE_FEED_WS_URL")
	setStringSlice(&cfg.Feed.Markets, "FLASHCORE_FEED_MARKETS")
	setInt(&cfg.Feed.AttestationsPerMinute, "FLASHCORE_FEED_ATTESTATIONS_PER_MINUTE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "FLASHCORE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "FLASHCORE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FLASHCORE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FLASHCORE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FLASHCORE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FLASHCORE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FLASHCORE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "FLASHCORE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "FLASHCORE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "FLASHCORE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "FLASHCORE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FLASHCORE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FLASHCORE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "FLASHCORE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "FLASHCORE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "FLASHCORE_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "FLASHCORE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FLASHCORE_S3_REGION")
	setStr(&cfg.S3.Bucket, "FLASHCORE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FLASHCORE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FLASHCORE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "FLASHCORE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "FLASHCORE_S3_FORCE_PATH_STYLE")

	// ── Risk ──
	setFloat64(&cfg.Risk.MinCollateralRatio, "FLASHCORE_RISK_MIN_COLLATERAL_RATIO")
	setFloat64(&cfg.Risk.MaxLeverage, "FLASHCORE_RISK_MAX_LEVERAGE")
	setFloat64(&cfg.Risk.MaxStake, "FLASHCORE_RISK_MAX_STAKE")

	// ── Resolver ──
	setStr(&cfg.Resolver.VerifierURL, "FLASHCORE_RESOLVER_VERIFIER_URL")
	setDuration(&cfg.Resolver.ProofBudget, "FLASHCORE_RESOLVER_PROOF_BUDGET")
	setDuration(&cfg.Resolver.ConsensusWindow, "FLASHCORE_RESOLVER_CONSENSUS_WINDOW")

	// ── Ledger ──
	setStr(&cfg.Ledger.StreamSecret, "FLASHCORE_LEDGER_STREAM_SECRET")

	// ── Sweep ──
	setDuration(&cfg.Sweep.ExpireInterval, "FLASHCORE_SWEEP_EXPIRE_INTERVAL")
	setDuration(&cfg.Sweep.ReclaimInterval, "FLASHCORE_SWEEP_RECLAIM_INTERVAL")
	setDuration(&cfg.Sweep.LedgerInterval, "FLASHCORE_SWEEP_LEDGER_INTERVAL")

	// ── Notify ──
	setStr(&cfg.Notify.WebhookURL, "FLASHCORE_NOTIFY_WEBHOOK_URL")
	setStr(&cfg.Notify.TelegramToken, "FLASHCORE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "FLASHCORE_NOTIFY_TELEGRAM_CHAT_ID")

	// ── Top-level ──
	setStr(&cfg.Mode, "FLASHCORE_MODE")
	setStr(&cfg.LogLevel, "FLASHCORE_LOG_LEVEL")
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

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
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
