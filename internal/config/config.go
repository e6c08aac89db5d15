// Package config defines the top-level configuration for the settlement
// core and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by FLASHCORE_* environment
// variables.
type Config struct {
	Signing  SigningConfig  `toml:"signing"`
	Feed     FeedConfig     `toml:"feed"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Risk     RiskConfig     `toml:"risk"`
	Resolver ResolverConfig `toml:"resolver"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Sweep    SweepConfig    `toml:"sweep"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// SigningConfig holds the attestation key material and the registered
// attestation sources.
type SigningConfig struct {
	PrivateKey       string `toml:"private_key"`
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`

	// Sources maps attestation source IDs to their registered secp256k1
	// addresses (0x-prefixed hex).
	Sources map[string]string `toml:"sources"`
}

// FeedConfig holds the market data / attestation feed parameters.
type FeedConfig struct {
	WsURL string `toml:"ws_url"`

	// Markets lists market IDs to subscribe to at startup. Markets created
	// at runtime are subscribed on creation.
	Markets []string `toml:"markets"`

	// AttestationsPerMinute bounds submissions per source before signature
	// verification. Zero disables the limiter.
	AttestationsPerMinute int `toml:"attestations_per_minute"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the market
// archive.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// RiskConfig holds the admission-control parameters.
type RiskConfig struct {
	MinCollateralRatio float64 `toml:"min_collateral_ratio"`
	MaxLeverage        float64 `toml:"max_leverage"`

	// MaxStake caps a single position's stake. Zero means uncapped.
	MaxStake float64 `toml:"max_stake"`
}

// ResolverConfig holds the proof verification service endpoint and the
// resolution-path time budgets.
type ResolverConfig struct {
	// VerifierURL is the proof verification service; empty disables the
	// proof path so every resolution goes through consensus.
	VerifierURL string `toml:"verifier_url"`

	ProofBudget     duration `toml:"proof_budget"`
	ConsensusWindow duration `toml:"consensus_window"`
}

// LedgerConfig holds the settlement stream parameters.
type LedgerConfig struct {
	// StreamSecret authenticates stream records; empty disables tagging.
	StreamSecret string `toml:"stream_secret"`
}

// SweepConfig holds the background sweep intervals.
type SweepConfig struct {
	// ExpireInterval is how often market clocks are decremented when no
	// feed update arrives.
	ExpireInterval duration `toml:"expire_interval"`

	// ReclaimInterval is how often resolved markets past the dispute
	// window are archived and removed from hot storage.
	ReclaimInterval duration `toml:"reclaim_interval"`

	// LedgerInterval is how often settlements that missed the ledger
	// stream are re-emitted.
	LedgerInterval duration `toml:"ledger_interval"`
}

// NotifyConfig holds governance alert channel credentials.
type NotifyConfig struct {
	WebhookURL     string `toml:"webhook_url"`
	TelegramToken  string `toml:"telegram_token"`
	TelegramChatID string `toml:"telegram_chat_id"`
}

// duration wraps time.Duration so the TOML decoder can parse strings like
// "5m" or "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Feed: FeedConfig{
			WsURL:                 "wss://feed.flashverse.io/ws",
			AttestationsPerMinute: 30,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "flashcore",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "flashcore-archive",
			ForcePathStyle: true,
		},
		Risk: RiskConfig{
			MinCollateralRatio: 0.80,
			MaxLeverage:        500,
		},
		Resolver: ResolverConfig{
			ProofBudget:     duration{3 * time.Second},
			ConsensusWindow: duration{10 * time.Second},
		},
		Sweep: SweepConfig{
			ExpireInterval:  duration{time.Second},
			ReclaimInterval: duration{time.Minute},
			LedgerInterval:  duration{30 * time.Second},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"core":    true, // trading engine + feed + resolver
	"sweep":   true, // expiry and reclamation sweeps only
	"monitor": true, // feed consumption without trading
	"full":    true,
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

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: core, sweep, monitor, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Signing — key material is only needed when the core itself signs.
	if c.Signing.EncryptedKeyPath != "" && c.Signing.KeyPassword == "" {
		errs = append(errs, "signing: key_password is required when encrypted_key_path is set")
	}

	needsFeed := c.Mode == "core" || c.Mode == "monitor" || c.Mode == "full"
	if needsFeed && c.Feed.WsURL == "" {
		errs = append(errs, "feed: ws_url must not be empty for mode "+c.Mode)
	}
	if c.Feed.AttestationsPerMinute < 0 {
		errs = append(errs, "feed: attestations_per_minute must be >= 0")
	}

	if strings.TrimSpace(c.Postgres.DSN) == "" {
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
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Endpoint == "" {
		errs = append(errs, "s3: endpoint must not be empty")
	}
	if c.S3.Bucket == "" {
		errs = append(errs, "s3: bucket must not be empty")
	}

	if c.Risk.MinCollateralRatio <= 0 || c.Risk.MinCollateralRatio > 1 {
		errs = append(errs, fmt.Sprintf("risk: min_collateral_ratio must be in (0, 1], got %g", c.Risk.MinCollateralRatio))
	}
	if c.Risk.MaxLeverage < 1 {
		errs = append(errs, "risk: max_leverage must be >= 1")
	}
	if c.Risk.MaxStake < 0 {
		errs = append(errs, "risk: max_stake must be >= 0")
	}

	if c.Resolver.ProofBudget.Duration <= 0 {
		errs = append(errs, "resolver: proof_budget must be > 0")
	}
	if c.Resolver.ConsensusWindow.Duration <= 0 {
		errs = append(errs, "resolver: consensus_window must be > 0")
	}

	if c.Sweep.ExpireInterval.Duration <= 0 {
		errs = append(errs, "sweep: expire_interval must be > 0")
	}
	if c.Sweep.ReclaimInterval.Duration <= 0 {
		errs = append(errs, "sweep: reclaim_interval must be > 0")
	}
	if c.Sweep.LedgerInterval.Duration <= 0 {
		errs = append(errs, "sweep: ledger_interval must be > 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
