package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	cfg.Redis.Addr = ""
	cfg.Risk.MinCollateralRatio = 1.5

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorContains(t, err, `unknown mode "turbo"`)
	assert.ErrorContains(t, err, "redis: addr")
	assert.ErrorContains(t, err, "min_collateral_ratio")
}

func TestValidateEncryptedKeyNeedsPassword(t *testing.T) {
	cfg := Defaults()
	cfg.Signing.EncryptedKeyPath = "/keys/attestor.json"

	err := cfg.Validate()
	assert.ErrorContains(t, err, "key_password")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "sweep"

[postgres]
host = "db.internal"

[resolver]
proof_budget = "5s"

[signing.sources]
oracle-a = "0x0102030405060708090a0b0c0d0e0f1011121314"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sweep", cfg.Mode)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	// Untouched fields keep their defaults.
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.Equal(t, 5*time.Second, cfg.Resolver.ProofBudget.Duration)
	assert.Equal(t, "0x0102030405060708090a0b0c0d0e0f1011121314", cfg.Signing.Sources["oracle-a"])
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FLASHCORE_MODE", "monitor")
	t.Setenv("FLASHCORE_REDIS_ADDR", "redis.internal:6380")
	t.Setenv("FLASHCORE_RISK_MAX_LEVERAGE", "250")
	t.Setenv("FLASHCORE_FEED_MARKETS", "mkt-1, mkt-2")
	t.Setenv("FLASHCORE_SWEEP_RECLAIM_INTERVAL", "30s")
	t.Setenv("FLASHCORE_SWEEP_LEDGER_INTERVAL", "45s")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 250.0, cfg.Risk.MaxLeverage)
	assert.Equal(t, []string{"mkt-1", "mkt-2"}, cfg.Feed.Markets)
	assert.Equal(t, 30*time.Second, cfg.Sweep.ReclaimInterval.Duration)
	assert.Equal(t, 45*time.Second, cfg.Sweep.LedgerInterval.Duration)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Signing.PrivateKey = "deadbeef"
	cfg.Postgres.Password = "hunter2"
	cfg.Ledger.StreamSecret = "shared"
	cfg.Signing.Sources = map[string]string{"oracle-a": "0xabc"}

	red := RedactedConfig(&cfg)
	assert.Equal(t, "***", red.Signing.PrivateKey)
	assert.Equal(t, "***", red.Postgres.Password)
	assert.Equal(t, "***", red.Ledger.StreamSecret)
	// Originals untouched.
	assert.Equal(t, "hunter2", cfg.Postgres.Password)

	red.Signing.Sources["oracle-b"] = "0xdef"
	assert.NotContains(t, cfg.Signing.Sources, "oracle-b")
}
