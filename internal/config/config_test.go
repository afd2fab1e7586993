package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "batch"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "batch"
	cfg.Redis.Addr = ""
	cfg.Dispatcher.Workers = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "dispatcher: workers")
}

func TestValidateMoneyRules(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.Precision = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "precision")

	cfg = Defaults()
	cfg.Engine.Epsilon = "-0.1"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "epsilon")

	cfg = Defaults()
	cfg.Engine.Epsilon = "not-a-number"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "epsilon")
}

func TestValidateRateWindow(t *testing.T) {
	cfg := Defaults()
	cfg.Server.RateLimit = 10
	cfg.Server.RateWindow = duration{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_window")
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
mode = "engine"

[engine]
interval = "500ms"
settlement_currency = "KRW"

[upbit]
markets = ["KRW-BTC"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "engine", cfg.Mode)
	assert.Equal(t, 500*time.Millisecond, cfg.Engine.Interval.Duration)
	assert.Equal(t, []string{"KRW-BTC"}, cfg.Upbit.Markets)
	// Untouched sections keep their defaults.
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "5000", cfg.Engine.MinNotional)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`mode = "server"`), 0o600))

	t.Setenv("CORINEE_MODE", "full")
	t.Setenv("CORINEE_SERVER_PORT", "9001")
	t.Setenv("CORINEE_UPBIT_MARKETS", "KRW-BTC, KRW-XRP")
	t.Setenv("CORINEE_ENGINE_INTERVAL", "10s")
	t.Setenv("CORINEE_ENGINE_EPSILON", "0.0001")
	t.Setenv("CORINEE_ENGINE_PRECISION", "4")
	t.Setenv("CORINEE_DATABASE_PASSWORD", "hunter2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "full", cfg.Mode)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, []string{"KRW-BTC", "KRW-XRP"}, cfg.Upbit.Markets)
	assert.Equal(t, 10*time.Second, cfg.Engine.Interval.Duration)
	assert.Equal(t, "0.0001", cfg.Engine.Epsilon)
	assert.Equal(t, 4, cfg.Engine.Precision)
	assert.Equal(t, "hunter2", cfg.Database.Password)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
