package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxIterations, cfg.Orchestrator.MaxIterations)
	assert.Equal(t, DefaultApprovalTimeout, cfg.Approval.Timeout)
	assert.Equal(t, DefaultMarketDataTTL, cfg.MarketData.CacheTTL)
	assert.Equal(t, DefaultMinTrades, cfg.Validator.MinTrades)
	assert.Equal(t, DefaultBind, cfg.Server.Bind)
	assert.Equal(t, DefaultModel, cfg.Model.Name)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
orchestrator:
  max_iterations: 9
approval:
  timeout: 30s
market_data:
  cache_ttl: 5m
  synthetic: true
server:
  bind: "0.0.0.0:9999"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Orchestrator.MaxIterations)
	assert.Equal(t, 30*time.Second, cfg.Approval.Timeout)
	assert.Equal(t, 5*time.Minute, cfg.MarketData.CacheTTL)
	assert.True(t, cfg.MarketData.Synthetic)
	assert.Equal(t, "0.0.0.0:9999", cfg.Server.Bind)
	assert.Equal(t, DefaultMinTrades, cfg.Validator.MinTrades, "unset sections keep defaults")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("STRATAGEM_API_KEY", "sk-test")
	t.Setenv("STRATAGEM_MAX_ITERATIONS", "3")
	t.Setenv("STRATAGEM_BIND", "127.0.0.1:7000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Model.APIKey)
	assert.Equal(t, 3, cfg.Orchestrator.MaxIterations)
	assert.Equal(t, "127.0.0.1:7000", cfg.Server.Bind)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("orchestrator:\n  max_iterations: -1\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_iterations")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
