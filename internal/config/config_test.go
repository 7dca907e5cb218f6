package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 50, cfg.RateLimit.MaxRequests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window())
	assert.Equal(t, 5, cfg.Health.FailureThreshold)
	assert.Equal(t, 2, cfg.Health.FastFailThreshold)
	assert.Equal(t, 300, cfg.Snapshot.TTLSeconds)
	assert.Nil(t, cfg.Policy.MaxPriceImpactBps)
	require.NoError(t, cfg.Validate())
}

func TestLoadFileWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
policy:
  maxPriceImpactBps: 500
  deniedTools: [sketchybridge]
sources:
  lifi:
    timeoutMs: 2500
    rateLimit:
      maxRequests: 10
      windowSeconds: 1
  zerox:
    disabled: false
`), 0o600))

	t.Setenv("ZEROX_API_KEY", "zx-key")
	t.Setenv("DISABLED_SOURCES", "oneinch, skip")
	t.Setenv("SERVER_PORT", "9191")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
	require.NotNil(t, cfg.Policy.MaxPriceImpactBps)
	assert.Equal(t, 500, *cfg.Policy.MaxPriceImpactBps)
	assert.Equal(t, []string{"sketchybridge"}, cfg.Policy.DeniedTools)
	assert.Equal(t, "zx-key", cfg.Source("zerox").APIKey)
	assert.True(t, cfg.Source("oneinch").Disabled)
	assert.True(t, cfg.Source("skip").Disabled)
	assert.Equal(t, 2500*time.Millisecond, cfg.Source("lifi").Timeout(10*time.Second))
	assert.Equal(t, 10*time.Second, cfg.Source("debridge").Timeout(10*time.Second))
	assert.Equal(t, 10, cfg.Source("lifi").RateLimit.MaxRequests)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	bad := 20000
	cfg.Policy.MaxSlippageBps = &bad
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Policy.SanctionsCheck = true
	assert.Error(t, cfg.Validate())
	cfg.KYTOracle.BaseURL = "http://kyt.local"
	assert.NoError(t, cfg.Validate())
}
