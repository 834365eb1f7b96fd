package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, `
server:
  port: 9090
  host: "0.0.0.0"

mlp:
  api_key: "test-api-key"
  base_url: "https://mlp.example.com"
  timeout_seconds: 45

sync:
  batch_size: 500
  max_processing_seconds: 120

tiers:
  order: ["OPT_IN", "GOLD"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "test-api-key", cfg.MLP.APIKey)
	assert.Equal(t, "https://mlp.example.com", cfg.MLP.BaseURL)
	assert.Equal(t, 45, cfg.MLP.TimeoutSeconds)
	assert.Equal(t, 500, cfg.Sync.BatchSize)
	assert.Equal(t, 120, cfg.Sync.MaxProcessingSeconds)
	assert.Equal(t, []string{"OPT_IN", "GOLD"}, cfg.Tiers.Order)
}

func TestLoadDefaults(t *testing.T) {
	path := writeTempConfig(t, "mlp:\n  api_key: test-key\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 30, cfg.MLP.TimeoutSeconds)
	assert.Equal(t, 1000, cfg.Sync.BatchSize)
	assert.Equal(t, 0.8, cfg.Sync.MemoryThresholdPct)
	assert.Equal(t, 300, cfg.Sync.MaxProcessingSeconds)
	assert.Equal(t, 10, cfg.Sync.MaxPagesPerRun)
	assert.Equal(t, 100, cfg.Sync.SubscribersPerPage)
	assert.Equal(t, 4, cfg.Sync.InFlightBatches)
	assert.Equal(t, 3, cfg.API.MaxRetries)
	assert.Equal(t, 1000, cfg.API.MinIntervalMs)
	assert.Equal(t, 100, cfg.Errors.MaxQueue)
	assert.Equal(t, 3, cfg.Transition.MaxPerSubscriberDay)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadClampsBatchSize(t *testing.T) {
	path := writeTempConfig(t, "sync:\n  batch_size: 50000\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10000, cfg.Sync.BatchSize)
}

func TestLoadFromEnv(t *testing.T) {
	path := writeTempConfig(t, "mlp:\n  api_key: file-key\n  base_url: https://file.example.com\n")

	t.Setenv("MLP_API_KEY", "env-key")
	t.Setenv("MLP_BASE_URL", "https://env.example.com")

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.MLP.APIKey)
	assert.Equal(t, "https://env.example.com", cfg.MLP.BaseURL)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestTierEngineConfigFallsBackToDefaults(t *testing.T) {
	path := writeTempConfig(t, "mlp:\n  api_key: x\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	tc := cfg.TierEngineConfig()
	assert.NotEmpty(t, tc.Order)
	assert.NotEmpty(t, tc.Progression)
	assert.NotEmpty(t, tc.Matrix)
}

func TestAPITimeoutHelpers(t *testing.T) {
	cfg := APIConfig{TimeoutSeconds: 30, MinIntervalMs: 1000}
	assert.Equal(t, "30s", cfg.Timeout().String())
	assert.Equal(t, "1s", cfg.MinInterval().String())
}
