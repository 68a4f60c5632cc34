package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "https://api.binance.com", cfg.Feed.BaseURL)
	assert.Equal(t, []string{"BTC", "ETH", "USDT"}, cfg.Feed.Assets)
	assert.Equal(t, 10*time.Second, cfg.Feed.Timeout)
	assert.Equal(t, 4, cfg.Detector.NumWorkers)
	assert.Equal(t, 0.0, cfg.Detector.SlippagePct)
	assert.False(t, cfg.Persistence.Enabled)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
feed:
  base_url: http://localhost:9999
  assets: [BTC, ETH, BNB, USDT]
  timeout: 3s
detector:
  slippage_pct: 1.5
  num_workers: 8
persistence:
  enabled: true
  sqlite_path: /tmp/arb.db
server:
  port: 8081
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9999", cfg.Feed.BaseURL)
	assert.Equal(t, []string{"BTC", "ETH", "BNB", "USDT"}, cfg.Feed.Assets)
	assert.Equal(t, 3*time.Second, cfg.Feed.Timeout)
	assert.Equal(t, 1.5, cfg.Detector.SlippagePct)
	assert.InDelta(t, 0.015, cfg.SlippageFraction(), 1e-15)
	assert.Equal(t, 8, cfg.Detector.NumWorkers)
	assert.True(t, cfg.Persistence.Enabled)
	assert.Equal(t, "/tmp/arb.db", cfg.Persistence.SQLitePath)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Logging.Format)

	// Untouched sections keep their defaults
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("TEST_FEED_HOST", "feed.internal")
	path := writeConfig(t, "feed:\n  base_url: http://${TEST_FEED_HOST}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://feed.internal", cfg.Feed.BaseURL)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ARB_ASSETS", "btc, eth ,,sol")
	t.Setenv("ARB_SLIPPAGE_PCT", "2.5")
	t.Setenv("ARB_NUM_WORKERS", "2")
	t.Setenv("ARB_SERVER_PORT", "7000")
	t.Setenv("ARB_PERSISTENCE_ENABLED", "true")
	t.Setenv("SQLITE_PATH", "/data/x.db")
	t.Setenv("METRICS_PORT", "9191")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC", "ETH", "SOL"}, cfg.Feed.Assets)
	assert.Equal(t, 2.5, cfg.Detector.SlippagePct)
	assert.Equal(t, 2, cfg.Detector.NumWorkers)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.True(t, cfg.Persistence.Enabled)
	assert.Equal(t, "/data/x.db", cfg.Persistence.SQLitePath)
	assert.Equal(t, 9191, cfg.Metrics.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestInvalidEnvOverridesIgnored(t *testing.T) {
	t.Setenv("ARB_NUM_WORKERS", "-3")
	t.Setenv("METRICS_PORT", "abc")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Detector.NumWorkers)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"slippage too high", "detector:\n  slippage_pct: 7\n", "slippage_pct"},
		{"negative slippage", "detector:\n  slippage_pct: -1\n", "slippage_pct"},
		{"zero workers", "detector:\n  num_workers: 0\n", "num_workers"},
		{"one asset", "feed:\n  assets: [BTC]\n", "assets"},
		{"bad port", "server:\n  port: 70000\n", "server.port"},
		{"bad format", "logging:\n  format: xml\n", "logging.format"},
		{"persistence without path", "persistence:\n  enabled: true\n  sqlite_path: \"\"\n", "sqlite_path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "feed: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}
