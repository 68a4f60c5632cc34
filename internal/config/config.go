package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"arbfinder/internal/pricefeed"
	"arbfinder/internal/slippage"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Feed        FeedConfig        `yaml:"feed"`
	Detector    DetectorConfig    `yaml:"detector"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Server      ServerConfig      `yaml:"server"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// FeedConfig holds live price feed settings.
type FeedConfig struct {
	BaseURL string        `yaml:"base_url"`
	Assets  []string      `yaml:"assets"`
	Timeout time.Duration `yaml:"timeout"`
}

// DetectorConfig holds arbitrage detection settings.
type DetectorConfig struct {
	SlippagePct float64 `yaml:"slippage_pct"`
	NumWorkers  int     `yaml:"num_workers"`
}

// PersistenceConfig holds database settings.
type PersistenceConfig struct {
	Enabled    bool   `yaml:"enabled"`
	SQLitePath string `yaml:"sqlite_path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
// A missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	cfg.setDefaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if len(data) > 0 {
			// Expand environment variables in YAML content
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// SlippageFraction returns the configured slippage as a fraction.
func (c *Config) SlippageFraction() float64 {
	return slippage.FromPercent(c.Detector.SlippagePct)
}

func (c *Config) setDefaults() {
	c.Feed = FeedConfig{
		BaseURL: pricefeed.DefaultBaseURL,
		Assets:  append([]string(nil), pricefeed.DefaultAssets...),
		Timeout: 10 * time.Second,
	}
	c.Detector = DetectorConfig{
		SlippagePct: 0,
		NumWorkers:  4,
	}
	c.Persistence = PersistenceConfig{
		Enabled:    false,
		SQLitePath: "./data/arbfinder.db",
	}
	c.Server = ServerConfig{
		Port:            8000,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
	c.Metrics = MetricsConfig{
		Enabled: true,
		Port:    9090,
		Path:    "/metrics",
	}
	c.Logging = LoggingConfig{
		Level:  "info",
		Format: "console",
	}
}

func (c *Config) applyEnvOverrides() {
	// Feed config
	if v := os.Getenv("ARB_FEED_URL"); v != "" {
		c.Feed.BaseURL = v
	}
	if v := os.Getenv("ARB_ASSETS"); v != "" {
		var assets []string
		for _, a := range strings.Split(v, ",") {
			if a = strings.ToUpper(strings.TrimSpace(a)); a != "" {
				assets = append(assets, a)
			}
		}
		if len(assets) > 0 {
			c.Feed.Assets = assets
		}
	}

	// Detector config
	if v := os.Getenv("ARB_SLIPPAGE_PCT"); v != "" {
		var pct float64
		if _, err := fmt.Sscanf(v, "%f", &pct); err == nil {
			c.Detector.SlippagePct = pct
		}
	}
	if v := os.Getenv("ARB_NUM_WORKERS"); v != "" {
		var workers int
		if _, err := fmt.Sscanf(v, "%d", &workers); err == nil && workers > 0 {
			c.Detector.NumWorkers = workers
		}
	}

	// Server config
	if v := os.Getenv("ARB_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			c.Server.Port = port
		}
	}

	// Metrics config
	if v := os.Getenv("METRICS_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil && port > 0 {
			c.Metrics.Port = port
		}
	}

	// Persistence config
	if v := os.Getenv("ARB_PERSISTENCE_ENABLED"); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			c.Persistence.Enabled = true
		case "0", "false", "no", "off":
			c.Persistence.Enabled = false
		}
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Persistence.SQLitePath = v
	}

	// Logging config
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

func (c *Config) validate() error {
	if c.Feed.BaseURL == "" {
		return fmt.Errorf("feed.base_url is required (set ARB_FEED_URL env var)")
	}
	if len(c.Feed.Assets) < 2 {
		return fmt.Errorf("feed.assets must name at least two assets")
	}
	if c.Feed.Timeout <= 0 {
		return fmt.Errorf("feed.timeout must be positive")
	}
	if c.Detector.SlippagePct < 0 || c.Detector.SlippagePct > slippage.MaxPercent {
		return fmt.Errorf("detector.slippage_pct must be between 0 and %g", slippage.MaxPercent)
	}
	if c.Detector.NumWorkers <= 0 {
		return fmt.Errorf("detector.num_workers must be positive")
	}
	if c.Persistence.Enabled && c.Persistence.SQLitePath == "" {
		return fmt.Errorf("persistence.sqlite_path is required when persistence is enabled")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid port number")
	}
	if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be a valid port number")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console")
	}
	return nil
}
