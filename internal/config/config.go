// Package config loads application configuration from a YAML file and
// environment variables, with environment taking precedence.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// envPrefix namespaces the environment variables, e.g. QUANTDATA_FETCH_TRIALS.
const envPrefix = "QUANTDATA"

// Config is the complete application configuration.
type Config struct {
	Logging LoggingConfig `yaml:"logging" envconfig:"LOGGING"`
	Fetch   FetchConfig   `yaml:"fetch" envconfig:"FETCH"`
	Clean   CleanConfig   `yaml:"clean" envconfig:"CLEAN"`
	Catalog CatalogConfig `yaml:"catalog" envconfig:"CATALOG"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// FetchConfig controls the vendor HTTP client.
type FetchConfig struct {
	Timeout      time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	Trials       int           `yaml:"trials" envconfig:"TRIALS"`
	Pause        time.Duration `yaml:"pause" envconfig:"PAUSE"`
	RateLimitRPS float64       `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS"`
	Burst        int           `yaml:"burst" envconfig:"BURST"`
	Workers      int           `yaml:"workers" envconfig:"WORKERS"`
}

// CleanConfig holds defaults for the data quality pipeline.
type CleanConfig struct {
	OutlierMethod    string  `yaml:"outlier_method" envconfig:"OUTLIER_METHOD"`
	Window           int     `yaml:"window" envconfig:"WINDOW"`
	Thresh           float64 `yaml:"thresh" envconfig:"THRESH"`
	MinObs           int     `yaml:"min_obs" envconfig:"MIN_OBS"`
	TradingValThresh float64 `yaml:"trading_val_thresh" envconfig:"TRADING_VAL_THRESH"`
	TradingValWindow int     `yaml:"trading_val_window" envconfig:"TRADING_VAL_WINDOW"`
	GapWindow        int     `yaml:"gap_window" envconfig:"GAP_WINDOW"`
}

// CatalogConfig locates the field catalog.
type CatalogConfig struct {
	// Path points at a CSV overriding the embedded catalog. Empty uses the
	// embedded one.
	Path string `yaml:"path" envconfig:"PATH"`
}

// Load reads the YAML file at path (skipped when empty or absent), applies
// environment overrides, fills defaults and validates.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		path = os.Getenv(envPrefix + "_CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns the built-in configuration, ignoring file and environment.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "console"
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.Trials == 0 {
		c.Fetch.Trials = 3
	}
	if c.Fetch.Pause == 0 {
		c.Fetch.Pause = 100 * time.Millisecond
	}
	if c.Fetch.RateLimitRPS == 0 {
		c.Fetch.RateLimitRPS = 4
	}
	if c.Fetch.Burst == 0 {
		c.Fetch.Burst = 8
	}
	if c.Fetch.Workers == 0 {
		c.Fetch.Workers = 4
	}
	if c.Clean.OutlierMethod == "" {
		c.Clean.OutlierMethod = "z_score"
	}
	if c.Clean.Window == 0 {
		c.Clean.Window = 7
	}
	if c.Clean.Thresh == 0 {
		c.Clean.Thresh = 2
	}
	if c.Clean.MinObs == 0 {
		c.Clean.MinObs = 100
	}
	if c.Clean.TradingValThresh == 0 {
		c.Clean.TradingValThresh = 1e7
	}
	if c.Clean.TradingValWindow == 0 {
		c.Clean.TradingValWindow = 30
	}
	if c.Clean.GapWindow == 0 {
		c.Clean.GapWindow = 30
	}
}

func (c *Config) validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %q", c.Logging.Format)
	}
	if c.Fetch.Trials < 1 {
		return fmt.Errorf("fetch trials must be at least 1, got %d", c.Fetch.Trials)
	}
	if c.Fetch.Pause < 0 {
		return fmt.Errorf("fetch pause must not be negative")
	}
	if c.Fetch.RateLimitRPS <= 0 {
		return fmt.Errorf("fetch rate limit must be positive")
	}
	if c.Clean.Window < 2 {
		return fmt.Errorf("clean window must be at least 2, got %d", c.Clean.Window)
	}
	if c.Clean.Thresh <= 0 {
		return fmt.Errorf("clean threshold must be positive")
	}
	return nil
}
