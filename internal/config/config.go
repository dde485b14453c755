// Package config loads convocache settings from the environment (and an optional .env file).
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"

	"github.com/colthorp/convocache/internal/core"
)

// Config holds all application configuration.
// Every field can be set through a CONVOCACHE_-prefixed environment variable;
// CLI flags override whatever was loaded.
type Config struct {
	CacheDir       string        `env:"CACHE_DIR"`
	RawLogsDir     string        `env:"RAW_LOGS_DIR"`
	AggregatePath  string        `env:"AGGREGATE_PATH"`
	ScannerCommand string        `env:"SCANNER_CMD"` // empty means the built-in scanner
	BuilderCommand string        `env:"BUILDER_CMD"`
	ScanTimeout    time.Duration `env:"SCAN_TIMEOUT" envDefault:"30s"`
	BuildTimeout   time.Duration `env:"BUILD_TIMEOUT" envDefault:"5m"`
	Parallel       int           `env:"PARALLEL" envDefault:"4"`
	LogSuffix      string        `env:"LOG_SUFFIX" envDefault:".log"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"LOG_FORMAT" envDefault:"console"`
	MetricsFile    string        `env:"METRICS_FILE"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: core.EnvPrefix}); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ValidateCache checks the settings needed to read the cache and normalises
// its paths to absolute form.
func (c *Config) ValidateCache() error {
	if c.CacheDir == "" {
		return fmt.Errorf("cache directory is required (--cache-dir or %sCACHE_DIR)", core.EnvPrefix)
	}

	var err error
	if c.CacheDir, err = filepath.Abs(c.CacheDir); err != nil {
		return err
	}
	if c.AggregatePath != "" {
		if c.AggregatePath, err = filepath.Abs(c.AggregatePath); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the settings a refresh depends on and normalises paths to absolute form.
func (c *Config) Validate(needBuilder bool) error {
	if err := c.ValidateCache(); err != nil {
		return err
	}
	if c.RawLogsDir == "" {
		return fmt.Errorf("raw logs directory is required (--raw-logs-dir or %sRAW_LOGS_DIR)", core.EnvPrefix)
	}
	if needBuilder && c.BuilderCommand == "" {
		return fmt.Errorf("builder command is required (--builder or %sBUILDER_CMD)", core.EnvPrefix)
	}
	if c.ScanTimeout <= 0 || c.BuildTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive (scan=%s build=%s)", c.ScanTimeout, c.BuildTimeout)
	}
	if c.Parallel <= 0 {
		return fmt.Errorf("parallel must be positive, got %d", c.Parallel)
	}
	if c.LogSuffix == "" {
		c.LogSuffix = core.DefaultLogSuffix
	}

	var err error
	c.RawLogsDir, err = filepath.Abs(c.RawLogsDir)
	return err
}

// ValidateRefresh checks the settings of a full refresh, which always writes
// the aggregate.
func (c *Config) ValidateRefresh() error {
	if c.AggregatePath == "" {
		return fmt.Errorf("aggregate path is required (--aggregate or %sAGGREGATE_PATH)", core.EnvPrefix)
	}
	return c.Validate(true)
}
