package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/gkatanacio/batch-downloader/download"
	"github.com/gkatanacio/batch-downloader/internal/logging"
)

const (
	envPrefix         = "BDL"
	defaultConfigFile = "bdl.yaml"
)

// Config holds all application configuration.
type Config struct {
	URLs        string  `mapstructure:"urls"`
	OutDir      string  `mapstructure:"out_dir"`
	Concurrency int     `mapstructure:"concurrency"`
	Retries     int     `mapstructure:"retries"`
	Timeout     float64 `mapstructure:"timeout"` // seconds, per attempt
	Sequential  bool    `mapstructure:"sequential"`
	LimitRate   int64   `mapstructure:"limit_rate"` // bytes per second, 0 = unlimited

	History    string `mapstructure:"history"`
	StatusAddr string `mapstructure:"status_addr"`

	Log logging.Config `mapstructure:"log"`
}

// New returns a viper instance with defaults and environment overrides
// (BDL_OUT_DIR, BDL_LOG_LEVEL, ...) registered.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("urls", "")
	v.SetDefault("out_dir", download.DefaultOutDir)
	v.SetDefault("concurrency", download.DefaultConcurrency)
	v.SetDefault("retries", download.DefaultRetries)
	v.SetDefault("timeout", download.DefaultTimeout.Seconds())
	v.SetDefault("sequential", false)
	v.SetDefault("limit_rate", 0)
	v.SetDefault("history", "")
	v.SetDefault("status_addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the optional config file at path into v and returns the
// validated configuration. An empty path falls back to ./bdl.yaml when it
// exists; a missing explicit path is an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the values a batch cannot run with.
func (c *Config) Validate() error {
	if c.Concurrency < 1 && !c.Sequential {
		return fmt.Errorf("concurrency %d: %w", c.Concurrency, download.ErrInvalidConcurrency)
	}

	if c.Retries < 0 {
		return fmt.Errorf("retries must not be negative, got %d", c.Retries)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %g", c.Timeout)
	}

	if c.LimitRate < 0 {
		return errors.New("limit_rate must not be negative")
	}

	if c.OutDir == "" {
		c.OutDir = download.DefaultOutDir
	}

	return nil
}

// EffectiveConcurrency is 1 in sequential mode, the configured value otherwise.
func (c *Config) EffectiveConcurrency() int {
	if c.Sequential {
		return 1
	}
	return c.Concurrency
}

// DownloadOptions maps the configuration onto the download service options.
func (c *Config) DownloadOptions() download.Options {
	return download.Options{
		OutDir:        c.OutDir,
		Concurrency:   uint(c.EffectiveConcurrency()),
		Retries:       uint(c.Retries),
		Timeout:       time.Duration(c.Timeout * float64(time.Second)),
		RateLimit:     c.LimitRate,
		BackoffBase:   download.DefaultBackoffBase,
		BackoffJitter: download.DefaultBackoffJitter,
	}
}
