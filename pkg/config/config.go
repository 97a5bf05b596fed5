// Package config loads swipe-sync settings from an optional YAML file and
// SWIPESYNC_* environment variables. Environment values override the file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jdziat/swipe-sync/pkg/retry"
	"github.com/jdziat/swipe-sync/pkg/schedule"
	"github.com/jdziat/swipe-sync/pkg/security"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
	DriverMemory = "memory"
)

const envPrefix = "SWIPESYNC_"

type Config struct {
	APIURL     string        `yaml:"api_url"`
	APIToken   string        `yaml:"api_token"`
	ListenAddr string        `yaml:"listen_addr"`
	LogLevel   string        `yaml:"log_level"`
	Probe      string        `yaml:"probe"`
	RateLimit  float64       `yaml:"rate_limit"`
	Timeout    time.Duration `yaml:"timeout"`
	Storage    StorageConfig `yaml:"storage"`
	Queue      QueueConfig   `yaml:"queue"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type QueueConfig struct {
	StorageKey string        `yaml:"storage_key"`
	BaseDelay  time.Duration `yaml:"base_delay"`
	MaxRetries int           `yaml:"max_retries"`
	MaxAge     time.Duration `yaml:"max_age"`
}

// Default returns the built-in configuration.
func Default() *Config {
	r := retry.DefaultScheduler()
	return &Config{
		APIURL:     "http://localhost:3000",
		ListenAddr: ":8089",
		LogLevel:   "info",
		Probe:      "15s",
		Timeout:    30 * time.Second,
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Path:   "swipesync.db",
		},
		Queue: QueueConfig{
			StorageKey: "actionQueue",
			BaseDelay:  r.BaseDelay,
			MaxRetries: r.MaxRetries,
			MaxAge:     r.MaxAge,
		},
	}
}

// Load reads path (when non-empty), applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()
		if err := cfg.decode(f); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults without reading the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.APIURL = getEnv("API_URL", c.APIURL)
	c.APIToken = getEnv("API_TOKEN", c.APIToken)
	c.ListenAddr = getEnv("LISTEN_ADDR", c.ListenAddr)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.Probe = getEnv("PROBE_INTERVAL", c.Probe)
	c.Storage.Driver = getEnv("STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.Path = getEnv("STORAGE_PATH", c.Storage.Path)

	if v := getEnv("MAX_RETRIES", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_RETRIES: %w", envPrefix, err)
		}
		c.Queue.MaxRetries = n
	}
	if v := getEnv("RATE_LIMIT", ""); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sRATE_LIMIT: %w", envPrefix, err)
		}
		c.RateLimit = f
	}
	return nil
}

// Validate checks the configuration and clamps MaxRetries.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite, DriverBadger:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for driver %q", c.Storage.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.APIURL == "" {
		return errors.New("api_url is required")
	}
	if !security.ValidStorageKey(c.Queue.StorageKey) {
		return fmt.Errorf("invalid queue.storage_key %q", c.Queue.StorageKey)
	}
	if c.Queue.BaseDelay <= 0 {
		return errors.New("queue.base_delay must be positive")
	}
	if c.Queue.MaxAge <= 0 {
		return errors.New("queue.max_age must be positive")
	}
	if c.RateLimit < 0 {
		return errors.New("rate_limit must not be negative")
	}
	if _, err := schedule.Parse(c.Probe); err != nil {
		return fmt.Errorf("probe: %w", err)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	c.Queue.MaxRetries = security.ClampRetries(c.Queue.MaxRetries)
	return nil
}

// Retry returns the queue retry policy.
func (c *Config) Retry() retry.Scheduler {
	return retry.Scheduler{
		BaseDelay:  c.Queue.BaseDelay,
		MaxRetries: c.Queue.MaxRetries,
		MaxAge:     c.Queue.MaxAge,
	}
}

// ProbeSchedule returns the parsed probe schedule.
func (c *Config) ProbeSchedule() (schedule.Schedule, error) {
	return schedule.Parse(c.Probe)
}

// Level returns the configured log level, defaulting to info.
func (c *Config) Level() slog.Level {
	l, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q", s)
	}
	return l, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return fallback
}
