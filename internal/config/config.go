package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/foxzi/mailjob/internal/job"
)

// EnvAPIURL overrides api.base_url when set
const EnvAPIURL = "MAILJOB_API_URL"

// EnvKeyringPassword overrides session.file_password when set
const EnvKeyringPassword = "MAILJOB_KEYRING_PASSWORD"

// DefaultBaseURL is the backend used when nothing is configured
const DefaultBaseURL = "http://localhost:8000/v1"

// Config is the main configuration structure
type Config struct {
	API      APIConfig      `yaml:"api"`
	Session  SessionConfig  `yaml:"session"`
	Cache    CacheConfig    `yaml:"cache"`
	Compose  ComposeConfig  `yaml:"compose"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Watch    WatchConfig    `yaml:"watch"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Callback CallbackConfig `yaml:"callback"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// APIConfig contains backend connection settings
type APIConfig struct {
	BaseURL   string        `yaml:"base_url"`   // Default: http://localhost:8000/v1
	Timeout   time.Duration `yaml:"timeout"`    // Default: 30s
	UserAgent string        `yaml:"user_agent"` // Default: mailjob/<version>
}

// SessionConfig contains token storage settings
type SessionConfig struct {
	Backend     string `yaml:"backend"`      // keyring or file
	FileDir     string `yaml:"file_dir"`     // directory of the encrypted file backend
	ServiceName string `yaml:"service_name"` // keyring service name
	// FilePassword encrypts the file backend. Empty falls back to a fixed
	// key, which only obscures the token on disk.
	FilePassword string `yaml:"file_password"`
}

// CacheConfig contains local response cache settings
type CacheConfig struct {
	Enabled *bool         `yaml:"enabled"` // Default: true
	Path    string        `yaml:"path"`
	MaxAge  time.Duration `yaml:"max_age"` // Entries older than this are pruned on start
}

// ComposeConfig contains defaults for new drafts
type ComposeConfig struct {
	DefaultTimezone        string `yaml:"default_timezone"`
	DefaultIntervalMinutes int    `yaml:"default_interval_minutes"`
}

// JobsConfig contains job list settings
type JobsConfig struct {
	PerPage int `yaml:"per_page"`
}

// WatchConfig contains settings of the `jobs watch` poller
type WatchConfig struct {
	Interval   time.Duration `yaml:"interval"`
	MaxRetries int           `yaml:"max_retries"`
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"` // Default: 127.0.0.1:9464
	Path       string `yaml:"path"`        // Default: /metrics
}

// CallbackConfig contains the loopback listener for browser redirects
type CallbackConfig struct {
	ListenAddr string `yaml:"listen_addr"` // Default: 127.0.0.1:8765
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultPath returns ~/.config/mailjob/config.yaml
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "mailjob", "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults so the CLI works without any setup.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv(EnvKeyringPassword); v != "" {
		cfg.Session.FilePassword = v
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 30 * time.Second
	}
	if c.API.UserAgent == "" {
		c.API.UserAgent = "mailjob"
	}

	if c.Session.Backend == "" {
		c.Session.Backend = "keyring"
	}
	if c.Session.ServiceName == "" {
		c.Session.ServiceName = "mailjob"
	}
	if c.Session.FileDir == "" {
		c.Session.FileDir = filepath.Join(stateDir(os.UserConfigDir), "keyring")
	}

	if c.Cache.Enabled == nil {
		enabled := true
		c.Cache.Enabled = &enabled
	}
	if c.Cache.Path == "" {
		c.Cache.Path = filepath.Join(stateDir(os.UserCacheDir), "cache.db")
	}
	if c.Cache.MaxAge == 0 {
		c.Cache.MaxAge = 7 * 24 * time.Hour
	}

	if c.Compose.DefaultTimezone == "" {
		c.Compose.DefaultTimezone = job.DefaultTimezone
	}
	if c.Compose.DefaultIntervalMinutes == 0 {
		c.Compose.DefaultIntervalMinutes = job.DefaultIntervalMinutes
	}

	if c.Jobs.PerPage == 0 {
		c.Jobs.PerPage = 15
	}

	if c.Watch.Interval == 0 {
		c.Watch.Interval = 15 * time.Second
	}
	if c.Watch.MaxRetries == 0 {
		c.Watch.MaxRetries = 3
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = "127.0.0.1:9464"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Callback.ListenAddr == "" {
		c.Callback.ListenAddr = "127.0.0.1:8765"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "warn"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

func stateDir(base func() (string, error)) string {
	dir, err := base()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "mailjob")
}

// CacheEnabled reports whether the local cache should be opened
func (c *Config) CacheEnabled() bool {
	return c.Cache.Enabled == nil || *c.Cache.Enabled
}

// Validate validates the configuration
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api.base_url: %q (must be an http or https URL)", c.API.BaseURL)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}

	switch c.Session.Backend {
	case "keyring", "file":
	default:
		return fmt.Errorf("invalid session.backend: %s (must be keyring or file)", c.Session.Backend)
	}

	if _, err := time.LoadLocation(c.Compose.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid compose.default_timezone: %s", c.Compose.DefaultTimezone)
	}
	if n := c.Compose.DefaultIntervalMinutes; n < job.MinIntervalMinutes || n > job.MaxIntervalMinutes {
		return fmt.Errorf("compose.default_interval_minutes must be between %d and %d",
			job.MinIntervalMinutes, job.MaxIntervalMinutes)
	}

	if c.Jobs.PerPage < 1 || c.Jobs.PerPage > 100 {
		return fmt.Errorf("jobs.per_page must be between 1 and 100")
	}

	if c.Watch.Interval < time.Second {
		return fmt.Errorf("watch.interval must be at least 1s")
	}
	if c.Watch.MaxRetries < 0 {
		return fmt.Errorf("watch.max_retries must not be negative")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	return nil
}
