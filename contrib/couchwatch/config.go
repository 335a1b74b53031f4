package couchwatch

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	couch "github.com/json420/couch.go"
	"github.com/json420/couch.go/pkg/constants"
	"github.com/json420/couch.go/pkg/logger"
)

// Config holds all configuration options for couchwatch
type Config struct {
	// Server URL, credentials may be embedded (e.g. "http://admin:pw@localhost:5984/")
	URL string `yaml:"url"`
	// Database to watch
	Database string `yaml:"database"`
	// Timeout for ordinary requests
	Timeout time.Duration `yaml:"timeout"`
	// PollTimeout bounds one long-poll request
	PollTimeout time.Duration `yaml:"poll_timeout"`
	// Listen is the address the WebSocket hub serves on
	Listen string `yaml:"listen"`

	Retry RetryConfig `yaml:"retry"`
	Log   LogConfig   `yaml:"log"`
}

type RetryConfig struct {
	Enabled      bool          `yaml:"enabled"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	// MaxRetries of zero retries forever
	MaxRetries int `yaml:"max_retries"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Path   string `yaml:"path"`
	Pretty bool   `yaml:"pretty"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		URL:         couch.GetEnvOrDefault(couch.EnvURL, "http://localhost:5984/"),
		Timeout:     constants.DefaultHTTPTimeout,
		PollTimeout: constants.DefaultPollTimeout,
		Listen:      "127.0.0.1:8089",
		Retry: RetryConfig{
			InitialDelay: time.Second,
			MaxDelay:     time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads a YAML file over the defaults. ${VAR} references are
// replaced with the environment variable's value before parsing.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path comes from the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := NewConfig()
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

var envVar = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(s string) string {
	return envVar.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error
	if c.URL == "" {
		errs = append(errs, errors.New("url is required"))
	} else if u, err := url.Parse(c.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("url %q must be absolute", c.URL))
	}
	if c.Database == "" {
		errs = append(errs, errors.New("database is required"))
	}
	if c.Timeout < 0 {
		errs = append(errs, errors.New("timeout must not be negative"))
	}
	if c.PollTimeout <= 0 {
		errs = append(errs, errors.New("poll_timeout must be positive"))
	}
	if c.Retry.Enabled {
		if c.Retry.InitialDelay <= 0 {
			errs = append(errs, errors.New("retry.initial_delay must be positive"))
		}
		if c.Retry.MaxDelay < c.Retry.InitialDelay {
			errs = append(errs, errors.New("retry.max_delay must not be below retry.initial_delay"))
		}
	}
	return errors.Join(errs...)
}

// Retryer returns the change-feed retry policy, or nil when retries are off.
func (c *Config) Retryer() couch.Retryer {
	if !c.Retry.Enabled {
		return nil
	}
	r := couch.NewExponentialBackoffRetryer()
	r.InitialDelay = c.Retry.InitialDelay
	r.MaxDelay = c.Retry.MaxDelay
	r.MaxRetries = c.Retry.MaxRetries
	return r
}

// Logger builds the logger described by the log section.
func (c *Config) Logger() (*logger.LogData, error) {
	return logger.New().
		FromBuffer(os.Stderr).
		FromPath(c.Log.Path).
		WithLevelString(c.Log.Level).
		Pretty(c.Log.Pretty).
		Make()
}
