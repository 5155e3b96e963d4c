// Package config loads the harvester configuration from YAML. Defaults come
// from struct tags; a missing file leaves every option at its default.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/parkrun-harvester/pkg/cache"
	"github.com/Sternrassler/parkrun-harvester/pkg/client"
	"github.com/Sternrassler/parkrun-harvester/pkg/logging"
	"github.com/Sternrassler/parkrun-harvester/pkg/pagination"
	"github.com/Sternrassler/parkrun-harvester/pkg/ratelimit"
	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no config file is named.
const DefaultPath = "harvest.yaml"

// Cache backends.
const (
	BackendFS    = "fs"
	BackendRedis = "redis"
)

var (
	// ErrEventRequired is returned when no event is configured.
	ErrEventRequired = errors.New("event is required")

	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Config is the complete harvester configuration.
type Config struct {
	// Event is the event path segment, e.g. "bushy".
	Event string `yaml:"event"`

	BaseURL string `yaml:"baseURL" default:"https://www.parkrun.org.uk"`

	// URLMode is "page" or "weekly".
	URLMode string `yaml:"urlMode" default:"page"`

	// DataDir is the root of the filesystem cache.
	DataDir string `yaml:"dataDir" default:"data"`

	// Logging level
	Logging string `yaml:"logging" default:"info"`
	Pretty  bool   `yaml:"pretty"`

	// MetricsAddr enables the /metrics endpoint when set, e.g. ":9090".
	MetricsAddr string `yaml:"metricsAddr"`

	Cache      CacheConfig      `yaml:"cache"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Pagination PaginationConfig `yaml:"pagination"`
}

// CacheConfig selects and configures the page cache backend.
type CacheConfig struct {
	Backend string      `yaml:"backend" default:"fs"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig configures the Redis cache backend.
type RedisConfig struct {
	Address  string `yaml:"address" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"harvest"`
}

// FetchConfig configures sessions and pacing.
type FetchConfig struct {
	MaxRetries          int           `yaml:"maxRetries" default:"5"`
	BackoffFactor       float64       `yaml:"backoffFactor" default:"1"`
	MaxBackoffSeconds   float64       `yaml:"maxBackoffSeconds" default:"120"`
	CooldownSeconds     float64       `yaml:"cooldownSeconds" default:"300"`
	RequestDelaySeconds float64       `yaml:"requestDelaySeconds" default:"2"`
	Timeout             time.Duration `yaml:"timeout" default:"30s"`
	TLSBypass           bool          `yaml:"tlsBypass"`
}

// PaginationConfig configures the pagination loop.
type PaginationConfig struct {
	MaxConsecutiveFailures int  `yaml:"maxConsecutiveFailures" default:"3"`
	StartIndex             int  `yaml:"startIndex" default:"1"`
	EmptyPageIsFailure     bool `yaml:"emptyPageIsFailure"`
}

// Default returns a configuration holding only defaults.
func Default() (*Config, error) {
	config := &Config{}
	if err := defaults.Set(config); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	return config, nil
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	config, err := Default()
	if err != nil {
		return nil, err
	}

	yamlFile, err := os.ReadFile(path) //nolint:gosec // User-provided config file path
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(yamlFile, config); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return config, nil
}

// Validate checks the configuration. Every failure wraps ErrInvalidConfig,
// and a missing event also wraps ErrEventRequired.
func (c *Config) Validate() error {
	if strings.Trim(c.Event, "/ ") == "" {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrEventRequired)
	}

	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.BaseURL != "", "baseURL is required")
	check(c.URLMode == string(client.URLModePage) || c.URLMode == string(client.URLModeWeekly),
		"urlMode must be page or weekly (got %q)", c.URLMode)
	check(logging.ValidLevel(logging.LogLevel(c.Logging)), "unknown logging level %q", c.Logging)

	check(c.Cache.Backend == BackendFS || c.Cache.Backend == BackendRedis,
		"cache.backend must be fs or redis (got %q)", c.Cache.Backend)
	if c.Cache.Backend == BackendFS {
		check(c.DataDir != "", "dataDir is required for the fs backend")
	}
	if c.Cache.Backend == BackendRedis {
		check(c.Cache.Redis.Address != "", "cache.redis.address is required for the redis backend")
	}

	check(c.Fetch.MaxRetries >= 0, "fetch.maxRetries must be >= 0 (got %d)", c.Fetch.MaxRetries)
	check(c.Fetch.BackoffFactor >= 0, "fetch.backoffFactor must be >= 0 (got %v)", c.Fetch.BackoffFactor)
	check(c.Fetch.MaxBackoffSeconds >= 0, "fetch.maxBackoffSeconds must be >= 0 (got %v)", c.Fetch.MaxBackoffSeconds)
	check(c.Fetch.CooldownSeconds >= 0, "fetch.cooldownSeconds must be >= 0 (got %v)", c.Fetch.CooldownSeconds)
	check(c.Fetch.RequestDelaySeconds >= 0, "fetch.requestDelaySeconds must be >= 0 (got %v)", c.Fetch.RequestDelaySeconds)
	check(c.Fetch.Timeout >= 0, "fetch.timeout must be >= 0 (got %v)", c.Fetch.Timeout)

	check(c.Pagination.MaxConsecutiveFailures >= 1,
		"pagination.maxConsecutiveFailures must be >= 1 (got %d)", c.Pagination.MaxConsecutiveFailures)
	check(c.Pagination.StartIndex >= 1, "pagination.startIndex must be >= 1 (got %d)", c.Pagination.StartIndex)

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ClientConfig returns the fetcher configuration.
func (c *Config) ClientConfig() client.Config {
	return client.Config{
		BaseURL: c.BaseURL,
		Event:   c.Event,
		Mode:    client.URLMode(c.URLMode),
		Retry: client.RetryPolicy{
			MaxRetries:      c.Fetch.MaxRetries,
			BackoffFactor:   seconds(c.Fetch.BackoffFactor),
			MaxBackoff:      seconds(c.Fetch.MaxBackoffSeconds),
			StatusForcelist: client.DefaultRetryPolicy().StatusForcelist,
		},
		Timeout:   c.Fetch.Timeout,
		TLSBypass: c.Fetch.TLSBypass,
	}
}

// PacingConfig returns the request pacing configuration.
func (c *Config) PacingConfig() ratelimit.Config {
	return ratelimit.Config{
		RequestDelay: seconds(c.Fetch.RequestDelaySeconds),
		Cooldown:     seconds(c.Fetch.CooldownSeconds),
	}
}

// ControllerConfig returns the pagination configuration.
func (c *Config) ControllerConfig() pagination.Config {
	return pagination.Config{
		StartIndex:             c.Pagination.StartIndex,
		MaxConsecutiveFailures: c.Pagination.MaxConsecutiveFailures,
		EmptyPageIsFailure:     c.Pagination.EmptyPageIsFailure,
	}
}

// LoggingConfig returns the logger configuration.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:  logging.LogLevel(c.Logging),
		Pretty: c.Pretty,
		Output: os.Stderr,
	}
}

// RedisPrefix returns the configured key prefix, falling back to the cache
// default.
func (c *Config) RedisPrefix() string {
	if c.Cache.Redis.Prefix == "" {
		return cache.DefaultPrefix
	}
	return c.Cache.Redis.Prefix
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
