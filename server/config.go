package server

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/callrelay"
)

// Store drivers selectable from configuration.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverRedis    = "redis"
	DriverMongo    = "mongo"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the configuration for the callrelayd server. It is loaded
// from an optional YAML file and then overridden from the environment.
type Config struct {
	// Config embeds the core relay configuration.
	callrelay.Config `json:",inline" yaml:",inline"`

	// Addr is the HTTP listen address (default ":3000").
	Addr string `json:"addr" yaml:"addr"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level" yaml:"log_level"`

	// LogFormat is json or text.
	LogFormat string `json:"log_format" yaml:"log_format"`

	// PublicKeyFile overrides the platform signing key with a PEM file.
	PublicKeyFile string `json:"public_key_file" yaml:"public_key_file"`

	// Metrics mounts a Prometheus endpoint at /metrics.
	Metrics bool `json:"metrics" yaml:"metrics"`

	Store StoreConfig `json:"store" yaml:"store"`
}

// StoreConfig selects and configures the subscription backend.
type StoreConfig struct {
	// Driver is one of memory, file, redis, mongo, sqlite, postgres
	// (default "file"). sqlite and postgres run on a database supplied with
	// WithGroveDB; mongo uses one too when it is supplied.
	Driver string `json:"driver" yaml:"driver"`

	// Path is the JSON file used by the file driver.
	Path string `json:"path" yaml:"path"`

	// URL is the connection URL for the redis and mongo drivers.
	URL string `json:"url" yaml:"url"`

	// Database is the mongo database name.
	Database string `json:"database" yaml:"database"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Config:    callrelay.DefaultConfig(),
		Addr:      ":3000",
		LogLevel:  "info",
		LogFormat: "json",
		Metrics:   true,
		Store: StoreConfig{
			Driver:   DriverFile,
			Path:     "data/triggers.json",
			Database: "callrelay",
		},
	}
}

// LoadConfig reads path over the defaults, then applies environment
// overrides. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("callrelay/server: read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("callrelay/server: parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		c.Addr = ":" + v
	}
	if v := getenv("CALLRELAY_ADDR"); v != "" {
		c.Addr = v
	}
	if v := getenv("CALLRELAY_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := getenv("CALLRELAY_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := getenv("CALLRELAY_PUBLIC_KEY_FILE"); v != "" {
		c.PublicKeyFile = v
	}
	if v := getenv("CALLRELAY_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := getenv("CALLRELAY_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := getenv("CALLRELAY_STORE_URL"); v != "" {
		c.Store.URL = v
	}
	if v := getenv("CALLRELAY_STORE_DATABASE"); v != "" {
		c.Store.Database = v
	}
	if v := getenv("CALLRELAY_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("callrelay/server: CALLRELAY_REQUEST_TIMEOUT: %w", err)
		}
		c.RequestTimeout = d
	}
	if v := getenv("CALLRELAY_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("callrelay/server: CALLRELAY_CONCURRENCY: %w", err)
		}
		c.Concurrency = n
	}
	return nil
}

// Validate checks the configuration for values the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("concurrency must be >= 0, got %d", c.Concurrency))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverFile:
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for the file driver"))
		}
	case DriverSQLite, DriverPostgres:
	case DriverRedis, DriverMongo:
		if c.Store.URL == "" {
			errs = append(errs, fmt.Errorf("store.url is required for the %s driver", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("callrelay/server: invalid config: %w", err)
	}
	return nil
}

// ToRelayOptions converts the embedded Config into callrelay.Option values.
func (c Config) ToRelayOptions() []callrelay.Option {
	var opts []callrelay.Option

	if c.Concurrency > 0 {
		opts = append(opts, callrelay.WithConcurrency(c.Concurrency))
	}
	if c.RequestTimeout > 0 {
		opts = append(opts, callrelay.WithRequestTimeout(c.RequestTimeout))
	}
	if c.ShutdownTimeout > 0 {
		opts = append(opts, callrelay.WithShutdownTimeout(c.ShutdownTimeout))
	}
	if c.TargetRateLimit > 0 {
		opts = append(opts, callrelay.WithTargetRateLimit(c.TargetRateLimit, c.TargetBurst))
	}
	if c.UserAgent != "" {
		opts = append(opts, callrelay.WithUserAgent(c.UserAgent))
	}

	return opts
}
