// Package config loads the offline queue's settings from YAML, TOML or JSON.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	queueErrors "github.com/c0deZ3R0/go-offline-queue/errors"
	"github.com/c0deZ3R0/go-offline-queue/logging"
)

// Environment overrides, applied after the file
const (
	EnvStorePath = "OFFLINEQ_STORE_PATH"
	EnvRemoteURL = "OFFLINEQ_REMOTE_URL"
	EnvUserID    = "OFFLINEQ_USER_ID"
)

// Config is the complete offline queue configuration
type Config struct {
	Store   StoreConfig    `json:"store" yaml:"store" toml:"store"`
	Remote  RemoteConfig   `json:"remote" yaml:"remote" toml:"remote"`
	Queue   QueueConfig    `json:"queue" yaml:"queue" toml:"queue"`
	Network NetworkConfig  `json:"network" yaml:"network" toml:"network"`
	Cache   CacheConfig    `json:"cache" yaml:"cache" toml:"cache"`
	Logging logging.Config `json:"logging" yaml:"logging" toml:"logging"`
	Metrics MetricsConfig  `json:"metrics" yaml:"metrics" toml:"metrics"`
	Serve   ServeConfig    `json:"serve" yaml:"serve" toml:"serve"`
}

// StoreConfig selects the durable queue store
type StoreConfig struct {
	Kind      string `json:"kind" yaml:"kind" toml:"kind" validate:"oneof=sqlite memory"`
	Path      string `json:"path" yaml:"path" toml:"path" validate:"required_if=Kind sqlite"`
	EnableWAL bool   `json:"enable_wal" yaml:"enable_wal" toml:"enable_wal"`
}

// RemoteConfig selects the remote document store
type RemoteConfig struct {
	Kind      string        `json:"kind" yaml:"kind" toml:"kind" validate:"oneof=memory http postgres"`
	URL       string        `json:"url" yaml:"url" toml:"url" validate:"required_if=Kind http,omitempty,url"`
	Token     string        `json:"token" yaml:"token" toml:"token"`
	RateLimit float64       `json:"rate_limit" yaml:"rate_limit" toml:"rate_limit" validate:"gte=0"`
	Burst     int           `json:"burst" yaml:"burst" toml:"burst" validate:"gte=0"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout" toml:"timeout" validate:"gte=0"`
	DSN       string        `json:"dsn" yaml:"dsn" toml:"dsn" validate:"required_if=Kind postgres"`

	// Listen follows Postgres change notifications to invalidate the cache
	Listen bool `json:"listen" yaml:"listen" toml:"listen"`
}

// QueueConfig tunes the processor
type QueueConfig struct {
	MaxRetries     int           `json:"max_retries" yaml:"max_retries" toml:"max_retries" validate:"gte=0"`
	ItemTimeout    time.Duration `json:"item_timeout" yaml:"item_timeout" toml:"item_timeout" validate:"gt=0"`
	ClaimLease     time.Duration `json:"claim_lease" yaml:"claim_lease" toml:"claim_lease" validate:"omitempty,gtfield=ItemTimeout"` // zero means twice ItemTimeout
	ConflictPolicy string        `json:"conflict_policy" yaml:"conflict_policy" toml:"conflict_policy" validate:"oneof=SERVER_WINS CLIENT_WINS MERGE USER_CHOICE"`
	UserID         string        `json:"user_id" yaml:"user_id" toml:"user_id"`
	TeamID         string        `json:"team_id" yaml:"team_id" toml:"team_id"`

	AutoSync       bool          `json:"auto_sync" yaml:"auto_sync" toml:"auto_sync"`
	Schedule       string        `json:"schedule" yaml:"schedule" toml:"schedule" validate:"required_if=AutoSync true"`
	BackoffInitial time.Duration `json:"backoff_initial" yaml:"backoff_initial" toml:"backoff_initial" validate:"gt=0"`
	BackoffMax     time.Duration `json:"backoff_max" yaml:"backoff_max" toml:"backoff_max" validate:"gtefield=BackoffInitial"`
}

// NetworkConfig configures connectivity detection
type NetworkConfig struct {
	ProbeURL         string        `json:"probe_url" yaml:"probe_url" toml:"probe_url" validate:"omitempty,url"`
	Interval         time.Duration `json:"interval" yaml:"interval" toml:"interval" validate:"gt=0"`
	Timeout          time.Duration `json:"timeout" yaml:"timeout" toml:"timeout" validate:"gt=0"`
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold" toml:"failure_threshold" validate:"gte=1"`

	// AssumeOnline is the starting status, used as-is when there is no probe
	AssumeOnline bool `json:"assume_online" yaml:"assume_online" toml:"assume_online"`
}

// CacheConfig configures the response cache
type CacheConfig struct {
	TTL        time.Duration `json:"ttl" yaml:"ttl" toml:"ttl" validate:"gt=0"`
	MaxEntries int           `json:"max_entries" yaml:"max_entries" toml:"max_entries" validate:"gte=1"`
	Persist    bool          `json:"persist" yaml:"persist" toml:"persist"`
}

// MetricsConfig exposes Prometheus metrics when Listen is set
type MetricsConfig struct {
	Listen string `json:"listen" yaml:"listen" toml:"listen" validate:"omitempty,hostname_port"`
}

// ServeConfig configures the document server run by `offlineq serve`
type ServeConfig struct {
	Listen string `json:"listen" yaml:"listen" toml:"listen" validate:"omitempty,hostname_port"`
	Token  string `json:"token" yaml:"token" toml:"token"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Store:  StoreConfig{Kind: "sqlite", Path: "offlineq.db", EnableWAL: true},
		Remote: RemoteConfig{Kind: "memory", RateLimit: 10, Burst: 5, Timeout: 30 * time.Second},
		Queue: QueueConfig{
			MaxRetries:     3,
			ItemTimeout:    30 * time.Second,
			ConflictPolicy: "USER_CHOICE",
			Schedule:       "*/5 * * * *",
			BackoffInitial: 2 * time.Second,
			BackoffMax:     5 * time.Minute,
		},
		Network: NetworkConfig{
			Interval:         15 * time.Second,
			Timeout:          5 * time.Second,
			FailureThreshold: 2,
			AssumeOnline:     true,
		},
		Cache:   CacheConfig{TTL: 5 * time.Minute, MaxEntries: 500, Persist: true},
		Logging: logging.DefaultConfig,
		Serve:   ServeConfig{Listen: "127.0.0.1:8080"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, queueErrors.WrapOpComponent(fmt.Errorf("failed to read config file %s: %w", path, err), string(queueErrors.OpConfig), "config")
		}
		if err := cfg.decode(data, DetectFormat(path)); err != nil {
			return nil, queueErrors.WrapOpComponentKind(err, string(queueErrors.OpConfig), "config", queueErrors.KindInvalid)
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data in format ("yaml", "toml" or "json") over the defaults
// and validates it. Environment overrides are not applied.
func Parse(data []byte, format string) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data, format); err != nil {
		return nil, queueErrors.WrapOpComponentKind(err, string(queueErrors.OpConfig), "config", queueErrors.KindInvalid)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte, format string) error {
	switch strings.ToLower(format) {
	case "yaml", "yml", "json":
		// JSON is read as YAML so durations accept "30s" in both
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to parse %s config: %w", strings.ToUpper(format), err)
		}
	case "toml":
		md, err := toml.Decode(string(data), c)
		if err != nil {
			return fmt.Errorf("failed to parse TOML config: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown TOML keys: %v", undecoded)
		}
	default:
		return fmt.Errorf("unsupported config format: %s", format)
	}
	return nil
}

// DetectFormat picks the decoder from the file extension, defaulting to YAML
func DetectFormat(path string) string {
	ext := strings.ToLower(path[strings.LastIndex(path, ".")+1:])
	switch ext {
	case "toml":
		return "toml"
	case "json":
		return "json"
	default:
		return "yaml"
	}
}

// ApplyEnv applies the OFFLINEQ_* overrides and the logging environment
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvStorePath); v != "" {
		c.Store.Path = v
		c.Store.Kind = "sqlite"
	}
	if v := os.Getenv(EnvRemoteURL); v != "" {
		c.Remote.URL = v
		c.Remote.Kind = "http"
	}
	if v := os.Getenv(EnvUserID); v != "" {
		c.Queue.UserID = v
	}
	c.Logging = logging.ApplyEnv(c.Logging)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the struct tags and reports every failing field
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return queueErrors.NewValidationError(queueErrors.OpConfig, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: must satisfy %s", fe.Namespace(), fe.Tag()))
		}
	}
	return queueErrors.NewValidationError(queueErrors.OpConfig, fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; ")))
}
