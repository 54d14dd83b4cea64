package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	queueErrors "github.com/c0deZ3R0/go-offline-queue/errors"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestParseYAML(t *testing.T) {
	data := []byte(`
store:
  kind: sqlite
  path: /var/lib/offlineq/queue.db
remote:
  kind: http
  url: https://docs.example.com/v1
  token: abc
  rate_limit: 2.5
  timeout: 10s
queue:
  max_retries: 5
  item_timeout: 45s
  conflict_policy: MERGE
  user_id: alice
  auto_sync: true
  schedule: "@every 1m"
cache:
  ttl: 2m
  max_entries: 50
logging:
  level: debug
  format: text
`)
	cfg, err := Parse(data, "yaml")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/offlineq/queue.db", cfg.Store.Path)
	assert.Equal(t, "http", cfg.Remote.Kind)
	assert.Equal(t, 2.5, cfg.Remote.RateLimit)
	assert.Equal(t, 10*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 5, cfg.Queue.MaxRetries)
	assert.Equal(t, 45*time.Second, cfg.Queue.ItemTimeout)
	assert.Equal(t, "MERGE", cfg.Queue.ConflictPolicy)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// untouched keys keep their defaults
	assert.Equal(t, 2, cfg.Network.FailureThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Queue.BackoffMax)
}

func TestParseTOML(t *testing.T) {
	data := []byte(`
[store]
kind = "memory"

[remote]
kind = "postgres"
dsn = "postgres://app@db/docs?sslmode=disable"
listen = true

[network]
probe_url = "http://docs.internal/healthz"
interval = "30s"
failure_threshold = 3
`)
	cfg, err := Parse(data, "toml")
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Kind)
	assert.Equal(t, "postgres", cfg.Remote.Kind)
	assert.True(t, cfg.Remote.Listen)
	assert.Equal(t, 30*time.Second, cfg.Network.Interval)
	assert.Equal(t, 3, cfg.Network.FailureThreshold)
}

func TestParseJSON(t *testing.T) {
	cfg, err := Parse([]byte(`{"queue": {"max_retries": 1, "item_timeout": "5s"}}`), "json")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Queue.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Queue.ItemTimeout)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("queue:\n  max_retires: 2\n"), "yaml")
	assert.Error(t, err)

	_, err = Parse([]byte("[queue]\nmax_retires = 2\n"), "toml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"http remote without url", func(c *Config) { c.Remote.Kind = "http" }},
		{"postgres remote without dsn", func(c *Config) { c.Remote.Kind = "postgres" }},
		{"unknown remote", func(c *Config) { c.Remote.Kind = "ftp" }},
		{"bad url", func(c *Config) { c.Remote.Kind = "http"; c.Remote.URL = "not a url" }},
		{"negative retries", func(c *Config) { c.Queue.MaxRetries = -1 }},
		{"unknown policy", func(c *Config) { c.Queue.ConflictPolicy = "LAST_WRITE" }},
		{"sqlite without path", func(c *Config) { c.Store.Path = "" }},
		{"backoff max below initial", func(c *Config) { c.Queue.BackoffMax = time.Second }},
		{"zero cache bound", func(c *Config) { c.Cache.MaxEntries = 0 }},
		{"auto sync without schedule", func(c *Config) { c.Queue.AutoSync = true; c.Queue.Schedule = "" }},
		{"claim lease within item timeout", func(c *Config) { c.Queue.ClaimLease = c.Queue.ItemTimeout }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, queueErrors.HasCode(err, queueErrors.ErrCodeValidationFailure))
		})
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offlineq.toml")
	require.NoError(t, os.WriteFile(path, []byte("[queue]\nuser_id = \"from-file\"\n"), 0o600))

	t.Setenv(EnvUserID, "from-env")
	t.Setenv(EnvRemoteURL, "https://docs.example.com")
	t.Setenv(EnvStorePath, "/tmp/q.db")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Queue.UserID)
	assert.Equal(t, "http", cfg.Remote.Kind)
	assert.Equal(t, "https://docs.example.com", cfg.Remote.URL)
	assert.Equal(t, "/tmp/q.db", cfg.Store.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, "toml", DetectFormat("a/b.TOML"))
	assert.Equal(t, "json", DetectFormat("c.json"))
	assert.Equal(t, "yaml", DetectFormat("c.yml"))
	assert.Equal(t, "yaml", DetectFormat("noext"))
}
