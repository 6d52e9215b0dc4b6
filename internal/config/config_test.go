package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	// Create a temporary config file
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))
	return configPath
}

func TestLoad(t *testing.T) {
	configPath := writeConfig(t, `
server:
  port: 8080
  host: "0.0.0.0"

store:
  backend: postgres
  postgres:
    host: "localhost"
    port: 5432
    name: "testdb"
    user: "testuser"
    password: "testpass"
    ssl_mode: "disable"
    max_connections: 10

cache:
  backend: redis
  ttl: 15m
  redis:
    addr: "cache:6379"

fetch:
  timezone: America/Los_Angeles
  max_concurrency: 4

logging:
  level: "debug"
  format: "json"
`)

	// Test loading configuration
	config, err := Load(configPath)
	require.NoError(t, err)
	require.NotNil(t, config)

	// Verify loaded values
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, "postgres", config.Store.Backend)
	assert.Equal(t, "testdb", config.Store.Postgres.Name)
	assert.Equal(t,
		"host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=disable",
		config.Store.Postgres.ConnectionString())
	assert.Equal(t, "redis", config.Cache.Backend)
	assert.Equal(t, 15*time.Minute, config.Cache.TTL)
	assert.Equal(t, "cache:6379", config.Cache.Redis.Addr)
	assert.Equal(t, 4, config.Fetch.MaxConcurrency)
	assert.Equal(t, "debug", config.Logging.Level)

	loc, err := config.Fetch.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Los_Angeles", loc.String())

	// Defaults fill what the file leaves out
	assert.Equal(t, "@every 1h", config.Cache.PurgeSchedule)
	assert.Equal(t, "seriesfetch", config.Cache.Redis.Prefix)
	assert.Equal(t, 5.0, config.RateLimit.RPS)
	assert.Equal(t, 2*365*24*time.Hour, config.Server.MaxRange)
}

func TestLoadDefaults(t *testing.T) {
	config, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 50051, config.Server.Port)
	assert.Equal(t, "memory", config.Store.Backend)
	assert.Equal(t, "lru", config.Cache.Backend)
	assert.Equal(t, 128, config.Cache.Size)
	assert.Equal(t, "UTC", config.Fetch.Timezone)
	assert.Equal(t, 8, config.Fetch.MaxConcurrency)
	assert.True(t, config.Metrics.Enabled)
}

func TestLoadWithEnvOverride(t *testing.T) {
	// Set environment variables
	t.Setenv("APP_DATABASE_HOST", "envhost")
	t.Setenv("APP_DATABASE_PORT", "5433")
	t.Setenv("SERIESFETCH_STORE_POSTGRES_NAME", "override")
	t.Setenv("SERIESFETCH_RATE_LIMIT_BURST", "20")

	configPath := writeConfig(t, `
store:
  backend: postgres
  postgres:
    host: $APP_DATABASE_HOST
    port: $APP_DATABASE_PORT
    name: "testdb"
`)

	// Test loading configuration
	config, err := Load(configPath)
	require.NoError(t, err)
	require.NotNil(t, config)

	// Verify environment variables override config file
	assert.Equal(t, "envhost", config.Store.Postgres.Host)
	assert.Equal(t, 5433, config.Store.Postgres.Port)
	assert.Equal(t, "override", config.Store.Postgres.Name)
	assert.Equal(t, 20, config.RateLimit.Burst)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown store", "store:\n  backend: firestore\n"},
		{"unknown cache", "cache:\n  backend: memcached\n"},
		{"bad timezone", "fetch:\n  timezone: Mars/Olympus\n"},
		{"zero lru size", "cache:\n  size: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
