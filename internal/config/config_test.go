package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAPIConfig(t *testing.T) {
	tests := []struct {
		name        string
		configFile  string
		expectError bool
		validate    func(*testing.T, *APIConfig)
	}{
		{
			name: "valid config file",
			configFile: `
debug: true
sentry_dsn: "https://sentry.example.com"
server:
  host: 127.0.0.1
  port: 9090
  read_timeout: 5
  write_timeout: 5
  idle_timeout: 60
database:
  host: localhost
  port: 5432
  user: testuser
  password: testpass
  dbname: testdb
  sslmode: require
  auto_migrate: true
engine:
  shard_count: 64
  max_claim_attempts: 4
auth:
  admin_secret: "super-secret"
rate_limit:
  max_requests: 10
  window: "30s"
batch:
  max_requests: 25
  timestamp_tolerance: "15s"
  nonce_ttl: "120s"
nats:
  url: "nats://localhost:4222"
  stream_name: "TEST_STREAM"
  max_reconnects: 5
  reconnect_wait: "5s"
  connection_name: "test-connection"
`,
			expectError: false,
			validate: func(t *testing.T, cfg *APIConfig) {
				assert.True(t, cfg.Debug)
				assert.Equal(t, "https://sentry.example.com", cfg.SentryDSN)
				assert.Equal(t, "127.0.0.1", cfg.Server.Host)
				assert.Equal(t, 9090, cfg.Server.Port)
				assert.Equal(t, 5, cfg.Server.ReadTimeout)
				assert.Equal(t, "localhost", cfg.Database.Host)
				assert.Equal(t, "testuser", cfg.Database.User)
				assert.Equal(t, "require", cfg.Database.SSLMode)
				assert.True(t, cfg.Database.AutoMigrate)
				assert.Equal(t, 64, cfg.Engine.ShardCount)
				assert.Equal(t, 4, cfg.Engine.MaxClaimAttempts)
				assert.Equal(t, "super-secret", cfg.Auth.AdminSecret)
				assert.Equal(t, 10, cfg.RateLimit.MaxRequests)
				assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
				assert.Equal(t, 25, cfg.Batch.MaxRequests)
				assert.Equal(t, 15*time.Second, cfg.Batch.TimestampTolerance)
				assert.Equal(t, 120*time.Second, cfg.Batch.NonceTTL)
				assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
				assert.Equal(t, "TEST_STREAM", cfg.NATS.StreamName)
			},
		},
		{
			name: "config with defaults",
			configFile: `
database:
  host: localhost
  user: testuser
  password: testpass
  dbname: testdb
`,
			expectError: false,
			validate: func(t *testing.T, cfg *APIConfig) {
				// Check defaults
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 5432, cfg.Database.Port)
				assert.Equal(t, "disable", cfg.Database.SSLMode)
				assert.Equal(t, 128, cfg.Engine.ShardCount)
				assert.Equal(t, 8, cfg.Engine.MaxClaimAttempts)
				assert.Equal(t, 100, cfg.RateLimit.MaxRequests)
				assert.Equal(t, 60*time.Second, cfg.RateLimit.Window)
				assert.Equal(t, 50, cfg.Batch.MaxRequests)
				assert.Equal(t, 30*time.Second, cfg.Batch.TimestampTolerance)
				assert.Equal(t, 300*time.Second, cfg.Batch.NonceTTL)
				assert.Empty(t, cfg.NATS.URL)
				assert.Equal(t, "CLAIM_EVENTS", cfg.NATS.StreamName)
				assert.Equal(t, "2s", cfg.NATS.ReconnectWait.String())
			},
		},
		{
			name:        "missing config file",
			configFile:  "",
			expectError: false,
			validate:    nil,
		},
		{
			name: "invalid yaml",
			configFile: `
				server:
				  port: invalid
			`,
			expectError: true,
			validate:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			var configFile string

			if tt.configFile != "" {
				configFile = filepath.Join(tmpDir, "config.yaml")
				err := os.WriteFile(configFile, []byte(tt.configFile), 0600)
				require.NoError(t, err)
			} else {
				configFile = filepath.Join(tmpDir, "nonexistent.yaml")
			}

			cfg, err := LoadAPIConfig(configFile, "")

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, cfg)
			} else {
				if tt.validate != nil {
					require.NoError(t, err)
					require.NotNil(t, cfg)
					tt.validate(t, cfg)
				}
			}
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "packdrop",
		Password: "secret",
		DBName:   "packdrop",
		SSLMode:  "require",
	}

	assert.Equal(t,
		"host=db.internal port=5433 user=packdrop password=secret dbname=packdrop sslmode=require",
		cfg.DSN(),
	)
}
