package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "load default configuration",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "0.0.0.0", cfg.ServerHost)
				assert.Equal(t, 8080, cfg.ServerPort)
				assert.Equal(t, "postgres", cfg.DBDriver)
				assert.Equal(t, 25, cfg.DBMaxOpenConnections)
				assert.Equal(t, 5*time.Minute, cfg.DBConnMaxLifetime)
				assert.Equal(t, "info", cfg.LogLevel)
				assert.Equal(t, 720*time.Hour, cfg.AccessTokenTTL)
				assert.Equal(t, "logvault", cfg.MetricsNamespace)
				assert.Equal(t, time.Hour, cfg.RecoverySessionTTL)
				assert.Equal(t, "memory", cfg.RecoveryStore)
				assert.Equal(t, 4, cfg.RotationConcurrency)
				assert.Equal(t, 3, cfg.RotationMaxRetries)
				assert.Equal(t, "aes-gcm", cfg.DEKAlgorithm)
				assert.False(t, cfg.ArchiveEnabled())
			},
		},
		{
			name: "load custom server configuration",
			envVars: map[string]string{
				"SERVER_HOST": "localhost",
				"SERVER_PORT": "9090",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "localhost", cfg.ServerHost)
				assert.Equal(t, 9090, cfg.ServerPort)
			},
		},
		{
			name: "load custom database configuration",
			envVars: map[string]string{
				"DB_DRIVER":               "mysql",
				"DB_CONNECTION_STRING":    "user:password@tcp(localhost:3306)/testdb",
				"DB_MAX_OPEN_CONNECTIONS": "50",
				"DB_MAX_IDLE_CONNECTIONS": "10",
				"DB_CONN_MAX_LIFETIME":    "10",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "mysql", cfg.DBDriver)
				assert.Equal(t, "user:password@tcp(localhost:3306)/testdb", cfg.DBConnectionString)
				assert.Equal(t, 50, cfg.DBMaxOpenConnections)
				assert.Equal(t, 10, cfg.DBMaxIdleConnections)
				assert.Equal(t, 10*time.Minute, cfg.DBConnMaxLifetime)
			},
		},
		{
			name: "load recovery and rotation configuration",
			envVars: map[string]string{
				"RECOVERY_STORE":               "redis",
				"RECOVERY_SESSION_TTL_MINUTES": "15",
				"REDIS_ADDR":                   "redis:6379",
				"REDIS_DB":                     "2",
				"ROTATION_CONCURRENCY":         "8",
				"ROTATION_MAX_RETRIES":         "5",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "redis", cfg.RecoveryStore)
				assert.Equal(t, 15*time.Minute, cfg.RecoverySessionTTL)
				assert.Equal(t, "redis:6379", cfg.RedisAddr)
				assert.Equal(t, 2, cfg.RedisDB)
				assert.Equal(t, 8, cfg.RotationConcurrency)
				assert.Equal(t, 5, cfg.RotationMaxRetries)
			},
		},
		{
			name: "load archive configuration",
			envVars: map[string]string{
				"ARCHIVE_S3_BUCKET":   "log-archive",
				"ARCHIVE_S3_ENDPOINT": "http://minio:9000",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.ArchiveEnabled())
				assert.Equal(t, "log-archive", cfg.ArchiveS3Bucket)
				assert.Equal(t, "http://minio:9000", cfg.ArchiveS3Endpoint)
				assert.Equal(t, "logvault/", cfg.ArchiveS3Prefix)
			},
		},
		{
			name: "load client configuration",
			envVars: map[string]string{
				"TENANT_ID":     "acme",
				"USER_ID":       "alice",
				"MASTER_SECRET": "c2VjcmV0",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "acme", cfg.TenantID)
				assert.Equal(t, "alice", cfg.UserID)
				assert.Equal(t, "c2VjcmV0", cfg.MasterSecret)
			},
		},
		{
			name: "load custom log level",
			envVars: map[string]string{
				"LOG_LEVEL": "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.LogLevel)
				assert.Equal(t, "debug", cfg.GetGinMode())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()

			for key, value := range tt.envVars {
				err := os.Setenv(key, value)
				require.NoError(t, err)
			}

			cfg := Load()

			tt.validate(t, cfg)
		})
	}
}

func TestGetGinMode(t *testing.T) {
	for level, want := range map[string]string{
		"debug":   "debug",
		"info":    "release",
		"error":   "release",
		"unknown": "release",
	} {
		cfg := &Config{LogLevel: level}
		assert.Equal(t, want, cfg.GetGinMode(), level)
	}
}
