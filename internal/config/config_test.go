package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: t.Parallel() is intentionally omitted in this package.
// These tests share process-global environment variables.

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.False(t, cfg.Server.IsProduction())
	assert.True(t, cfg.Server.BootstrapOnStart)
	assert.Equal(t, "portal-creditos", cfg.Telemetry.ServiceName)
	assert.Equal(t, "portal-creditos-session", cfg.Session.CookieName)
	assert.Equal(t, 14*24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, int64(10<<20), cfg.Uploads.MaxFileSize)
	assert.ElementsMatch(t, []string{".pdf", ".jpg", ".jpeg", ".png"}, cfg.Uploads.AllowedExtensions)
	assert.Equal(t, "localhost", cfg.Bootstrap.Postgres.Host)
	assert.Equal(t, "auto", cfg.Bootstrap.Storage.Region)
	assert.Equal(t, "documentos", cfg.Bootstrap.Storage.KeyPrefix)
	assert.Equal(t, 5*time.Minute, cfg.Bootstrap.Storage.PresignTTL)
	assert.Equal(t, 5, cfg.Bootstrap.Redis.MaxFailures)
	assert.Empty(t, cfg.Bootstrap.NATS.URL)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PORTAL_SERVER_PORT", "9090")
	t.Setenv("PORTAL_SERVER_ENVIRONMENT", "production")
	t.Setenv("PORTAL_SESSION_SECRET", "0123456789abcdef0123456789abcdef")
	t.Setenv("PORTAL_BOOTSTRAP_POSTGRES_HOST", "my-db")
	t.Setenv("PORTAL_BOOTSTRAP_STORAGE_BUCKET", "docs")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Server.IsProduction())
	assert.Equal(t, "0123456789abcdef0123456789abcdef", cfg.Session.Secret)
	assert.Equal(t, "my-db", cfg.Bootstrap.Postgres.Host)
	assert.Equal(t, "docs", cfg.Bootstrap.Storage.Bucket)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 8088
bootstrap:
  nats:
    url: nats://events:4222
  redis:
    host: cache
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, "nats://events:4222", cfg.Bootstrap.NATS.URL)
	assert.Equal(t, "cache", cfg.Bootstrap.Redis.Host)
	assert.Equal(t, 6379, cfg.Bootstrap.Redis.Port)
}

func TestLoad_InvalidFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestPostgresConfig_DSN(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     string
	}{
		{name: "plain", password: "p", want: "postgres://u:p@db:5433/x?sslmode=require"},
		{name: "reserved characters", password: "s3cr#t/p@ss:1", want: "postgres://u:s3cr%23t%2Fp%40ss%3A1@db:5433/x?sslmode=require"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := PostgresConfig{User: "u", Password: tc.password, Host: "db", Port: 5433, DB: "x", SSLMode: "require"}
			assert.Equal(t, tc.want, p.DSN())

			parsed, err := pgx.ParseConfig(p.DSN())
			require.NoError(t, err)
			assert.Equal(t, tc.password, parsed.Password)
			assert.Equal(t, "db", parsed.Host)
			assert.EqualValues(t, 5433, parsed.Port)
			assert.Equal(t, "x", parsed.Database)
		})
	}
}

func TestPostgresConfig_URL(t *testing.T) {
	p := PostgresConfig{User: "portal", Password: "a@b", Host: "db", Port: 5432, DB: "portal"}
	assert.Equal(t, "pgx5://portal:a%40b@db:5432/portal", p.URL("pgx5"))
}

func TestLoad_EnvIsolation(t *testing.T) {
	require.Empty(t, os.Getenv("PORTAL_SERVER_PORT"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}
