package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_HOST", "main:5432")
	t.Setenv("DB_NAME", "study01")
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_POOL_SIZE", "10")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, EnvDev, cfg.Env)
	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout())
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout())
	assert.Equal(t, 5, cfg.DB.MaxOverflow)
	assert.Equal(t, time.Hour, cfg.DB.Recycle())
	assert.True(t, cfg.DB.PrePing)
	assert.Nil(t, cfg.DB.ReplicaHosts)
	assert.False(t, cfg.Logging.Development)
	assert.Contains(t, cfg.CORS.AllowedOrigins, "http://localhost:4200")
}

func TestLoadLocalEnablesDevelopmentLogging(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENV", "local")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.IsLocal())
	assert.True(t, cfg.Logging.Development)
}

func TestLoadExplicitLoggingOverridesEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENV", "local")
	t.Setenv("LOGGING_DEVELOPMENT", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Logging.Development)
}

func TestLoadParsesReplicaList(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DB_HOST_REPLICATIONS", "['rep-1:5432', \"rep-2:5432\"]")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{"rep-1:5432", "rep-2:5432"}, cfg.DB.ReplicaHosts)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
env: stg
server:
  port: 9000
db:
  host: file-main:5432
  host_replications:
    - file-rep:5432
  name: study01
  user: app
  password: pw
  pool_size: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, EnvStg, cfg.Env)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "file-main:5432", cfg.DB.Host)
	assert.Equal(t, []string{"file-rep:5432"}, cfg.DB.ReplicaHosts)
	assert.Equal(t, 4, cfg.DB.PoolSize)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Run("unknown env", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("ENV", "staging")
		_, err := Load("")
		require.ErrorContains(t, err, "env must be one of")
	})
	t.Run("missing host", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("DB_HOST", "")
		_, err := Load("")
		require.ErrorContains(t, err, "db.host is required")
	})
	t.Run("missing pool size", func(t *testing.T) {
		setRequiredEnv(t)
		t.Setenv("DB_POOL_SIZE", "0")
		_, err := Load("")
		require.ErrorContains(t, err, "db.pool_size")
	})
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		require.ErrorContains(t, err, "read config")
	})
}

func TestDSN(t *testing.T) {
	t.Parallel()

	db := DBConfig{Name: "study01", User: "app", Password: "p@ss word", SSLMode: "require"}
	assert.Equal(t, "postgres://app:p%40ss%20word@h1:5432/study01?sslmode=require", db.DSN("h1:5432"))

	db.Password = ""
	db.SSLMode = ""
	assert.Equal(t, "postgres://app@h1:5432/study01", db.DSN("h1:5432"))
}

func TestParseHostList(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  any
		want []string
	}{
		{"nil", nil, nil},
		{"empty string", "", nil},
		{"empty brackets", "[]", nil},
		{"csv", "a:1, b:2", []string{"a:1", "b:2"}},
		{"slice", []string{" a ", ""}, []string{"a"}},
		{"any slice", []any{"a", "b"}, []string{"a", "b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseHostList(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := parseHostList(42)
	require.Error(t, err)
	_, err = parseHostList([]any{1})
	require.Error(t, err)
}
