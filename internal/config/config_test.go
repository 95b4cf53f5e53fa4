package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"ENV_FILE", "LISTEN_ADDR", "PORT", "ADMIN_PASSWORD", "ADMIN_PASSWORD_HASH",
	"STORE_DRIVER", "DATA_FILE", "DATABASE_URL", "STATIC_DIR", "INDEX_FILE",
	"WATCH_FILES", "ALLOWED_ORIGINS", "LOG_LEVEL", "LOG_FORMAT", "SHUTDOWN_TIMEOUT",
}

// clearEnv unsets every key Load reads; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:3000", cfg.ListenAddr)
	assert.Equal(t, "1010", cfg.AdminPassword)
	assert.Equal(t, DriverFile, cfg.StoreDriver)
	assert.Equal(t, "auction_data.json", cfg.DataFile)
	assert.Equal(t, ".", cfg.StaticDir)
	assert.Equal(t, "Auction.html", cfg.IndexFile)
	assert.Equal(t, []string{"Auction.html"}, cfg.WatchFiles)
	assert.Empty(t, cfg.AllowedOrigins)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/auction")
	t.Setenv("WATCH_FILES", "Auction.html, style.css,,")
	t.Setenv("ALLOWED_ORIGINS", "localhost:*")
	t.Setenv("SHUTDOWN_TIMEOUT", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.ListenAddr)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, []string{"Auction.html", "style.css"}, cfg.WatchFiles)
	assert.Equal(t, []string{"localhost:*"}, cfg.AllowedOrigins)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("ADMIN_PASSWORD=fromfile\nLISTEN_ADDR=127.0.0.1:9000\n"), 0o600))
	t.Setenv("ENV_FILE", path)
	t.Setenv("LISTEN_ADDR", "127.0.0.1:4000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "fromfile", cfg.AdminPassword)
	assert.Equal(t, "127.0.0.1:4000", cfg.ListenAddr)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown driver", map[string]string{"STORE_DRIVER": "mongo"}},
		{"postgres without url", map[string]string{"STORE_DRIVER": "postgres"}},
		{"bad log format", map[string]string{"LOG_FORMAT": "xml"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
