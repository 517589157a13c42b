package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_NoPath(t *testing.T) {
	t.Setenv(EnvConfig, "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h2gb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database: /tmp/work.db
storage:
  backend: badger
  badger_path: /tmp/badger
log:
  level: debug
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/work.db", cfg.Database)
	assert.Equal(t, BackendBadger, cfg.Storage.Backend)
	assert.Equal(t, "/tmp/badger", cfg.Storage.BadgerPath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format, "unset fields keep their defaults")
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
}

func TestLoad_FromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "h2gb.yaml")
	require.NoError(t, Write(path, Config{
		Storage: StorageConfig{Backend: BackendBadger, InMemory: true},
		Server:  ServerConfig{Addr: ":9000"},
	}))
	t.Setenv(EnvConfig, path)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.Storage.InMemory)
	assert.Equal(t, ":9000", cfg.Server.Addr)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bad yaml", body: "storage: [oops"},
		{name: "unknown backend", body: "storage:\n  backend: postgres\n"},
		{name: "badger without path", body: "storage:\n  backend: badger\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "h2gb.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o644))
			_, err := Load(path)
			require.Error(t, err)
		})
	}
}
