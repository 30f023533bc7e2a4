package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, c.Storage.Driver)
	assert.Equal(t, 5*time.Second, c.Storage.Timeout)
	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, "text", c.Log.Format)
	assert.Equal(t, "{refguard}:", c.Storage.Redis.Prefix)
	assert.Equal(t, Default(), c)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "refguard.yaml", `
log:
  level: debug
  format: json
index:
  hash_keys: true
storage:
  driver: redis
  timeout: 2s
  redis:
    addrs: ["redis-1:6379", "redis-2:6379"]
    prefix: "{app}:"
`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverRedis, c.Storage.Driver)
	assert.Equal(t, 2*time.Second, c.Storage.Timeout)
	assert.Equal(t, []string{"redis-1:6379", "redis-2:6379"}, c.Storage.Redis.Addrs)
	assert.Equal(t, "{app}:", c.Storage.Redis.Prefix)
	assert.True(t, c.Index.HashKeys)

	level, err := c.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "refguard.yaml", "storage:\n  driver: redis\n")
	t.Setenv("REFGUARD_STORAGE_DRIVER", "sqlite")
	t.Setenv("REFGUARD_SQLITE_PATH", "/var/lib/refguard.db")
	t.Setenv("REFGUARD_STORAGE_TIMEOUT", "750ms")
	t.Setenv("REFGUARD_REDIS_ADDRS", "a:1, b:2,")
	t.Setenv("REFGUARD_INDEX_HASH_KEYS", "true")

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, c.Storage.Driver)
	assert.Equal(t, "/var/lib/refguard.db", c.Storage.SQLite.Path)
	assert.Equal(t, 750*time.Millisecond, c.Storage.Timeout)
	assert.Equal(t, []string{"a:1", "b:2"}, c.Storage.Redis.Addrs)
	assert.True(t, c.Index.HashKeys)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		env  map[string]string
	}{
		{name: "unknown driver", yaml: "storage:\n  driver: couchbase\n"},
		{name: "bad level", yaml: "log:\n  level: loud\n"},
		{name: "bad format", yaml: "log:\n  format: xml\n"},
		{name: "negative timeout", yaml: "storage:\n  timeout: -1s\n"},
		{name: "bad env timeout", env: map[string]string{"REFGUARD_STORAGE_TIMEOUT": "soon"}},
		{name: "malformed yaml", yaml: "storage: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.yaml != "" {
				path = writeFile(t, "refguard.yaml", tt.yaml)
			}
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadEnvFile(t *testing.T) {
	path := writeFile(t, ".env", "REFGUARD_TEST_ONLY_VAR=from-file\n")
	t.Setenv("REFGUARD_TEST_ONLY_VAR", "")
	os.Unsetenv("REFGUARD_TEST_ONLY_VAR")

	require.NoError(t, LoadEnvFile(path, true))
	assert.Equal(t, "from-file", os.Getenv("REFGUARD_TEST_ONLY_VAR"))
}

func TestLoadEnvFile_DoesNotOverrideSetVariables(t *testing.T) {
	path := writeFile(t, ".env", "REFGUARD_STORAGE_DRIVER=bolt\n")
	t.Setenv("REFGUARD_STORAGE_DRIVER", "redis")

	require.NoError(t, LoadEnvFile(path, true))
	assert.Equal(t, "redis", os.Getenv("REFGUARD_STORAGE_DRIVER"))
}

func TestLoadEnvFile_Missing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), ".env")
	assert.NoError(t, LoadEnvFile(missing, false))
	assert.Error(t, LoadEnvFile(missing, true))
	assert.NoError(t, LoadEnvFile("", true))
}
