package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	t.Setenv(ConfigEnvVar, "")

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"endpoint_addr_http": "www.example:9000",
		"metadata_backend":   "postgres",
		"database_dsn":       "postgres://db",
		"secret_key":         "my_secret_key",
		"allowed_users":      []string{"alice"},
		"max_file_size":      "1MiB",
		"max_total_size":     4096,
		"retention_window":   "720h",
		"sweep_interval":     "30m",
		"s3_bucket":          "bucket",
		"s3_prefix":          "p/",
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "www.example:9000", cfg.EndpointAddrHTTP)
		assert.Equal(t, "postgres", cfg.MetadataBackend)
		assert.Equal(t, "postgres://db", cfg.DatabaseDSN)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, []string{"alice"}, cfg.AllowedUsers)
		assert.Equal(t, int64(1<<20), cfg.MaxFileSize)
		assert.Equal(t, int64(4096), cfg.MaxTotalSize)
		assert.Equal(t, 720*time.Hour, cfg.RetentionWindow)
		assert.Equal(t, 30*time.Minute, cfg.SweepInterval)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.Equal(t, "p/", cfg.S3Prefix)

		// keys absent from the file keep their defaults
		assert.Equal(t, ":50051", cfg.EndpointAddrGRPC)
		assert.Equal(t, 8, cfg.IdentifierLength)
	})

	t.Run("env names the file", func(t *testing.T) {
		t.Setenv(ConfigEnvVar, pathFlag)
		os.Args = []string{"testbin"}

		cfg := &Config{}
		parseJson(cfg)
		assert.Equal(t, "www.example:9000", cfg.EndpointAddrHTTP)
	})

	t.Run("no CONFIG and no flags → no changes", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{
			EndpointAddrHTTP: "defaults:1234",
			SecretKey:        "key",
			MaxFileSize:      7,
		}
		parseJson(cfg)

		assert.Equal(t, "defaults:1234", cfg.EndpointAddrHTTP)
		assert.Equal(t, "key", cfg.SecretKey)
		assert.Equal(t, int64(7), cfg.MaxFileSize)
	})

	t.Run("invalid JSON → panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})

	t.Run("invalid size → panics", func(t *testing.T) {
		bad := writeTempJSON(t, dir, "size.json", map[string]any{"max_file_size": "huge"})
		os.Args = []string{"testbin", "-c", bad}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})

	t.Run("missing file → panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", filepath.Join(dir, "absent.json")}

		cfg := &Config{}
		require.Panics(t, func() { parseJson(cfg) })
	})
}
