package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":8000", c.EndpointAddrHTTP)
	assert.Equal(t, ":50051", c.EndpointAddrGRPC)
	assert.Equal(t, "http://localhost:8000", c.BaseURL)
	assert.Equal(t, "badger", c.MetadataBackend)
	assert.Equal(t, "filesystem", c.ContentBackend)
	assert.Equal(t, []string{"testuser"}, c.AllowedUsers)
	assert.Equal(t, 8, c.IdentifierLength)
	assert.Equal(t, 10, c.IdentifierAttempts)
	assert.Equal(t, int64(10<<20), c.MaxFileSize)
	assert.Equal(t, int64(500<<20), c.MaxTotalSize)
	assert.Equal(t, 90*24*time.Hour, c.RetentionWindow)
	assert.Equal(t, 24*time.Hour, c.SweepInterval)
	assert.Equal(t, 100, c.RequestsPerMinute)
	assert.Equal(t, "blobs", c.S3Bucket)
	assert.Equal(t, "us-east-1", c.S3Region)

	require.NoError(t, Validate(&c), "defaults must validate")
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	t.Setenv(ConfigEnvVar, "")
	os.Args = []string{"testbin"}

	c, err := LoadConfig()
	require.NoError(t, err)
	require.NotNil(t, c, "LoadConfig must not return nil")

	assert.Equal(t, ":8000", c.EndpointAddrHTTP)
	assert.Equal(t, int64(10<<20), c.MaxFileSize)
	assert.Equal(t, []string{"testuser"}, c.AllowedUsers)
}

func TestLoadConfig_InvalidFlagsRejected(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	t.Setenv(ConfigEnvVar, "")
	os.Args = []string{"testbin", "-m", "mysql"}

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MetadataBackend")
}
