package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "all flags", args: []string{"cmd",
			"-a", "127.0.0.1:8080", "-r", "127.0.0.1:9090", "-u", "https://files.example",
			"-m", "postgres", "-d", "db", "-k", "/var/meta", "-o", "s3", "-f", "/var/blobs",
			"-s", "secret", "-w", "alice, bob", "-x", "1MiB", "-q", "2MiB",
			"-e", "48h", "-i", "1h", "-p", "10", "-v", "debug", "-b", "bucket", "-n", "http://endpoint",
		}, expectPanic: false,
			expected: &Config{
				EndpointAddrHTTP:  "127.0.0.1:8080",
				EndpointAddrGRPC:  "127.0.0.1:9090",
				BaseURL:           "https://files.example",
				MetadataBackend:   "postgres",
				DatabaseDSN:       "db",
				BadgerDir:         "/var/meta",
				ContentBackend:    "s3",
				DataDir:           "/var/blobs",
				SecretKey:         "secret",
				AllowedUsers:      []string{"alice", "bob"},
				MaxFileSize:       1 << 20,
				MaxTotalSize:      2 << 20,
				RetentionWindow:   48 * time.Hour,
				SweepInterval:     time.Hour,
				RequestsPerMinute: 10,
				LogLevel:          "debug",
				S3Bucket:          "bucket",
				S3BaseEndpoint:    "http://endpoint",
			}},
		{name: "bad size panics", args: []string{"cmd", "-x", "lots"}, expectPanic: true},
		{name: "bad duration panics", args: []string{"cmd", "-e", "forever"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
