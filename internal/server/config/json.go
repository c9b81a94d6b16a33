package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dmitrijs2005/blobkeeper/internal/flagx"
	"github.com/dmitrijs2005/blobkeeper/internal/timex"
	"github.com/dustin/go-humanize"
)

// ByteSize reads a size either as a plain number of bytes or as a human
// string such as "10MiB" or "500 MB".
type ByteSize int64

func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*b = ByteSize(value)
		return nil
	case string:
		n, err := humanize.ParseBytes(value)
		if err != nil {
			return fmt.Errorf("invalid size %q: %w", value, err)
		}
		*b = ByteSize(n)
		return nil
	default:
		return errors.New("invalid size")
	}
}

// JsonConfig is the on-disk shape of the configuration file. Absent keys
// leave the corresponding Config field untouched.
type JsonConfig struct {
	EndpointAddrHTTP   string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC   string         `json:"endpoint_addr_grpc"`
	BaseURL            string         `json:"base_url"`
	LogLevel           string         `json:"log_level"`
	MetadataBackend    string         `json:"metadata_backend"`
	DatabaseDSN        string         `json:"database_dsn"`
	BadgerDir          string         `json:"badger_dir"`
	ContentBackend     string         `json:"content_backend"`
	DataDir            string         `json:"data_dir"`
	SecretKey          string         `json:"secret_key"`
	AllowedUsers       []string       `json:"allowed_users"`
	IdentifierLength   int            `json:"identifier_length"`
	IdentifierAttempts int            `json:"identifier_attempts"`
	MaxFileSize        ByteSize       `json:"max_file_size"`
	MaxTotalSize       ByteSize       `json:"max_total_size"`
	RetentionWindow    timex.Duration `json:"retention_window"`
	SweepInterval      timex.Duration `json:"sweep_interval"`
	RequestsPerMinute  int            `json:"requests_per_minute"`
	UserCacheSize      int            `json:"user_cache_size"`
	UserCacheTTL       timex.Duration `json:"user_cache_ttl"`
	S3RootUser         string         `json:"s3_root_user"`
	S3RootPassword     string         `json:"s3_root_password"`
	S3Bucket           string         `json:"s3_bucket"`
	S3Region           string         `json:"s3_region"`
	S3BaseEndpoint     string         `json:"s3_base_endpoint"`
	S3Prefix           string         `json:"s3_prefix"`
}

// parseJson overlays values from the JSON file named by -c/-config (or the
// BLOBKEEPER_CONFIG environment variable) onto config. Nothing happens when
// no file is named. An unreadable or malformed file panics, matching the
// flag parser.
func parseJson(config *Config) {

	jsonConfigFile := flagx.ConfigPath(ConfigEnvVar)

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	c.applyTo(config)
}

func (c *JsonConfig) applyTo(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.BaseURL, c.BaseURL)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.MetadataBackend, c.MetadataBackend)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.BadgerDir, c.BadgerDir)
	setString(&config.ContentBackend, c.ContentBackend)
	setString(&config.DataDir, c.DataDir)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3Prefix, c.S3Prefix)

	if len(c.AllowedUsers) > 0 {
		config.AllowedUsers = c.AllowedUsers
	}
	if c.IdentifierLength != 0 {
		config.IdentifierLength = c.IdentifierLength
	}
	if c.IdentifierAttempts != 0 {
		config.IdentifierAttempts = c.IdentifierAttempts
	}
	if c.MaxFileSize != 0 {
		config.MaxFileSize = int64(c.MaxFileSize)
	}
	if c.MaxTotalSize != 0 {
		config.MaxTotalSize = int64(c.MaxTotalSize)
	}
	if c.RetentionWindow.Duration != 0 {
		config.RetentionWindow = c.RetentionWindow.Duration
	}
	if c.SweepInterval.Duration != 0 {
		config.SweepInterval = c.SweepInterval.Duration
	}
	if c.RequestsPerMinute != 0 {
		config.RequestsPerMinute = c.RequestsPerMinute
	}
	if c.UserCacheSize != 0 {
		config.UserCacheSize = c.UserCacheSize
	}
	if c.UserCacheTTL.Duration != 0 {
		config.UserCacheTTL = c.UserCacheTTL.Duration
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
