// Package config holds the settings of the blobkeeper command-line client.
package config

import "time"

// ConfigEnvVar names the JSON config file when -c/-config is absent.
const ConfigEnvVar = "BLOBKEEPER_CLI_CONFIG"

// Config holds runtime settings for the blobkeeper CLI.
//
// Fields:
//   - ServerURL: base URL of the blobkeeper HTTP API.
//   - Token: bearer token; may be left empty and entered at the prompt.
//   - RequestTimeout: upper bound for one API call, uploads included.
type Config struct {
	ServerURL      string
	Token          string
	RequestTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://localhost:8000"
	c.RequestTimeout = 5 * time.Minute
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
