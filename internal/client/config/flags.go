package config

import (
	"flag"
	"os"

	"github.com/dmitrijs2005/blobkeeper/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     base URL of the server (default from Config)
//	-t string     bearer token
//	-T duration   request timeout, e.g. "30s"
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-t", "-T"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the blobkeeper server")
	fs.StringVar(&cfg.Token, "t", cfg.Token, "bearer token")
	fs.DurationVar(&cfg.RequestTimeout, "T", cfg.RequestTimeout, "request timeout")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
