package config

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/blobkeeper/internal/flagx"
	"github.com/dustin/go-humanize"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     HTTP bind address (e.g. ":8000")
//	-r string     gRPC bind address (e.g. ":50051")
//	-u string     public base URL
//	-m string     metadata backend: badger | postgres
//	-d string     PostgreSQL DSN
//	-k string     badger directory
//	-o string     content backend: filesystem | s3
//	-f string     data directory for the filesystem backend
//	-s string     token signing secret
//	-w string     comma separated allowlist
//	-x string     max file size ("10MiB")
//	-q string     max total size per user ("500MiB")
//	-e duration   retention window ("2160h")
//	-i duration   sweep interval, 0 disables
//	-p int        requests per minute per client, 0 disables
//	-v string     log level
//	-b string     S3 bucket
//	-n string     S3 base endpoint
//
// Only the flags above are looked at; everything else in os.Args is
// ignored. A malformed value panics.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-r", "-u", "-m", "-d", "-k", "-o", "-f", "-s", "-w",
		"-x", "-q", "-e", "-i", "-p", "-v", "-b", "-n",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run HTTP server")
	fs.StringVar(&config.EndpointAddrGRPC, "r", config.EndpointAddrGRPC, "address and port to run gRPC server")
	fs.StringVar(&config.BaseURL, "u", config.BaseURL, "public base URL")
	fs.StringVar(&config.MetadataBackend, "m", config.MetadataBackend, "metadata backend")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.BadgerDir, "k", config.BadgerDir, "badger directory")
	fs.StringVar(&config.ContentBackend, "o", config.ContentBackend, "content backend")
	fs.StringVar(&config.DataDir, "f", config.DataDir, "data directory")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	allowed := fs.String("w", strings.Join(config.AllowedUsers, ","), "allowed users, comma separated")
	maxFile := fs.String("x", humanize.IBytes(uint64(config.MaxFileSize)), "max file size")
	maxTotal := fs.String("q", humanize.IBytes(uint64(config.MaxTotalSize)), "max total size per user")
	fs.DurationVar(&config.RetentionWindow, "e", config.RetentionWindow, "retention window")
	fs.DurationVar(&config.SweepInterval, "i", config.SweepInterval, "sweep interval")
	fs.IntVar(&config.RequestsPerMinute, "p", config.RequestsPerMinute, "requests per minute")
	fs.StringVar(&config.LogLevel, "v", config.LogLevel, "log level")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3BaseEndpoint, "n", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AllowedUsers = splitList(*allowed)
	config.MaxFileSize = mustParseBytes(*maxFile)
	config.MaxTotalSize = mustParseBytes(*maxTotal)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func mustParseBytes(s string) int64 {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		panic(fmt.Errorf("invalid size %q: %w", s, err))
	}
	return int64(n)
}
