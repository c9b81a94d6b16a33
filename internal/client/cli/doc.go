// Package cli provides the interactive blobkeeper command-line client.
//
// It wires configuration and the HTTP API client into a small REPL. A token
// is taken from the config, from 'enroll', or typed at the hidden 'login'
// prompt; the remaining commands upload, list, fetch and delete files.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
