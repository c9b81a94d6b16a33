package client

import "errors"

// ErrNoToken is returned by commands that need a token before one is set.
var ErrNoToken = errors.New("no token: run 'login' or 'enroll' first")
