// Package common defines shared constants and sentinel errors used across
// blobkeeper layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// repository specific errors
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// service specific errors
	ErrorInternal = errors.New("internal error")

	// auth errors
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidToken    = errors.New("invalid token")

	// quota errors
	ErrFileTooLarge   = errors.New("file too large")
	ErrQuotaExceeded  = errors.New("quota exceeded")
	ErrRateLimited    = errors.New("rate limited")
	ErrBadRequest     = errors.New("bad request")
	ErrStorageFailure = errors.New("storage failure")

	// identifier allocation errors, both are internal malfunctions
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
	ErrExhaustedRetries    = errors.New("exhausted identifier retries")
)
