package models

import "errors"

// Sentinel errors returned by the engine. All are local, recoverable
// conditions raised synchronously to the caller; nothing is retried
// internally.
var (
	// ErrInvalidTimezone means an IANA timezone identifier could not be
	// resolved. Malformed platform timezone data is also surfaced as
	// this error rather than as an opaque failure.
	ErrInvalidTimezone = errors.New("invalid timezone")

	// ErrAccountNotFound means an ad account id did not resolve.
	ErrAccountNotFound = errors.New("ad account not found")

	// ErrAdNotFound means an ad id did not resolve.
	ErrAdNotFound = errors.New("ad not found")
)
