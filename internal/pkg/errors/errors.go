package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument marks caller mistakes that must be surfaced, never swallowed.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrStoreUnavailable marks a degraded persistence round-trip.
	ErrStoreUnavailable = errors.New("store unavailable")
)
