package rules

import "errors"

var (
	// ErrConfigInvalid marks configuration that failed load-time validation.
	// Fatal at startup; at reload the prior table is retained.
	ErrConfigInvalid = errors.New("rules: invalid configuration")

	// ErrNotFound marks a lookup for a rule id that does not exist.
	ErrNotFound = errors.New("rules: not found")

	// ErrBackendUnavailable marks a storage backend that could not be reached.
	ErrBackendUnavailable = errors.New("rules: backend unavailable")
)
