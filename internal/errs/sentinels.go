// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested case, token or staff member does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the actor lacks ownership or role for the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidState indicates a lifecycle guard failed. Concrete failures are *StateError.
	ErrInvalidState = errors.New("invalid state")

	// ErrVersionConflict indicates optimistic concurrency failure (base version mismatch).
	ErrVersionConflict = errors.New("version conflict")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary lock of token lookups for a client.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation.
	ErrAlreadyExists = errors.New("already exists")

	// ErrBadRequest indicates malformed input that never reached the state machine.
	ErrBadRequest = errors.New("bad request")
)
