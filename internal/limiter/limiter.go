// Package limiter throttles failed submitter token lookups per client address.
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Defaults for token lookup throttling.
const (
	DefaultWindow   = 15 * time.Minute
	DefaultMaxFails = 10
	DefaultBlockFor = 15 * time.Minute
)

// Limiter controls token lookups and temporary lockouts.
type Limiter interface {
	// Allow reports whether a lookup is currently allowed and an optional retry-after.
	Allow(ctx context.Context, ipHash []byte) (bool, time.Duration, error)
	// Success clears an elapsed block after a lookup that found a case.
	// The failure count is kept and only ages out with the window, so a valid
	// token cannot be used to launder guesses from the same address.
	Success(ctx context.Context, ipHash []byte) error
	// Failure records an unknown token; may place a temporary block.
	Failure(ctx context.Context, ipHash []byte) (bool, time.Duration, error)
}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}
