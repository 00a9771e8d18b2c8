// Package crypto generates submitter access tokens and the keyed digests stored in their place.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2b"
)

// Argon2id parameters for deriving the digest key from an operator secret.
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32
)

// TokenBytes is the entropy of an access token.
const TokenBytes = 32

var keySalt = []byte("docflow/token-digest/v1")

// ErrMalformedToken is returned for tokens that cannot have been issued by NewAccessToken.
var ErrMalformedToken = errors.New("malformed access token")

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// NewAccessToken returns a URL-safe token carrying TokenBytes of entropy.
func NewAccessToken() (string, error) {
	b, err := RandBytes(TokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate access token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DeriveKey stretches an operator secret into the 32-byte digest key.
func DeriveKey(secret string) []byte {
	return argon2.IDKey([]byte(secret), keySalt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// Digester computes keyed BLAKE2b-256 digests of access tokens.
type Digester struct{ key []byte }

// NewDigester returns a digester for a 32-byte key.
func NewDigester(key []byte) (*Digester, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("digest key must be 32 bytes, got %d", len(key))
	}
	return &Digester{key: append([]byte(nil), key...)}, nil
}

// Digest returns the lookup key for token.
func (d *Digester) Digest(token string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != TokenBytes {
		return nil, ErrMalformedToken
	}
	h, err := blake2b.New256(d.key)
	if err != nil {
		return nil, err
	}
	h.Write(raw)
	return h.Sum(nil), nil
}

// Verify reports whether token hashes to digest.
func (d *Digester) Verify(token string, digest []byte) bool {
	got, err := d.Digest(token)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(got, digest) == 1
}
