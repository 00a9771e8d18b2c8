// Package identity resolves staff credentials to actors. Only HS256 JWTs are accepted.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/docflow/internal/errs"
	"github.com/and161185/docflow/internal/model"
)

const issuer = "docflow"

// Claims are the JWT claims of a staff token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Provider resolves a credential to an actor.
type Provider interface {
	Resolve(token string) (model.Actor, error)
}

// JWT issues and verifies HS256 staff tokens.
type JWT struct {
	key []byte
	now func() time.Time
}

// NewJWT returns a provider signing with key.
func NewJWT(key []byte) *JWT { return &JWT{key: key, now: time.Now} }

// Issue signs a token for actorID with role, valid for ttl.
func (j *JWT) Issue(actorID string, role model.Role, ttl time.Duration) (string, time.Time, error) {
	if actorID == "" || !role.Valid() || role == model.RoleSubmitter {
		return "", time.Time{}, fmt.Errorf("%w: staff token needs an id and a staff role", errs.ErrBadRequest)
	}
	now := j.now()
	exp := now.Add(ttl)
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   actorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.key)
	return signed, exp, err
}

// Resolve verifies token and returns the actor it names. Every failure is errs.ErrUnauthorized.
func (j *JWT) Resolve(token string) (model.Actor, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) { return j.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return model.Actor{}, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	role := model.Role(claims.Role)
	if claims.Subject == "" || !role.Valid() || role == model.RoleSubmitter {
		return model.Actor{}, fmt.Errorf("%w: bad claims", errs.ErrUnauthorized)
	}
	return model.Actor{ID: claims.Subject, Role: role}, nil
}

// IsUnauthorized reports whether err came from Resolve.
func IsUnauthorized(err error) bool { return errors.Is(err, errs.ErrUnauthorized) }
