// Package identity turns bearer tokens into verified users.
package identity

import (
	"context"
	"errors"

	"github.com/cwrk-planet/music-room/internal/domain"
)

var (
	ErrMissingToken    = errors.New("missing bearer token")
	ErrInvalidToken    = errors.New("invalid token")
	ErrInvalidIssuer   = errors.New("invalid issuer")
	ErrInvalidAudience = errors.New("invalid audience")
	ErrTokenExpired    = errors.New("token expired or not valid yet")
	ErrInvalidSubject  = errors.New("invalid subject")
	ErrUpstream        = errors.New("identity service unavailable")
)

type Verifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, token string) (domain.Identity, error)

func (f VerifierFunc) Verify(ctx context.Context, token string) (domain.Identity, error) {
	return f(ctx, token)
}
