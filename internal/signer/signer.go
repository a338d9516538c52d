// Package signer abstracts the token signing collaborator. The core treats
// signed tokens as opaque strings; key material and signature verification
// are owned by the signer, which may run in-process (LocalSigner) or as an
// external service (HTTPSigner).
package signer

import (
	"context"
	"time"

	jose "github.com/go-jose/go-jose/v4"
)

// Signer signs claim sets into compact tokens and verifies them.
type Signer interface {
	// Sign produces a signed compact token for the given claims, valid for
	// the given duration. Standard claims (exp, iat, jti) are added by the
	// signer; the caller provides iss, sub, aud and domain claims.
	Sign(ctx context.Context, claims map[string]any, expiry time.Duration) (string, error)

	// Verify checks the token's signature and expiry and returns the
	// extracted claims. Returns ErrExpiredToken or ErrInvalidToken.
	Verify(ctx context.Context, token string) (*Verification, error)

	// PublicKeys returns the JWKS used to verify tokens this signer produces.
	PublicKeys(ctx context.Context) (*jose.JSONWebKeySet, error)

	// Name returns the signer name for logging
	Name() string
}

// Verification is the result of a successful token verification.
type Verification struct {
	SubjectID string
	ClientID  string
	Scopes    string
	ExpiresAt time.Time
	Claims    map[string]any
}
