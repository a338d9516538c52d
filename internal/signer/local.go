package signer

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// LocalSigner signs tokens in-process with an RSA key (RS256).
type LocalSigner struct {
	key   *rsa.PrivateKey
	keyID string
}

// NewLocalSigner loads the RSA private key from keyPath, or generates a
// fresh 2048-bit key when keyPath is empty. A generated key does not survive
// restarts; previously issued tokens become unverifiable, which is
// acceptable for the single-node reference deployment.
func NewLocalSigner(keyPath, keyID string) (*LocalSigner, error) {
	var key *rsa.PrivateKey
	var err error

	if keyPath == "" {
		key, err = rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
	} else {
		key, err = loadPrivateKey(keyPath)
		if err != nil {
			return nil, err
		}
	}

	return &LocalSigner{key: key, keyID: keyID}, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("signing key is not PEM encoded")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("signing key is not an RSA key")
	}
	return key, nil
}

// Sign creates a signed RS256 JWT with the given claims and expiry.
func (s *LocalSigner) Sign(
	ctx context.Context,
	claims map[string]any,
	expiry time.Duration,
) (string, error) {
	now := time.Now()
	mapClaims := jwt.MapClaims{
		"exp": now.Add(expiry).Unix(),
		"iat": now.Unix(),
		"jti": uuid.New().String(),
	}
	for k, v := range claims {
		mapClaims[k] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, mapClaims)
	token.Header["kid"] = s.keyID
	tokenString, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenGeneration, err)
	}
	return tokenString, nil
}

// Verify checks the token signature and expiry using the local public key.
func (s *LocalSigner) Verify(ctx context.Context, tokenString string) (*Verification, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &s.key.PublicKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	subjectID, _ := claims["sub"].(string)
	clientID, _ := claims["client_id"].(string)
	scopes, _ := claims["scope"].(string)

	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, ErrInvalidToken
	}

	return &Verification{
		SubjectID: subjectID,
		ClientID:  clientID,
		Scopes:    scopes,
		ExpiresAt: time.Unix(int64(exp), 0),
		Claims:    claims,
	}, nil
}

// PublicKeys returns the JWKS exposing the signing key's public half.
func (s *LocalSigner) PublicKeys(ctx context.Context) (*jose.JSONWebKeySet, error) {
	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       &s.key.PublicKey,
				KeyID:     s.keyID,
				Use:       "sig",
				Algorithm: string(jose.RS256),
			},
		},
	}, nil
}

// Name returns provider name for logging
func (s *LocalSigner) Name() string {
	return "local"
}
