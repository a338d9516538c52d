package signer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSigner(t *testing.T) *LocalSigner {
	t.Helper()
	s, err := NewLocalSigner("", "unit-key")
	require.NoError(t, err)
	return s
}

func TestLocalSignerRoundTrip(t *testing.T) {
	s := newTestSigner(t)
	ctx := context.Background()

	token, err := s.Sign(ctx, map[string]any{
		"sub":       "user-1",
		"client_id": "client-1",
		"scope":     "openid profile",
	}, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	v, err := s.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", v.SubjectID)
	assert.Equal(t, "client-1", v.ClientID)
	assert.Equal(t, "openid profile", v.Scopes)
	assert.WithinDuration(t, time.Now().Add(time.Hour), v.ExpiresAt, time.Minute)
	assert.NotEmpty(t, v.Claims["jti"])
}

func TestLocalSignerRejectsExpiredToken(t *testing.T) {
	s := newTestSigner(t)
	ctx := context.Background()

	token, err := s.Sign(ctx, map[string]any{"sub": "user-1"}, -time.Minute)
	require.NoError(t, err)

	_, err = s.Verify(ctx, token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestLocalSignerRejectsTamperedToken(t *testing.T) {
	s := newTestSigner(t)
	ctx := context.Background()

	token, err := s.Sign(ctx, map[string]any{"sub": "user-1"}, time.Hour)
	require.NoError(t, err)

	_, err = s.Verify(ctx, token+"x")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLocalSignerRejectsForeignKey(t *testing.T) {
	ctx := context.Background()
	a := newTestSigner(t)
	b := newTestSigner(t)

	token, err := a.Sign(ctx, map[string]any{"sub": "user-1"}, time.Hour)
	require.NoError(t, err)

	_, err = b.Verify(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLocalSignerPublicKeys(t *testing.T) {
	s := newTestSigner(t)

	keySet, err := s.PublicKeys(context.Background())
	require.NoError(t, err)
	require.Len(t, keySet.Keys, 1)

	key := keySet.Keys[0]
	assert.Equal(t, "unit-key", key.KeyID)
	assert.Equal(t, "sig", key.Use)
	assert.Equal(t, "RS256", key.Algorithm)
	assert.True(t, key.IsPublic())
}
