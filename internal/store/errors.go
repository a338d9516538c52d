package store

import "errors"

var (
	// ErrRecordNotFound wraps GORM's not found error for consistency
	ErrRecordNotFound = errors.New("record not found")

	// ErrCodeAlreadyUsed is returned by MarkAuthorizationCodeUsed when the
	// code was already consumed by a concurrent request (0 rows updated).
	ErrCodeAlreadyUsed = errors.New("authorization code already used")

	// ErrRefreshTokenGone is returned by RotateRefreshToken when the old
	// token was deleted by a concurrent rotation or revocation.
	ErrRefreshTokenGone = errors.New("refresh token no longer exists")
)
