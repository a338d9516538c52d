package signer

import "errors"

var (
	// ErrTokenGeneration indicates the signer could not produce a token.
	// This is an internal failure, never a protocol error.
	ErrTokenGeneration = errors.New("token generation failed")

	// ErrInvalidToken indicates signature or claim validation failed.
	ErrInvalidToken = errors.New("invalid token")

	// ErrExpiredToken indicates the token's exp claim has passed.
	ErrExpiredToken = errors.New("token has expired")

	// ErrSignerConnection indicates the remote signer could not be reached.
	ErrSignerConnection = errors.New("failed to connect to signer API")

	// ErrSignerInvalidResp indicates the remote signer returned a malformed response.
	ErrSignerInvalidResp = errors.New("invalid response from signer API")
)
