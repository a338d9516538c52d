package services

import "errors"

// Protocol errors, named after the OAuth2 error vocabulary (RFC 6749 §5.2).
// Handlers map these to wire error codes; anything not in this list surfaces
// as server_error so callers never mistake an internal failure for a
// client-correctable one.
var (
	ErrInvalidClient           = errors.New("invalid_client")
	ErrInvalidRequest          = errors.New("invalid_request")
	ErrInvalidGrant            = errors.New("invalid_grant")
	ErrInvalidScope            = errors.New("invalid_scope")
	ErrUnsupportedResponseType = errors.New("unsupported_response_type")
	ErrUnsupportedGrantType    = errors.New("unsupported_grant_type")
	ErrInsufficientScope       = errors.New("insufficient_scope")

	// ErrAuthenticationRequired is set on authorize results when no live
	// authenticated subject is present. It carries a login redirect, never a
	// protocol error response.
	ErrAuthenticationRequired = errors.New("authentication_required")
)
