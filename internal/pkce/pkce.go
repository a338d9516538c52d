// Package pkce implements Proof Key for Code Exchange verification (RFC 7636).
package pkce

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// Challenge method constants (RFC 7636 §4.2).
const (
	MethodS256  = "S256"
	MethodPlain = "plain"
)

// IsSupportedMethod reports whether the given code_challenge_method is one
// the server accepts. An empty method is treated as "plain" per RFC 7636 §4.3.
func IsSupportedMethod(method string) bool {
	switch strings.ToUpper(method) {
	case MethodS256, "PLAIN", "":
		return true
	default:
		return false
	}
}

// Verify validates a code_verifier against the stored code_challenge.
// For S256: base64url-nopad(sha256(verifier)) must equal the challenge.
// For plain or unset: direct string equality. Unknown methods always fail.
func Verify(codeChallenge, method, codeVerifier string) bool {
	if codeVerifier == "" {
		return false
	}
	switch strings.ToUpper(method) {
	case MethodS256:
		sum := sha256.Sum256([]byte(codeVerifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		return computed == codeChallenge
	case "PLAIN", "":
		return codeVerifier == codeChallenge
	default:
		return false
	}
}
