package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tokengate/tokengate/internal/services"
)

// oauthErrorStatus maps protocol sentinels to HTTP status codes.
// invalid_client is 401 per RFC 6749 §5.2; everything else in the
// vocabulary is client-correctable 400. Unrecognized errors are internal
// and surface as 500 server_error so callers never mistake them for
// protocol errors.
func oauthErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrInvalidClient):
		return http.StatusUnauthorized, "invalid_client"
	case errors.Is(err, services.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, services.ErrInvalidGrant):
		return http.StatusBadRequest, "invalid_grant"
	case errors.Is(err, services.ErrInvalidScope):
		return http.StatusBadRequest, "invalid_scope"
	case errors.Is(err, services.ErrUnsupportedResponseType):
		return http.StatusBadRequest, "unsupported_response_type"
	case errors.Is(err, services.ErrUnsupportedGrantType):
		return http.StatusBadRequest, "unsupported_grant_type"
	case errors.Is(err, services.ErrInsufficientScope):
		return http.StatusForbidden, "insufficient_scope"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

// writeOAuthError writes the standard OAuth2 error body.
func writeOAuthError(c *gin.Context, err error) {
	status, code := oauthErrorStatus(err)
	body := gin.H{"error": code}
	if status != http.StatusInternalServerError {
		body["error_description"] = err.Error()
	}
	c.JSON(status, body)
}
