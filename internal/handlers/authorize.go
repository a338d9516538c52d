package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tokengate/tokengate/internal/services"
	"github.com/tokengate/tokengate/internal/session"
)

// AuthorizeHandler serves GET /oauth/authorize.
type AuthorizeHandler struct {
	authz *services.AuthorizationService
}

func NewAuthorizeHandler(as *services.AuthorizationService) *AuthorizeHandler {
	return &AuthorizeHandler{authz: as}
}

// Authorize validates the request and redirects with the issued artifact.
// An unauthenticated user is sent to the login entry point, never given a
// protocol error.
func (h *AuthorizeHandler) Authorize(c *gin.Context) {
	req := services.AuthorizeRequest{
		ClientID:            c.Query("client_id"),
		ResponseType:        c.Query("response_type"),
		RedirectURI:         c.Query("redirect_uri"),
		Scope:               c.Query("scope"),
		State:               c.Query("state"),
		Nonce:               c.Query("nonce"),
		CodeChallenge:       c.Query("code_challenge"),
		CodeChallengeMethod: c.Query("code_challenge_method"),
	}

	if subject, ok := session.CurrentSubject(c); ok {
		req.SubjectID = subject.SubjectID
		req.SessionID = subject.SessionID
	}

	result := h.authz.Authorize(c.Request.Context(), req)
	switch result.Outcome {
	case services.OutcomeRedirect:
		c.Redirect(http.StatusFound, result.RedirectURL)
	case services.OutcomeAuthenticationRequired:
		c.Redirect(http.StatusFound, result.LoginURL)
	default:
		writeOAuthError(c, result.Err)
	}
}
