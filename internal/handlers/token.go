package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tokengate/tokengate/internal/services"
)

// TokenHandler serves POST /oauth/token.
type TokenHandler struct {
	tokens *services.TokenService
}

func NewTokenHandler(ts *services.TokenService) *TokenHandler {
	return &TokenHandler{tokens: ts}
}

// clientCredentials resolves client authentication from HTTP Basic or the
// form body (RFC 6749 §2.3.1 allows both).
func clientCredentials(c *gin.Context) (clientID, clientSecret string) {
	if id, secret, ok := c.Request.BasicAuth(); ok {
		return id, secret
	}
	return c.PostForm("client_id"), c.PostForm("client_secret")
}

// Token handles the token endpoint for all grant types.
func (h *TokenHandler) Token(c *gin.Context) {
	clientID, clientSecret := clientCredentials(c)

	req := services.TokenRequest{
		GrantType:    c.PostForm("grant_type"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Code:         c.PostForm("code"),
		RedirectURI:  c.PostForm("redirect_uri"),
		RefreshToken: c.PostForm("refresh_token"),
		CodeVerifier: c.PostForm("code_verifier"),
		Scope:        c.PostForm("scope"),
	}

	resp, err := h.tokens.Exchange(c.Request.Context(), req)
	if err != nil {
		writeOAuthError(c, err)
		return
	}

	// Token responses must not be cached (RFC 6749 §5.1).
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(http.StatusOK, resp)
}
