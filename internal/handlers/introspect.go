package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tokengate/tokengate/internal/services"
)

// IntrospectHandler serves POST /oauth/introspect and POST /oauth/revoke.
// Both are total per their RFCs: introspection answers {active:false} for
// anything it cannot vouch for, revocation always succeeds.
type IntrospectHandler struct {
	tokens *services.TokenService
}

func NewIntrospectHandler(ts *services.TokenService) *IntrospectHandler {
	return &IntrospectHandler{tokens: ts}
}

// Introspect implements RFC 7662.
func (h *IntrospectHandler) Introspect(c *gin.Context) {
	token := c.PostForm("token")
	if token == "" {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}
	c.JSON(http.StatusOK, h.tokens.Introspect(c.Request.Context(), token))
}

// Revoke implements RFC 7009. The response is 200 regardless of whether
// anything was revoked.
func (h *IntrospectHandler) Revoke(c *gin.Context) {
	token := c.PostForm("token")
	if token == "" {
		c.Status(http.StatusOK)
		return
	}

	hint := c.PostForm("token_type_hint")
	if err := h.tokens.Revoke(c.Request.Context(), token, hint); err != nil {
		// Backend failure is the one case that is not a silent success.
		writeOAuthError(c, err)
		return
	}
	c.Status(http.StatusOK)
}
