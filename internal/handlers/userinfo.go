package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tokengate/tokengate/internal/services"
)

// UserInfoHandler serves GET and POST /oauth/userinfo.
type UserInfoHandler struct {
	tokens *services.TokenService
}

func NewUserInfoHandler(ts *services.TokenService) *UserInfoHandler {
	return &UserInfoHandler{tokens: ts}
}

// bearerToken extracts the access token from the Authorization header or,
// for POST, the form body (OIDC Core §5.3.1).
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return c.PostForm("access_token")
}

// UserInfo validates the bearer token against the signer and the store,
// then returns the subject's claims.
func (h *UserInfoHandler) UserInfo(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}

	at, verification, err := h.tokens.ValidateAccessToken(c.Request.Context(), token)
	if err != nil {
		c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
		return
	}

	subjectType := "user"
	if strings.HasPrefix(at.SubjectID, "client:") {
		subjectType = "client"
	}

	c.JSON(http.StatusOK, gin.H{
		"sub":          at.SubjectID,
		"iss":          verification.Claims["iss"],
		"client_id":    at.ClientID,
		"scope":        at.Scopes,
		"tier_level":   at.TierLevel,
		"subject_type": subjectType,
	})
}
