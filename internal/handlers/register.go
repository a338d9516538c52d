package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tokengate/tokengate/internal/services"
)

// RegisterHandler serves POST /oauth/register.
type RegisterHandler struct {
	clients *services.ClientService
}

func NewRegisterHandler(cs *services.ClientService) *RegisterHandler {
	return &RegisterHandler{clients: cs}
}

type registerRequest struct {
	ClientName              string   `json:"client_name"`
	Description             string   `json:"description"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	Scope                   string   `json:"scope"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

type registerResponse struct {
	ClientID                string   `json:"client_id"`
	ClientSecret            string   `json:"client_secret,omitempty"`
	ClientName              string   `json:"client_name"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	Scope                   string   `json:"scope"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
}

// Register creates a client. The plaintext secret appears in this
// response and nowhere else.
func (h *RegisterHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "request body must be valid JSON",
		})
		return
	}

	client, secret, err := h.clients.Register(c.Request.Context(), services.RegisterInput{
		Name:          req.ClientName,
		Description:   req.Description,
		RedirectURIs:  req.RedirectURIs,
		GrantTypes:    strings.Join(req.GrantTypes, " "),
		ResponseTypes: strings.Join(req.ResponseTypes, " "),
		Scopes:        req.Scope,
		AuthMethod:    req.TokenEndpointAuthMethod,
	})
	if err != nil {
		writeOAuthError(c, err)
		return
	}

	c.JSON(http.StatusCreated, registerResponse{
		ClientID:                client.ClientID,
		ClientSecret:            secret,
		ClientName:              client.ClientName,
		RedirectURIs:            client.RedirectURIs,
		GrantTypes:              strings.Fields(client.GrantTypes),
		ResponseTypes:           strings.Fields(client.ResponseTypes),
		Scope:                   client.Scopes,
		TokenEndpointAuthMethod: client.AuthMethod,
	})
}
