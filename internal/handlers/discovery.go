package handlers

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tokengate/tokengate/internal/config"
	"github.com/tokengate/tokengate/internal/signer"
)

// discoveryMetadata holds the OIDC Provider Metadata returned by the
// discovery endpoint.
type discoveryMetadata struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	UserinfoEndpoint                 string   `json:"userinfo_endpoint"`
	JWKSURI                          string   `json:"jwks_uri"`
	RegistrationEndpoint             string   `json:"registration_endpoint"`
	IntrospectionEndpoint            string   `json:"introspection_endpoint"`
	RevocationEndpoint               string   `json:"revocation_endpoint"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	GrantTypesSupported              []string `json:"grant_types_supported"`
	SubjectTypesSupported            []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported                  []string `json:"scopes_supported"`
	TokenEndpointAuthMethods         []string `json:"token_endpoint_auth_methods_supported"`
	ClaimsSupported                  []string `json:"claims_supported"`
	CodeChallengeMethodsSupported    []string `json:"code_challenge_methods_supported"`
}

// DiscoveryHandler serves the OIDC discovery document and the JWKS
// endpoint. The metadata is static; it is computed once at construction
// and needs no synchronization.
type DiscoveryHandler struct {
	metadata discoveryMetadata
	signer   signer.Signer
}

func NewDiscoveryHandler(cfg *config.Config, sgn signer.Signer) *DiscoveryHandler {
	base := strings.TrimRight(cfg.BaseURL, "/")
	return &DiscoveryHandler{
		signer: sgn,
		metadata: discoveryMetadata{
			Issuer:                base,
			AuthorizationEndpoint: base + "/oauth/authorize",
			TokenEndpoint:         base + "/oauth/token",
			UserinfoEndpoint:      base + "/oauth/userinfo",
			JWKSURI:               base + "/.well-known/jwks.json",
			RegistrationEndpoint:  base + "/oauth/register",
			IntrospectionEndpoint: base + "/oauth/introspect",
			RevocationEndpoint:    base + "/oauth/revoke",
			ResponseTypesSupported: []string{
				"code", "token", "id_token", "id_token token",
			},
			GrantTypesSupported: []string{
				"authorization_code", "implicit", "refresh_token", "client_credentials",
			},
			SubjectTypesSupported:            []string{"public"},
			IDTokenSigningAlgValuesSupported: []string{"RS256"},
			ScopesSupported:                  []string{"openid", "profile", "email"},
			TokenEndpointAuthMethods: []string{
				"client_secret_basic", "client_secret_post", "none",
			},
			ClaimsSupported: []string{
				"iss", "sub", "aud", "exp", "iat", "nonce", "scope", "tier_level",
			},
			CodeChallengeMethodsSupported: []string{"S256", "plain"},
		},
	}
}

// Discovery serves /.well-known/openid-configuration.
func (h *DiscoveryHandler) Discovery(c *gin.Context) {
	c.JSON(http.StatusOK, h.metadata)
}

// JWKS serves the signer's public key set.
func (h *DiscoveryHandler) JWKS(c *gin.Context) {
	keySet, err := h.signer.PublicKeys(c.Request.Context())
	if err != nil {
		log.Printf("[Discovery] Failed to fetch JWKS from signer: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error"})
		return
	}
	c.JSON(http.StatusOK, keySet)
}
