package services

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokengate/tokengate/internal/metrics"
	"github.com/tokengate/tokengate/internal/models"
	"github.com/tokengate/tokengate/internal/tier"
)

// registerTestClient registers a confidential client suited to the code flow.
func registerTestClient(t *testing.T, env *testEnv, input RegisterInput) (*models.Client, string) {
	t.Helper()
	if input.Name == "" {
		input.Name = "Test Client"
	}
	if len(input.RedirectURIs) == 0 {
		input.RedirectURIs = []string{"https://app.example.com/cb"}
	}
	if input.Scopes == "" {
		input.Scopes = "openid profile api:read"
	}
	client, secret, err := env.clients.Register(context.Background(), input)
	require.NoError(t, err)
	return client, secret
}

func TestAuthorizeCodeFlow(t *testing.T) {
	env := newTestEnv(t)
	client, _ := registerTestClient(t, env, RegisterInput{})

	result := env.authz.Authorize(context.Background(), AuthorizeRequest{
		ClientID:     client.ClientID,
		ResponseType: "code",
		RedirectURI:  "https://app.example.com/cb",
		Scope:        "openid profile",
		State:        "xyz",
		SubjectID:    "user-1",
	})

	require.Equal(t, OutcomeRedirect, result.Outcome)

	parsed, err := url.Parse(result.RedirectURL)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.RedirectURL, "https://app.example.com/cb?"))
	assert.NotEmpty(t, parsed.Query().Get("code"))
	assert.Equal(t, "xyz", parsed.Query().Get("state"))
}

func TestAuthorizeUnknownClient(t *testing.T) {
	env := newTestEnv(t)

	result := env.authz.Authorize(context.Background(), AuthorizeRequest{
		ClientID:     "nope",
		ResponseType: "code",
		RedirectURI:  "https://app.example.com/cb",
		SubjectID:    "user-1",
	})

	require.Equal(t, OutcomeError, result.Outcome)
	assert.ErrorIs(t, result.Err, ErrInvalidClient)
}

func TestAuthorizeUnregisteredRedirectURI(t *testing.T) {
	env := newTestEnv(t)
	client, _ := registerTestClient(t, env, RegisterInput{})

	result := env.authz.Authorize(context.Background(), AuthorizeRequest{
		ClientID:     client.ClientID,
		ResponseType: "code",
		RedirectURI:  "https://evil.example.com/cb",
		SubjectID:    "user-1",
	})

	require.Equal(t, OutcomeError, result.Outcome)
	assert.ErrorIs(t, result.Err, ErrInvalidRequest)
}

func TestAuthorizeUnsupportedResponseType(t *testing.T) {
	env := newTestEnv(t)
	client, _ := registerTestClient(t, env, RegisterInput{}) // registered for "code" only

	result := env.authz.Authorize(context.Background(), AuthorizeRequest{
		ClientID:     client.ClientID,
		ResponseType: "token",
		RedirectURI:  "https://app.example.com/cb",
		SubjectID:    "user-1",
	})

	require.Equal(t, OutcomeError, result.Outcome)
	assert.ErrorIs(t, result.Err, ErrUnsupportedResponseType)
}

func TestAuthorizeScopeExceedsRegistration(t *testing.T) {
	env := newTestEnv(t)
	client, _ := registerTestClient(t, env, RegisterInput{Scopes: "openid"})

	result := env.authz.Authorize(context.Background(), AuthorizeRequest{
		ClientID:     client.ClientID,
		ResponseType: "code",
		RedirectURI:  "https://app.example.com/cb",
		Scope:        "openid admin",
		SubjectID:    "user-1",
	})

	require.Equal(t, OutcomeError, result.Outcome)
	assert.ErrorIs(t, result.Err, ErrInvalidScope)
}

func TestAuthorizeWithoutSubjectRedirectsToLogin(t *testing.T) {
	env := newTestEnv(t)
	client, _ := registerTestClient(t, env, RegisterInput{})

	result := env.authz.Authorize(context.Background(), AuthorizeRequest{
		ClientID:     client.ClientID,
		ResponseType: "code",
		RedirectURI:  "https://app.example.com/cb",
		Scope:        "openid",
	})

	require.Equal(t, OutcomeAuthenticationRequired, result.Outcome)
	assert.Equal(t, env.config.LoginURL, result.LoginURL)
	assert.ErrorIs(t, result.Err, ErrAuthenticationRequired)
}

// expiredSessionValidator rejects every session, standing in for an
// external session service that has invalidated the login.
type expiredSessionValidator struct{}

func (expiredSessionValidator) Validate(ctx context.Context, sessionID string) (bool, error) {
	return false, nil
}

func TestAuthorizeDeadSessionRedirectsToLogin(t *testing.T) {
	env := newTestEnv(t)
	client, _ := registerTestClient(t, env, RegisterInput{})

	authz := NewAuthorizationService(
		env.store, env.config, env.tokens,
		tier.NewStaticResolver(1, nil), expiredSessionValidator{}, metrics.NewNoopMetrics(),
	)

	result := authz.Authorize(context.Background(), AuthorizeRequest{
		ClientID:     client.ClientID,
		ResponseType: "code",
		RedirectURI:  "https://app.example.com/cb",
		Scope:        "openid",
		SubjectID:    "user-1",
		SessionID:    "sess-stale",
	})

	require.Equal(t, OutcomeAuthenticationRequired, result.Outcome)
	assert.Equal(t, env.config.LoginURL, result.LoginURL)
	assert.ErrorIs(t, result.Err, ErrAuthenticationRequired)

	// Nothing was minted for the dead session.
	count, err := env.store.CountActiveAuthorizationCodes()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestAuthorizePKCERequired(t *testing.T) {
	env := newTestEnv(t)
	env.config.PKCERequired = true
	client, _ := registerTestClient(t, env, RegisterInput{})

	result := env.authz.Authorize(context.Background(), AuthorizeRequest{
		ClientID:     client.ClientID,
		ResponseType: "code",
		RedirectURI:  "https://app.example.com/cb",
		Scope:        "openid",
		SubjectID:    "user-1",
	})

	require.Equal(t, OutcomeError, result.Outcome)
	assert.ErrorIs(t, result.Err, ErrInvalidRequest)
}

func TestAuthorizeRejectsUnknownChallengeMethod(t *testing.T) {
	env := newTestEnv(t)
	client, _ := registerTestClient(t, env, RegisterInput{})

	result := env.authz.Authorize(context.Background(), AuthorizeRequest{
		ClientID:            client.ClientID,
		ResponseType:        "code",
		RedirectURI:         "https://app.example.com/cb",
		Scope:               "openid",
		SubjectID:           "user-1",
		CodeChallenge:       "abc",
		CodeChallengeMethod: "S512",
	})

	require.Equal(t, OutcomeError, result.Outcome)
	assert.ErrorIs(t, result.Err, ErrInvalidRequest)
}

func TestAuthorizeImplicitTokenFlow(t *testing.T) {
	env := newTestEnv(t)
	client, _ := registerTestClient(t, env, RegisterInput{
		GrantTypes:    "implicit",
		ResponseTypes: "token",
		Scopes:        "profile",
	})

	result := env.authz.Authorize(context.Background(), AuthorizeRequest{
		ClientID:     client.ClientID,
		ResponseType: "token",
		RedirectURI:  "https://app.example.com/cb",
		Scope:        "profile",
		State:        "s1",
		SubjectID:    "user-1",
	})

	require.Equal(t, OutcomeRedirect, result.Outcome)
	require.Contains(t, result.RedirectURL, "#")

	fragment := strings.SplitN(result.RedirectURL, "#", 2)[1]
	params, err := url.ParseQuery(fragment)
	require.NoError(t, err)
	assert.NotEmpty(t, params.Get("access_token"))
	assert.Equal(t, "Bearer", params.Get("token_type"))
	assert.Equal(t, "3600", params.Get("expires_in"))
	assert.Equal(t, "s1", params.Get("state"))
	assert.Empty(t, params.Get("id_token"))
}

func TestAuthorizeIDTokenOnlyFlow(t *testing.T) {
	env := newTestEnv(t)
	client, _ := registerTestClient(t, env, RegisterInput{
		GrantTypes:    "implicit",
		ResponseTypes: "id_token",
		Scopes:        "openid",
	})

	result := env.authz.Authorize(context.Background(), AuthorizeRequest{
		ClientID:     client.ClientID,
		ResponseType: "id_token",
		RedirectURI:  "https://app.example.com/cb",
		Scope:        "openid",
		Nonce:        "n-123",
		SubjectID:    "user-1",
	})

	require.Equal(t, OutcomeRedirect, result.Outcome)
	fragment := strings.SplitN(result.RedirectURL, "#", 2)[1]
	params, err := url.ParseQuery(fragment)
	require.NoError(t, err)
	assert.NotEmpty(t, params.Get("id_token"))
	assert.Empty(t, params.Get("access_token"))
}

func TestAuthorizeIDTokenRequiresOpenIDScope(t *testing.T) {
	env := newTestEnv(t)
	client, _ := registerTestClient(t, env, RegisterInput{
		GrantTypes:    "implicit",
		ResponseTypes: "token id_token",
		Scopes:        "openid profile",
	})

	for _, responseType := range []string{"id_token", "id_token token"} {
		result := env.authz.Authorize(context.Background(), AuthorizeRequest{
			ClientID:     client.ClientID,
			ResponseType: responseType,
			RedirectURI:  "https://app.example.com/cb",
			Scope:        "profile",
			SubjectID:    "user-1",
		})

		require.Equal(t, OutcomeError, result.Outcome, responseType)
		assert.ErrorIs(t, result.Err, ErrInvalidScope, responseType)
	}
}

func TestAuthorizeCompoundResponseType(t *testing.T) {
	env := newTestEnv(t)
	client, _ := registerTestClient(t, env, RegisterInput{
		GrantTypes:    "implicit",
		ResponseTypes: "token id_token",
		Scopes:        "openid profile",
	})

	result := env.authz.Authorize(context.Background(), AuthorizeRequest{
		ClientID:     client.ClientID,
		ResponseType: "id_token token",
		RedirectURI:  "https://app.example.com/cb",
		Scope:        "openid profile",
		Nonce:        "n-456",
		SubjectID:    "user-1",
	})

	require.Equal(t, OutcomeRedirect, result.Outcome)
	fragment := strings.SplitN(result.RedirectURL, "#", 2)[1]
	params, err := url.ParseQuery(fragment)
	require.NoError(t, err)
	assert.NotEmpty(t, params.Get("access_token"))
	assert.NotEmpty(t, params.Get("id_token"))
}
