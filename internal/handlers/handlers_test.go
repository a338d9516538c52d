package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokengate/tokengate/internal/config"
	"github.com/tokengate/tokengate/internal/metrics"
	"github.com/tokengate/tokengate/internal/services"
	"github.com/tokengate/tokengate/internal/session"
	"github.com/tokengate/tokengate/internal/signer"
	"github.com/tokengate/tokengate/internal/store"
	"github.com/tokengate/tokengate/internal/tier"
)

var (
	testSignerOnce sync.Once
	testSigner     *signer.LocalSigner
)

func sharedSigner(t *testing.T) *signer.LocalSigner {
	t.Helper()
	testSignerOnce.Do(func() {
		s, err := signer.NewLocalSigner("", "test-key")
		if err != nil {
			t.Fatalf("failed to create test signer: %v", err)
		}
		testSigner = s
	})
	return testSigner
}

type testServer struct {
	router  *gin.Engine
	config  *config.Config
	clients *services.ClientService
	tokens  *services.TokenService
}

// newTestServer builds a Gin router with session middleware, the OAuth
// routes, and a /test-login helper that establishes a subject session.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, err := store.New("sqlite", ":memory:")
	require.NoError(t, err)

	cfg := &config.Config{
		BaseURL:                "http://localhost:8080",
		LoginURL:               "http://localhost:8080/login",
		SessionSecret:          "test-secret",
		SessionName:            "test_session",
		AuthCodeExpiration:     10 * time.Minute,
		AccessTokenExpiration:  time.Hour,
		RefreshTokenExpiration: 720 * time.Hour,
		IDTokenExpiration:      time.Hour,
		EnableRefreshTokens:    true,
		EnableTokenRotation:    true,
		DefaultTierLevel:       1,
		ClientTierLevel:        1,
	}

	m := metrics.NewNoopMetrics()
	tiers := tier.NewStaticResolver(cfg.DefaultTierLevel, nil)
	clients := services.NewClientService(s)
	tokens := services.NewTokenService(s, cfg, clients, sharedSigner(t), tiers, m)
	authz := services.NewAuthorizationService(s, cfg, tokens, tiers, session.AlwaysValid{}, m)

	r := gin.New()
	sessionStore := cookie.NewStore([]byte(cfg.SessionSecret))
	r.Use(sessions.Sessions(cfg.SessionName, sessionStore))

	authorizeHandler := NewAuthorizeHandler(authz)
	tokenHandler := NewTokenHandler(tokens)
	introspectHandler := NewIntrospectHandler(tokens)
	userInfoHandler := NewUserInfoHandler(tokens)
	discoveryHandler := NewDiscoveryHandler(cfg, sharedSigner(t))
	registerHandler := NewRegisterHandler(clients)

	r.GET("/oauth/authorize", authorizeHandler.Authorize)
	r.POST("/oauth/token", tokenHandler.Token)
	r.POST("/oauth/introspect", introspectHandler.Introspect)
	r.POST("/oauth/revoke", introspectHandler.Revoke)
	r.GET("/oauth/userinfo", userInfoHandler.UserInfo)
	r.POST("/oauth/userinfo", userInfoHandler.UserInfo)
	r.POST("/oauth/register", registerHandler.Register)
	r.GET("/.well-known/openid-configuration", discoveryHandler.Discovery)
	r.GET("/.well-known/jwks.json", discoveryHandler.JWKS)

	// Helper endpoint: establishes an authenticated session for tests.
	r.GET("/test-login", func(c *gin.Context) {
		sess := sessions.Default(c)
		sess.Set(session.KeySubjectID, c.Query("subject"))
		sess.Set(session.KeySessionID, "sess-1")
		require.NoError(t, sess.Save())
		c.Status(http.StatusOK)
	})

	return &testServer{router: r, config: cfg, clients: clients, tokens: tokens}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

// login returns cookies carrying an authenticated session for subject.
func (ts *testServer) login(t *testing.T, subject string) []*http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/test-login?subject="+subject, nil)
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	resp := http.Response{Header: w.Header()}
	return resp.Cookies()
}

// registerClient registers a confidential client over the wire.
func (ts *testServer) registerClient(t *testing.T, body string) (clientID, secret string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/oauth/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := ts.do(req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	clientID, _ = resp["client_id"].(string)
	secret, _ = resp["client_secret"].(string)
	require.NotEmpty(t, clientID)
	return clientID, secret
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

const defaultClientBody = `{
	"client_name": "Test App",
	"redirect_uris": ["https://app.example.com/cb"],
	"grant_types": ["authorization_code", "refresh_token"],
	"response_types": ["code"],
	"scope": "openid profile"
}`

func TestRegisterEndpoint(t *testing.T) {
	ts := newTestServer(t)

	clientID, secret := ts.registerClient(t, defaultClientBody)
	assert.NotEmpty(t, clientID)
	assert.True(t, strings.HasPrefix(secret, "tg_"))
}

func TestRegisterEndpointRejectsMissingRedirectURIs(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(
		http.MethodPost, "/oauth/register",
		strings.NewReader(`{"client_name": "Broken"}`),
	)
	req.Header.Set("Content-Type", "application/json")
	w := ts.do(req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_request")
}

func TestAuthorizeRedirectsToLoginWithoutSession(t *testing.T) {
	ts := newTestServer(t)
	clientID, _ := ts.registerClient(t, defaultClientBody)

	req := httptest.NewRequest(http.MethodGet,
		"/oauth/authorize?client_id="+clientID+
			"&response_type=code&redirect_uri="+url.QueryEscape("https://app.example.com/cb")+
			"&scope=openid", nil)
	w := ts.do(req)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, ts.config.LoginURL, w.Header().Get("Location"))
}

func TestAuthorizeErrorResponse(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet,
		"/oauth/authorize?client_id=unknown&response_type=code"+
			"&redirect_uri="+url.QueryEscape("https://app.example.com/cb"), nil)
	w := ts.do(req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_client")
}

// authorizeCode runs the full browser leg and returns the issued code.
func authorizeCode(t *testing.T, ts *testServer, clientID string) string {
	t.Helper()
	cookies := ts.login(t, "user-1")

	req := httptest.NewRequest(http.MethodGet,
		"/oauth/authorize?client_id="+clientID+
			"&response_type=code&redirect_uri="+url.QueryEscape("https://app.example.com/cb")+
			"&scope=openid&state=st1", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := ts.do(req)
	require.Equal(t, http.StatusFound, w.Code, w.Body.String())

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)
	require.Equal(t, "st1", loc.Query().Get("state"))
	return code
}

func TestTokenEndpointCodeExchange(t *testing.T) {
	ts := newTestServer(t)
	clientID, secret := ts.registerClient(t, defaultClientBody)
	code := authorizeCode(t, ts, clientID)

	w := ts.do(postForm("/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {clientID},
		"client_secret": {secret},
		"code":          {code},
		"redirect_uri":  {"https://app.example.com/cb"},
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["access_token"])
	assert.Equal(t, "Bearer", resp["token_type"])
	assert.EqualValues(t, 3600, resp["expires_in"])
	assert.NotEmpty(t, resp["refresh_token"])
	assert.NotEmpty(t, resp["id_token"])
}

func TestTokenEndpointBasicAuth(t *testing.T) {
	ts := newTestServer(t)
	clientID, secret := ts.registerClient(t, defaultClientBody)
	code := authorizeCode(t, ts, clientID)

	req := postForm("/oauth/token", url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {"https://app.example.com/cb"},
	})
	req.SetBasicAuth(clientID, secret)
	w := ts.do(req)

	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestTokenEndpointUnsupportedGrant(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(postForm("/oauth/token", url.Values{
		"grant_type": {"password"},
		"client_id":  {"whatever"},
	}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "unsupported_grant_type")
}

func TestTokenEndpointBadClientSecret(t *testing.T) {
	ts := newTestServer(t)
	clientID, _ := ts.registerClient(t, defaultClientBody)
	code := authorizeCode(t, ts, clientID)

	w := ts.do(postForm("/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {clientID},
		"client_secret": {"wrong"},
		"code":          {code},
		"redirect_uri":  {"https://app.example.com/cb"},
	}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_client")
}

func TestIntrospectEndpoint(t *testing.T) {
	ts := newTestServer(t)
	clientID, secret := ts.registerClient(t, defaultClientBody)
	code := authorizeCode(t, ts, clientID)

	w := ts.do(postForm("/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {clientID},
		"client_secret": {secret},
		"code":          {code},
		"redirect_uri":  {"https://app.example.com/cb"},
	}))
	require.Equal(t, http.StatusOK, w.Code)
	var tokenResp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tokenResp))
	accessToken := tokenResp["access_token"].(string)

	w = ts.do(postForm("/oauth/introspect", url.Values{"token": {accessToken}}))
	require.Equal(t, http.StatusOK, w.Code)

	var info map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, true, info["active"])
	assert.Equal(t, clientID, info["client_id"])
	assert.Equal(t, "user-1", info["username"])

	// Unknown tokens still answer 200.
	w = ts.do(postForm("/oauth/introspect", url.Values{"token": {"garbage"}}))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, false, info["active"])
}

func TestRevokeEndpointIdempotent(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(postForm("/oauth/revoke", url.Values{"token": {"never-issued"}}))
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(postForm("/oauth/revoke", url.Values{}))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUserInfoEndpoint(t *testing.T) {
	ts := newTestServer(t)
	clientID, secret := ts.registerClient(t, defaultClientBody)
	code := authorizeCode(t, ts, clientID)

	w := ts.do(postForm("/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {clientID},
		"client_secret": {secret},
		"code":          {code},
		"redirect_uri":  {"https://app.example.com/cb"},
	}))
	require.Equal(t, http.StatusOK, w.Code)
	var tokenResp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tokenResp))
	accessToken := tokenResp["access_token"].(string)

	req := httptest.NewRequest(http.MethodGet, "/oauth/userinfo", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	w = ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var claims map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &claims))
	assert.Equal(t, "user-1", claims["sub"])
	assert.Equal(t, clientID, claims["client_id"])
	assert.Equal(t, "user", claims["subject_type"])
}

func TestUserInfoRejectsMissingToken(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/oauth/userinfo", nil)
	w := ts.do(req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "invalid_token")
}

func TestDiscoveryDocument(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/openid-configuration", nil)
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "http://localhost:8080", doc["issuer"])
	assert.Equal(t, "http://localhost:8080/oauth/authorize", doc["authorization_endpoint"])
	assert.Equal(t, "http://localhost:8080/oauth/token", doc["token_endpoint"])
	assert.Equal(t, "http://localhost:8080/.well-known/jwks.json", doc["jwks_uri"])
	assert.Contains(t, doc["grant_types_supported"], "authorization_code")
	assert.Contains(t, doc["code_challenge_methods_supported"], "S256")
}

func TestJWKSEndpoint(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)
	w := ts.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var keySet struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &keySet))
	require.Len(t, keySet.Keys, 1)
	assert.Equal(t, "RSA", keySet.Keys[0]["kty"])
	assert.Equal(t, "sig", keySet.Keys[0]["use"])
	assert.Equal(t, "test-key", keySet.Keys[0]["kid"])
}
