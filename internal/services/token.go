package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/tokengate/tokengate/internal/config"
	"github.com/tokengate/tokengate/internal/metrics"
	"github.com/tokengate/tokengate/internal/models"
	"github.com/tokengate/tokengate/internal/pkce"
	"github.com/tokengate/tokengate/internal/signer"
	"github.com/tokengate/tokengate/internal/store"
	"github.com/tokengate/tokengate/internal/tier"
	"github.com/tokengate/tokengate/internal/util"
)

// Grant type constants. Password and device_code are part of the grant
// vocabulary but have no handler; requesting them yields
// unsupported_grant_type.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
	GrantClientCredentials = "client_credentials"
	GrantImplicit          = "implicit"
	GrantPassword          = "password"
	GrantDeviceCode        = "urn:ietf:params:oauth:grant-type:device_code"
)

// TokenRequest carries the form parameters of a token endpoint call.
// Client credentials may arrive via HTTP Basic or the form body; the
// handler resolves both into ClientID/ClientSecret.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	RefreshToken string
	CodeVerifier string
	Scope        string
}

// TokenResponse is the JSON body of a successful token endpoint call.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

type grantHandler func(ctx context.Context, client *models.Client, req TokenRequest) (*TokenResponse, error)

// TokenService implements the token endpoint grants, introspection, and
// revocation. Grant dispatch goes through a closed handler table; grant
// types without a handler return unsupported_grant_type.
type TokenService struct {
	store         *store.Store
	config        *config.Config
	clients       *ClientService
	signer        signer.Signer
	tiers         tier.Resolver
	metrics       metrics.Recorder
	grantHandlers map[string]grantHandler
}

func NewTokenService(
	s *store.Store,
	cfg *config.Config,
	clients *ClientService,
	sgn signer.Signer,
	tiers tier.Resolver,
	m metrics.Recorder,
) *TokenService {
	svc := &TokenService{
		store:   s,
		config:  cfg,
		clients: clients,
		signer:  sgn,
		tiers:   tiers,
		metrics: m,
	}
	svc.grantHandlers = map[string]grantHandler{
		GrantAuthorizationCode: svc.exchangeAuthorizationCode,
		GrantRefreshToken:      svc.refreshAccessToken,
		GrantClientCredentials: svc.issueClientCredentialsToken,
	}
	return svc
}

// Exchange authenticates the client and dispatches to the grant handler.
func (s *TokenService) Exchange(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	handler, ok := s.grantHandlers[req.GrantType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedGrantType, req.GrantType)
	}

	client, err := s.clients.Authenticate(req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}
	if !client.HasGrantType(req.GrantType) {
		return nil, fmt.Errorf(
			"%w: client is not registered for %q", ErrUnsupportedGrantType, req.GrantType,
		)
	}

	return handler(ctx, client, req)
}

// exchangeAuthorizationCode implements the authorization_code grant
// (RFC 6749 §4.1.3) with PKCE (RFC 7636).
func (s *TokenService) exchangeAuthorizationCode(
	ctx context.Context,
	client *models.Client,
	req TokenRequest,
) (*TokenResponse, error) {
	if req.Code == "" {
		return nil, fmt.Errorf("%w: code is required", ErrInvalidRequest)
	}

	code, err := s.store.GetAuthorizationCodeByHash(util.SHA256Hex(req.Code))
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			s.metrics.RecordCodeExchange("invalid")
			return nil, fmt.Errorf("%w: unknown authorization code", ErrInvalidGrant)
		}
		return nil, err
	}
	if code.IsUsed() {
		s.metrics.RecordCodeExchange("replayed")
		return nil, fmt.Errorf("%w: authorization code already used", ErrInvalidGrant)
	}
	if code.IsExpired() {
		s.metrics.RecordCodeExchange("expired")
		return nil, fmt.Errorf("%w: authorization code expired", ErrInvalidGrant)
	}

	// Binding checks prevent code substitution across clients or redirects.
	if code.ClientID != client.ClientID {
		s.metrics.RecordCodeExchange("invalid")
		return nil, fmt.Errorf("%w: code was issued to a different client", ErrInvalidGrant)
	}
	if code.RedirectURI != req.RedirectURI {
		s.metrics.RecordCodeExchange("invalid")
		return nil, fmt.Errorf("%w: redirect_uri mismatch", ErrInvalidGrant)
	}

	// PKCE runs after code validation but before mark-used, so a failed
	// proof does not consume the code.
	if code.CodeChallenge != "" {
		if req.CodeVerifier == "" {
			s.metrics.RecordCodeExchange("pkce_failed")
			return nil, fmt.Errorf("%w: code_verifier is required", ErrInvalidRequest)
		}
		if !pkce.Verify(code.CodeChallenge, code.CodeChallengeMethod, req.CodeVerifier) {
			s.metrics.RecordCodeExchange("pkce_failed")
			return nil, fmt.Errorf("%w: PKCE verification failed", ErrInvalidGrant)
		}
	}

	// Atomic single-use enforcement. Of two concurrent exchanges on the
	// same code, exactly one passes this point.
	if err := s.store.MarkAuthorizationCodeUsed(code.ID); err != nil {
		if errors.Is(err, store.ErrCodeAlreadyUsed) {
			s.metrics.RecordCodeExchange("replayed")
			return nil, fmt.Errorf("%w: authorization code already used", ErrInvalidGrant)
		}
		return nil, err
	}

	withRefresh := s.config.EnableRefreshTokens && client.HasGrantType(GrantRefreshToken)
	withIDToken := hasScope(code.Scopes, "openid")

	resp, err := s.mintTokens(ctx, mintInput{
		Client:      client,
		SubjectID:   code.SubjectID,
		SessionID:   code.SessionID,
		Scopes:      code.Scopes,
		GrantType:   GrantAuthorizationCode,
		Nonce:       code.Nonce,
		TierLevel:   s.tiers.Resolve(ctx, code.SubjectID),
		WithRefresh: withRefresh,
		WithIDToken: withIDToken,
	})
	if err != nil {
		return nil, err
	}

	// The voucher is spent; remove the row immediately rather than waiting
	// for the sweep.
	if err := s.store.DeleteAuthorizationCode(code.ID); err != nil {
		log.Printf("[Token] Failed to delete spent authorization code %s: %v", code.UUID, err)
	}

	s.metrics.RecordCodeExchange("success")
	return resp, nil
}

// refreshAccessToken implements the refresh_token grant (RFC 6749 §6).
// Rotation is config-driven and applied consistently; the old refresh
// token is deleted in the same transaction that inserts its replacement.
func (s *TokenService) refreshAccessToken(
	ctx context.Context,
	client *models.Client,
	req TokenRequest,
) (*TokenResponse, error) {
	if req.RefreshToken == "" {
		return nil, fmt.Errorf("%w: refresh_token is required", ErrInvalidRequest)
	}

	rt, err := s.store.GetRefreshTokenByHash(util.SHA256Hex(req.RefreshToken))
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			s.metrics.RecordTokenRefresh(false)
			return nil, fmt.Errorf("%w: unknown refresh token", ErrInvalidGrant)
		}
		return nil, err
	}
	if rt.IsExpired() {
		s.metrics.RecordTokenRefresh(false)
		return nil, fmt.Errorf("%w: refresh token expired", ErrInvalidGrant)
	}
	if rt.ClientID != client.ClientID {
		s.metrics.RecordTokenRefresh(false)
		return nil, fmt.Errorf("%w: refresh token was issued to a different client", ErrInvalidGrant)
	}

	// Scope may only narrow on refresh.
	scopes := rt.Scopes
	if req.Scope != "" {
		if !scopeSubset(req.Scope, rt.Scopes) {
			s.metrics.RecordTokenRefresh(false)
			return nil, fmt.Errorf("%w: requested scope exceeds original grant", ErrInvalidScope)
		}
		scopes = req.Scope
	}

	start := time.Now()
	access, err := s.buildAccessToken(
		ctx, client, rt.SubjectID, rt.SessionID, scopes, rt.TierLevel,
	)
	if err != nil {
		return nil, err
	}

	resp := &TokenResponse{
		AccessToken: access.RawToken,
		TokenType:   access.TokenType,
		ExpiresIn:   int64(s.config.AccessTokenExpiration.Seconds()),
		Scope:       scopes,
	}

	if s.config.EnableTokenRotation {
		newRT, err := s.buildRefreshToken(client, rt.SubjectID, rt.SessionID, scopes, rt.TierLevel)
		if err != nil {
			return nil, err
		}
		access.RefreshTokenID = newRT.ID
		if err := s.store.RotateRefreshToken(rt.ID, newRT, access); err != nil {
			if errors.Is(err, store.ErrRefreshTokenGone) {
				// Lost a race with a concurrent rotation or revocation.
				s.metrics.RecordTokenRefresh(false)
				return nil, fmt.Errorf("%w: refresh token no longer valid", ErrInvalidGrant)
			}
			return nil, err
		}
		s.metrics.RecordTokenRevoked("refresh", "rotation")
		resp.RefreshToken = newRT.RawToken
	} else {
		access.RefreshTokenID = rt.ID
		if err := s.store.CreateAccessToken(access); err != nil {
			return nil, err
		}
		resp.RefreshToken = req.RefreshToken
	}

	s.metrics.RecordTokenIssued("access", GrantRefreshToken, time.Since(start), s.signer.Name())
	s.metrics.RecordTokenRefresh(true)
	return resp, nil
}

// issueClientCredentialsToken implements the client_credentials grant
// (RFC 6749 §4.4). There is no end-user subject; the token acts for the
// client itself and no refresh or ID token is minted.
func (s *TokenService) issueClientCredentialsToken(
	ctx context.Context,
	client *models.Client,
	req TokenRequest,
) (*TokenResponse, error) {
	if client.IsPublic() {
		return nil, fmt.Errorf(
			"%w: client_credentials requires a confidential client", ErrInvalidClient,
		)
	}

	scopes := client.Scopes
	if req.Scope != "" {
		if !scopeSubset(req.Scope, client.Scopes) {
			return nil, fmt.Errorf("%w: requested scope exceeds registration", ErrInvalidScope)
		}
		scopes = req.Scope
	}
	if hasScope(scopes, "openid") {
		return nil, fmt.Errorf(
			"%w: openid scope requires an end-user subject", ErrInvalidScope,
		)
	}

	resp, err := s.mintTokens(ctx, mintInput{
		Client:    client,
		SubjectID: "client:" + client.ClientID,
		Scopes:    scopes,
		GrantType: GrantClientCredentials,
		TierLevel: s.config.ClientTierLevel,
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// mintInput describes one token-family issuance.
type mintInput struct {
	Client      *models.Client
	SubjectID   string
	SessionID   string
	Scopes      string
	GrantType   string
	Nonce       string
	TierLevel   int
	WithRefresh bool
	WithIDToken bool
}

// mintTokens signs and persists an access token plus optional refresh and
// ID tokens as a single family. All rows land in one transaction.
func (s *TokenService) mintTokens(ctx context.Context, in mintInput) (*TokenResponse, error) {
	start := time.Now()

	access, err := s.buildAccessToken(
		ctx, in.Client, in.SubjectID, in.SessionID, in.Scopes, in.TierLevel,
	)
	if err != nil {
		return nil, err
	}

	var refresh *models.RefreshToken
	if in.WithRefresh {
		refresh, err = s.buildRefreshToken(
			in.Client, in.SubjectID, in.SessionID, in.Scopes, in.TierLevel,
		)
		if err != nil {
			return nil, err
		}
		access.RefreshTokenID = refresh.ID
	}

	var idToken *models.IDToken
	if in.WithIDToken {
		idToken, err = s.buildIDToken(ctx, in.Client, in.SubjectID, in.Nonce)
		if err != nil {
			return nil, err
		}
	}

	if err := s.store.SaveIssuedTokens(access, refresh, idToken); err != nil {
		return nil, fmt.Errorf("failed to persist issued tokens: %w", err)
	}

	elapsed := time.Since(start)
	s.metrics.RecordTokenIssued("access", in.GrantType, elapsed, s.signer.Name())
	resp := &TokenResponse{
		AccessToken: access.RawToken,
		TokenType:   access.TokenType,
		ExpiresIn:   int64(s.config.AccessTokenExpiration.Seconds()),
		Scope:       in.Scopes,
	}
	if refresh != nil {
		s.metrics.RecordTokenIssued("refresh", in.GrantType, elapsed, s.signer.Name())
		resp.RefreshToken = refresh.RawToken
	}
	if idToken != nil {
		s.metrics.RecordTokenIssued("id", in.GrantType, elapsed, s.signer.Name())
		resp.IDToken = idToken.RawToken
	}
	return resp, nil
}

func (s *TokenService) buildAccessToken(
	ctx context.Context,
	client *models.Client,
	subjectID, sessionID, scopes string,
	tierLevel int,
) (*models.AccessToken, error) {
	raw, err := s.signer.Sign(ctx, map[string]any{
		"iss":        s.config.BaseURL,
		"sub":        subjectID,
		"client_id":  client.ClientID,
		"scope":      scopes,
		"tier_level": tierLevel,
	}, s.config.AccessTokenExpiration)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return &models.AccessToken{
		ID:        uuid.New().String(),
		TokenHash: util.SHA256Hex(raw),
		RawToken:  raw,
		TokenType: "Bearer",
		ClientID:  client.ClientID,
		SubjectID: subjectID,
		Scopes:    scopes,
		SessionID: sessionID,
		TierLevel: tierLevel,
		ExpiresAt: time.Now().Add(s.config.AccessTokenExpiration),
	}, nil
}

func (s *TokenService) buildRefreshToken(
	client *models.Client,
	subjectID, sessionID, scopes string,
	tierLevel int,
) (*models.RefreshToken, error) {
	raw, err := util.CryptoRandomHex(32)
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return &models.RefreshToken{
		ID:        uuid.New().String(),
		TokenHash: util.SHA256Hex(raw),
		RawToken:  raw,
		ClientID:  client.ClientID,
		SubjectID: subjectID,
		Scopes:    scopes,
		SessionID: sessionID,
		TierLevel: tierLevel,
		ExpiresAt: time.Now().Add(s.config.RefreshTokenExpiration),
	}, nil
}

func (s *TokenService) buildIDToken(
	ctx context.Context,
	client *models.Client,
	subjectID, nonce string,
) (*models.IDToken, error) {
	now := time.Now()
	claims := map[string]any{
		"iss": s.config.BaseURL,
		"sub": subjectID,
		"aud": client.ClientID,
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}

	raw, err := s.signer.Sign(ctx, claims, s.config.IDTokenExpiration)
	if err != nil {
		return nil, fmt.Errorf("failed to sign ID token: %w", err)
	}

	return &models.IDToken{
		ID:        uuid.New().String(),
		TokenHash: util.SHA256Hex(raw),
		RawToken:  raw,
		ClientID:  client.ClientID,
		SubjectID: subjectID,
		Issuer:    s.config.BaseURL,
		Audience:  client.ClientID,
		Nonce:     nonce,
		Claims:    models.ClaimsMap(claims),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.config.IDTokenExpiration),
	}, nil
}

// Introspection is the RFC 7662 response payload.
type Introspection struct {
	Active    bool   `json:"active"`
	ClientID  string `json:"client_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Scope     string `json:"scope,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
	TierLevel int    `json:"tier_level,omitempty"`
}

// Introspect reports whether a token is active. Expiry is checked at read
// time, not only at sweep time, so a stale row never reports active. It is
// a total function: unknown tokens yield {active:false}, never an error.
func (s *TokenService) Introspect(ctx context.Context, token string) *Introspection {
	start := time.Now()
	hash := util.SHA256Hex(token)

	if at, err := s.store.GetAccessTokenByHash(hash); err == nil {
		if at.IsExpired() {
			s.metrics.RecordIntrospection("inactive", time.Since(start))
			return &Introspection{Active: false}
		}
		s.metrics.RecordIntrospection("active", time.Since(start))
		return &Introspection{
			Active:    true,
			ClientID:  at.ClientID,
			Username:  at.SubjectID,
			Scope:     at.Scopes,
			TokenType: at.TokenType,
			Exp:       at.ExpiresAt.Unix(),
			TierLevel: at.TierLevel,
		}
	}

	if rt, err := s.store.GetRefreshTokenByHash(hash); err == nil {
		if rt.IsExpired() {
			s.metrics.RecordIntrospection("inactive", time.Since(start))
			return &Introspection{Active: false}
		}
		s.metrics.RecordIntrospection("active", time.Since(start))
		return &Introspection{
			Active:    true,
			ClientID:  rt.ClientID,
			Username:  rt.SubjectID,
			Scope:     rt.Scopes,
			TokenType: "refresh_token",
			Exp:       rt.ExpiresAt.Unix(),
			TierLevel: rt.TierLevel,
		}
	}

	s.metrics.RecordIntrospection("inactive", time.Since(start))
	return &Introspection{Active: false}
}

// Revoke deletes a token. Revoking a refresh token cascades to every
// access token in its family. Unknown tokens are a no-op success per
// RFC 7009.
func (s *TokenService) Revoke(ctx context.Context, token, hint string) error {
	hash := util.SHA256Hex(token)

	revokeRefresh := func() (bool, error) {
		rt, err := s.store.GetRefreshTokenByHash(hash)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return false, nil
			}
			return false, err
		}
		cascaded, err := s.store.RevokeRefreshTokenFamily(rt.ID)
		if err != nil {
			return false, err
		}
		s.metrics.RecordTokenRevoked("refresh", "user_request")
		for range int(cascaded) {
			s.metrics.RecordTokenRevoked("access", "cascade")
		}
		log.Printf(
			"[Token] Revoked refresh token family for client %s (%d access tokens)",
			rt.ClientID, cascaded,
		)
		return true, nil
	}

	revokeAccess := func() (bool, error) {
		at, err := s.store.GetAccessTokenByHash(hash)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return false, nil
			}
			return false, err
		}
		if err := s.store.DeleteAccessToken(at.ID); err != nil {
			return false, err
		}
		s.metrics.RecordTokenRevoked("access", "user_request")
		return true, nil
	}

	// The hint only orders the lookups; a wrong hint must still revoke.
	lookups := []func() (bool, error){revokeAccess, revokeRefresh}
	if hint == "refresh_token" {
		lookups = []func() (bool, error){revokeRefresh, revokeAccess}
	}
	for _, lookup := range lookups {
		done, err := lookup()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return nil
}

// ValidateAccessToken verifies a bearer token's signature and confirms the
// token is still live in the store. Used by the userinfo endpoint.
func (s *TokenService) ValidateAccessToken(
	ctx context.Context,
	token string,
) (*models.AccessToken, *signer.Verification, error) {
	verification, err := s.signer.Verify(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	at, err := s.store.GetAccessTokenByHash(util.SHA256Hex(token))
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, nil, signer.ErrInvalidToken
		}
		return nil, nil, err
	}
	if at.IsExpired() {
		return nil, nil, signer.ErrExpiredToken
	}
	return at, verification, nil
}
