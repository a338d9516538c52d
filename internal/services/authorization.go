package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tokengate/tokengate/internal/config"
	"github.com/tokengate/tokengate/internal/metrics"
	"github.com/tokengate/tokengate/internal/models"
	"github.com/tokengate/tokengate/internal/pkce"
	"github.com/tokengate/tokengate/internal/session"
	"github.com/tokengate/tokengate/internal/store"
	"github.com/tokengate/tokengate/internal/tier"
	"github.com/tokengate/tokengate/internal/util"
)

// Response type constants for the authorize step.
const (
	ResponseTypeCode    = "code"
	ResponseTypeToken   = "token"
	ResponseTypeIDToken = "id_token"
)

// AuthorizeRequest carries the query parameters of an authorize call plus
// the subject resolved from the login session (empty when unauthenticated).
type AuthorizeRequest struct {
	ClientID            string
	ResponseType        string
	RedirectURI         string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
	SubjectID           string
	SessionID           string
}

// AuthorizeOutcome discriminates the three possible authorize results.
type AuthorizeOutcome int

const (
	// OutcomeRedirect carries a redirect URL with the issued artifact.
	OutcomeRedirect AuthorizeOutcome = iota
	// OutcomeAuthenticationRequired carries the login entry point; no
	// protocol error is produced for an unauthenticated user.
	OutcomeAuthenticationRequired
	// OutcomeError carries a protocol error from the OAuth2 vocabulary.
	OutcomeError
)

// AuthorizeResult is the structured outcome of an authorize call. Expected
// conditions never surface as raised errors.
type AuthorizeResult struct {
	Outcome     AuthorizeOutcome
	RedirectURL string
	LoginURL    string
	Err         error
}

// AuthorizationService implements the authorize step of the issuance
// engine: request validation in protocol order and artifact minting per
// response type.
type AuthorizationService struct {
	store      *store.Store
	config     *config.Config
	tokens     *TokenService
	tiers      tier.Resolver
	sessions   session.Validator
	metrics    metrics.Recorder
	responders map[string]bool
}

func NewAuthorizationService(
	s *store.Store,
	cfg *config.Config,
	tokens *TokenService,
	tiers tier.Resolver,
	sessions session.Validator,
	m metrics.Recorder,
) *AuthorizationService {
	return &AuthorizationService{
		store:    s,
		config:   cfg,
		tokens:   tokens,
		tiers:    tiers,
		sessions: sessions,
		metrics:  m,
		// Closed set of primitive response types this server can answer.
		responders: map[string]bool{
			ResponseTypeCode:    true,
			ResponseTypeToken:   true,
			ResponseTypeIDToken: true,
		},
	}
}

// Authorize validates the request and mints the artifact for its response
// type. Validation order is fixed; the first failure determines the error
// code.
func (s *AuthorizationService) Authorize(
	ctx context.Context,
	req AuthorizeRequest,
) *AuthorizeResult {
	client, err := s.store.GetClient(req.ClientID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			s.metrics.RecordAuthorizeRequest("invalid_client")
			return protocolError(fmt.Errorf("%w: unknown client", ErrInvalidClient))
		}
		return protocolError(err)
	}
	if !client.IsActive {
		s.metrics.RecordAuthorizeRequest("invalid_client")
		return protocolError(fmt.Errorf("%w: client is deactivated", ErrInvalidClient))
	}

	// Exact match against the registered set; prefix matching would allow
	// open-redirect style code leaks.
	if !client.HasRedirectURI(req.RedirectURI) {
		s.metrics.RecordAuthorizeRequest("invalid_redirect")
		return protocolError(fmt.Errorf("%w: redirect_uri is not registered", ErrInvalidRequest))
	}

	if !s.supportedResponseType(req.ResponseType) || !client.HasResponseType(req.ResponseType) {
		s.metrics.RecordAuthorizeRequest("error")
		return protocolError(fmt.Errorf(
			"%w: %q", ErrUnsupportedResponseType, req.ResponseType,
		))
	}

	if !scopeSubset(req.Scope, client.Scopes) {
		s.metrics.RecordAuthorizeRequest("error")
		return protocolError(fmt.Errorf("%w: requested scope exceeds registration", ErrInvalidScope))
	}

	// An ID token can only be issued under the openid scope.
	if requestsIDToken(req.ResponseType) && !hasScope(req.Scope, "openid") {
		s.metrics.RecordAuthorizeRequest("error")
		return protocolError(fmt.Errorf(
			"%w: response_type id_token requires the openid scope", ErrInvalidScope,
		))
	}

	if req.CodeChallenge != "" && !pkce.IsSupportedMethod(req.CodeChallengeMethod) {
		s.metrics.RecordAuthorizeRequest("error")
		return protocolError(fmt.Errorf(
			"%w: unsupported code_challenge_method %q", ErrInvalidRequest, req.CodeChallengeMethod,
		))
	}
	if s.config.PKCERequired && req.ResponseType == ResponseTypeCode && req.CodeChallenge == "" {
		s.metrics.RecordAuthorizeRequest("error")
		return protocolError(fmt.Errorf("%w: code_challenge is required", ErrInvalidRequest))
	}

	// An absent subject is not a protocol error; the user goes to login.
	if req.SubjectID == "" {
		s.metrics.RecordAuthorizeRequest("unauthenticated")
		return &AuthorizeResult{
			Outcome:  OutcomeAuthenticationRequired,
			LoginURL: s.config.LoginURL,
			Err:      ErrAuthenticationRequired,
		}
	}

	// The session behind the subject must still be live before anything is
	// minted. A dead session is treated exactly like no session.
	live, err := s.sessions.Validate(ctx, req.SessionID)
	if err != nil {
		return protocolError(fmt.Errorf("failed to validate session: %w", err))
	}
	if !live {
		s.metrics.RecordAuthorizeRequest("unauthenticated")
		return &AuthorizeResult{
			Outcome:  OutcomeAuthenticationRequired,
			LoginURL: s.config.LoginURL,
			Err:      ErrAuthenticationRequired,
		}
	}

	result := s.respond(ctx, client, req)
	if result.Outcome == OutcomeRedirect {
		s.metrics.RecordAuthorizeRequest("success")
	}
	return result
}

// supportedResponseType checks a possibly compound response_type ("id_token
// token") against the server's closed set.
func (s *AuthorizationService) supportedResponseType(responseType string) bool {
	fields := strings.Fields(responseType)
	if len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if !s.responders[f] {
			return false
		}
	}
	return true
}

// requestsIDToken reports whether a possibly compound response_type asks
// for an ID token.
func requestsIDToken(responseType string) bool {
	for _, f := range strings.Fields(responseType) {
		if f == ResponseTypeIDToken {
			return true
		}
	}
	return false
}

// respond mints the artifact for the validated request. The code flow
// redirects with query parameters; implicit flows return secrets in the
// URL fragment, a legacy pattern kept for compatibility only.
func (s *AuthorizationService) respond(
	ctx context.Context,
	client *models.Client,
	req AuthorizeRequest,
) *AuthorizeResult {
	if req.ResponseType == ResponseTypeCode {
		return s.respondWithCode(client, req)
	}
	return s.respondWithFragment(ctx, client, req)
}

func (s *AuthorizationService) respondWithCode(
	client *models.Client,
	req AuthorizeRequest,
) *AuthorizeResult {
	plainCode, err := util.CryptoRandomHex(32)
	if err != nil {
		s.metrics.RecordAuthorizationCodeIssued(false)
		return protocolError(fmt.Errorf("failed to generate authorization code: %w", err))
	}

	code := &models.AuthorizationCode{
		UUID:                uuid.New().String(),
		CodeHash:            util.SHA256Hex(plainCode),
		CodePrefix:          plainCode[:8],
		ClientID:            client.ClientID,
		SubjectID:           req.SubjectID,
		SessionID:           req.SessionID,
		RedirectURI:         req.RedirectURI,
		Scopes:              req.Scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		Nonce:               req.Nonce,
		ExpiresAt:           time.Now().Add(s.config.AuthCodeExpiration),
	}
	if err := s.store.CreateAuthorizationCode(code); err != nil {
		s.metrics.RecordAuthorizationCodeIssued(false)
		return protocolError(fmt.Errorf("failed to store authorization code: %w", err))
	}
	s.metrics.RecordAuthorizationCodeIssued(true)
	log.Printf("[Authorize] Issued code %s... for client %s", code.CodePrefix, client.ClientID)

	params := url.Values{}
	params.Set("code", plainCode)
	if req.State != "" {
		params.Set("state", req.State)
	}
	return &AuthorizeResult{
		Outcome:     OutcomeRedirect,
		RedirectURL: req.RedirectURI + "?" + params.Encode(),
	}
}

func (s *AuthorizationService) respondWithFragment(
	ctx context.Context,
	client *models.Client,
	req AuthorizeRequest,
) *AuthorizeResult {
	fields := strings.Fields(req.ResponseType)
	wantToken := false
	wantIDToken := false
	for _, f := range fields {
		switch f {
		case ResponseTypeToken:
			wantToken = true
		case ResponseTypeIDToken:
			wantIDToken = true
		}
	}

	params := url.Values{}

	if wantToken {
		resp, err := s.tokens.mintTokens(ctx, mintInput{
			Client:    client,
			SubjectID: req.SubjectID,
			SessionID: req.SessionID,
			Scopes:    req.Scope,
			GrantType: GrantImplicit,
			Nonce:     req.Nonce,
			TierLevel: s.tiers.Resolve(ctx, req.SubjectID),
			// Implicit never mints refresh tokens (RFC 6749 §4.2.2).
			WithIDToken: wantIDToken && hasScope(req.Scope, "openid"),
		})
		if err != nil {
			return protocolError(err)
		}
		params.Set("access_token", resp.AccessToken)
		params.Set("token_type", resp.TokenType)
		params.Set("expires_in", strconv.FormatInt(resp.ExpiresIn, 10))
		if resp.IDToken != "" {
			params.Set("id_token", resp.IDToken)
		}
	} else if wantIDToken {
		idToken, err := s.tokens.buildIDToken(ctx, client, req.SubjectID, req.Nonce)
		if err != nil {
			return protocolError(err)
		}
		if err := s.store.CreateIDToken(idToken); err != nil {
			return protocolError(err)
		}
		params.Set("id_token", idToken.RawToken)
	}

	if req.State != "" {
		params.Set("state", req.State)
	}
	return &AuthorizeResult{
		Outcome:     OutcomeRedirect,
		RedirectURL: req.RedirectURI + "#" + params.Encode(),
	}
}

func protocolError(err error) *AuthorizeResult {
	return &AuthorizeResult{Outcome: OutcomeError, Err: err}
}
