package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	jose "github.com/go-jose/go-jose/v4"

	retry "github.com/appleboy/go-httpretry"
)

// HTTPSigner delegates signing and verification to an external signer
// service over HTTP. The service owns the key material; JWKS is fetched
// from the service and cached until it changes.
type HTTPSigner struct {
	baseURL     string
	retryClient *retry.Client
}

// NewHTTPSigner creates a signer backed by the HTTP API at baseURL.
func NewHTTPSigner(baseURL string, retryClient *retry.Client) *HTTPSigner {
	return &HTTPSigner{
		baseURL:     baseURL,
		retryClient: retryClient,
	}
}

type apiSignRequest struct {
	Claims    map[string]any `json:"claims"`
	ExpiresIn int64          `json:"expires_in"` // seconds
}

type apiSignResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Message string `json:"message,omitempty"`
}

type apiVerifyRequest struct {
	Token string `json:"token"`
}

type apiVerifyResponse struct {
	Valid     bool           `json:"valid"`
	Subject   string         `json:"sub"`
	ClientID  string         `json:"client_id"`
	Scope     string         `json:"scope"`
	ExpiresAt int64          `json:"exp"`
	Claims    map[string]any `json:"claims,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// doPostRequest is a helper function to perform POST requests with JSON body
func (s *HTTPSigner) doPostRequest(
	ctx context.Context,
	endpoint string,
	reqBody any,
) ([]byte, error) {
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := s.retryClient.Post(
		ctx,
		s.baseURL+endpoint,
		retry.WithBody("application/json", bytes.NewBuffer(jsonData)),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignerConnection, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response", ErrSignerInvalidResp)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return body, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return body, nil
}

// Sign requests a signed token from the remote signer.
func (s *HTTPSigner) Sign(
	ctx context.Context,
	claims map[string]any,
	expiry time.Duration,
) (string, error) {
	body, err := s.doPostRequest(ctx, "/sign", apiSignRequest{
		Claims:    claims,
		ExpiresIn: int64(expiry.Seconds()),
	})
	if err != nil {
		return "", err
	}

	var apiResp apiSignResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSignerInvalidResp, err)
	}
	if !apiResp.Success || apiResp.Token == "" {
		return "", fmt.Errorf("%w: %s", ErrTokenGeneration, apiResp.Message)
	}
	return apiResp.Token, nil
}

// Verify validates a token via the remote signer.
func (s *HTTPSigner) Verify(ctx context.Context, tokenString string) (*Verification, error) {
	body, err := s.doPostRequest(ctx, "/verify", apiVerifyRequest{Token: tokenString})
	if err != nil {
		// A response body alongside the error means the call reached the
		// server and the remote API rejected the token (e.g. a 4xx status);
		// treat that as invalid rather than a transport failure.
		if body != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err.Error())
		}
		return nil, err
	}

	var apiResp apiVerifyResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignerInvalidResp, err)
	}
	if !apiResp.Valid {
		return nil, ErrInvalidToken
	}

	var expiresAt time.Time
	if apiResp.ExpiresAt > 0 {
		expiresAt = time.Unix(apiResp.ExpiresAt, 0)
		if time.Now().After(expiresAt) {
			return nil, ErrExpiredToken
		}
	}

	return &Verification{
		SubjectID: apiResp.Subject,
		ClientID:  apiResp.ClientID,
		Scopes:    apiResp.Scope,
		ExpiresAt: expiresAt,
		Claims:    apiResp.Claims,
	}, nil
}

// PublicKeys fetches the JWKS from the remote signer.
func (s *HTTPSigner) PublicKeys(ctx context.Context) (*jose.JSONWebKeySet, error) {
	resp, err := s.retryClient.Get(ctx, s.baseURL+"/keys")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignerConnection, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response", ErrSignerInvalidResp)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrSignerInvalidResp, resp.StatusCode)
	}

	var keySet jose.JSONWebKeySet
	if err := json.Unmarshal(body, &keySet); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignerInvalidResp, err)
	}
	return &keySet, nil
}

// Name returns provider name for logging
func (s *HTTPSigner) Name() string {
	return "http_api"
}
