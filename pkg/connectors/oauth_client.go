package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/models"
)

// OAuthClient talks to OAuth2 token endpoints
type OAuthClient struct {
	client *http.Client
}

// NewOAuthClient creates a new OAuthClient
func NewOAuthClient() *OAuthClient {
	return &OAuthClient{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// TokenResponse is the relevant subset of a token endpoint response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// ClientCredentials performs a client_credentials grant
func (c *OAuthClient) ClientCredentials(ctx context.Context, auth models.AuthConfig) (TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	if auth.Scope != "" {
		form.Set("scope", auth.Scope)
	}
	return c.requestToken(ctx, auth, form)
}

// Refresh performs a refresh_token grant
func (c *OAuthClient) Refresh(ctx context.Context, auth models.AuthConfig) (TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", auth.RefreshToken)
	return c.requestToken(ctx, auth, form)
}

// requestToken posts a form to the token endpoint. Client credentials are
// sent both as HTTP Basic auth and as body params; providers differ on
// which of the two they accept.
func (c *OAuthClient) requestToken(ctx context.Context, auth models.AuthConfig, form url.Values) (TokenResponse, error) {
	if auth.TokenURL == "" {
		return TokenResponse{}, fmt.Errorf("token_url is required")
	}

	form.Set("client_id", auth.ClientID)
	form.Set("client_secret", auth.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, auth.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenResponse{}, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(url.QueryEscape(auth.ClientID), url.QueryEscape(auth.ClientSecret))

	resp, err := c.client.Do(req)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return TokenResponse{}, fmt.Errorf("failed to read token response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return TokenResponse{}, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var token TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return TokenResponse{}, fmt.Errorf("failed to parse token response: %w", err)
	}
	if token.AccessToken == "" {
		return TokenResponse{}, fmt.Errorf("token response missing access_token")
	}
	return token, nil
}
