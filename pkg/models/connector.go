package models

import (
	"fmt"
	"time"
)

// AuthType identifies how a connector authenticates outbound calls
type AuthType string

const (
	AuthTypeNone   AuthType = "none"
	AuthTypeBasic  AuthType = "basic"
	AuthTypeAPIKey AuthType = "apiKey"
	AuthTypeOAuth2 AuthType = "oauth2"
)

// OAuth2 grant variants
const (
	OAuth2AuthorizationCode = "authorization_code"
	OAuth2ClientCredentials = "client_credentials"
)

// API key locations
const (
	KeyLocationHeader = "header"
	KeyLocationQuery  = "query"
)

// DefaultAPIKeyHeader is used when an apiKey connector does not name its
// header
const DefaultAPIKeyHeader = "X-API-Key"

// Connector is a named, reusable bundle of base URL plus authentication
// configuration for calling an external API
type Connector struct {
	// ID of the connector
	ID string `json:"id"`

	// Name of the connector
	Name string `json:"name"`

	// AccountID is the owner of the connector
	AccountID string `json:"account_id,omitempty"`

	// BaseURL external calls are made against
	BaseURL string `json:"base_url,omitempty"`

	// AuthType selects the authentication scheme
	AuthType AuthType `json:"auth_type"`

	// Auth holds the credentials for AuthType
	Auth AuthConfig `json:"auth_config"`

	// Headers are custom headers merged into every request last, able to
	// override computed auth headers
	Headers map[string]string `json:"headers,omitempty"`

	// CreatedAt is when the connector was created
	CreatedAt time.Time `json:"created_at,omitempty"`

	// UpdatedAt is when the connector was last updated
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// AuthConfig holds the credentials appropriate to a connector's auth type.
// Only the fields for the active type are populated; Validate enforces the
// per-type requirements.
type AuthConfig struct {
	// Basic auth
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// API key auth
	APIKey      string `json:"api_key,omitempty"`
	KeyName     string `json:"key_name,omitempty"`
	KeyLocation string `json:"key_location,omitempty"`

	// OAuth2
	OAuth2Type     string    `json:"oauth2_type,omitempty"`
	ClientID       string    `json:"client_id,omitempty"`
	ClientSecret   string    `json:"client_secret,omitempty"`
	TokenURL       string    `json:"token_url,omitempty"`
	Scope          string    `json:"scope,omitempty"`
	AccessToken    string    `json:"access_token,omitempty"`
	RefreshToken   string    `json:"refresh_token,omitempty"`
	TokenExpiresAt time.Time `json:"token_expires_at,omitempty"`

	// Refresh bookkeeping, owned by the token lifecycle manager
	NeedsReauth      bool      `json:"needs_reauth,omitempty"`
	LastRefreshed    time.Time `json:"last_refreshed,omitempty"`
	LastRefreshError time.Time `json:"last_refresh_error,omitempty"`
}

// Validate checks that the credentials required by the given auth type are
// present. It does not verify them against the remote service.
func (a *AuthConfig) Validate(authType AuthType) error {
	switch authType {
	case AuthTypeNone:
		return nil
	case AuthTypeBasic:
		if a.Username == "" || a.Password == "" {
			return fmt.Errorf("basic auth requires username and password")
		}
		return nil
	case AuthTypeAPIKey:
		if a.APIKey == "" {
			return fmt.Errorf("apiKey auth requires an api_key")
		}
		return nil
	case AuthTypeOAuth2:
		switch a.OAuth2Type {
		case OAuth2ClientCredentials:
			if a.ClientID == "" || a.ClientSecret == "" || a.TokenURL == "" {
				return fmt.Errorf("client_credentials requires client_id, client_secret and token_url")
			}
		case OAuth2AuthorizationCode:
			if a.ClientID == "" || a.ClientSecret == "" {
				return fmt.Errorf("authorization_code requires client_id and client_secret")
			}
		default:
			return fmt.Errorf("unknown oauth2 type: %q", a.OAuth2Type)
		}
		return nil
	default:
		return fmt.Errorf("unknown auth type: %q", authType)
	}
}

// Refreshable reports whether the token lifecycle manager can refresh this
// connector's access token
func (a *AuthConfig) Refreshable() bool {
	return a.AccessToken != "" && a.RefreshToken != "" && a.TokenURL != ""
}
