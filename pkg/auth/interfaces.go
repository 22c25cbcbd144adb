// Package auth provides authentication and authorization functionality.
package auth

import (
	"time"
)

// AccountService manages accounts and authentication
type AccountService interface {
	// Authenticate verifies credentials and returns an account ID
	Authenticate(username, password string) (string, error)

	// ValidateToken verifies a bearer token and returns an account ID
	ValidateToken(token string) (string, error)

	// CreateAccount creates a new account
	CreateAccount(username, password string) (string, error)

	// DeleteAccount removes an account
	DeleteAccount(accountID string) error

	// GetAccount retrieves account information
	GetAccount(accountID string) (Account, error)
}

// Account represents a tenant in the system
type Account struct {
	// ID of the account
	ID string `json:"id"`

	// Username for the account
	Username string `json:"username"`

	// PasswordHash is the hashed password (not exposed via API)
	PasswordHash string `json:"password_hash,omitempty"`

	// APIToken for authentication
	APIToken string `json:"api_token,omitempty"`

	// CreatedAt is when the account was created
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the account was last updated
	UpdatedAt time.Time `json:"updated_at"`
}
