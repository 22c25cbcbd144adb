// Package connectors authenticates outbound calls with stored connector
// credentials and keeps OAuth2 tokens alive in the background.
package connectors

import "fmt"

// AuthenticationError indicates missing or invalid connector credentials.
// Authentication is fail-closed: a node that hits this error must not fall
// back to an anonymous request.
type AuthenticationError struct {
	// ConnectorName of the failing connector
	ConnectorName string

	// Reason describes what was missing or invalid
	Reason string

	// AuthorizationRequired is set when the user has to complete an
	// interactive OAuth2 authorization before the connector is usable,
	// so callers can present a login prompt instead of a generic error.
	AuthorizationRequired bool
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed for connector %q: %s", e.ConnectorName, e.Reason)
}

// RefreshError indicates that an OAuth2 token refresh failed. It marks the
// connector as needing re-authorization but never halts the background scan.
type RefreshError struct {
	// ConnectorID of the connector whose refresh failed
	ConnectorID string

	// Err is the underlying failure
	Err error
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("token refresh failed for connector %q: %v", e.ConnectorID, e.Err)
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}
