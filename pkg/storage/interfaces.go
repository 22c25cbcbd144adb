// Package storage provides the persistence collaborator for flows,
// connectors, executions and accounts.
package storage

import (
	"errors"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/auth"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/models"
)

// Sentinel errors shared by every backend
var (
	ErrFlowNotFound      = errors.New("flow not found")
	ErrConnectorNotFound = errors.New("connector not found")
	ErrExecutionNotFound = errors.New("execution not found")
	ErrResultNotFound    = errors.New("result not found")
	ErrAccountNotFound   = errors.New("account not found")
)

// Provider bundles the per-entity stores of one persistence backend
type Provider interface {
	// Initialize sets up the storage backend
	Initialize() error

	// Close cleans up resources
	Close() error

	// FlowStore returns the store for flow definitions
	FlowStore() FlowStore

	// ConnectorStore returns the store for connectors
	ConnectorStore() ConnectorStore

	// ExecutionStore returns the store for execution data
	ExecutionStore() ExecutionStore

	// AccountStore returns the store for accounts
	AccountStore() AccountStore
}

// FlowStore manages flow definition persistence
type FlowStore interface {
	// SaveFlow persists a flow definition
	SaveFlow(flow models.Flow) error

	// GetFlow retrieves a flow definition
	GetFlow(accountID, flowID string) (models.Flow, error)

	// ListFlows returns all flows for an account
	ListFlows(accountID string) ([]models.Flow, error)

	// DeleteFlow removes a flow definition
	DeleteFlow(accountID, flowID string) error
}

// ConnectorStore manages connector persistence. Implementations must
// serialize UpdateConnectorAuth per connector so a background refresh and
// an execution-triggered refresh never both write stale data.
type ConnectorStore interface {
	// SaveConnector persists a connector
	SaveConnector(connector models.Connector) error

	// GetConnector retrieves a connector
	GetConnector(accountID, connectorID string) (models.Connector, error)

	// ListConnectors returns all connectors for an account
	ListConnectors(accountID string) ([]models.Connector, error)

	// DeleteConnector removes a connector
	DeleteConnector(accountID, connectorID string) error

	// UpdateConnectorAuth replaces a connector's credentials
	UpdateConnectorAuth(accountID, connectorID string, auth models.AuthConfig) error

	// ListOAuth2Connectors returns every stored OAuth2 connector across
	// all accounts, for the token lifecycle manager's scan
	ListOAuth2Connectors() ([]models.Connector, error)
}

// ExecutionStore manages execution data persistence
type ExecutionStore interface {
	// SaveExecution persists execution status (upsert)
	SaveExecution(execution models.ExecutionStatus) error

	// GetExecution retrieves execution status
	GetExecution(executionID string) (models.ExecutionStatus, error)

	// ListExecutions returns all executions for an account
	ListExecutions(accountID string) ([]models.ExecutionStatus, error)

	// SaveLastResult caches a node's most recent result for editor
	// suggestions
	SaveLastResult(nodeID string, result interface{}) error

	// GetLastResult retrieves a node's cached result
	GetLastResult(nodeID string) (interface{}, error)
}

// AccountStore manages account persistence
type AccountStore interface {
	// SaveAccount persists an account
	SaveAccount(account auth.Account) error

	// GetAccount retrieves an account by ID
	GetAccount(accountID string) (auth.Account, error)

	// GetAccountByUsername retrieves an account by username
	GetAccountByUsername(username string) (auth.Account, error)

	// GetAccountByToken retrieves an account by API token
	GetAccountByToken(token string) (auth.Account, error)

	// DeleteAccount removes an account
	DeleteAccount(accountID string) error
}
