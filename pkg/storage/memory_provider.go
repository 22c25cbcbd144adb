package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/auth"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/models"
)

// MemoryProvider implements the Provider interface with in-memory maps.
// Used for tests and single-process setups.
type MemoryProvider struct {
	flows      *MemoryFlowStore
	connectors *MemoryConnectorStore
	executions *MemoryExecutionStore
	accounts   *MemoryAccountStore
}

// NewMemoryProvider creates a new in-memory storage provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		flows:      NewMemoryFlowStore(),
		connectors: NewMemoryConnectorStore(),
		executions: NewMemoryExecutionStore(),
		accounts:   NewMemoryAccountStore(),
	}
}

// Initialize sets up the storage backend
func (p *MemoryProvider) Initialize() error { return nil }

// Close cleans up resources
func (p *MemoryProvider) Close() error { return nil }

// FlowStore returns the store for flow definitions
func (p *MemoryProvider) FlowStore() FlowStore { return p.flows }

// ConnectorStore returns the store for connectors
func (p *MemoryProvider) ConnectorStore() ConnectorStore { return p.connectors }

// ExecutionStore returns the store for execution data
func (p *MemoryProvider) ExecutionStore() ExecutionStore { return p.executions }

// AccountStore returns the store for accounts
func (p *MemoryProvider) AccountStore() AccountStore { return p.accounts }

// MemoryFlowStore implements FlowStore with a nested map
type MemoryFlowStore struct {
	flows map[string]map[string]models.Flow // accountID -> flowID -> flow
	mu    sync.RWMutex
}

// NewMemoryFlowStore creates a new in-memory flow store
func NewMemoryFlowStore() *MemoryFlowStore {
	return &MemoryFlowStore{flows: make(map[string]map[string]models.Flow)}
}

// SaveFlow persists a flow definition
func (s *MemoryFlowStore) SaveFlow(flow models.Flow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flows[flow.AccountID] == nil {
		s.flows[flow.AccountID] = make(map[string]models.Flow)
	}
	flow.UpdatedAt = time.Now()
	if existing, ok := s.flows[flow.AccountID][flow.ID]; ok {
		flow.CreatedAt = existing.CreatedAt
	} else if flow.CreatedAt.IsZero() {
		flow.CreatedAt = flow.UpdatedAt
	}
	s.flows[flow.AccountID][flow.ID] = flow
	return nil
}

// GetFlow retrieves a flow definition
func (s *MemoryFlowStore) GetFlow(accountID, flowID string) (models.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flow, ok := s.flows[accountID][flowID]
	if !ok {
		return models.Flow{}, ErrFlowNotFound
	}
	return flow, nil
}

// ListFlows returns all flows for an account
func (s *MemoryFlowStore) ListFlows(accountID string) ([]models.Flow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	flows := make([]models.Flow, 0, len(s.flows[accountID]))
	for _, flow := range s.flows[accountID] {
		flows = append(flows, flow)
	}
	sort.Slice(flows, func(i, j int) bool { return flows[i].ID < flows[j].ID })
	return flows, nil
}

// DeleteFlow removes a flow definition
func (s *MemoryFlowStore) DeleteFlow(accountID, flowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.flows[accountID][flowID]; !ok {
		return ErrFlowNotFound
	}
	delete(s.flows[accountID], flowID)
	return nil
}

// MemoryConnectorStore implements ConnectorStore with a nested map
type MemoryConnectorStore struct {
	connectors map[string]map[string]models.Connector // accountID -> connectorID
	mu         sync.RWMutex
}

// NewMemoryConnectorStore creates a new in-memory connector store
func NewMemoryConnectorStore() *MemoryConnectorStore {
	return &MemoryConnectorStore{connectors: make(map[string]map[string]models.Connector)}
}

// SaveConnector persists a connector
func (s *MemoryConnectorStore) SaveConnector(connector models.Connector) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connectors[connector.AccountID] == nil {
		s.connectors[connector.AccountID] = make(map[string]models.Connector)
	}
	connector.UpdatedAt = time.Now()
	if existing, ok := s.connectors[connector.AccountID][connector.ID]; ok {
		connector.CreatedAt = existing.CreatedAt
	} else if connector.CreatedAt.IsZero() {
		connector.CreatedAt = connector.UpdatedAt
	}
	s.connectors[connector.AccountID][connector.ID] = connector
	return nil
}

// GetConnector retrieves a connector
func (s *MemoryConnectorStore) GetConnector(accountID, connectorID string) (models.Connector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	connector, ok := s.connectors[accountID][connectorID]
	if !ok {
		return models.Connector{}, ErrConnectorNotFound
	}
	return connector, nil
}

// ListConnectors returns all connectors for an account
func (s *MemoryConnectorStore) ListConnectors(accountID string) ([]models.Connector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	connectors := make([]models.Connector, 0, len(s.connectors[accountID]))
	for _, connector := range s.connectors[accountID] {
		connectors = append(connectors, connector)
	}
	sort.Slice(connectors, func(i, j int) bool { return connectors[i].ID < connectors[j].ID })
	return connectors, nil
}

// DeleteConnector removes a connector
func (s *MemoryConnectorStore) DeleteConnector(accountID, connectorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connectors[accountID][connectorID]; !ok {
		return ErrConnectorNotFound
	}
	delete(s.connectors[accountID], connectorID)
	return nil
}

// UpdateConnectorAuth replaces a connector's credentials
func (s *MemoryConnectorStore) UpdateConnectorAuth(accountID, connectorID string, auth models.AuthConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	connector, ok := s.connectors[accountID][connectorID]
	if !ok {
		return ErrConnectorNotFound
	}
	connector.Auth = auth
	connector.UpdatedAt = time.Now()
	s.connectors[accountID][connectorID] = connector
	return nil
}

// ListOAuth2Connectors returns every stored OAuth2 connector
func (s *MemoryConnectorStore) ListOAuth2Connectors() ([]models.Connector, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var connectors []models.Connector
	for _, byID := range s.connectors {
		for _, connector := range byID {
			if connector.AuthType == models.AuthTypeOAuth2 {
				connectors = append(connectors, connector)
			}
		}
	}
	sort.Slice(connectors, func(i, j int) bool { return connectors[i].ID < connectors[j].ID })
	return connectors, nil
}

// MemoryExecutionStore implements ExecutionStore with maps
type MemoryExecutionStore struct {
	executions  map[string]models.ExecutionStatus
	lastResults map[string]interface{}
	mu          sync.RWMutex
}

// NewMemoryExecutionStore creates a new in-memory execution store
func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{
		executions:  make(map[string]models.ExecutionStatus),
		lastResults: make(map[string]interface{}),
	}
}

// SaveExecution persists execution status
func (s *MemoryExecutionStore) SaveExecution(execution models.ExecutionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[execution.ID] = execution
	return nil
}

// GetExecution retrieves execution status
func (s *MemoryExecutionStore) GetExecution(executionID string) (models.ExecutionStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	execution, ok := s.executions[executionID]
	if !ok {
		return models.ExecutionStatus{}, ErrExecutionNotFound
	}
	return execution, nil
}

// ListExecutions returns all executions for an account
func (s *MemoryExecutionStore) ListExecutions(accountID string) ([]models.ExecutionStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var executions []models.ExecutionStatus
	for _, execution := range s.executions {
		if execution.AccountID == accountID {
			executions = append(executions, execution)
		}
	}
	sort.Slice(executions, func(i, j int) bool {
		return executions[i].StartTime.After(executions[j].StartTime)
	})
	return executions, nil
}

// SaveLastResult caches a node's most recent result
func (s *MemoryExecutionStore) SaveLastResult(nodeID string, result interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastResults[nodeID] = result
	return nil
}

// GetLastResult retrieves a node's cached result
func (s *MemoryExecutionStore) GetLastResult(nodeID string) (interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.lastResults[nodeID]
	if !ok {
		return nil, ErrResultNotFound
	}
	return result, nil
}

// MemoryAccountStore implements AccountStore with maps
type MemoryAccountStore struct {
	accounts map[string]auth.Account
	mu       sync.RWMutex
}

// NewMemoryAccountStore creates a new in-memory account store
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{accounts: make(map[string]auth.Account)}
}

// SaveAccount persists an account
func (s *MemoryAccountStore) SaveAccount(account auth.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[account.ID] = account
	return nil
}

// GetAccount retrieves an account by ID
func (s *MemoryAccountStore) GetAccount(accountID string) (auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[accountID]
	if !ok {
		return auth.Account{}, ErrAccountNotFound
	}
	return account, nil
}

// GetAccountByUsername retrieves an account by username
func (s *MemoryAccountStore) GetAccountByUsername(username string) (auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, account := range s.accounts {
		if account.Username == username {
			return account, nil
		}
	}
	return auth.Account{}, ErrAccountNotFound
}

// GetAccountByToken retrieves an account by API token
func (s *MemoryAccountStore) GetAccountByToken(token string) (auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, account := range s.accounts {
		if account.APIToken != "" && account.APIToken == token {
			return account, nil
		}
	}
	return auth.Account{}, ErrAccountNotFound
}

// DeleteAccount removes an account
func (s *MemoryAccountStore) DeleteAccount(accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; !ok {
		return ErrAccountNotFound
	}
	delete(s.accounts, accountID)
	return nil
}
