package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/auth"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/models"
)

// PostgresProvider implements the Provider interface on PostgreSQL.
// Definitions are stored as JSONB documents keyed by owner and ID.
type PostgresProvider struct {
	db *sql.DB
}

// PostgresProviderConfig contains configuration for the PostgreSQL provider
type PostgresProviderConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewPostgresProvider creates a new PostgreSQL storage provider
func NewPostgresProvider(config PostgresProviderConfig) (*PostgresProvider, error) {
	if config.Port == 0 {
		config.Port = 5432
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Database, config.SSLMode,
	)
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}
	return &PostgresProvider{db: db}, nil
}

// Initialize creates the schema if it does not exist
func (p *PostgresProvider) Initialize() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS flows (
			account_id TEXT NOT NULL,
			id TEXT NOT NULL,
			definition JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (account_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS connectors (
			account_id TEXT NOT NULL,
			id TEXT NOT NULL,
			auth_type TEXT NOT NULL,
			definition JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (account_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			status TEXT NOT NULL,
			start_time TIMESTAMPTZ NOT NULL,
			data JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS executions_account_idx ON executions (account_id)`,
		`CREATE TABLE IF NOT EXISTS node_results (
			node_id TEXT PRIMARY KEY,
			result JSONB,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			api_token TEXT,
			data JSONB NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := p.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Close cleans up resources
func (p *PostgresProvider) Close() error { return p.db.Close() }

// FlowStore returns the store for flow definitions
func (p *PostgresProvider) FlowStore() FlowStore { return &postgresFlowStore{db: p.db} }

// ConnectorStore returns the store for connectors
func (p *PostgresProvider) ConnectorStore() ConnectorStore { return &postgresConnectorStore{db: p.db} }

// ExecutionStore returns the store for execution data
func (p *PostgresProvider) ExecutionStore() ExecutionStore { return &postgresExecutionStore{db: p.db} }

// AccountStore returns the store for accounts
func (p *PostgresProvider) AccountStore() AccountStore { return &postgresAccountStore{db: p.db} }

type postgresFlowStore struct {
	db *sql.DB
}

func (s *postgresFlowStore) SaveFlow(flow models.Flow) error {
	now := time.Now()
	flow.UpdatedAt = now
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}
	definition, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("failed to marshal flow: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO flows (account_id, id, definition, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id, id)
		DO UPDATE SET definition = $3, updated_at = $5`,
		flow.AccountID, flow.ID, definition, flow.CreatedAt, flow.UpdatedAt)
	return err
}

func (s *postgresFlowStore) GetFlow(accountID, flowID string) (models.Flow, error) {
	var definition []byte
	err := s.db.QueryRow(
		`SELECT definition FROM flows WHERE account_id = $1 AND id = $2`,
		accountID, flowID).Scan(&definition)
	if err == sql.ErrNoRows {
		return models.Flow{}, ErrFlowNotFound
	}
	if err != nil {
		return models.Flow{}, err
	}
	var flow models.Flow
	if err := json.Unmarshal(definition, &flow); err != nil {
		return models.Flow{}, fmt.Errorf("failed to unmarshal flow: %w", err)
	}
	return flow, nil
}

func (s *postgresFlowStore) ListFlows(accountID string) ([]models.Flow, error) {
	rows, err := s.db.Query(
		`SELECT definition FROM flows WHERE account_id = $1 ORDER BY id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flows []models.Flow
	for rows.Next() {
		var definition []byte
		if err := rows.Scan(&definition); err != nil {
			return nil, err
		}
		var flow models.Flow
		if err := json.Unmarshal(definition, &flow); err != nil {
			return nil, fmt.Errorf("failed to unmarshal flow: %w", err)
		}
		flows = append(flows, flow)
	}
	return flows, rows.Err()
}

func (s *postgresFlowStore) DeleteFlow(accountID, flowID string) error {
	result, err := s.db.Exec(
		`DELETE FROM flows WHERE account_id = $1 AND id = $2`, accountID, flowID)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrFlowNotFound
	}
	return nil
}

type postgresConnectorStore struct {
	db *sql.DB
}

func (s *postgresConnectorStore) SaveConnector(connector models.Connector) error {
	now := time.Now()
	connector.UpdatedAt = now
	if connector.CreatedAt.IsZero() {
		connector.CreatedAt = now
	}
	definition, err := json.Marshal(connector)
	if err != nil {
		return fmt.Errorf("failed to marshal connector: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO connectors (account_id, id, auth_type, definition, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id, id)
		DO UPDATE SET auth_type = $3, definition = $4, updated_at = $6`,
		connector.AccountID, connector.ID, string(connector.AuthType), definition,
		connector.CreatedAt, connector.UpdatedAt)
	return err
}

func (s *postgresConnectorStore) GetConnector(accountID, connectorID string) (models.Connector, error) {
	var definition []byte
	err := s.db.QueryRow(
		`SELECT definition FROM connectors WHERE account_id = $1 AND id = $2`,
		accountID, connectorID).Scan(&definition)
	if err == sql.ErrNoRows {
		return models.Connector{}, ErrConnectorNotFound
	}
	if err != nil {
		return models.Connector{}, err
	}
	var connector models.Connector
	if err := json.Unmarshal(definition, &connector); err != nil {
		return models.Connector{}, fmt.Errorf("failed to unmarshal connector: %w", err)
	}
	return connector, nil
}

func (s *postgresConnectorStore) ListConnectors(accountID string) ([]models.Connector, error) {
	rows, err := s.db.Query(
		`SELECT definition FROM connectors WHERE account_id = $1 ORDER BY id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConnectors(rows)
}

func (s *postgresConnectorStore) DeleteConnector(accountID, connectorID string) error {
	result, err := s.db.Exec(
		`DELETE FROM connectors WHERE account_id = $1 AND id = $2`, accountID, connectorID)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrConnectorNotFound
	}
	return nil
}

// UpdateConnectorAuth takes a row lock so concurrent credential writers are
// serialized per connector.
func (s *postgresConnectorStore) UpdateConnectorAuth(accountID, connectorID string, authConfig models.AuthConfig) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var definition []byte
	err = tx.QueryRow(
		`SELECT definition FROM connectors WHERE account_id = $1 AND id = $2 FOR UPDATE`,
		accountID, connectorID).Scan(&definition)
	if err == sql.ErrNoRows {
		return ErrConnectorNotFound
	}
	if err != nil {
		return err
	}

	var connector models.Connector
	if err := json.Unmarshal(definition, &connector); err != nil {
		return fmt.Errorf("failed to unmarshal connector: %w", err)
	}
	connector.Auth = authConfig
	connector.UpdatedAt = time.Now()
	updated, err := json.Marshal(connector)
	if err != nil {
		return fmt.Errorf("failed to marshal connector: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE connectors SET definition = $3, updated_at = $4 WHERE account_id = $1 AND id = $2`,
		accountID, connectorID, updated, connector.UpdatedAt); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *postgresConnectorStore) ListOAuth2Connectors() ([]models.Connector, error) {
	rows, err := s.db.Query(
		`SELECT definition FROM connectors WHERE auth_type = $1`, string(models.AuthTypeOAuth2))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConnectors(rows)
}

func scanConnectors(rows *sql.Rows) ([]models.Connector, error) {
	var connectors []models.Connector
	for rows.Next() {
		var definition []byte
		if err := rows.Scan(&definition); err != nil {
			return nil, err
		}
		var connector models.Connector
		if err := json.Unmarshal(definition, &connector); err != nil {
			return nil, fmt.Errorf("failed to unmarshal connector: %w", err)
		}
		connectors = append(connectors, connector)
	}
	return connectors, rows.Err()
}

type postgresExecutionStore struct {
	db *sql.DB
}

func (s *postgresExecutionStore) SaveExecution(execution models.ExecutionStatus) error {
	data, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO executions (id, account_id, status, start_time, data)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET status = $3, data = $5`,
		execution.ID, execution.AccountID, string(execution.Status), execution.StartTime, data)
	return err
}

func (s *postgresExecutionStore) GetExecution(executionID string) (models.ExecutionStatus, error) {
	var data []byte
	err := s.db.QueryRow(
		`SELECT data FROM executions WHERE id = $1`, executionID).Scan(&data)
	if err == sql.ErrNoRows {
		return models.ExecutionStatus{}, ErrExecutionNotFound
	}
	if err != nil {
		return models.ExecutionStatus{}, err
	}
	var execution models.ExecutionStatus
	if err := json.Unmarshal(data, &execution); err != nil {
		return models.ExecutionStatus{}, fmt.Errorf("failed to unmarshal execution: %w", err)
	}
	return execution, nil
}

func (s *postgresExecutionStore) ListExecutions(accountID string) ([]models.ExecutionStatus, error) {
	rows, err := s.db.Query(
		`SELECT data FROM executions WHERE account_id = $1 ORDER BY start_time DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []models.ExecutionStatus
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var execution models.ExecutionStatus
		if err := json.Unmarshal(data, &execution); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
		}
		executions = append(executions, execution)
	}
	return executions, rows.Err()
}

func (s *postgresExecutionStore) SaveLastResult(nodeID string, result interface{}) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO node_results (node_id, result, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (node_id) DO UPDATE SET result = $2, updated_at = $3`,
		nodeID, data, time.Now())
	return err
}

func (s *postgresExecutionStore) GetLastResult(nodeID string) (interface{}, error) {
	var data []byte
	err := s.db.QueryRow(
		`SELECT result FROM node_results WHERE node_id = $1`, nodeID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, err
	}
	var result interface{}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return result, nil
}

type postgresAccountStore struct {
	db *sql.DB
}

func (s *postgresAccountStore) SaveAccount(account auth.Account) error {
	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO accounts (id, username, api_token, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET username = $2, api_token = $3, data = $4`,
		account.ID, account.Username, account.APIToken, data)
	return err
}

func (s *postgresAccountStore) GetAccount(accountID string) (auth.Account, error) {
	return s.getAccount(`SELECT data FROM accounts WHERE id = $1`, accountID)
}

func (s *postgresAccountStore) GetAccountByUsername(username string) (auth.Account, error) {
	return s.getAccount(`SELECT data FROM accounts WHERE username = $1`, username)
}

func (s *postgresAccountStore) GetAccountByToken(token string) (auth.Account, error) {
	if token == "" {
		return auth.Account{}, ErrAccountNotFound
	}
	return s.getAccount(`SELECT data FROM accounts WHERE api_token = $1`, token)
}

func (s *postgresAccountStore) getAccount(query string, arg interface{}) (auth.Account, error) {
	var data []byte
	err := s.db.QueryRow(query, arg).Scan(&data)
	if err == sql.ErrNoRows {
		return auth.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return auth.Account{}, err
	}
	var account auth.Account
	if err := json.Unmarshal(data, &account); err != nil {
		return auth.Account{}, fmt.Errorf("failed to unmarshal account: %w", err)
	}
	return account, nil
}

func (s *postgresAccountStore) DeleteAccount(accountID string) error {
	result, err := s.db.Exec(`DELETE FROM accounts WHERE id = $1`, accountID)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrAccountNotFound
	}
	return nil
}
