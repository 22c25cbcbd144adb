package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/auth"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/models"
)

// Redis key layout. Connectors live under individual keys so credential
// updates can use WATCH for per-connector compare-and-swap.
const (
	redisFlowHashPrefix      = "flows:"      // flows:{accountID} -> hash flowID -> json
	redisConnectorKeyPrefix  = "connector:"  // connector:{accountID}:{connectorID} -> json
	redisConnectorSetPrefix  = "connectors:" // connectors:{accountID} -> set of connectorIDs
	redisOAuth2ConnectorsSet = "connectors:oauth2"
	redisExecutionKeyPrefix  = "execution:"  // execution:{id} -> json
	redisExecutionSetPrefix  = "executions:" // executions:{accountID} -> set of execution ids
	redisNodeResultsHash     = "node_results"
	redisAccountKeyPrefix    = "account:" // account:{id} -> json
	redisAccountsByUsername  = "accounts:by_username"
	redisAccountsByToken     = "accounts:by_token"
)

// RedisProvider implements the Provider interface on Redis
type RedisProvider struct {
	client *redis.Client
}

// RedisProviderConfig contains configuration for the Redis provider
type RedisProviderConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisProvider creates a new Redis storage provider
func NewRedisProvider(config RedisProviderConfig) *RedisProvider {
	return &RedisProvider{
		client: redis.NewClient(&redis.Options{
			Addr:     config.Addr,
			Password: config.Password,
			DB:       config.DB,
		}),
	}
}

// Initialize verifies the connection
func (p *RedisProvider) Initialize() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return nil
}

// Close cleans up resources
func (p *RedisProvider) Close() error { return p.client.Close() }

// FlowStore returns the store for flow definitions
func (p *RedisProvider) FlowStore() FlowStore { return &redisFlowStore{client: p.client} }

// ConnectorStore returns the store for connectors
func (p *RedisProvider) ConnectorStore() ConnectorStore { return &redisConnectorStore{client: p.client} }

// ExecutionStore returns the store for execution data
func (p *RedisProvider) ExecutionStore() ExecutionStore { return &redisExecutionStore{client: p.client} }

// AccountStore returns the store for accounts
func (p *RedisProvider) AccountStore() AccountStore { return &redisAccountStore{client: p.client} }

type redisFlowStore struct {
	client *redis.Client
}

func (s *redisFlowStore) SaveFlow(flow models.Flow) error {
	ctx := context.Background()
	flow.UpdatedAt = time.Now()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = flow.UpdatedAt
	}
	data, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("failed to marshal flow: %w", err)
	}
	return s.client.HSet(ctx, redisFlowHashPrefix+flow.AccountID, flow.ID, data).Err()
}

func (s *redisFlowStore) GetFlow(accountID, flowID string) (models.Flow, error) {
	ctx := context.Background()
	data, err := s.client.HGet(ctx, redisFlowHashPrefix+accountID, flowID).Bytes()
	if err == redis.Nil {
		return models.Flow{}, ErrFlowNotFound
	}
	if err != nil {
		return models.Flow{}, err
	}
	var flow models.Flow
	if err := json.Unmarshal(data, &flow); err != nil {
		return models.Flow{}, fmt.Errorf("failed to unmarshal flow: %w", err)
	}
	return flow, nil
}

func (s *redisFlowStore) ListFlows(accountID string) ([]models.Flow, error) {
	ctx := context.Background()
	values, err := s.client.HGetAll(ctx, redisFlowHashPrefix+accountID).Result()
	if err != nil {
		return nil, err
	}
	flows := make([]models.Flow, 0, len(values))
	for _, data := range values {
		var flow models.Flow
		if err := json.Unmarshal([]byte(data), &flow); err != nil {
			return nil, fmt.Errorf("failed to unmarshal flow: %w", err)
		}
		flows = append(flows, flow)
	}
	return flows, nil
}

func (s *redisFlowStore) DeleteFlow(accountID, flowID string) error {
	ctx := context.Background()
	removed, err := s.client.HDel(ctx, redisFlowHashPrefix+accountID, flowID).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return ErrFlowNotFound
	}
	return nil
}

type redisConnectorStore struct {
	client *redis.Client
}

func connectorKey(accountID, connectorID string) string {
	return redisConnectorKeyPrefix + accountID + ":" + connectorID
}

func (s *redisConnectorStore) SaveConnector(connector models.Connector) error {
	ctx := context.Background()
	connector.UpdatedAt = time.Now()
	if connector.CreatedAt.IsZero() {
		connector.CreatedAt = connector.UpdatedAt
	}
	data, err := json.Marshal(connector)
	if err != nil {
		return fmt.Errorf("failed to marshal connector: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, connectorKey(connector.AccountID, connector.ID), data, 0)
	pipe.SAdd(ctx, redisConnectorSetPrefix+connector.AccountID, connector.ID)
	if connector.AuthType == models.AuthTypeOAuth2 {
		pipe.SAdd(ctx, redisOAuth2ConnectorsSet, connector.AccountID+":"+connector.ID)
	} else {
		pipe.SRem(ctx, redisOAuth2ConnectorsSet, connector.AccountID+":"+connector.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisConnectorStore) GetConnector(accountID, connectorID string) (models.Connector, error) {
	ctx := context.Background()
	data, err := s.client.Get(ctx, connectorKey(accountID, connectorID)).Bytes()
	if err == redis.Nil {
		return models.Connector{}, ErrConnectorNotFound
	}
	if err != nil {
		return models.Connector{}, err
	}
	var connector models.Connector
	if err := json.Unmarshal(data, &connector); err != nil {
		return models.Connector{}, fmt.Errorf("failed to unmarshal connector: %w", err)
	}
	return connector, nil
}

func (s *redisConnectorStore) ListConnectors(accountID string) ([]models.Connector, error) {
	ctx := context.Background()
	ids, err := s.client.SMembers(ctx, redisConnectorSetPrefix+accountID).Result()
	if err != nil {
		return nil, err
	}
	connectors := make([]models.Connector, 0, len(ids))
	for _, id := range ids {
		connector, err := s.GetConnector(accountID, id)
		if err == ErrConnectorNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		connectors = append(connectors, connector)
	}
	return connectors, nil
}

func (s *redisConnectorStore) DeleteConnector(accountID, connectorID string) error {
	ctx := context.Background()
	removed, err := s.client.Del(ctx, connectorKey(accountID, connectorID)).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return ErrConnectorNotFound
	}
	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, redisConnectorSetPrefix+accountID, connectorID)
	pipe.SRem(ctx, redisOAuth2ConnectorsSet, accountID+":"+connectorID)
	_, err = pipe.Exec(ctx)
	return err
}

// UpdateConnectorAuth uses WATCH so concurrent writers retry on the updated
// value instead of clobbering each other.
func (s *redisConnectorStore) UpdateConnectorAuth(accountID, connectorID string, authConfig models.AuthConfig) error {
	ctx := context.Background()
	key := connectorKey(accountID, connectorID)

	update := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrConnectorNotFound
		}
		if err != nil {
			return err
		}
		var connector models.Connector
		if err := json.Unmarshal(data, &connector); err != nil {
			return fmt.Errorf("failed to unmarshal connector: %w", err)
		}
		connector.Auth = authConfig
		connector.UpdatedAt = time.Now()
		updated, err := json.Marshal(connector)
		if err != nil {
			return fmt.Errorf("failed to marshal connector: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < 5; attempt++ {
		err := s.client.Watch(ctx, update, key)
		if err != redis.TxFailedErr {
			return err
		}
	}
	return fmt.Errorf("failed to update connector auth after retries")
}

func (s *redisConnectorStore) ListOAuth2Connectors() ([]models.Connector, error) {
	ctx := context.Background()
	members, err := s.client.SMembers(ctx, redisOAuth2ConnectorsSet).Result()
	if err != nil {
		return nil, err
	}
	connectors := make([]models.Connector, 0, len(members))
	for _, member := range members {
		idx := indexOfColon(member)
		if idx <= 0 {
			continue
		}
		accountID, connectorID := member[:idx], member[idx+1:]
		connector, err := s.GetConnector(accountID, connectorID)
		if err == ErrConnectorNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		connectors = append(connectors, connector)
	}
	return connectors, nil
}

func indexOfColon(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return i
		}
	}
	return -1
}

type redisExecutionStore struct {
	client *redis.Client
}

func (s *redisExecutionStore) SaveExecution(execution models.ExecutionStatus) error {
	ctx := context.Background()
	data, err := json.Marshal(execution)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisExecutionKeyPrefix+execution.ID, data, 0)
	pipe.SAdd(ctx, redisExecutionSetPrefix+execution.AccountID, execution.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisExecutionStore) GetExecution(executionID string) (models.ExecutionStatus, error) {
	ctx := context.Background()
	data, err := s.client.Get(ctx, redisExecutionKeyPrefix+executionID).Bytes()
	if err == redis.Nil {
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

func (s *redisExecutionStore) ListExecutions(accountID string) ([]models.ExecutionStatus, error) {
	ctx := context.Background()
	ids, err := s.client.SMembers(ctx, redisExecutionSetPrefix+accountID).Result()
	if err != nil {
		return nil, err
	}
	executions := make([]models.ExecutionStatus, 0, len(ids))
	for _, id := range ids {
		execution, err := s.GetExecution(id)
		if err == ErrExecutionNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		executions = append(executions, execution)
	}
	return executions, nil
}

func (s *redisExecutionStore) SaveLastResult(nodeID string, result interface{}) error {
	ctx := context.Background()
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	return s.client.HSet(ctx, redisNodeResultsHash, nodeID, data).Err()
}

func (s *redisExecutionStore) GetLastResult(nodeID string) (interface{}, error) {
	ctx := context.Background()
	data, err := s.client.HGet(ctx, redisNodeResultsHash, nodeID).Bytes()
	if err == redis.Nil {
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

type redisAccountStore struct {
	client *redis.Client
}

func (s *redisAccountStore) SaveAccount(account auth.Account) error {
	ctx := context.Background()
	data, err := json.Marshal(account)
	if err != nil {
		return fmt.Errorf("failed to marshal account: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, redisAccountKeyPrefix+account.ID, data, 0)
	pipe.HSet(ctx, redisAccountsByUsername, account.Username, account.ID)
	if account.APIToken != "" {
		pipe.HSet(ctx, redisAccountsByToken, account.APIToken, account.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisAccountStore) GetAccount(accountID string) (auth.Account, error) {
	ctx := context.Background()
	data, err := s.client.Get(ctx, redisAccountKeyPrefix+accountID).Bytes()
	if err == redis.Nil {
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

func (s *redisAccountStore) GetAccountByUsername(username string) (auth.Account, error) {
	ctx := context.Background()
	accountID, err := s.client.HGet(ctx, redisAccountsByUsername, username).Result()
	if err == redis.Nil {
		return auth.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return auth.Account{}, err
	}
	return s.GetAccount(accountID)
}

func (s *redisAccountStore) GetAccountByToken(token string) (auth.Account, error) {
	ctx := context.Background()
	accountID, err := s.client.HGet(ctx, redisAccountsByToken, token).Result()
	if err == redis.Nil {
		return auth.Account{}, ErrAccountNotFound
	}
	if err != nil {
		return auth.Account{}, err
	}
	return s.GetAccount(accountID)
}

func (s *redisAccountStore) DeleteAccount(accountID string) error {
	ctx := context.Background()
	account, err := s.GetAccount(accountID)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, redisAccountKeyPrefix+accountID)
	pipe.HDel(ctx, redisAccountsByUsername, account.Username)
	if account.APIToken != "" {
		pipe.HDel(ctx, redisAccountsByToken, account.APIToken)
	}
	_, err = pipe.Exec(ctx)
	return err
}
