package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/dynamodb/expression"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/auth"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/models"
)

// DynamoDBProvider implements the Provider interface using DynamoDB.
// Every table stores the record as a JSON document attribute next to its
// key attributes, so the schema never chases the Go structs.
type DynamoDBProvider struct {
	client      dynamodbiface.DynamoDBAPI
	tablePrefix string
}

// DynamoDBProviderConfig contains configuration for the DynamoDB provider
type DynamoDBProviderConfig struct {
	Region      string
	AccessKey   string
	SecretKey   string
	TablePrefix string
	Endpoint    string // Optional, for local DynamoDB
}

// NewDynamoDBProvider creates a new DynamoDB storage provider
func NewDynamoDBProvider(config DynamoDBProviderConfig) (*DynamoDBProvider, error) {
	awsConfig := &aws.Config{
		Region: aws.String(config.Region),
	}
	if config.AccessKey != "" && config.SecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, "")
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &DynamoDBProvider{
		client:      dynamodb.New(sess),
		tablePrefix: config.TablePrefix,
	}, nil
}

// NewDynamoDBProviderWithClient creates a provider with a custom client,
// primarily for tests
func NewDynamoDBProviderWithClient(client dynamodbiface.DynamoDBAPI, tablePrefix string) *DynamoDBProvider {
	return &DynamoDBProvider{client: client, tablePrefix: tablePrefix}
}

// Initialize creates the DynamoDB tables if they don't exist
func (p *DynamoDBProvider) Initialize() error {
	tables := []struct {
		name    string
		hashKey string
		sortKey string
	}{
		{"flows", "AccountID", "ID"},
		{"connectors", "AccountID", "ID"},
		{"executions", "ID", ""},
		{"node_results", "NodeID", ""},
		{"accounts", "ID", ""},
	}
	for _, t := range tables {
		if err := p.ensureTable(p.tablePrefix+t.name, t.hashKey, t.sortKey); err != nil {
			return fmt.Errorf("failed to initialize %s table: %w", t.name, err)
		}
	}
	return nil
}

func (p *DynamoDBProvider) ensureTable(name, hashKey, sortKey string) error {
	_, err := p.client.DescribeTable(&dynamodb.DescribeTableInput{TableName: aws.String(name)})
	if err == nil {
		return nil
	}
	aerr, ok := err.(awserr.Error)
	if !ok || aerr.Code() != dynamodb.ErrCodeResourceNotFoundException {
		return fmt.Errorf("failed to check if table exists: %w", err)
	}

	attrs := []*dynamodb.AttributeDefinition{
		{AttributeName: aws.String(hashKey), AttributeType: aws.String("S")},
	}
	schema := []*dynamodb.KeySchemaElement{
		{AttributeName: aws.String(hashKey), KeyType: aws.String("HASH")},
	}
	if sortKey != "" {
		attrs = append(attrs, &dynamodb.AttributeDefinition{
			AttributeName: aws.String(sortKey), AttributeType: aws.String("S"),
		})
		schema = append(schema, &dynamodb.KeySchemaElement{
			AttributeName: aws.String(sortKey), KeyType: aws.String("RANGE"),
		})
	}

	_, err = p.client.CreateTable(&dynamodb.CreateTableInput{
		TableName:            aws.String(name),
		AttributeDefinitions: attrs,
		KeySchema:            schema,
		BillingMode:          aws.String("PAY_PER_REQUEST"),
	})
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	if err := p.client.WaitUntilTableExists(&dynamodb.DescribeTableInput{
		TableName: aws.String(name),
	}); err != nil {
		return fmt.Errorf("failed to wait for table creation: %w", err)
	}
	return nil
}

// Close cleans up resources
func (p *DynamoDBProvider) Close() error { return nil }

// FlowStore returns the store for flow definitions
func (p *DynamoDBProvider) FlowStore() FlowStore {
	return &dynamoFlowStore{client: p.client, table: p.tablePrefix + "flows"}
}

// ConnectorStore returns the store for connectors
func (p *DynamoDBProvider) ConnectorStore() ConnectorStore {
	return &dynamoConnectorStore{client: p.client, table: p.tablePrefix + "connectors"}
}

// ExecutionStore returns the store for execution data
func (p *DynamoDBProvider) ExecutionStore() ExecutionStore {
	return &dynamoExecutionStore{
		client:       p.client,
		table:        p.tablePrefix + "executions",
		resultsTable: p.tablePrefix + "node_results",
	}
}

// AccountStore returns the store for accounts
func (p *DynamoDBProvider) AccountStore() AccountStore {
	return &dynamoAccountStore{client: p.client, table: p.tablePrefix + "accounts"}
}

func documentItem(keys map[string]*dynamodb.AttributeValue, record interface{}) (map[string]*dynamodb.AttributeValue, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	item := make(map[string]*dynamodb.AttributeValue, len(keys)+1)
	for k, v := range keys {
		item[k] = v
	}
	item["Document"] = &dynamodb.AttributeValue{S: aws.String(string(data))}
	return item, nil
}

func decodeDocument(item map[string]*dynamodb.AttributeValue, out interface{}) error {
	doc, ok := item["Document"]
	if !ok || doc.S == nil {
		return fmt.Errorf("item is missing document attribute")
	}
	if err := json.Unmarshal([]byte(*doc.S), out); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}

type dynamoFlowStore struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

func (s *dynamoFlowStore) SaveFlow(flow models.Flow) error {
	now := time.Now()
	flow.UpdatedAt = now
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}
	item, err := documentItem(map[string]*dynamodb.AttributeValue{
		"AccountID": {S: aws.String(flow.AccountID)},
		"ID":        {S: aws.String(flow.ID)},
	}, flow)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(&dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	return err
}

func (s *dynamoFlowStore) GetFlow(accountID, flowID string) (models.Flow, error) {
	result, err := s.client.GetItem(&dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]*dynamodb.AttributeValue{
			"AccountID": {S: aws.String(accountID)},
			"ID":        {S: aws.String(flowID)},
		},
	})
	if err != nil {
		return models.Flow{}, err
	}
	if result.Item == nil {
		return models.Flow{}, ErrFlowNotFound
	}
	var flow models.Flow
	if err := decodeDocument(result.Item, &flow); err != nil {
		return models.Flow{}, err
	}
	return flow, nil
}

func (s *dynamoFlowStore) ListFlows(accountID string) ([]models.Flow, error) {
	keyCond := expression.Key("AccountID").Equal(expression.Value(accountID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query expression: %w", err)
	}
	result, err := s.client.Query(&dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, err
	}
	flows := make([]models.Flow, 0, len(result.Items))
	for _, item := range result.Items {
		var flow models.Flow
		if err := decodeDocument(item, &flow); err != nil {
			return nil, err
		}
		flows = append(flows, flow)
	}
	return flows, nil
}

func (s *dynamoFlowStore) DeleteFlow(accountID, flowID string) error {
	if _, err := s.GetFlow(accountID, flowID); err != nil {
		return err
	}
	_, err := s.client.DeleteItem(&dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]*dynamodb.AttributeValue{
			"AccountID": {S: aws.String(accountID)},
			"ID":        {S: aws.String(flowID)},
		},
	})
	return err
}

type dynamoConnectorStore struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

func (s *dynamoConnectorStore) SaveConnector(connector models.Connector) error {
	now := time.Now()
	connector.UpdatedAt = now
	if connector.CreatedAt.IsZero() {
		connector.CreatedAt = now
	}
	item, err := documentItem(map[string]*dynamodb.AttributeValue{
		"AccountID": {S: aws.String(connector.AccountID)},
		"ID":        {S: aws.String(connector.ID)},
	}, connector)
	if err != nil {
		return err
	}
	item["AuthType"] = &dynamodb.AttributeValue{S: aws.String(string(connector.AuthType))}
	_, err = s.client.PutItem(&dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	return err
}

func (s *dynamoConnectorStore) GetConnector(accountID, connectorID string) (models.Connector, error) {
	result, err := s.client.GetItem(&dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]*dynamodb.AttributeValue{
			"AccountID": {S: aws.String(accountID)},
			"ID":        {S: aws.String(connectorID)},
		},
	})
	if err != nil {
		return models.Connector{}, err
	}
	if result.Item == nil {
		return models.Connector{}, ErrConnectorNotFound
	}
	var connector models.Connector
	if err := decodeDocument(result.Item, &connector); err != nil {
		return models.Connector{}, err
	}
	return connector, nil
}

func (s *dynamoConnectorStore) ListConnectors(accountID string) ([]models.Connector, error) {
	keyCond := expression.Key("AccountID").Equal(expression.Value(accountID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build query expression: %w", err)
	}
	result, err := s.client.Query(&dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, err
	}
	return decodeConnectors(result.Items)
}

func (s *dynamoConnectorStore) DeleteConnector(accountID, connectorID string) error {
	if _, err := s.GetConnector(accountID, connectorID); err != nil {
		return err
	}
	_, err := s.client.DeleteItem(&dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]*dynamodb.AttributeValue{
			"AccountID": {S: aws.String(accountID)},
			"ID":        {S: aws.String(connectorID)},
		},
	})
	return err
}

func (s *dynamoConnectorStore) UpdateConnectorAuth(accountID, connectorID string, authConfig models.AuthConfig) error {
	connector, err := s.GetConnector(accountID, connectorID)
	if err != nil {
		return err
	}
	connector.Auth = authConfig
	return s.SaveConnector(connector)
}

func (s *dynamoConnectorStore) ListOAuth2Connectors() ([]models.Connector, error) {
	filter := expression.Name("AuthType").Equal(expression.Value(string(models.AuthTypeOAuth2)))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build scan expression: %w", err)
	}
	result, err := s.client.Scan(&dynamodb.ScanInput{
		TableName:                 aws.String(s.table),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, err
	}
	return decodeConnectors(result.Items)
}

func decodeConnectors(items []map[string]*dynamodb.AttributeValue) ([]models.Connector, error) {
	connectors := make([]models.Connector, 0, len(items))
	for _, item := range items {
		var connector models.Connector
		if err := decodeDocument(item, &connector); err != nil {
			return nil, err
		}
		connectors = append(connectors, connector)
	}
	return connectors, nil
}

type dynamoExecutionStore struct {
	client       dynamodbiface.DynamoDBAPI
	table        string
	resultsTable string
}

func (s *dynamoExecutionStore) SaveExecution(execution models.ExecutionStatus) error {
	item, err := documentItem(map[string]*dynamodb.AttributeValue{
		"ID": {S: aws.String(execution.ID)},
	}, execution)
	if err != nil {
		return err
	}
	item["AccountID"] = &dynamodb.AttributeValue{S: aws.String(execution.AccountID)}
	_, err = s.client.PutItem(&dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	return err
}

func (s *dynamoExecutionStore) GetExecution(executionID string) (models.ExecutionStatus, error) {
	result, err := s.client.GetItem(&dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]*dynamodb.AttributeValue{
			"ID": {S: aws.String(executionID)},
		},
	})
	if err != nil {
		return models.ExecutionStatus{}, err
	}
	if result.Item == nil {
		return models.ExecutionStatus{}, ErrExecutionNotFound
	}
	var execution models.ExecutionStatus
	if err := decodeDocument(result.Item, &execution); err != nil {
		return models.ExecutionStatus{}, err
	}
	return execution, nil
}

func (s *dynamoExecutionStore) ListExecutions(accountID string) ([]models.ExecutionStatus, error) {
	filter := expression.Name("AccountID").Equal(expression.Value(accountID))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build scan expression: %w", err)
	}
	result, err := s.client.Scan(&dynamodb.ScanInput{
		TableName:                 aws.String(s.table),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, err
	}
	executions := make([]models.ExecutionStatus, 0, len(result.Items))
	for _, item := range result.Items {
		var execution models.ExecutionStatus
		if err := decodeDocument(item, &execution); err != nil {
			return nil, err
		}
		executions = append(executions, execution)
	}
	return executions, nil
}

func (s *dynamoExecutionStore) SaveLastResult(nodeID string, result interface{}) error {
	item, err := documentItem(map[string]*dynamodb.AttributeValue{
		"NodeID": {S: aws.String(nodeID)},
	}, result)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(&dynamodb.PutItemInput{
		TableName: aws.String(s.resultsTable),
		Item:      item,
	})
	return err
}

func (s *dynamoExecutionStore) GetLastResult(nodeID string) (interface{}, error) {
	result, err := s.client.GetItem(&dynamodb.GetItemInput{
		TableName: aws.String(s.resultsTable),
		Key: map[string]*dynamodb.AttributeValue{
			"NodeID": {S: aws.String(nodeID)},
		},
	})
	if err != nil {
		return nil, err
	}
	if result.Item == nil {
		return nil, ErrResultNotFound
	}
	var value interface{}
	if err := decodeDocument(result.Item, &value); err != nil {
		return nil, err
	}
	return value, nil
}

type dynamoAccountStore struct {
	client dynamodbiface.DynamoDBAPI
	table  string
}

func (s *dynamoAccountStore) SaveAccount(account auth.Account) error {
	item, err := documentItem(map[string]*dynamodb.AttributeValue{
		"ID": {S: aws.String(account.ID)},
	}, account)
	if err != nil {
		return err
	}
	item["Username"] = &dynamodb.AttributeValue{S: aws.String(account.Username)}
	if account.APIToken != "" {
		item["APIToken"] = &dynamodb.AttributeValue{S: aws.String(account.APIToken)}
	}
	_, err = s.client.PutItem(&dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	})
	return err
}

func (s *dynamoAccountStore) GetAccount(accountID string) (auth.Account, error) {
	result, err := s.client.GetItem(&dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]*dynamodb.AttributeValue{
			"ID": {S: aws.String(accountID)},
		},
	})
	if err != nil {
		return auth.Account{}, err
	}
	if result.Item == nil {
		return auth.Account{}, ErrAccountNotFound
	}
	var account auth.Account
	if err := decodeDocument(result.Item, &account); err != nil {
		return auth.Account{}, err
	}
	return account, nil
}

func (s *dynamoAccountStore) GetAccountByUsername(username string) (auth.Account, error) {
	return s.scanForAccount(expression.Name("Username").Equal(expression.Value(username)))
}

func (s *dynamoAccountStore) GetAccountByToken(token string) (auth.Account, error) {
	if token == "" {
		return auth.Account{}, ErrAccountNotFound
	}
	return s.scanForAccount(expression.Name("APIToken").Equal(expression.Value(token)))
}

func (s *dynamoAccountStore) scanForAccount(filter expression.ConditionBuilder) (auth.Account, error) {
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return auth.Account{}, fmt.Errorf("failed to build scan expression: %w", err)
	}
	result, err := s.client.Scan(&dynamodb.ScanInput{
		TableName:                 aws.String(s.table),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return auth.Account{}, err
	}
	if len(result.Items) == 0 {
		return auth.Account{}, ErrAccountNotFound
	}
	var account auth.Account
	if err := decodeDocument(result.Items[0], &account); err != nil {
		return auth.Account{}, err
	}
	return account, nil
}

func (s *dynamoAccountStore) DeleteAccount(accountID string) error {
	if _, err := s.GetAccount(accountID); err != nil {
		return err
	}
	_, err := s.client.DeleteItem(&dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]*dynamodb.AttributeValue{
			"ID": {S: aws.String(accountID)},
		},
	})
	return err
}
