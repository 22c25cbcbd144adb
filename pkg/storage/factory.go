package storage

import (
	"fmt"
)

// ProviderType represents the type of storage provider
type ProviderType string

const (
	// MemoryProviderType is an in-memory storage provider
	MemoryProviderType ProviderType = "memory"

	// RedisProviderType is a Redis storage provider
	RedisProviderType ProviderType = "redis"

	// PostgresProviderType is a PostgreSQL storage provider
	PostgresProviderType ProviderType = "postgres"

	// DynamoDBProviderType is a DynamoDB storage provider
	DynamoDBProviderType ProviderType = "dynamodb"
)

// ProviderConfig contains configuration for storage providers
type ProviderConfig struct {
	// Type is the type of storage provider to create
	Type ProviderType

	// Redis contains configuration for the Redis provider
	Redis *RedisProviderConfig

	// Postgres contains configuration for the PostgreSQL provider
	Postgres *PostgresProviderConfig

	// DynamoDB contains configuration for the DynamoDB provider
	DynamoDB *DynamoDBProviderConfig
}

// NewProvider creates a new storage provider based on the configuration
func NewProvider(config ProviderConfig) (Provider, error) {
	switch config.Type {
	case MemoryProviderType:
		return NewMemoryProvider(), nil

	case RedisProviderType:
		if config.Redis == nil {
			return nil, fmt.Errorf("redis configuration is required for redis provider")
		}
		return NewRedisProvider(*config.Redis), nil

	case PostgresProviderType:
		if config.Postgres == nil {
			return nil, fmt.Errorf("postgres configuration is required for postgres provider")
		}
		return NewPostgresProvider(*config.Postgres)

	case DynamoDBProviderType:
		if config.DynamoDB == nil {
			return nil, fmt.Errorf("dynamodb configuration is required for dynamodb provider")
		}
		return NewDynamoDBProvider(*config.DynamoDB)

	default:
		return nil, fmt.Errorf("unknown provider type: %s", config.Type)
	}
}
