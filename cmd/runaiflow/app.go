package main

import (
	"context"
	"fmt"
	"time"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/api"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/config"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/connectors"
	applog "github.com/darshitpatel1/runai-flow-sub001/pkg/log"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/runtime"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/services"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/storage"
)

// App wires the application components together
type App struct {
	config       *config.Config
	store        storage.Provider
	tokenManager *connectors.TokenManager
	server       *api.Server
}

// NewApp initializes all components from the configuration
func NewApp(cfg *config.Config) (*App, error) {
	store, err := buildStorage(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	tokenOpts := []connectors.TokenManagerOption{}
	if cfg.Tokens.ScanSchedule != "" {
		tokenOpts = append(tokenOpts, connectors.WithScanSchedule(cfg.Tokens.ScanSchedule))
	}
	if cfg.Tokens.RefreshBufferMinutes > 0 {
		tokenOpts = append(tokenOpts, connectors.WithRefreshBuffer(
			time.Duration(cfg.Tokens.RefreshBufferMinutes)*time.Minute))
	}
	tokenManager := connectors.NewTokenManager(
		store.ConnectorStore(),
		applog.WithComponent("tokens"),
		tokenOpts...,
	)

	engine := runtime.NewEngine(runtime.EngineOptions{
		Authenticator: connectors.NewAuthenticator(tokenManager),
		Connectors:    store.ConnectorStore(),
		Results:       store.ExecutionStore(),
		Logger:        applog.WithComponent("engine"),
	})

	executions := runtime.NewExecutionService(
		engine,
		store.FlowStore(),
		store.ExecutionStore(),
		applog.WithComponent("executions"),
	)

	accountService := services.NewAccountService(store.AccountStore())
	jwtService := services.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiration)

	server := api.NewServer(api.ServerOptions{
		Config:         cfg,
		Store:          store,
		Engine:         engine,
		Executions:     executions,
		AccountService: accountService,
		JWTService:     jwtService,
		TokenManager:   tokenManager,
		Logger:         applog.WithComponent("api"),
	})

	return &App{
		config:       cfg,
		store:        store,
		tokenManager: tokenManager,
		server:       server,
	}, nil
}

// Start runs the token manager and the HTTP server. Blocks until the
// server exits.
func (a *App) Start() error {
	if err := a.tokenManager.Start(); err != nil {
		return fmt.Errorf("failed to start token manager: %w", err)
	}
	return a.server.Start()
}

// Stop shuts everything down gracefully
func (a *App) Stop(ctx context.Context) error {
	a.tokenManager.Stop()
	if err := a.server.Stop(ctx); err != nil {
		return err
	}
	return a.store.Close()
}

func buildStorage(cfg *config.Config) (storage.Provider, error) {
	switch cfg.Storage.Type {
	case "memory":
		return storage.NewProvider(storage.ProviderConfig{Type: storage.MemoryProviderType})
	case "redis":
		return storage.NewProvider(storage.ProviderConfig{
			Type: storage.RedisProviderType,
			Redis: &storage.RedisProviderConfig{
				Addr:     cfg.Storage.Redis.Addr,
				Password: cfg.Storage.Redis.Password,
				DB:       cfg.Storage.Redis.DB,
			},
		})
	case "postgres":
		return storage.NewProvider(storage.ProviderConfig{
			Type: storage.PostgresProviderType,
			Postgres: &storage.PostgresProviderConfig{
				Host:     cfg.Storage.Postgres.Host,
				Port:     cfg.Storage.Postgres.Port,
				User:     cfg.Storage.Postgres.User,
				Password: cfg.Storage.Postgres.Password,
				Database: cfg.Storage.Postgres.Database,
				SSLMode:  cfg.Storage.Postgres.SSLMode,
			},
		})
	case "dynamodb":
		return storage.NewProvider(storage.ProviderConfig{
			Type: storage.DynamoDBProviderType,
			DynamoDB: &storage.DynamoDBProviderConfig{
				Region:      cfg.Storage.DynamoDB.Region,
				Endpoint:    cfg.Storage.DynamoDB.Endpoint,
				TablePrefix: cfg.Storage.DynamoDB.TablePrefix,
			},
		})
	default:
		return nil, fmt.Errorf("unknown storage type: %q", cfg.Storage.Type)
	}
}
