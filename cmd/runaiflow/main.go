// Package main is the entry point for the runaiflow server.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/config"
	applog "github.com/darshitpatel1/runai-flow-sub001/pkg/log"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	version    = flag.Bool("version", false, "Print version information")
)

// Version information
const (
	AppVersion = "0.1.0"
	AppName    = "runaiflow"
)

func main() {
	_ = godotenv.Load()
	flag.Parse()

	if *version {
		fmt.Printf("%s version %s\n", AppName, AppVersion)
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	applog.Setup(cfg.Logging.Level, cfg.Logging.Format)

	app, err := NewApp(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error)
	go func() {
		errCh <- app.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Application failed: %v", err)
		}
	case <-stop:
		log.Println("Shutting down gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.Stop(ctx); err != nil {
			log.Fatalf("Error during shutdown: %v", err)
		}
	}
}

// loadConfig loads the configuration from the specified path or from the
// standard locations, creating a default one if nothing is found
func loadConfig() (*config.Config, error) {
	var cfg *config.Config

	if *configPath != "" {
		var err error
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", *configPath, err)
		}
	} else {
		locations := []string{
			"./config.json",
			"./configs/config.json",
			filepath.Join(os.Getenv("HOME"), ".runaiflow", "config.json"),
			"/etc/runaiflow/config.json",
		}
		for _, path := range locations {
			if loadedCfg, err := config.LoadConfig(path); err == nil {
				cfg = loadedCfg
				break
			}
		}
		if cfg == nil {
			cfg = config.DefaultConfig()
			defaultPath := filepath.Join(os.Getenv("HOME"), ".runaiflow", "config.json")
			if err := config.SaveConfig(cfg, defaultPath); err != nil {
				return nil, fmt.Errorf("failed to save default config: %w", err)
			}
			fmt.Printf("Created default configuration at %s\n", defaultPath)
		}
	}

	overrideConfigFromEnv(cfg)

	if cfg.Auth.JWTSecret == "" {
		secret, err := generateRandomKey(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
		cfg.Auth.JWTSecret = secret
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overrideConfigFromEnv overrides configuration values from environment
// variables
func overrideConfigFromEnv(cfg *config.Config) {
	if host := os.Getenv("RUNAIFLOW_SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("RUNAIFLOW_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if storageType := os.Getenv("RUNAIFLOW_STORAGE_TYPE"); storageType != "" {
		cfg.Storage.Type = storageType
	}

	if addr := os.Getenv("RUNAIFLOW_REDIS_ADDR"); addr != "" {
		cfg.Storage.Redis.Addr = addr
	}
	if password := os.Getenv("RUNAIFLOW_REDIS_PASSWORD"); password != "" {
		cfg.Storage.Redis.Password = password
	}

	if host := os.Getenv("RUNAIFLOW_POSTGRES_HOST"); host != "" {
		cfg.Storage.Postgres.Host = host
	}
	if port := os.Getenv("RUNAIFLOW_POSTGRES_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Storage.Postgres.Port = p
		}
	}
	if database := os.Getenv("RUNAIFLOW_POSTGRES_DATABASE"); database != "" {
		cfg.Storage.Postgres.Database = database
	}
	if user := os.Getenv("RUNAIFLOW_POSTGRES_USER"); user != "" {
		cfg.Storage.Postgres.User = user
	}
	if password := os.Getenv("RUNAIFLOW_POSTGRES_PASSWORD"); password != "" {
		cfg.Storage.Postgres.Password = password
	}
	if sslMode := os.Getenv("RUNAIFLOW_POSTGRES_SSL_MODE"); sslMode != "" {
		cfg.Storage.Postgres.SSLMode = sslMode
	}

	if region := os.Getenv("RUNAIFLOW_DYNAMODB_REGION"); region != "" {
		cfg.Storage.DynamoDB.Region = region
	}
	if endpoint := os.Getenv("RUNAIFLOW_DYNAMODB_ENDPOINT"); endpoint != "" {
		cfg.Storage.DynamoDB.Endpoint = endpoint
	}
	if tablePrefix := os.Getenv("RUNAIFLOW_DYNAMODB_TABLE_PREFIX"); tablePrefix != "" {
		cfg.Storage.DynamoDB.TablePrefix = tablePrefix
	}

	if secret := os.Getenv("RUNAIFLOW_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
}

// generateRandomKey generates a random hex key of the given byte length
func generateRandomKey(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
