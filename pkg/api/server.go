// Package api exposes the HTTP surface of runaiflow: account and session
// management, flow and connector CRUD, execution control and live log
// streaming.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/auth"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/config"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/connectors"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/middleware"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/runtime"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/services"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/storage"
)

// Server represents the HTTP API server
type Server struct {
	config         *config.Config
	router         *mux.Router
	server         *http.Server
	store          storage.Provider
	engine         *runtime.Engine
	executions     *runtime.ExecutionService
	accountService auth.AccountService
	jwtService     *services.JWTService
	tokenManager   *connectors.TokenManager
	wsManager      *WebSocketManager
	logger         *slog.Logger
}

// ServerOptions bundles the collaborators of the API server
type ServerOptions struct {
	Config         *config.Config
	Store          storage.Provider
	Engine         *runtime.Engine
	Executions     *runtime.ExecutionService
	AccountService auth.AccountService
	JWTService     *services.JWTService
	TokenManager   *connectors.TokenManager
	Logger         *slog.Logger
}

// NewServer creates a new API server
func NewServer(opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		config:         opts.Config,
		router:         mux.NewRouter(),
		store:          opts.Store,
		engine:         opts.Engine,
		executions:     opts.Executions,
		accountService: opts.AccountService,
		jwtService:     opts.JWTService,
		tokenManager:   opts.TokenManager,
		logger:         opts.Logger,
	}
	s.wsManager = NewWebSocketManager(opts.Executions, opts.Logger)

	s.setupRoutes()
	return s
}

// Router returns the configured router, for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", addr)

	var err error
	if s.config.Server.TLS.Enabled {
		err = s.server.ListenAndServeTLS(
			s.config.Server.TLS.CertFile,
			s.config.Server.TLS.KeyFile,
		)
	} else {
		err = s.server.ListenAndServe()
	}
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	authMiddleware := middleware.NewAuthMiddleware(s.accountService, s.jwtService)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Public routes
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/accounts", s.handleCreateAccount).Methods(http.MethodPost, http.MethodOptions)

	// Authenticated routes
	authenticated := api.PathPrefix("").Subrouter()
	authenticated.Use(authMiddleware.Authenticate)

	authenticated.HandleFunc("/accounts/me", s.handleGetCurrentAccount).Methods(http.MethodGet, http.MethodOptions)

	flows := authenticated.PathPrefix("/flows").Subrouter()
	flows.HandleFunc("", s.handleListFlows).Methods(http.MethodGet, http.MethodOptions)
	flows.HandleFunc("", s.handleCreateFlow).Methods(http.MethodPost, http.MethodOptions)
	flows.HandleFunc("/{id}", s.handleGetFlow).Methods(http.MethodGet, http.MethodOptions)
	flows.HandleFunc("/{id}", s.handleUpdateFlow).Methods(http.MethodPut, http.MethodOptions)
	flows.HandleFunc("/{id}", s.handleDeleteFlow).Methods(http.MethodDelete, http.MethodOptions)
	flows.HandleFunc("/{id}/run", s.handleRunFlow).Methods(http.MethodPost, http.MethodOptions)
	flows.HandleFunc("/{id}/executions", s.handleStartExecution).Methods(http.MethodPost, http.MethodOptions)

	conns := authenticated.PathPrefix("/connectors").Subrouter()
	conns.HandleFunc("", s.handleListConnectors).Methods(http.MethodGet, http.MethodOptions)
	conns.HandleFunc("", s.handleCreateConnector).Methods(http.MethodPost, http.MethodOptions)
	conns.HandleFunc("/{id}", s.handleGetConnector).Methods(http.MethodGet, http.MethodOptions)
	conns.HandleFunc("/{id}", s.handleUpdateConnector).Methods(http.MethodPut, http.MethodOptions)
	conns.HandleFunc("/{id}", s.handleDeleteConnector).Methods(http.MethodDelete, http.MethodOptions)
	conns.HandleFunc("/{id}/refresh", s.handleRefreshConnector).Methods(http.MethodPost, http.MethodOptions)

	executions := authenticated.PathPrefix("/executions").Subrouter()
	executions.HandleFunc("", s.handleListExecutions).Methods(http.MethodGet, http.MethodOptions)
	executions.HandleFunc("/{id}", s.handleGetExecution).Methods(http.MethodGet, http.MethodOptions)
	executions.HandleFunc("/{id}/cancel", s.handleCancelExecution).Methods(http.MethodPost, http.MethodOptions)

	authenticated.HandleFunc("/nodes/test", s.handleTestNode).Methods(http.MethodPost, http.MethodOptions)
	authenticated.HandleFunc("/paths", s.handleSuggestPaths).Methods(http.MethodPost, http.MethodOptions)

	authenticated.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
