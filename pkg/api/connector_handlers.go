package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/middleware"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/models"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/storage"
)

// connectorView is the API representation of a connector. Credential
// material stays server-side; only its presence is reported.
type connectorView struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	BaseURL     string            `json:"base_url,omitempty"`
	AuthType    models.AuthType   `json:"auth_type"`
	Headers     map[string]string `json:"headers,omitempty"`
	Configured  bool              `json:"configured"`
	NeedsReauth bool              `json:"needs_reauth,omitempty"`
}

func toConnectorView(connector models.Connector) connectorView {
	return connectorView{
		ID:          connector.ID,
		Name:        connector.Name,
		BaseURL:     connector.BaseURL,
		AuthType:    connector.AuthType,
		Headers:     connector.Headers,
		Configured:  connector.Auth.Validate(connector.AuthType) == nil,
		NeedsReauth: connector.Auth.NeedsReauth,
	}
}

// handleListConnectors returns all connectors of the account
func (s *Server) handleListConnectors(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.GetAccountID(r)
	conns, err := s.store.ConnectorStore().ListConnectors(accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list connectors")
		return
	}
	views := make([]connectorView, 0, len(conns))
	for _, connector := range conns {
		views = append(views, toConnectorView(connector))
	}
	writeJSON(w, http.StatusOK, views)
}

// handleCreateConnector stores a new connector
func (s *Server) handleCreateConnector(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.GetAccountID(r)

	var connector models.Connector
	if err := json.NewDecoder(r.Body).Decode(&connector); err != nil {
		writeError(w, http.StatusBadRequest, "invalid connector definition")
		return
	}
	if connector.ID == "" {
		connector.ID = uuid.New().String()
	}
	connector.AccountID = accountID

	if err := connector.Auth.Validate(connector.AuthType); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.ConnectorStore().SaveConnector(connector); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save connector")
		return
	}
	writeJSON(w, http.StatusCreated, toConnectorView(connector))
}

// handleGetConnector returns one connector
func (s *Server) handleGetConnector(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.GetAccountID(r)
	connectorID := mux.Vars(r)["id"]

	connector, err := s.store.ConnectorStore().GetConnector(accountID, connectorID)
	if err != nil {
		if errors.Is(err, storage.ErrConnectorNotFound) {
			writeError(w, http.StatusNotFound, "connector not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load connector")
		return
	}
	writeJSON(w, http.StatusOK, toConnectorView(connector))
}

// handleUpdateConnector replaces a connector definition
func (s *Server) handleUpdateConnector(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.GetAccountID(r)
	connectorID := mux.Vars(r)["id"]

	existing, err := s.store.ConnectorStore().GetConnector(accountID, connectorID)
	if err != nil {
		if errors.Is(err, storage.ErrConnectorNotFound) {
			writeError(w, http.StatusNotFound, "connector not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load connector")
		return
	}

	var connector models.Connector
	if err := json.NewDecoder(r.Body).Decode(&connector); err != nil {
		writeError(w, http.StatusBadRequest, "invalid connector definition")
		return
	}
	connector.ID = connectorID
	connector.AccountID = accountID
	connector.CreatedAt = existing.CreatedAt

	if err := connector.Auth.Validate(connector.AuthType); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.ConnectorStore().SaveConnector(connector); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save connector")
		return
	}
	writeJSON(w, http.StatusOK, toConnectorView(connector))
}

// handleDeleteConnector removes a connector
func (s *Server) handleDeleteConnector(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.GetAccountID(r)
	connectorID := mux.Vars(r)["id"]

	if err := s.store.ConnectorStore().DeleteConnector(accountID, connectorID); err != nil {
		if errors.Is(err, storage.ErrConnectorNotFound) {
			writeError(w, http.StatusNotFound, "connector not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete connector")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRefreshConnector forces an OAuth2 token refresh for a connector
func (s *Server) handleRefreshConnector(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.GetAccountID(r)
	connectorID := mux.Vars(r)["id"]

	if s.tokenManager == nil {
		writeError(w, http.StatusServiceUnavailable, "token manager is not running")
		return
	}

	connector, err := s.tokenManager.RefreshConnector(r.Context(), accountID, connectorID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toConnectorView(connector))
}
