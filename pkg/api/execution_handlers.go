package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/middleware"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/models"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/storage"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/template"
)

// handleListExecutions returns all executions of the account
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.GetAccountID(r)
	executions, err := s.executions.ListExecutions(accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	writeJSON(w, http.StatusOK, executions)
}

// handleGetExecution returns the status of one execution
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.GetAccountID(r)
	executionID := mux.Vars(r)["id"]

	status, err := s.executions.GetStatus(executionID)
	if err != nil {
		if errors.Is(err, storage.ErrExecutionNotFound) {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load execution")
		return
	}
	if status.AccountID != accountID {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleCancelExecution requests cancellation of a running execution
func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.GetAccountID(r)
	executionID := mux.Vars(r)["id"]

	status, err := s.executions.GetStatus(executionID)
	if err != nil || status.AccountID != accountID {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}

	if err := s.executions.Cancel(executionID); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// handleTestNode executes a single node in isolation for the editor
func (s *Server) handleTestNode(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.GetAccountID(r)

	var req struct {
		Node      models.Node            `json:"node"`
		Variables map[string]interface{} `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := s.engine.TestNode(r.Context(), accountID, req.Node, req.Variables)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleSuggestPaths enumerates template paths into a node's most recent
// result, for editor autocompletion. The caller supplies either a node ID
// (looked up in the last-result cache) or a literal value.
func (s *Server) handleSuggestPaths(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NodeID string      `json:"node_id,omitempty"`
		Value  interface{} `json:"value,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	value := req.Value
	if req.NodeID != "" {
		cached, err := s.store.ExecutionStore().GetLastResult(req.NodeID)
		if err != nil {
			if errors.Is(err, storage.ErrResultNotFound) {
				writeError(w, http.StatusNotFound, "no cached result for node")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to load cached result")
			return
		}
		value = cached
	}

	paths := template.Enumerate(value)
	prefix := ""
	if req.NodeID != "" {
		prefix = req.NodeID + ".result"
	}

	suggestions := make([]string, 0, len(paths)+1)
	if prefix != "" {
		suggestions = append(suggestions, prefix)
	}
	for _, path := range paths {
		if prefix != "" {
			suggestions = append(suggestions, prefix+"."+path)
		} else {
			suggestions = append(suggestions, path)
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"paths": suggestions})
}
