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

// handleListFlows returns all flows of the account
func (s *Server) handleListFlows(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.GetAccountID(r)
	flows, err := s.store.FlowStore().ListFlows(accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list flows")
		return
	}
	writeJSON(w, http.StatusOK, flows)
}

// handleCreateFlow stores a new flow definition
func (s *Server) handleCreateFlow(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.GetAccountID(r)

	var flow models.Flow
	if err := json.NewDecoder(r.Body).Decode(&flow); err != nil {
		writeError(w, http.StatusBadRequest, "invalid flow definition: "+err.Error())
		return
	}
	if flow.ID == "" {
		flow.ID = uuid.New().String()
	}
	flow.AccountID = accountID

	if err := flow.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.FlowStore().SaveFlow(flow); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save flow")
		return
	}
	writeJSON(w, http.StatusCreated, flow)
}

// handleGetFlow returns one flow
func (s *Server) handleGetFlow(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.GetAccountID(r)
	flowID := mux.Vars(r)["id"]

	flow, err := s.store.FlowStore().GetFlow(accountID, flowID)
	if err != nil {
		if errors.Is(err, storage.ErrFlowNotFound) {
			writeError(w, http.StatusNotFound, "flow not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load flow")
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

// handleUpdateFlow replaces a flow definition
func (s *Server) handleUpdateFlow(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.GetAccountID(r)
	flowID := mux.Vars(r)["id"]

	if _, err := s.store.FlowStore().GetFlow(accountID, flowID); err != nil {
		if errors.Is(err, storage.ErrFlowNotFound) {
			writeError(w, http.StatusNotFound, "flow not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load flow")
		return
	}

	var flow models.Flow
	if err := json.NewDecoder(r.Body).Decode(&flow); err != nil {
		writeError(w, http.StatusBadRequest, "invalid flow definition: "+err.Error())
		return
	}
	flow.ID = flowID
	flow.AccountID = accountID

	if err := flow.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.FlowStore().SaveFlow(flow); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save flow")
		return
	}
	writeJSON(w, http.StatusOK, flow)
}

// handleDeleteFlow removes a flow
func (s *Server) handleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.GetAccountID(r)
	flowID := mux.Vars(r)["id"]

	if err := s.store.FlowStore().DeleteFlow(accountID, flowID); err != nil {
		if errors.Is(err, storage.ErrFlowNotFound) {
			writeError(w, http.StatusNotFound, "flow not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete flow")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRunFlow executes a flow synchronously and returns the terminal
// result in the response
func (s *Server) handleRunFlow(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.GetAccountID(r)
	flowID := mux.Vars(r)["id"]

	flow, err := s.store.FlowStore().GetFlow(accountID, flowID)
	if err != nil {
		if errors.Is(err, storage.ErrFlowNotFound) {
			writeError(w, http.StatusNotFound, "flow not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load flow")
		return
	}

	var req struct {
		Variables map[string]interface{} `json:"variables"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result, err := s.engine.ExecuteFlow(r.Context(), accountID, flow, req.Variables)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleStartExecution starts an asynchronous execution
func (s *Server) handleStartExecution(w http.ResponseWriter, r *http.Request) {
	accountID, _ := middleware.GetAccountID(r)
	flowID := mux.Vars(r)["id"]

	var req struct {
		Variables map[string]interface{} `json:"variables"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	executionID, err := s.executions.Execute(accountID, flowID, req.Variables)
	if err != nil {
		if errors.Is(err, storage.ErrFlowNotFound) {
			writeError(w, http.StatusNotFound, "flow not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"execution_id": executionID})
}
