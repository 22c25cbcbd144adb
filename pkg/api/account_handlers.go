package api

import (
	"encoding/json"
	"net/http"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/auth"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/middleware"
)

// accountView is the API representation of an account, without credentials
type accountView struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	CreatedAt string `json:"created_at"`
}

func toAccountView(account auth.Account) accountView {
	return accountView{
		ID:        account.ID,
		Username:  account.Username,
		CreatedAt: account.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// handleCreateAccount registers a new account and returns its API token
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	accountID, err := s.accountService.CreateAccount(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	account, err := s.accountService.GetAccount(accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load created account")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"account":   toAccountView(account),
		"api_token": account.APIToken,
	})
}

// handleLogin exchanges username/password for a JWT session token
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	accountID, err := s.accountService.Authenticate(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	account, err := s.accountService.GetAccount(accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load account")
		return
	}

	token, err := s.jwtService.GenerateToken(account)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":   token,
		"account": toAccountView(account),
	})
}

// handleGetCurrentAccount returns the authenticated account
func (s *Server) handleGetCurrentAccount(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	account, err := s.accountService.GetAccount(accountID)
	if err != nil {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}
	writeJSON(w, http.StatusOK, toAccountView(account))
}
