package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/config"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/models"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/runtime"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/services"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/storage"
)

type testServer struct {
	http  *httptest.Server
	store storage.Provider
	token string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := storage.NewMemoryProvider()
	require.NoError(t, store.Initialize())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := runtime.NewEngine(runtime.EngineOptions{
		Connectors: store.ConnectorStore(),
		Results:    store.ExecutionStore(),
		Logger:     logger,
	})
	executions := runtime.NewExecutionService(engine, store.FlowStore(), store.ExecutionStore(), logger)

	server := NewServer(ServerOptions{
		Config:         config.DefaultConfig(),
		Store:          store,
		Engine:         engine,
		Executions:     executions,
		AccountService: services.NewAccountService(store.AccountStore()),
		JWTService:     services.NewJWTService("test-secret", 24),
		Logger:         logger,
	})

	ts := &testServer{http: httptest.NewServer(server.Router()), store: store}
	t.Cleanup(ts.http.Close)
	return ts
}

// do performs a JSON request and decodes the response into out when non-nil
func (ts *testServer) do(t *testing.T, method, path string, body interface{}, out interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.http.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

// signUp registers an account and leaves its API token on the server helper
func (ts *testServer) signUp(t *testing.T, username string) {
	t.Helper()
	var created struct {
		APIToken string `json:"api_token"`
	}
	resp := ts.do(t, http.MethodPost, "/api/v1/accounts", map[string]string{
		"username": username,
		"password": "test-password",
	}, &created)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, created.APIToken)
	ts.token = created.APIToken
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	var health map[string]string
	resp := ts.do(t, http.MethodGet, "/api/v1/health", nil, &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health["status"])
}

func TestAuthenticationRequired(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/v1/flows", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAccountSignupLoginAndMe(t *testing.T) {
	ts := newTestServer(t)
	ts.signUp(t, "ada")

	// API token authenticates.
	var me accountView
	resp := ts.do(t, http.MethodGet, "/api/v1/accounts/me", nil, &me)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ada", me.Username)

	// Login yields a JWT that also authenticates.
	var login struct {
		Token string `json:"token"`
	}
	ts.token = ""
	resp = ts.do(t, http.MethodPost, "/api/v1/login", map[string]string{
		"username": "ada", "password": "test-password",
	}, &login)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, login.Token)

	ts.token = login.Token
	resp = ts.do(t, http.MethodGet, "/api/v1/accounts/me", nil, &me)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Wrong password is rejected.
	ts.token = ""
	resp = ts.do(t, http.MethodPost, "/api/v1/login", map[string]string{
		"username": "ada", "password": "wrong",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAccountResponsesOmitCredentials(t *testing.T) {
	ts := newTestServer(t)
	ts.signUp(t, "ada")

	var raw map[string]interface{}
	resp := ts.do(t, http.MethodGet, "/api/v1/accounts/me", nil, &raw)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, raw, "password_hash")
	assert.NotContains(t, raw, "api_token")
}

func TestFlowCRUD(t *testing.T) {
	ts := newTestServer(t)
	ts.signUp(t, "ada")

	definition := map[string]interface{}{
		"id":   "flow-1",
		"name": "greeter",
		"nodes": []map[string]interface{}{
			{"id": "greet", "type": "log", "config": map[string]interface{}{"message": "hello"}},
		},
	}

	resp := ts.do(t, http.MethodPost, "/api/v1/flows", definition, nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var flow models.Flow
	resp = ts.do(t, http.MethodGet, "/api/v1/flows/flow-1", nil, &flow)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "greeter", flow.Name)

	var flows []models.Flow
	resp = ts.do(t, http.MethodGet, "/api/v1/flows", nil, &flows)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, flows, 1)

	definition["name"] = "greeter v2"
	resp = ts.do(t, http.MethodPut, "/api/v1/flows/flow-1", definition, &flow)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "greeter v2", flow.Name)

	resp = ts.do(t, http.MethodDelete, "/api/v1/flows/flow-1", nil, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/v1/flows/flow-1", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateFlowRejectsInvalidDefinition(t *testing.T) {
	ts := newTestServer(t)
	ts.signUp(t, "ada")

	resp := ts.do(t, http.MethodPost, "/api/v1/flows", map[string]interface{}{
		"id": "flow-bad",
		"nodes": []map[string]interface{}{
			{"id": "a", "type": "log", "config": map[string]interface{}{"message": "x"}},
			{"id": "a", "type": "log", "config": map[string]interface{}{"message": "y"}},
		},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunFlowSynchronously(t *testing.T) {
	ts := newTestServer(t)
	ts.signUp(t, "ada")

	resp := ts.do(t, http.MethodPost, "/api/v1/flows", map[string]interface{}{
		"id": "flow-run",
		"nodes": []map[string]interface{}{
			{"id": "greet", "type": "log", "config": map[string]interface{}{
				"message": "hello {{vars.name}}"}},
		},
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result models.ExecutionResult
	resp = ts.do(t, http.MethodPost, "/api/v1/flows/flow-run/run", map[string]interface{}{
		"variables": map[string]interface{}{"name": "ada"},
	}, &result)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.FlowStatusSuccess, result.Status)

	greet := result.NodeResults["greet"].Result.(map[string]interface{})
	assert.Equal(t, "hello ada", greet["message"])
}

func TestAsyncExecutionLifecycle(t *testing.T) {
	ts := newTestServer(t)
	ts.signUp(t, "ada")

	resp := ts.do(t, http.MethodPost, "/api/v1/flows", map[string]interface{}{
		"id": "flow-async",
		"nodes": []map[string]interface{}{
			{"id": "greet", "type": "log", "config": map[string]interface{}{"message": "hi"}},
		},
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var started struct {
		ExecutionID string `json:"execution_id"`
	}
	resp = ts.do(t, http.MethodPost, "/api/v1/flows/flow-async/executions", nil, &started)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.NotEmpty(t, started.ExecutionID)

	var status models.ExecutionStatus
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp = ts.do(t, http.MethodGet, "/api/v1/executions/"+started.ExecutionID, nil, &status)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		if status.Status != models.FlowStatusRunning {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, models.FlowStatusSuccess, status.Status)

	var list []models.ExecutionStatus
	resp = ts.do(t, http.MethodGet, "/api/v1/executions", nil, &list)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, list, 1)
}

func TestExecutionsAreAccountScoped(t *testing.T) {
	ts := newTestServer(t)
	ts.signUp(t, "ada")

	resp := ts.do(t, http.MethodPost, "/api/v1/flows", map[string]interface{}{
		"id": "flow-scope",
		"nodes": []map[string]interface{}{
			{"id": "greet", "type": "log", "config": map[string]interface{}{"message": "hi"}},
		},
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var started struct {
		ExecutionID string `json:"execution_id"`
	}
	resp = ts.do(t, http.MethodPost, "/api/v1/flows/flow-scope/executions", nil, &started)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	// Another account cannot see the execution.
	ts.signUp(t, "grace")
	resp = ts.do(t, http.MethodGet, "/api/v1/executions/"+started.ExecutionID, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestConnectorViewsHideCredentials(t *testing.T) {
	ts := newTestServer(t)
	ts.signUp(t, "ada")

	var view map[string]interface{}
	resp := ts.do(t, http.MethodPost, "/api/v1/connectors", map[string]interface{}{
		"id":        "crm",
		"name":      "crm",
		"base_url":  "https://crm.example.com",
		"auth_type": "basic",
		"auth_config": map[string]interface{}{
			"username": "ada", "password": "s3cret",
		},
	}, &view)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	assert.Equal(t, true, view["configured"])
	assert.NotContains(t, view, "auth_config")

	var views []map[string]interface{}
	resp = ts.do(t, http.MethodGet, "/api/v1/connectors", nil, &views)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, views, 1)
	assert.NotContains(t, views[0], "auth_config")
}

func TestCreateConnectorRejectsIncompleteAuth(t *testing.T) {
	ts := newTestServer(t)
	ts.signUp(t, "ada")

	resp := ts.do(t, http.MethodPost, "/api/v1/connectors", map[string]interface{}{
		"id":        "crm",
		"auth_type": "basic",
		"auth_config": map[string]interface{}{
			"username": "ada",
		},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTestNodeEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.signUp(t, "ada")

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"pong": true}`)
	}))
	t.Cleanup(upstream.Close)

	var result models.NodeResult
	resp := ts.do(t, http.MethodPost, "/api/v1/nodes/test", map[string]interface{}{
		"node": map[string]interface{}{
			"id":   "probe",
			"type": "http",
			"config": map[string]interface{}{
				"endpoint": upstream.URL + "/ping",
			},
		},
	}, &result)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.NodeStatusSucceeded, result.Status)

	// Non-http nodes cannot be tested in isolation.
	resp = ts.do(t, http.MethodPost, "/api/v1/nodes/test", map[string]interface{}{
		"node": map[string]interface{}{
			"id":   "note",
			"type": "log",
			"config": map[string]interface{}{
				"message": "hi",
			},
		},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSuggestPathsFromCachedResult(t *testing.T) {
	ts := newTestServer(t)
	ts.signUp(t, "ada")

	require.NoError(t, ts.store.ExecutionStore().SaveLastResult("fetch", map[string]interface{}{
		"status": float64(200),
		"body": map[string]interface{}{
			"users": []interface{}{map[string]interface{}{"name": "ada"}},
		},
	}))

	var suggested struct {
		Paths []string `json:"paths"`
	}
	resp := ts.do(t, http.MethodPost, "/api/v1/paths", map[string]interface{}{
		"node_id": "fetch",
	}, &suggested)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Contains(t, suggested.Paths, "fetch.result")
	assert.Contains(t, suggested.Paths, "fetch.result.status")
	assert.Contains(t, suggested.Paths, "fetch.result.body.users[0].name")

	// Unknown node has no cached result.
	resp = ts.do(t, http.MethodPost, "/api/v1/paths", map[string]interface{}{
		"node_id": "never-ran",
	}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSuggestPathsFromLiteralValue(t *testing.T) {
	ts := newTestServer(t)
	ts.signUp(t, "ada")

	var suggested struct {
		Paths []string `json:"paths"`
	}
	resp := ts.do(t, http.MethodPost, "/api/v1/paths", map[string]interface{}{
		"value": map[string]interface{}{"a": 1, "b": map[string]interface{}{"c": 2}},
	}, &suggested)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, suggested.Paths, "a")
	assert.Contains(t, suggested.Paths, "b.c")
}
