package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/middleware"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/models"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/runtime"
)

// WebSocketManager streams live execution logs to editor clients. A client
// subscribes to execution IDs over the socket and receives their log
// entries as they happen.
type WebSocketManager struct {
	upgrader   websocket.Upgrader
	executions *runtime.ExecutionService
	logger     *slog.Logger
}

// wsMessage is an incoming client message
type wsMessage struct {
	Type        string `json:"type"` // "subscribe", "unsubscribe", "ping"
	ExecutionID string `json:"execution_id,omitempty"`
}

// wsUpdate is an outgoing server message
type wsUpdate struct {
	Type        string               `json:"type"` // "log", "subscribed", "unsubscribed", "closed", "error", "pong"
	ExecutionID string               `json:"execution_id,omitempty"`
	Log         *models.ExecutionLog `json:"log,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// NewWebSocketManager creates a new WebSocket manager
func NewWebSocketManager(executions *runtime.ExecutionService, logger *slog.Logger) *WebSocketManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketManager{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// TODO: restrict origins once the editor's deployment origin is fixed
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		executions: executions,
		logger:     logger,
	}
}

// handleWebSocket upgrades the connection and serves log subscriptions on it
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.GetAccountID(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	s.wsManager.Serve(w, r, accountID)
}

// Serve runs the read loop of one WebSocket connection
func (m *WebSocketManager) Serve(w http.ResponseWriter, r *http.Request, accountID string) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	m.logger.Debug("websocket connected", "account_id", accountID)

	// Writes from multiple subscription pumps share one socket.
	var writeMu sync.Mutex
	send := func(update wsUpdate) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteJSON(update)
	}

	unsubscribes := make(map[string]func())
	defer func() {
		for _, unsubscribe := range unsubscribes {
			unsubscribe()
		}
	}()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Debug("websocket read error", "error", err)
			}
			return
		}

		switch msg.Type {
		case "ping":
			send(wsUpdate{Type: "pong"})

		case "subscribe":
			if _, already := unsubscribes[msg.ExecutionID]; already {
				continue
			}
			if !m.ownsExecution(accountID, msg.ExecutionID) {
				send(wsUpdate{Type: "error", ExecutionID: msg.ExecutionID, Error: "execution not found"})
				continue
			}
			logs, unsubscribe, err := m.executions.SubscribeToLogs(msg.ExecutionID)
			if err != nil {
				send(wsUpdate{Type: "error", ExecutionID: msg.ExecutionID, Error: err.Error()})
				continue
			}
			unsubscribes[msg.ExecutionID] = unsubscribe
			send(wsUpdate{Type: "subscribed", ExecutionID: msg.ExecutionID})

			go func(executionID string, logs <-chan models.ExecutionLog) {
				for entry := range logs {
					log := entry
					if err := send(wsUpdate{Type: "log", ExecutionID: executionID, Log: &log}); err != nil {
						return
					}
				}
				send(wsUpdate{Type: "closed", ExecutionID: executionID})
			}(msg.ExecutionID, logs)

		case "unsubscribe":
			if unsubscribe, ok := unsubscribes[msg.ExecutionID]; ok {
				unsubscribe()
				delete(unsubscribes, msg.ExecutionID)
				send(wsUpdate{Type: "unsubscribed", ExecutionID: msg.ExecutionID})
			}

		default:
			send(wsUpdate{Type: "error", Error: "unknown message type: " + msg.Type})
		}
	}
}

// ownsExecution checks that the execution belongs to the account
func (m *WebSocketManager) ownsExecution(accountID, executionID string) bool {
	status, err := m.executions.GetStatus(executionID)
	return err == nil && status.AccountID == accountID
}
