package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/models"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/storage"
)

// ExecutionService runs flows asynchronously and tracks their status. Each
// execution runs in its own goroutine; live log entries fan out to
// subscribers and the terminal record is persisted to the execution store.
type ExecutionService struct {
	engine     *Engine
	flows      storage.FlowStore
	executions storage.ExecutionStore
	logger     *slog.Logger

	mu     sync.RWMutex
	active map[string]*activeExecution
}

type activeExecution struct {
	cancel context.CancelFunc

	mu          sync.Mutex
	subscribers map[int]chan models.ExecutionLog
	nextSubID   int
	done        bool
}

// NewExecutionService creates a new execution service
func NewExecutionService(engine *Engine, flows storage.FlowStore, executions storage.ExecutionStore, logger *slog.Logger) *ExecutionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExecutionService{
		engine:     engine,
		flows:      flows,
		executions: executions,
		logger:     logger,
		active:     make(map[string]*activeExecution),
	}
}

// Execute starts an asynchronous execution of a stored flow and returns its
// execution ID immediately.
func (s *ExecutionService) Execute(accountID, flowID string, vars map[string]interface{}) (string, error) {
	flow, err := s.flows.GetFlow(accountID, flowID)
	if err != nil {
		return "", fmt.Errorf("failed to load flow: %w", err)
	}
	if err := flow.Validate(); err != nil {
		return "", fmt.Errorf("invalid flow: %w", err)
	}

	executionID := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())

	exec := &activeExecution{
		cancel:      cancel,
		subscribers: make(map[int]chan models.ExecutionLog),
	}
	s.mu.Lock()
	s.active[executionID] = exec
	s.mu.Unlock()

	status := models.ExecutionStatus{
		ID:        executionID,
		FlowID:    flowID,
		AccountID: accountID,
		Status:    models.FlowStatusRunning,
	}
	if err := s.executions.SaveExecution(status); err != nil {
		cancel()
		s.removeActive(executionID)
		return "", fmt.Errorf("failed to persist execution: %w", err)
	}

	go s.run(ctx, executionID, accountID, flow, vars, exec, status)

	return executionID, nil
}

func (s *ExecutionService) run(ctx context.Context, executionID, accountID string, flow models.Flow, vars map[string]interface{}, exec *activeExecution, status models.ExecutionStatus) {
	defer exec.cancel()

	result, err := s.engine.execute(ctx, executionID, accountID, flow, vars, exec.broadcast)
	if err != nil {
		// Validation was done before launch, so this is unexpected.
		s.logger.Error("execution aborted", "execution_id", executionID, "error", err)
		status.Status = models.FlowStatusError
		status.Error = err.Error()
	} else {
		status.Status = result.Status
		status.Error = result.Error
		status.StartTime = result.StartTime
		status.EndTime = result.EndTime
		status.Result = result
	}

	if err := s.executions.SaveExecution(status); err != nil {
		s.logger.Error("failed to persist execution result", "execution_id", executionID, "error", err)
	}

	exec.close()
	s.removeActive(executionID)
}

// GetStatus returns the current status of an execution
func (s *ExecutionService) GetStatus(executionID string) (models.ExecutionStatus, error) {
	return s.executions.GetExecution(executionID)
}

// ListExecutions returns all executions for an account
func (s *ExecutionService) ListExecutions(accountID string) ([]models.ExecutionStatus, error) {
	return s.executions.ListExecutions(accountID)
}

// SubscribeToLogs streams the live log of a running execution. The second
// return value unsubscribes; the channel closes when the execution ends.
func (s *ExecutionService) SubscribeToLogs(executionID string) (<-chan models.ExecutionLog, func(), error) {
	s.mu.RLock()
	exec, ok := s.active[executionID]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("execution %s is not running", executionID)
	}

	exec.mu.Lock()
	defer exec.mu.Unlock()
	if exec.done {
		return nil, nil, fmt.Errorf("execution %s is not running", executionID)
	}

	ch := make(chan models.ExecutionLog, 64)
	id := exec.nextSubID
	exec.nextSubID++
	exec.subscribers[id] = ch

	unsubscribe := func() {
		exec.mu.Lock()
		defer exec.mu.Unlock()
		if _, still := exec.subscribers[id]; still {
			delete(exec.subscribers, id)
			close(ch)
		}
	}
	return ch, unsubscribe, nil
}

// Cancel stops a running execution. Cancellation is checked between nodes;
// a node in flight finishes first.
func (s *ExecutionService) Cancel(executionID string) error {
	s.mu.RLock()
	exec, ok := s.active[executionID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("execution %s is not running", executionID)
	}
	exec.cancel()
	return nil
}

func (s *ExecutionService) removeActive(executionID string) {
	s.mu.Lock()
	delete(s.active, executionID)
	s.mu.Unlock()
}

// broadcast delivers a log entry to every subscriber. Slow subscribers drop
// entries rather than stalling the execution.
func (e *activeExecution) broadcast(entry models.ExecutionLog) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, ch := range e.subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
}

func (e *activeExecution) close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.done = true
	for id, ch := range e.subscribers {
		delete(e.subscribers, id)
		close(ch)
	}
}
