package runtime

import (
	"sync"
	"time"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/models"
)

// ExecutionContext carries the mutable state of one flow execution: node
// results, user variables, the active loop scope and the execution log. All
// methods are safe for concurrent use so log subscribers can read while the
// engine writes.
type ExecutionContext struct {
	mu         sync.Mutex
	results    map[string]models.NodeResult
	order      []string
	vars       map[string]interface{}
	loopScopes []map[string]interface{}
	logs       []models.ExecutionLog

	// logSink, when set, receives every log entry as it is appended. Used
	// for live log streaming.
	logSink func(models.ExecutionLog)
}

// NewExecutionContext creates a context seeded with the caller's variables
func NewExecutionContext(vars map[string]interface{}) *ExecutionContext {
	copied := make(map[string]interface{}, len(vars))
	for key, value := range vars {
		copied[key] = value
	}
	return &ExecutionContext{
		results: make(map[string]models.NodeResult),
		vars:    copied,
	}
}

// SetLogSink registers a callback invoked for every appended log entry
func (ec *ExecutionContext) SetLogSink(sink func(models.ExecutionLog)) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.logSink = sink
}

// SetNodeResult records the outcome of a node
func (ec *ExecutionContext) SetNodeResult(result models.NodeResult) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if _, seen := ec.results[result.NodeID]; !seen {
		ec.order = append(ec.order, result.NodeID)
	}
	ec.results[result.NodeID] = result
}

// NodeResult returns the recorded outcome of a node
func (ec *ExecutionContext) NodeResult(nodeID string) (models.NodeResult, bool) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	result, ok := ec.results[nodeID]
	return result, ok
}

// NodeResults returns a copy of all recorded node outcomes
func (ec *ExecutionContext) NodeResults() map[string]models.NodeResult {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	results := make(map[string]models.NodeResult, len(ec.results))
	for id, result := range ec.results {
		results[id] = result
	}
	return results
}

// SetVariable writes a user variable
func (ec *ExecutionContext) SetVariable(key string, value interface{}) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.vars[key] = value
}

// Variable reads a user variable
func (ec *ExecutionContext) Variable(key string) (interface{}, bool) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	value, ok := ec.vars[key]
	return value, ok
}

// PushLoopScope makes a loop iteration scope visible under the "loop" root.
// Scopes nest; the innermost loop wins.
func (ec *ExecutionContext) PushLoopScope(scope map[string]interface{}) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.loopScopes = append(ec.loopScopes, scope)
}

// PopLoopScope removes the innermost loop scope
func (ec *ExecutionContext) PopLoopScope() {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if len(ec.loopScopes) > 0 {
		ec.loopScopes = ec.loopScopes[:len(ec.loopScopes)-1]
	}
}

// TemplateContext snapshots the state visible to template resolution: one
// root per completed node (status and result), the variable map under
// "vars" and the innermost loop scope under "loop".
func (ec *ExecutionContext) TemplateContext() map[string]interface{} {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	root := make(map[string]interface{}, len(ec.results)+2)
	for id, result := range ec.results {
		root[id] = map[string]interface{}{
			"status": string(result.Status),
			"result": result.Result,
		}
	}

	vars := make(map[string]interface{}, len(ec.vars))
	for key, value := range ec.vars {
		vars[key] = value
	}
	root["vars"] = vars

	if n := len(ec.loopScopes); n > 0 {
		root["loop"] = ec.loopScopes[n-1]
	}
	return root
}

// Log appends an execution log entry
func (ec *ExecutionContext) Log(level, nodeID, message string, data map[string]interface{}) {
	entry := models.ExecutionLog{
		Timestamp: time.Now(),
		Level:     level,
		NodeID:    nodeID,
		Message:   message,
		Data:      data,
	}

	ec.mu.Lock()
	ec.logs = append(ec.logs, entry)
	sink := ec.logSink
	ec.mu.Unlock()

	if sink != nil {
		sink(entry)
	}
}

// Logs returns a copy of the execution log
func (ec *ExecutionContext) Logs() []models.ExecutionLog {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	logs := make([]models.ExecutionLog, len(ec.logs))
	copy(logs, ec.logs)
	return logs
}
