package models

import "time"

// FlowStatus represents the overall state of a flow execution
type FlowStatus string

const (
	FlowStatusRunning   FlowStatus = "running"
	FlowStatusSuccess   FlowStatus = "success"
	FlowStatusError     FlowStatus = "error"
	FlowStatusCancelled FlowStatus = "cancelled"
)

// NodeStatus represents the state of a single node within an execution
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusSucceeded NodeStatus = "succeeded"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSkipped   NodeStatus = "skipped"
)

// ExecutionLog represents a log entry for an execution
type ExecutionLog struct {
	// Timestamp of the log entry
	Timestamp time.Time `json:"timestamp"`

	// Level of the log entry
	Level string `json:"level"` // "debug", "info", "warning", "error"

	// NodeID is the ID of the node that generated the log
	NodeID string `json:"node_id,omitempty"`

	// Message is the log message
	Message string `json:"message"`

	// Data is additional context for the log entry
	Data map[string]interface{} `json:"data,omitempty"`
}

// NodeResult captures the outcome of one node within an execution
type NodeResult struct {
	// NodeID of the node this result belongs to
	NodeID string `json:"node_id"`

	// Status the node finished in
	Status NodeStatus `json:"status"`

	// Result is the value the node produced, if any
	Result interface{} `json:"result,omitempty"`

	// Error message if the node failed
	Error string `json:"error,omitempty"`

	// DurationMs is how long the node ran, in milliseconds
	DurationMs int64 `json:"duration_ms"`
}

// ExecutionResult is the terminal record handed back to the caller of an
// execution. It is produced exactly once per run and is complete even for
// aborted runs.
type ExecutionResult struct {
	// ExecutionID of the run
	ExecutionID string `json:"execution_id"`

	// FlowID of the flow that was executed
	FlowID string `json:"flow_id"`

	// Status the execution finished in
	Status FlowStatus `json:"status"`

	// Error carries the flow-level error message, if any
	Error string `json:"error,omitempty"`

	// NodeResults holds the outcome of every node, keyed by node ID
	NodeResults map[string]NodeResult `json:"node_results"`

	// Logs is the ordered execution log
	Logs []ExecutionLog `json:"logs"`

	// StartTime is when the execution started
	StartTime time.Time `json:"start_time"`

	// EndTime is when the execution completed
	EndTime time.Time `json:"end_time"`
}

// ExecutionStatus tracks a possibly still-running execution for status
// queries and persistence
type ExecutionStatus struct {
	// ID of the execution
	ID string `json:"id"`

	// FlowID is the ID of the flow being executed
	FlowID string `json:"flow_id"`

	// AccountID is the owner of the execution
	AccountID string `json:"account_id"`

	// Status of the execution
	Status FlowStatus `json:"status"`

	// StartTime is when the execution started
	StartTime time.Time `json:"start_time"`

	// EndTime is when the execution completed
	EndTime time.Time `json:"end_time,omitempty"`

	// Error message if the execution failed
	Error string `json:"error,omitempty"`

	// Result is the terminal record, present once the run has finished
	Result *ExecutionResult `json:"result,omitempty"`
}
