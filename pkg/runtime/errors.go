package runtime

import "fmt"

// LoopLimitError indicates that a while loop hit its iteration cap. It is
// fatal to the execution: a loop that never converges is a flow bug, not a
// condition to paper over.
type LoopLimitError struct {
	// NodeID of the loop that overran
	NodeID string

	// Iterations it completed before being stopped
	Iterations int
}

func (e *LoopLimitError) Error() string {
	return fmt.Sprintf("loop %s exceeded %d iterations", e.NodeID, e.Iterations)
}

// NodeError indicates that a node failed in a way that aborts the flow
type NodeError struct {
	// NodeID of the failing node
	NodeID string

	// Err is the underlying failure
	Err error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s failed: %v", e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// stopFlow is the control signal raised by stopJob nodes. It unwinds the
// node walker, including out of nested loop bodies.
type stopFlow struct {
	success bool
	message string
}

func (e *stopFlow) Error() string {
	if e.success {
		return "flow stopped"
	}
	return e.message
}
