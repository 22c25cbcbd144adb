package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/models"
)

// TestNode executes a single node in isolation against the supplied
// variables, for the editor's "test this step" action. Only http nodes can
// be tested this way; other node types only make sense inside a flow.
func (e *Engine) TestNode(ctx context.Context, accountID string, node models.Node, vars map[string]interface{}) (models.NodeResult, error) {
	config, ok := node.Config.(*models.HTTPConfig)
	if !ok {
		return models.NodeResult{}, fmt.Errorf("only http nodes can be tested in isolation, got %q", node.Type)
	}
	if err := config.Validate(); err != nil {
		return models.NodeResult{}, fmt.Errorf("invalid node config: %w", err)
	}

	ec := NewExecutionContext(vars)
	started := time.Now()
	result, err := e.runHTTPNode(ctx, ec, accountID, node.ID, config)

	nodeResult := models.NodeResult{
		NodeID:     node.ID,
		Status:     models.NodeStatusSucceeded,
		Result:     result,
		DurationMs: time.Since(started).Milliseconds(),
	}
	if err != nil {
		nodeResult.Status = models.NodeStatusFailed
		nodeResult.Error = err.Error()
	}
	return nodeResult, nil
}
