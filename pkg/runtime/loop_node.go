package runtime

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/models"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/template"
)

// runLoopNode executes the loop body once per item or batch (forEach) or
// until the condition turns false (while). Each iteration sees its scope
// under the "loop" template root; scopes nest for loops inside loops.
func (e *Engine) runLoopNode(ctx context.Context, ec *ExecutionContext, accountID, nodeID string, config *models.LoopConfig) (interface{}, error) {
	switch config.LoopType {
	case models.LoopTypeForEach:
		return e.runForEachLoop(ctx, ec, accountID, nodeID, config)
	case models.LoopTypeWhile:
		return e.runWhileLoop(ctx, ec, accountID, nodeID, config)
	default:
		return nil, fmt.Errorf("unknown loop type: %q", config.LoopType)
	}
}

func (e *Engine) runForEachLoop(ctx context.Context, ec *ExecutionContext, accountID, nodeID string, config *models.LoopConfig) (interface{}, error) {
	tctx := ec.TemplateContext()

	value, found := template.Lookup(strings.Trim(config.ArrayPath, "{} "), tctx)
	if !found {
		return nil, fmt.Errorf("array path %q did not resolve", config.ArrayPath)
	}
	items, ok := value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("array path %q resolved to %T, expected an array", config.ArrayPath, value)
	}

	// Zero or empty batch size means all items in one batch.
	batchSize := len(items)
	if config.BatchSize != "" {
		raw, warnings := template.ResolveString(config.BatchSize, tctx)
		logWarnings(ec, nodeID, warnings)
		parsed, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid batch size %q: %w", raw, err)
		}
		if parsed < 0 {
			return nil, fmt.Errorf("invalid batch size %q", raw)
		}
		if parsed > 0 {
			batchSize = parsed
		}
	}

	iterations := 0
	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}
		batch := items[start:end]
		iterations++

		scope := map[string]interface{}{
			"item":   batch[0],
			"index":  float64(start),
			"number": float64(iterations),
			"batch":  batch,
		}
		if err := e.runLoopBody(ctx, ec, accountID, nodeID, config.Nodes, scope, iterations); err != nil {
			return nil, err
		}
	}

	ec.Log("info", nodeID, fmt.Sprintf("forEach loop completed %d iterations over %d items", iterations, len(items)), nil)
	return map[string]interface{}{
		"iterations": float64(iterations),
		"items":      float64(len(items)),
	}, nil
}

func (e *Engine) runWhileLoop(ctx context.Context, ec *ExecutionContext, accountID, nodeID string, config *models.LoopConfig) (interface{}, error) {
	limit := config.IterationCap()
	startTime := time.Now()

	iterations := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// The condition is re-evaluated against fresh state each pass, so
		// body nodes that mutate variables can converge the loop.
		proceed, err := e.expressions.EvaluateBool(config.ConditionExpression, ec.TemplateContext())
		if err != nil {
			return nil, fmt.Errorf("loop condition evaluation failed: %w", err)
		}
		if !proceed {
			break
		}

		if iterations >= limit {
			return nil, &LoopLimitError{NodeID: nodeID, Iterations: iterations}
		}
		iterations++

		scope := map[string]interface{}{
			"iteration": float64(iterations),
			"startTime": startTime.Format(time.RFC3339),
		}
		if err := e.runLoopBody(ctx, ec, accountID, nodeID, config.Nodes, scope, iterations); err != nil {
			return nil, err
		}
	}

	ec.Log("info", nodeID, fmt.Sprintf("while loop completed %d iterations", iterations), nil)
	return map[string]interface{}{
		"iterations": float64(iterations),
	}, nil
}

func (e *Engine) runLoopBody(ctx context.Context, ec *ExecutionContext, accountID, nodeID string, body []models.Node, scope map[string]interface{}, iteration int) error {
	ec.PushLoopScope(scope)
	defer ec.PopLoopScope()

	ec.Log("debug", nodeID, fmt.Sprintf("loop iteration %d", iteration), nil)
	return e.runNodes(ctx, ec, accountID, body)
}
