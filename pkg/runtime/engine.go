// Package runtime executes flow definitions: it walks the node list,
// resolves templates against accumulated results, dispatches each node type
// and produces a terminal execution result.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/connectors"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/models"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/scripting"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/storage"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/template"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/utils"
)

// Engine executes flows against its collaborators. It is stateless across
// executions and safe for concurrent use.
type Engine struct {
	httpClient    *utils.HTTPClient
	authenticator *connectors.Authenticator
	connectors    storage.ConnectorStore
	expressions   scripting.ExpressionEvaluator
	transforms    scripting.TransformEvaluator
	results       storage.ExecutionStore
	logger        *slog.Logger
}

// EngineOptions configures an Engine. Zero-value fields fall back to
// defaults; Connectors and Results may stay nil, which disables connector
// lookup and last-result caching respectively.
type EngineOptions struct {
	HTTPClient    *utils.HTTPClient
	Authenticator *connectors.Authenticator
	Connectors    storage.ConnectorStore
	Expressions   scripting.ExpressionEvaluator
	Transforms    scripting.TransformEvaluator
	Results       storage.ExecutionStore
	Logger        *slog.Logger
}

// NewEngine creates a new execution engine
func NewEngine(opts EngineOptions) *Engine {
	if opts.HTTPClient == nil {
		opts.HTTPClient = utils.NewHTTPClient()
	}
	if opts.Authenticator == nil {
		opts.Authenticator = connectors.NewAuthenticator(nil)
	}
	if opts.Expressions == nil {
		opts.Expressions = scripting.NewOttoExpressionEvaluator()
	}
	if opts.Transforms == nil {
		opts.Transforms = scripting.NewGojaTransformEvaluator()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Engine{
		httpClient:    opts.HTTPClient,
		authenticator: opts.Authenticator,
		connectors:    opts.Connectors,
		expressions:   opts.Expressions,
		transforms:    opts.Transforms,
		results:       opts.Results,
		logger:        opts.Logger,
	}
}

// ExecuteFlow runs a flow to completion and returns the terminal record.
// The returned error is non-nil only for invalid input; execution failures
// are reported through the result's status.
func (e *Engine) ExecuteFlow(ctx context.Context, accountID string, flow models.Flow, vars map[string]interface{}) (*models.ExecutionResult, error) {
	return e.execute(ctx, uuid.New().String(), accountID, flow, vars, nil)
}

// execute is ExecuteFlow with the execution ID and log sink supplied by the
// caller, for the async execution service.
func (e *Engine) execute(ctx context.Context, executionID, accountID string, flow models.Flow, vars map[string]interface{}, sink func(models.ExecutionLog)) (*models.ExecutionResult, error) {
	if err := flow.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flow: %w", err)
	}

	ec := NewExecutionContext(vars)
	if sink != nil {
		ec.SetLogSink(sink)
	}

	startTime := time.Now()
	ec.Log("info", "", fmt.Sprintf("execution started for flow %s", flow.ID), nil)

	err := e.runNodes(ctx, ec, accountID, flow.Nodes)

	result := &models.ExecutionResult{
		ExecutionID: executionID,
		FlowID:      flow.ID,
		Status:      models.FlowStatusSuccess,
		NodeResults: ec.NodeResults(),
		StartTime:   startTime,
	}

	var stop *stopFlow
	switch {
	case err == nil:
		ec.Log("info", "", "execution completed", nil)

	case errors.As(err, &stop):
		if stop.success {
			ec.Log("info", "", "execution stopped by stopJob node", nil)
		} else {
			result.Status = models.FlowStatusError
			result.Error = stop.message
			ec.Log("error", "", fmt.Sprintf("execution stopped with error: %s", stop.message), nil)
		}

	case errors.Is(err, context.Canceled):
		result.Status = models.FlowStatusCancelled
		result.Error = "execution cancelled"
		ec.Log("warning", "", "execution cancelled", nil)

	default:
		result.Status = models.FlowStatusError
		result.Error = err.Error()
		ec.Log("error", "", fmt.Sprintf("execution failed: %v", err), nil)
	}

	result.Logs = ec.Logs()
	result.EndTime = time.Now()

	e.logger.Info("flow execution finished",
		"flow_id", flow.ID,
		"execution_id", executionID,
		"status", string(result.Status),
		"duration", result.EndTime.Sub(startTime))

	return result, nil
}

// runNodes walks one node list. Branch skipping is local to the list: an
// ifElse node inside a loop body cannot skip past the loop boundary.
func (e *Engine) runNodes(ctx context.Context, ec *ExecutionContext, accountID string, nodes []models.Node) error {
	// skipUntil, when set, marks nodes as skipped until the named node is
	// reached. otherHead/mergeAt track the non-chosen branch of the most
	// recent ifElse: reaching its head resumes skipping until the merge.
	var skipUntil string
	var skipRest bool
	var otherHead, mergeAt string

	for i := range nodes {
		node := &nodes[i]

		if err := ctx.Err(); err != nil {
			return err
		}

		if skipRest {
			e.markSkipped(ec, node.ID)
			continue
		}
		if skipUntil != "" {
			if node.ID != skipUntil {
				e.markSkipped(ec, node.ID)
				continue
			}
			skipUntil = ""
		}
		if otherHead != "" && node.ID == otherHead {
			otherHead = ""
			e.markSkipped(ec, node.ID)
			if mergeAt != "" {
				skipUntil = mergeAt
			} else {
				skipRest = true
			}
			continue
		}
		if mergeAt != "" && node.ID == mergeAt {
			otherHead, mergeAt = "", ""
		}

		if err := e.runNode(ctx, ec, accountID, node, func(branch branchChoice) {
			skipUntil = branch.skipUntil
			skipRest = branch.skipRest
			otherHead = branch.otherHead
			mergeAt = branch.mergeAt
		}); err != nil {
			// A stopJob or aborting failure leaves the rest of the list
			// skipped; a cancelled execution stops recording instead.
			if !errors.Is(err, context.Canceled) {
				for j := i + 1; j < len(nodes); j++ {
					e.markSkipped(ec, nodes[j].ID)
				}
			}
			return err
		}
	}
	return nil
}

// branchChoice is the walker state change an ifElse node requests
type branchChoice struct {
	skipUntil string
	skipRest  bool
	otherHead string
	mergeAt   string
}

// runNode executes a single node and records its result
func (e *Engine) runNode(ctx context.Context, ec *ExecutionContext, accountID string, node *models.Node, branch func(branchChoice)) error {
	ec.Log("debug", node.ID, fmt.Sprintf("executing %s node", node.Type), nil)
	started := time.Now()

	var result interface{}
	var err error

	switch config := node.Config.(type) {
	case *models.HTTPConfig:
		result, err = e.runHTTPNode(ctx, ec, accountID, node.ID, config)
	case *models.IfElseConfig:
		result, err = e.runIfElseNode(ec, node.ID, config, branch)
	case *models.LoopConfig:
		result, err = e.runLoopNode(ctx, ec, accountID, node.ID, config)
	case *models.SetVariableConfig:
		result, err = e.runSetVariableNode(ec, node.ID, config)
	case *models.LogConfig:
		result, err = e.runLogNode(ec, node.ID, config)
	case *models.DelayConfig:
		result, err = e.runDelayNode(ctx, ec, node.ID, config)
	case *models.StopJobConfig:
		result, err = e.runStopJobNode(ec, node.ID, config)
	default:
		err = fmt.Errorf("unsupported node type: %s", node.Type)
	}

	duration := time.Since(started).Milliseconds()

	// stopJob unwinds the walker without counting as a node failure
	var stop *stopFlow
	if errors.As(err, &stop) {
		ec.SetNodeResult(models.NodeResult{
			NodeID:     node.ID,
			Status:     models.NodeStatusSucceeded,
			Result:     result,
			DurationMs: duration,
		})
		return err
	}

	if err != nil {
		ec.SetNodeResult(models.NodeResult{
			NodeID:     node.ID,
			Status:     models.NodeStatusFailed,
			Result:     result,
			Error:      err.Error(),
			DurationMs: duration,
		})
		ec.Log("error", node.ID, fmt.Sprintf("node failed: %v", err), nil)

		// Script errors are fatal to the node, never to the whole flow;
		// http nodes opt out of aborting with fail_on_error.
		var scriptErr *scripting.ScriptError
		if errors.As(err, &scriptErr) {
			return nil
		}
		if httpCfg, ok := node.Config.(*models.HTTPConfig); ok && !httpCfg.Aborts() {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return err
		}
		return &NodeError{NodeID: node.ID, Err: err}
	}

	ec.SetNodeResult(models.NodeResult{
		NodeID:     node.ID,
		Status:     models.NodeStatusSucceeded,
		Result:     result,
		DurationMs: duration,
	})
	return nil
}

func (e *Engine) markSkipped(ec *ExecutionContext, nodeID string) {
	ec.SetNodeResult(models.NodeResult{
		NodeID: nodeID,
		Status: models.NodeStatusSkipped,
	})
	ec.Log("debug", nodeID, "node skipped", nil)
}

// logWarnings surfaces template resolution warnings on the execution log
func logWarnings(ec *ExecutionContext, nodeID string, warnings []template.Warning) {
	for _, warning := range warnings {
		ec.Log("warning", nodeID, warning.String(), nil)
	}
}
