package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// NodeType identifies the kind of step a node performs
type NodeType string

const (
	NodeTypeHTTP        NodeType = "http"
	NodeTypeIfElse      NodeType = "ifElse"
	NodeTypeLoop        NodeType = "loop"
	NodeTypeSetVariable NodeType = "setVariable"
	NodeTypeLog         NodeType = "log"
	NodeTypeDelay       NodeType = "delay"
	NodeTypeStopJob     NodeType = "stopJob"
)

// Flow is an ordered list of nodes plus metadata
type Flow struct {
	// ID of the flow
	ID string `json:"id"`

	// Name of the flow
	Name string `json:"name"`

	// AccountID is the owner of the flow
	AccountID string `json:"account_id,omitempty"`

	// Nodes is the ordered list of steps
	Nodes []Node `json:"nodes"`

	// CreatedAt is when the flow was created
	CreatedAt time.Time `json:"created_at,omitempty"`

	// UpdatedAt is when the flow was last updated
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Validate checks structural invariants of a flow, in particular that node
// IDs are unique across the whole flow including nested loop bodies.
func (f *Flow) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("flow ID is required")
	}
	seen := make(map[string]bool)
	return validateNodes(f.Nodes, seen)
}

func validateNodes(nodes []Node, seen map[string]bool) error {
	for i := range nodes {
		node := &nodes[i]
		if node.ID == "" {
			return fmt.Errorf("node at position %d has no ID", i)
		}
		if seen[node.ID] {
			return fmt.Errorf("duplicate node ID: %s", node.ID)
		}
		seen[node.ID] = true

		if node.Config == nil {
			return fmt.Errorf("node %s has no config", node.ID)
		}
		if err := node.Config.Validate(); err != nil {
			return fmt.Errorf("node %s: %w", node.ID, err)
		}

		if loopCfg, ok := node.Config.(*LoopConfig); ok {
			if err := validateNodes(loopCfg.Nodes, seen); err != nil {
				return err
			}
		}
	}
	return nil
}

// Node is a single typed step in a flow. Config is a tagged union keyed by
// Type and is decoded into the concrete per-type struct.
type Node struct {
	// ID of the node, unique within a flow
	ID string `json:"id"`

	// Type of the node
	Type NodeType `json:"type"`

	// Config holds the per-type configuration
	Config NodeConfig `json:"config"`
}

// NodeConfig is implemented by every per-type configuration payload
type NodeConfig interface {
	Validate() error
}

// UnmarshalJSON decodes the config payload into the concrete struct for the
// node's type, so invalid shapes are rejected at load time rather than
// discovered mid-execution.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID     string          `json:"id"`
		Type   NodeType        `json:"type"`
		Config json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	n.ID = raw.ID
	n.Type = raw.Type

	config, err := newNodeConfig(raw.Type)
	if err != nil {
		return err
	}
	if len(raw.Config) > 0 {
		if err := json.Unmarshal(raw.Config, config); err != nil {
			return fmt.Errorf("invalid config for node %q: %w", raw.ID, err)
		}
	}
	n.Config = config
	return nil
}

func newNodeConfig(nodeType NodeType) (NodeConfig, error) {
	switch nodeType {
	case NodeTypeHTTP:
		return &HTTPConfig{}, nil
	case NodeTypeIfElse:
		return &IfElseConfig{}, nil
	case NodeTypeLoop:
		return &LoopConfig{}, nil
	case NodeTypeSetVariable:
		return &SetVariableConfig{}, nil
	case NodeTypeLog:
		return &LogConfig{}, nil
	case NodeTypeDelay:
		return &DelayConfig{}, nil
	case NodeTypeStopJob:
		return &StopJobConfig{}, nil
	default:
		return nil, fmt.Errorf("unknown node type: %q", nodeType)
	}
}

// HTTPConfig configures an outbound HTTP call
type HTTPConfig struct {
	// Method is the HTTP method, defaults to GET
	Method string `json:"method,omitempty"`

	// Endpoint is the request URL, may contain template placeholders.
	// When a connector is set, a relative endpoint is joined to the
	// connector's base URL.
	Endpoint string `json:"endpoint"`

	// Headers to send with the request
	Headers map[string]string `json:"headers,omitempty"`

	// QueryParams to append to the URL
	QueryParams map[string]string `json:"query_params,omitempty"`

	// Body of the request, may contain template placeholders
	Body interface{} `json:"body,omitempty"`

	// ConnectorID selects the connector used to authenticate the call
	ConnectorID string `json:"connector,omitempty"`

	// FailOnError aborts the whole flow when the node fails. Defaults to
	// true when unset.
	FailOnError *bool `json:"fail_on_error,omitempty"`

	// TimeoutSeconds bounds the outbound call
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`
}

// Validate checks the HTTP config
func (c *HTTPConfig) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("http node requires an endpoint")
	}
	if c.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must not be negative")
	}
	return nil
}

// Aborts reports whether a failure of this node aborts the flow
func (c *HTTPConfig) Aborts() bool {
	return c.FailOnError == nil || *c.FailOnError
}

// Comparison operators for ifElse nodes
const (
	OperatorEquals      = "equals"
	OperatorNotEquals   = "notEquals"
	OperatorContains    = "contains"
	OperatorNotContains = "notContains"
	OperatorGreaterThan = "greaterThan"
	OperatorLessThan    = "lessThan"
)

// IfElseConfig configures a conditional branch. In the linear node list the
// true and false branches are identified by the IDs of their first nodes;
// Merge names the node where the branches reconverge.
type IfElseConfig struct {
	// ConditionMode is "simple" (variable/operator/value) or "code"
	ConditionMode string `json:"condition_mode,omitempty"`

	// Variable is the left-hand side of a simple comparison, usually a
	// template placeholder
	Variable string `json:"variable,omitempty"`

	// Operator for a simple comparison
	Operator string `json:"operator,omitempty"`

	// Value is the right-hand side of a simple comparison
	Value interface{} `json:"value,omitempty"`

	// Condition is a free-form boolean expression used in code mode
	Condition string `json:"condition,omitempty"`

	// TrueNext is the ID of the first node of the true branch
	TrueNext string `json:"true_next,omitempty"`

	// FalseNext is the ID of the first node of the false branch
	FalseNext string `json:"false_next,omitempty"`

	// Merge is the ID of the node where both branches reconverge. Empty
	// means the branches run to the end of the list.
	Merge string `json:"merge,omitempty"`
}

// Validate checks the ifElse config
func (c *IfElseConfig) Validate() error {
	if c.ConditionMode == "code" {
		if c.Condition == "" {
			return fmt.Errorf("ifElse node in code mode requires a condition")
		}
		return nil
	}
	if c.Variable == "" {
		return fmt.Errorf("ifElse node requires a variable")
	}
	switch c.Operator {
	case OperatorEquals, OperatorNotEquals, OperatorContains,
		OperatorNotContains, OperatorGreaterThan, OperatorLessThan:
		return nil
	default:
		return fmt.Errorf("unknown operator: %q", c.Operator)
	}
}

// Loop kinds
const (
	LoopTypeForEach = "forEach"
	LoopTypeWhile   = "while"
)

// WhileLoopHardCap is the absolute upper bound on while-loop iterations.
// A loop that reaches the cap fails rather than hanging the execution.
const WhileLoopHardCap = 10000

// LoopConfig configures an iteration node. The loop body is the nested node
// list, executed once per item/batch (forEach) or per iteration (while).
type LoopConfig struct {
	// LoopType is "forEach" or "while"
	LoopType string `json:"loop_type"`

	// ArrayPath is a template path resolving to the array to iterate
	// (forEach only)
	ArrayPath string `json:"array_path,omitempty"`

	// BatchSize chunks the array; 0 or empty means all items at once.
	// The value may itself be a template placeholder.
	BatchSize string `json:"batch_size,omitempty"`

	// ConditionExpression is re-evaluated before each iteration (while only)
	ConditionExpression string `json:"condition_expression,omitempty"`

	// MaxIterations lowers the hard iteration cap for while loops
	MaxIterations int `json:"max_iterations,omitempty"`

	// Nodes is the loop body
	Nodes []Node `json:"nodes"`
}

// Validate checks the loop config
func (c *LoopConfig) Validate() error {
	switch c.LoopType {
	case LoopTypeForEach:
		if c.ArrayPath == "" {
			return fmt.Errorf("forEach loop requires an array_path")
		}
	case LoopTypeWhile:
		if c.ConditionExpression == "" {
			return fmt.Errorf("while loop requires a condition_expression")
		}
	default:
		return fmt.Errorf("unknown loop type: %q", c.LoopType)
	}
	if c.MaxIterations < 0 || c.MaxIterations > WhileLoopHardCap {
		return fmt.Errorf("max_iterations must be between 0 and %d", WhileLoopHardCap)
	}
	if len(c.Nodes) == 0 {
		return fmt.Errorf("loop requires at least one body node")
	}
	return nil
}

// IterationCap returns the effective while-loop cap
func (c *LoopConfig) IterationCap() int {
	if c.MaxIterations > 0 {
		return c.MaxIterations
	}
	return WhileLoopHardCap
}

// SetVariableConfig configures a variable assignment
type SetVariableConfig struct {
	// VariableKey is the name written into the vars map
	VariableKey string `json:"variable_key"`

	// VariableValue is the value to assign, may contain template
	// placeholders (direct mode)
	VariableValue interface{} `json:"variable_value,omitempty"`

	// UseTransform switches to transform mode: the value at SourcePath is
	// passed through TransformScript
	UseTransform bool `json:"use_transform,omitempty"`

	// SourcePath is the template path of the transform input
	SourcePath string `json:"source_path,omitempty"`

	// TransformScript receives the source value as `input` and must
	// return a value
	TransformScript string `json:"transform_script,omitempty"`
}

// Validate checks the setVariable config
func (c *SetVariableConfig) Validate() error {
	if c.VariableKey == "" {
		return fmt.Errorf("setVariable node requires a variable_key")
	}
	if c.UseTransform {
		if c.SourcePath == "" {
			return fmt.Errorf("transform mode requires a source_path")
		}
		if c.TransformScript == "" {
			return fmt.Errorf("transform mode requires a transform_script")
		}
	}
	return nil
}

// LogConfig configures a log node
type LogConfig struct {
	// Message to log, may contain template placeholders
	Message string `json:"message"`

	// LogLevel of the entry, defaults to "info"
	LogLevel string `json:"log_level,omitempty"`
}

// Validate checks the log config
func (c *LogConfig) Validate() error {
	if c.Message == "" {
		return fmt.Errorf("log node requires a message")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warning", "error":
		return nil
	default:
		return fmt.Errorf("unknown log level: %q", c.LogLevel)
	}
}

// Delay modes
const (
	DelayModeDuration = "duration"
	DelayModeCron     = "cron"
)

// DelayConfig configures a delay node. In cron mode the node records the
// schedule for an external scheduler and succeeds immediately.
type DelayConfig struct {
	// Mode is "duration" or "cron", defaults to duration
	Mode string `json:"mode,omitempty"`

	// Amount of time to wait, may be a template placeholder
	Amount string `json:"amount,omitempty"`

	// Unit of Amount: "milliseconds", "seconds", "minutes" or "hours"
	Unit string `json:"unit,omitempty"`

	// CronExpression holds the schedule in cron mode
	CronExpression string `json:"cron_expression,omitempty"`
}

// Validate checks the delay config
func (c *DelayConfig) Validate() error {
	switch c.Mode {
	case "", DelayModeDuration:
		if c.Amount == "" {
			return fmt.Errorf("delay node requires an amount")
		}
		switch c.Unit {
		case "", "milliseconds", "seconds", "minutes", "hours":
		default:
			return fmt.Errorf("unknown delay unit: %q", c.Unit)
		}
	case DelayModeCron:
		if c.CronExpression == "" {
			return fmt.Errorf("cron delay requires a cron_expression")
		}
	default:
		return fmt.Errorf("unknown delay mode: %q", c.Mode)
	}
	return nil
}

// Stop kinds
const (
	StopTypeSuccess = "success"
	StopTypeError   = "error"
)

// StopJobConfig configures a stopJob node, which terminates the flow
// immediately
type StopJobConfig struct {
	// StopType is "success" or "error"
	StopType string `json:"stop_type"`

	// ErrorMessage is resolved and carried on the execution when stopping
	// with an error
	ErrorMessage string `json:"error_message,omitempty"`
}

// Validate checks the stopJob config
func (c *StopJobConfig) Validate() error {
	switch c.StopType {
	case StopTypeSuccess, StopTypeError:
		return nil
	default:
		return fmt.Errorf("unknown stop type: %q", c.StopType)
	}
}
