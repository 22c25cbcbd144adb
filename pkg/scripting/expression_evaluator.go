package scripting

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/robertkrimen/otto"
)

// OttoExpressionEvaluator evaluates expressions with an embedded JavaScript
// interpreter. Every call runs in a fresh VM that sees only the values it
// is handed, so expressions cannot reach ambient process state.
type OttoExpressionEvaluator struct{}

// NewOttoExpressionEvaluator creates a new OttoExpressionEvaluator
func NewOttoExpressionEvaluator() *OttoExpressionEvaluator {
	return &OttoExpressionEvaluator{}
}

// Evaluate runs an expression against the given context
func (e *OttoExpressionEvaluator) Evaluate(expression string, context map[string]any) (any, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, &ScriptError{Detail: "empty expression"}
	}

	vm := otto.New()
	vm.Interrupt = make(chan func(), 1)
	for key, value := range context {
		if err := vm.Set(key, value); err != nil {
			return nil, &ScriptError{Detail: fmt.Sprintf("failed to bind %q", key), Err: err}
		}
	}

	result, err := vm.Run(expression)
	if err != nil {
		return nil, &ScriptError{Detail: fmt.Sprintf("failed to evaluate %q", expression), Err: err}
	}

	value, err := result.Export()
	if err != nil {
		return nil, &ScriptError{Detail: "failed to export result", Err: err}
	}
	return value, nil
}

// EvaluateBool runs an expression and coerces the result to a boolean
func (e *OttoExpressionEvaluator) EvaluateBool(expression string, context map[string]any) (bool, error) {
	value, err := e.Evaluate(expression, context)
	if err != nil {
		return false, err
	}
	return Truthy(value)
}

// Truthy converts an evaluated value to a boolean. Strings must spell a
// boolean; numbers are true when non-zero.
func Truthy(value any) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		if v == "" {
			return false, nil
		}
		result, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("cannot convert string %q to boolean: %w", v, err)
		}
		return result, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	default:
		return false, fmt.Errorf("cannot convert %T to boolean", value)
	}
}
