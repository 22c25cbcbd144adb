// Package scripting provides sandboxed evaluation of user-supplied
// transform scripts and condition expressions.
package scripting

import "fmt"

// ExpressionEvaluator evaluates free-form expressions used by ifElse nodes
// in code mode and by while-loop conditions
type ExpressionEvaluator interface {
	// Evaluate runs an expression against the given named values and
	// returns its result as a Go value
	Evaluate(expression string, context map[string]any) (any, error)

	// EvaluateBool runs an expression and coerces the result to a boolean
	EvaluateBool(expression string, context map[string]any) (bool, error)
}

// TransformEvaluator runs a user transform script against a single input
// value. The script sees only its declared input and must return a value.
type TransformEvaluator interface {
	// Transform executes the script with the given input bound as `input`
	Transform(script string, input any) (any, error)
}

// ScriptError indicates that a user-supplied script or expression threw or
// returned an unusable value. It is fatal to the node that ran it, never to
// the whole flow.
type ScriptError struct {
	// Detail describes what went wrong
	Detail string

	// Err is the underlying engine error, if any
	Err error
}

func (e *ScriptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("script error: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("script error: %s", e.Detail)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}
