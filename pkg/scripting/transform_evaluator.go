package scripting

import (
	"time"

	"github.com/dop251/goja"
)

// DefaultTransformTimeout bounds how long a transform script may run
const DefaultTransformTimeout = 5 * time.Second

// GojaTransformEvaluator executes user transform scripts with goja. Each
// script runs in a fresh VM whose only binding is the declared input value;
// there is no require, no filesystem, no network.
type GojaTransformEvaluator struct {
	timeout time.Duration
}

// NewGojaTransformEvaluator creates a new GojaTransformEvaluator
func NewGojaTransformEvaluator() *GojaTransformEvaluator {
	return &GojaTransformEvaluator{timeout: DefaultTransformTimeout}
}

// Transform executes the script with input bound as `input`. The script is
// wrapped in a function so it can use return statements; a script that
// throws or returns undefined/null is an error.
func (e *GojaTransformEvaluator) Transform(script string, input any) (any, error) {
	if script == "" {
		return nil, &ScriptError{Detail: "empty transform script"}
	}

	vm := goja.New()
	if err := vm.Set("input", input); err != nil {
		return nil, &ScriptError{Detail: "failed to bind input", Err: err}
	}

	// Runaway scripts are interrupted rather than hanging the node.
	timer := time.AfterFunc(e.timeout, func() {
		vm.Interrupt("transform script timed out")
	})
	defer timer.Stop()

	wrapped := "(function() {\n" + script + "\n})()"
	result, err := vm.RunString(wrapped)
	if err != nil {
		return nil, &ScriptError{Detail: "transform script failed", Err: err}
	}

	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, &ScriptError{Detail: "transform script returned no value"}
	}
	return result.Export(), nil
}
