package runtime

import (
	"fmt"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/models"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/template"
)

// runSetVariableNode writes a user variable, either from a resolved value
// or through a transform script. A failing transform leaves any previous
// value of the variable untouched.
func (e *Engine) runSetVariableNode(ec *ExecutionContext, nodeID string, config *models.SetVariableConfig) (interface{}, error) {
	tctx := ec.TemplateContext()

	var value interface{}
	if config.UseTransform {
		input, found := template.Lookup(config.SourcePath, tctx)
		if !found {
			ec.Log("warning", nodeID, fmt.Sprintf("transform source path %q did not resolve", config.SourcePath), nil)
			input = nil
		}
		transformed, err := e.transforms.Transform(config.TransformScript, input)
		if err != nil {
			return nil, err
		}
		value = transformed
	} else {
		var warnings []template.Warning
		value, warnings = template.ResolveValue(config.VariableValue, tctx)
		logWarnings(ec, nodeID, warnings)
	}

	ec.SetVariable(config.VariableKey, value)
	ec.Log("info", nodeID, fmt.Sprintf("set variable %q", config.VariableKey), nil)

	return map[string]interface{}{
		"key":   config.VariableKey,
		"value": value,
	}, nil
}
