package runtime

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/darshitpatel1/runai-flow-sub001/pkg/models"
	"github.com/darshitpatel1/runai-flow-sub001/pkg/template"
)

// runIfElseNode evaluates the condition and tells the walker which branch
// to run. The non-chosen branch is skipped up to the merge node.
func (e *Engine) runIfElseNode(ec *ExecutionContext, nodeID string, config *models.IfElseConfig, branch func(branchChoice)) (interface{}, error) {
	tctx := ec.TemplateContext()

	var outcome bool
	var err error
	if config.ConditionMode == "code" {
		outcome, err = e.expressions.EvaluateBool(config.Condition, tctx)
		if err != nil {
			return nil, fmt.Errorf("condition evaluation failed: %w", err)
		}
	} else {
		left, warnings := template.Resolve(config.Variable, tctx)
		logWarnings(ec, nodeID, warnings)

		right := config.Value
		if s, ok := right.(string); ok {
			var w []template.Warning
			right, w = template.Resolve(s, tctx)
			logWarnings(ec, nodeID, w)
		}

		outcome, err = compare(left, config.Operator, right)
		if err != nil {
			return nil, err
		}
	}

	chosen, other := config.TrueNext, config.FalseNext
	branchName := "true"
	if !outcome {
		chosen, other = config.FalseNext, config.TrueNext
		branchName = "false"
	}
	ec.Log("info", nodeID, fmt.Sprintf("condition evaluated to %v, taking %s branch", outcome, branchName), nil)

	choice := branchChoice{otherHead: other, mergeAt: config.Merge}
	switch {
	case chosen != "":
		choice.skipUntil = chosen
	case config.Merge != "":
		// Empty branch: fall through to the merge point.
		choice.skipUntil = config.Merge
		choice.otherHead = ""
	case other != "":
		// Only the non-chosen branch has nodes; nothing left to run.
		choice.skipRest = true
		choice.otherHead = ""
	}
	branch(choice)

	return map[string]interface{}{
		"condition": outcome,
		"branch":    branchName,
	}, nil
}

// compare applies an ifElse operator to two resolved values
func compare(left interface{}, operator string, right interface{}) (bool, error) {
	switch operator {
	case models.OperatorEquals:
		return looseEqual(left, right), nil
	case models.OperatorNotEquals:
		return !looseEqual(left, right), nil
	case models.OperatorContains:
		return containsValue(left, right), nil
	case models.OperatorNotContains:
		return !containsValue(left, right), nil
	case models.OperatorGreaterThan:
		return numericCompare(left, right, func(a, b float64) bool { return a > b })
	case models.OperatorLessThan:
		return numericCompare(left, right, func(a, b float64) bool { return a < b })
	default:
		return false, fmt.Errorf("unknown operator: %q", operator)
	}
}

// looseEqual compares values the way flow authors expect: numbers compare
// numerically even when one side arrived as a string.
func looseEqual(left, right interface{}) bool {
	if reflect.DeepEqual(left, right) {
		return true
	}
	if ln, lok := toNumber(left); lok {
		if rn, rok := toNumber(right); rok {
			return ln == rn
		}
	}
	return template.Stringify(left) == template.Stringify(right)
}

func containsValue(left, right interface{}) bool {
	switch l := left.(type) {
	case string:
		return strings.Contains(l, template.Stringify(right))
	case []interface{}:
		for _, item := range l {
			if looseEqual(item, right) {
				return true
			}
		}
	case map[string]interface{}:
		if key, ok := right.(string); ok {
			_, exists := l[key]
			return exists
		}
	}
	return false
}

func numericCompare(left, right interface{}, cmp func(a, b float64) bool) (bool, error) {
	ln, lok := toNumber(left)
	rn, rok := toNumber(right)
	if !lok || !rok {
		return false, fmt.Errorf("cannot compare %v and %v numerically", left, right)
	}
	return cmp(ln, rn), nil
}

func toNumber(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return n, err == nil
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
