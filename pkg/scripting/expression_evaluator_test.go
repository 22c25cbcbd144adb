package scripting

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateSimpleExpressions(t *testing.T) {
	e := NewOttoExpressionEvaluator()

	value, err := e.Evaluate("1 + 2", nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, value)

	value, err = e.Evaluate("count > 3 && name === 'ada'", map[string]any{
		"count": 5,
		"name":  "ada",
	})
	require.NoError(t, err)
	assert.Equal(t, true, value)
}

func TestEvaluateContextIsolation(t *testing.T) {
	e := NewOttoExpressionEvaluator()

	// Bindings from one call must not leak into the next.
	_, err := e.Evaluate("leaked = 42", map[string]any{})
	require.NoError(t, err)

	_, err = e.Evaluate("leaked", map[string]any{})
	var scriptErr *ScriptError
	assert.True(t, errors.As(err, &scriptErr))
}

func TestEvaluateErrors(t *testing.T) {
	e := NewOttoExpressionEvaluator()

	var scriptErr *ScriptError

	_, err := e.Evaluate("", nil)
	require.True(t, errors.As(err, &scriptErr), "empty expression should be a script error")

	_, err = e.Evaluate("this is not javascript ===", nil)
	require.True(t, errors.As(err, &scriptErr), "syntax error should be a script error")

	_, err = e.Evaluate("(function(){ throw new Error('boom') })()", nil)
	require.True(t, errors.As(err, &scriptErr), "thrown error should be a script error")
}

func TestEvaluateBool(t *testing.T) {
	e := NewOttoExpressionEvaluator()

	ok, err := e.EvaluateBool("items.length > 1", map[string]any{
		"items": []any{"a", "b"},
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.EvaluateBool("0", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    bool
		wantErr bool
	}{
		{"nil", nil, false, false},
		{"true", true, true, false},
		{"false", false, false, false},
		{"empty string", "", false, false},
		{"string true", "true", true, false},
		{"string false", "false", false, false},
		{"string 1", "1", true, false},
		{"arbitrary string", "hello", false, true},
		{"zero int", 0, false, false},
		{"nonzero int", 7, true, false},
		{"zero float", float64(0), false, false},
		{"nonzero float", 0.5, true, false},
		{"unsupported type", []any{}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Truthy(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
