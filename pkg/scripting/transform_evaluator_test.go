package scripting

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformReturnsValue(t *testing.T) {
	e := NewGojaTransformEvaluator()

	result, err := e.Transform("return input.toUpperCase()", "hello")
	require.NoError(t, err)
	assert.Equal(t, "HELLO", result)
}

func TestTransformReshapesObjects(t *testing.T) {
	e := NewGojaTransformEvaluator()

	result, err := e.Transform(`
		return input.users.map(function(u) { return u.name; });
	`, map[string]any{
		"users": []any{
			map[string]any{"name": "ada"},
			map[string]any{"name": "grace"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"ada", "grace"}, result)
}

func TestTransformErrors(t *testing.T) {
	e := NewGojaTransformEvaluator()

	var scriptErr *ScriptError

	_, err := e.Transform("", "x")
	require.True(t, errors.As(err, &scriptErr), "empty script")

	_, err = e.Transform("throw new Error('bad input')", "x")
	require.True(t, errors.As(err, &scriptErr), "throw")

	_, err = e.Transform("var unused = input", "x")
	require.True(t, errors.As(err, &scriptErr), "no return value")

	_, err = e.Transform("return null", "x")
	require.True(t, errors.As(err, &scriptErr), "null return")
}

func TestTransformTimeout(t *testing.T) {
	e := &GojaTransformEvaluator{timeout: 50 * time.Millisecond}

	start := time.Now()
	_, err := e.Transform("while (true) {}", nil)
	elapsed := time.Since(start)

	var scriptErr *ScriptError
	require.True(t, errors.As(err, &scriptErr))
	assert.Less(t, elapsed, 5*time.Second, "interrupt should fire well before the default timeout")
}
