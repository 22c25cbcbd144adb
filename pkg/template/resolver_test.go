package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testContext() map[string]interface{} {
	return map[string]interface{}{
		"fetchUsers": map[string]interface{}{
			"status": "succeeded",
			"result": map[string]interface{}{
				"body": map[string]interface{}{
					"users": []interface{}{
						map[string]interface{}{"name": "ada", "age": float64(36)},
						map[string]interface{}{"name": "grace", "age": float64(45)},
					},
					"total": float64(2),
				},
				"status": float64(200),
			},
		},
		"vars": map[string]interface{}{
			"greeting": "hello",
			"count":    float64(5),
		},
	}
}

func TestResolveInterpolatesIntoText(t *testing.T) {
	result, warnings := Resolve("say {{vars.greeting}} to {{fetchUsers.result.body.users[0].name}}", testContext())
	require.Empty(t, warnings)
	assert.Equal(t, "say hello to ada", result)
}

func TestResolveSinglePlaceholderPreservesType(t *testing.T) {
	ctx := testContext()

	value, warnings := Resolve("{{fetchUsers.result.body.users}}", ctx)
	require.Empty(t, warnings)
	users, ok := value.([]interface{})
	require.True(t, ok, "expected array, got %T", value)
	assert.Len(t, users, 2)

	number, warnings := Resolve("{{vars.count}}", ctx)
	require.Empty(t, warnings)
	assert.Equal(t, float64(5), number)
}

func TestResolveNumberInTextHasNoExponent(t *testing.T) {
	ctx := map[string]interface{}{
		"vars": map[string]interface{}{"big": float64(12345678901)},
	}
	result, warnings := Resolve("id={{vars.big}}", ctx)
	require.Empty(t, warnings)
	assert.Equal(t, "id=12345678901", result)
}

func TestResolveUnresolvableBecomesEmptyStringWithWarning(t *testing.T) {
	result, warnings := Resolve("value: {{missing.path}}", testContext())
	assert.Equal(t, "value: ", result)
	require.Len(t, warnings, 1)
	assert.Equal(t, "missing.path", warnings[0].Path)

	// A whole-string placeholder degrades the same way.
	value, warnings := Resolve("{{nothing.here}}", testContext())
	assert.Equal(t, "", value)
	require.Len(t, warnings, 1)
}

func TestResolveLengthVirtualProperty(t *testing.T) {
	value, warnings := Resolve("{{fetchUsers.result.body.users.length}}", testContext())
	require.Empty(t, warnings)
	assert.Equal(t, float64(2), value)
}

func TestResolveLengthOnNonArrayWarns(t *testing.T) {
	_, warnings := Resolve("{{fetchUsers.result.body.total.length}}", testContext())
	assert.Len(t, warnings, 1)
}

func TestResolveBracketIndexes(t *testing.T) {
	ctx := map[string]interface{}{
		"grid": map[string]interface{}{
			"result": map[string]interface{}{
				"rows": []interface{}{
					[]interface{}{"a", "b"},
					[]interface{}{"c", "d"},
				},
			},
		},
	}
	value, warnings := Resolve("{{grid.result.rows[1][0]}}", ctx)
	require.Empty(t, warnings)
	assert.Equal(t, "c", value)

	_, warnings = Resolve("{{grid.result.rows[5]}}", ctx)
	assert.Len(t, warnings, 1, "out of range index should warn")
}

func TestResolveUnbalancedBracesPassThrough(t *testing.T) {
	result, warnings := Resolve("literal {{unclosed", testContext())
	assert.Empty(t, warnings)
	assert.Equal(t, "literal {{unclosed", result)
}

func TestResolveObjectStringifiedInsideText(t *testing.T) {
	ctx := map[string]interface{}{
		"node": map[string]interface{}{
			"result": map[string]interface{}{"key": "value"},
		},
	}
	result, warnings := Resolve("got {{node.result}}", ctx)
	require.Empty(t, warnings)
	assert.Equal(t, `got {"key":"value"}`, result)
}

func TestResolveInMap(t *testing.T) {
	resolved, warnings := ResolveInMap(map[string]string{
		"X-Count": "{{vars.count}}",
		"X-Plain": "static",
	}, testContext())
	require.Empty(t, warnings)
	assert.Equal(t, "5", resolved["X-Count"])
	assert.Equal(t, "static", resolved["X-Plain"])
}

func TestResolveValueWalksComposites(t *testing.T) {
	body := map[string]interface{}{
		"greeting": "{{vars.greeting}}",
		"nested": map[string]interface{}{
			"users": "{{fetchUsers.result.body.users}}",
		},
		"list":  []interface{}{"{{vars.count}}", "literal"},
		"count": float64(7),
	}
	resolved, warnings := ResolveValue(body, testContext())
	require.Empty(t, warnings)

	m := resolved.(map[string]interface{})
	assert.Equal(t, "hello", m["greeting"])
	assert.Equal(t, float64(7), m["count"])

	nested := m["nested"].(map[string]interface{})
	users := nested["users"].([]interface{})
	assert.Len(t, users, 2)

	list := m["list"].([]interface{})
	assert.Equal(t, float64(5), list[0])
	assert.Equal(t, "literal", list[1])
}

func TestLookup(t *testing.T) {
	value, found := Lookup("fetchUsers.result.status", testContext())
	require.True(t, found)
	assert.Equal(t, float64(200), value)

	_, found = Lookup("fetchUsers.result.body.users[0].missing", testContext())
	assert.False(t, found)
}
