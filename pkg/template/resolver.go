// Package template resolves {{path}} placeholders embedded in node
// configuration against the execution context, and enumerates candidate
// paths into node results for editor suggestions.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// placeholderPattern matches {{path}} references. Unbalanced braces simply
// do not match and pass through as literal text.
var placeholderPattern = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Warning records a template path that could not be resolved. Resolution
// never fails; unresolvable placeholders become empty strings and surface
// as warnings instead.
type Warning struct {
	// Path that failed to resolve
	Path string `json:"path"`
}

func (w Warning) String() string {
	return fmt.Sprintf("unresolvable template path: %s", w.Path)
}

// Resolve substitutes every {{path}} placeholder in text against the given
// context. When the whole input is exactly one placeholder the resolved
// value keeps its original type (object, array, number, boolean), so a
// single placeholder can supply a full JSON body. Otherwise the result is a
// string with each placeholder stringified in place.
func Resolve(text string, context map[string]interface{}) (interface{}, []Warning) {
	var warnings []Warning

	// Whole-string single placeholder preserves the value's type.
	if path, ok := singlePlaceholder(text); ok {
		value, found := walkPath(context, path)
		if !found {
			return "", append(warnings, Warning{Path: path})
		}
		return value, warnings
	}

	result := placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-2])
		value, found := walkPath(context, path)
		if !found {
			warnings = append(warnings, Warning{Path: path})
			return ""
		}
		return Stringify(value)
	})

	return result, warnings
}

// ResolveString is Resolve with the result coerced to a string
func ResolveString(text string, context map[string]interface{}) (string, []Warning) {
	value, warnings := Resolve(text, context)
	if s, ok := value.(string); ok {
		return s, warnings
	}
	return Stringify(value), warnings
}

// ResolveInMap resolves every string value in a map, one level deep into
// nested maps and slices. Used for header and query parameter tables.
func ResolveInMap(values map[string]string, context map[string]interface{}) (map[string]string, []Warning) {
	if values == nil {
		return nil, nil
	}
	var warnings []Warning
	resolved := make(map[string]string, len(values))
	for key, value := range values {
		s, w := ResolveString(value, context)
		warnings = append(warnings, w...)
		resolved[key] = s
	}
	return resolved, warnings
}

// ResolveValue resolves placeholders in an arbitrary JSON-like value:
// strings are resolved, maps and slices are walked recursively, everything
// else passes through unchanged.
func ResolveValue(value interface{}, context map[string]interface{}) (interface{}, []Warning) {
	switch v := value.(type) {
	case string:
		return Resolve(v, context)
	case map[string]interface{}:
		var warnings []Warning
		resolved := make(map[string]interface{}, len(v))
		for key, item := range v {
			r, w := ResolveValue(item, context)
			warnings = append(warnings, w...)
			resolved[key] = r
		}
		return resolved, warnings
	case []interface{}:
		var warnings []Warning
		resolved := make([]interface{}, len(v))
		for i, item := range v {
			r, w := ResolveValue(item, context)
			warnings = append(warnings, w...)
			resolved[i] = r
		}
		return resolved, warnings
	default:
		return value, nil
	}
}

// Stringify renders a resolved value for embedding into surrounding text.
// Composites are rendered as JSON so they stay machine-readable.
func Stringify(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// singlePlaceholder reports whether text is exactly one placeholder with no
// surrounding literal text, and returns its path.
func singlePlaceholder(text string) (string, bool) {
	loc := placeholderPattern.FindStringIndex(text)
	if loc == nil || loc[0] != 0 || loc[1] != len(text) {
		return "", false
	}
	return strings.TrimSpace(text[2 : len(text)-2]), true
}

// indexedSegment matches a path segment with one or more [i] accessors,
// e.g. items[0] or grid[1][2]
var indexedSegment = regexp.MustCompile(`^([^\[\]]*)((?:\[\d+\])+)$`)

// walkPath resolves a dot/bracket path against a JSON-like root value. The
// boolean is false when any segment is missing, an index is out of range,
// or a scalar is dereferenced.
func walkPath(root interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}

	current := root
	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			return nil, false
		}

		name := segment
		var indexes []int
		if match := indexedSegment.FindStringSubmatch(segment); match != nil {
			name = match[1]
			for _, raw := range strings.Split(strings.Trim(match[2], "[]"), "][") {
				idx, err := strconv.Atoi(raw)
				if err != nil {
					return nil, false
				}
				indexes = append(indexes, idx)
			}
		}

		if name != "" {
			// length is a virtual property of arrays
			if name == "length" && len(indexes) == 0 {
				if arr, ok := current.([]interface{}); ok {
					current = float64(len(arr))
					continue
				}
			}
			obj, ok := current.(map[string]interface{})
			if !ok {
				return nil, false
			}
			value, exists := obj[name]
			if !exists {
				return nil, false
			}
			current = value
		}

		for _, idx := range indexes {
			arr, ok := current.([]interface{})
			if !ok {
				return nil, false
			}
			if idx < 0 || idx >= len(arr) {
				return nil, false
			}
			current = arr[idx]
		}
	}

	return current, true
}

// Lookup resolves a single path (no surrounding braces) against a context
func Lookup(path string, context map[string]interface{}) (interface{}, bool) {
	return walkPath(context, strings.TrimSpace(path))
}
