package template

import (
	"sort"
)

// Enumeration bounds. Excess depth and properties are skipped silently so
// the suggestion list stays usable in an editor.
const (
	// MaxEnumerationDepth bounds object nesting
	MaxEnumerationDepth = 4

	// MaxPropertiesPerObject bounds how many properties of one object are
	// visited
	MaxPropertiesPerObject = 15

	// MaxEnumeratedPaths caps the total number of suggestions
	MaxEnumeratedPaths = 25
)

// frame is one pending value on the traversal frontier
type frame struct {
	value  interface{}
	prefix string
	depth  int
}

// Enumerate produces a bounded, deduplicated list of dot/bracket paths into
// a JSON-like value: one path per scalar property plus one per composite
// visited. Arrays are sampled, never fully expanded: the array itself, its
// length, and its first element (recursing into it when it is an object).
// Non-object input yields an empty list. Enumerate never fails.
func Enumerate(value interface{}) []string {
	root, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}

	var paths []string
	seen := make(map[string]bool)
	emit := func(path string) bool {
		if path == "" || seen[path] {
			return len(paths) < MaxEnumeratedPaths
		}
		seen[path] = true
		paths = append(paths, path)
		return len(paths) < MaxEnumeratedPaths
	}

	// Explicit frontier instead of recursion, so the depth and width caps
	// are structural.
	frontier := []frame{{value: root, prefix: "", depth: 0}}
	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]

		obj, ok := current.value.(map[string]interface{})
		if !ok {
			continue
		}

		// Map iteration order is randomized; sort keys so suggestions are
		// stable between calls on the same value.
		keys := make([]string, 0, len(obj))
		for key := range obj {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		if len(keys) > MaxPropertiesPerObject {
			keys = keys[:MaxPropertiesPerObject]
		}

		for _, key := range keys {
			path := key
			if current.prefix != "" {
				path = current.prefix + "." + key
			}

			switch child := obj[key].(type) {
			case map[string]interface{}:
				if !emit(path) {
					return paths
				}
				if current.depth+1 < MaxEnumerationDepth {
					frontier = append(frontier, frame{value: child, prefix: path, depth: current.depth + 1})
				}
			case []interface{}:
				if !emit(path) || !emit(path+".length") {
					return paths
				}
				if len(child) > 0 {
					first := path + "[0]"
					if !emit(first) {
						return paths
					}
					if firstObj, ok := child[0].(map[string]interface{}); ok && current.depth+1 < MaxEnumerationDepth {
						frontier = append(frontier, frame{value: firstObj, prefix: first, depth: current.depth + 1})
					}
				}
			case string, float64, bool, int, int64:
				if !emit(path) {
					return paths
				}
			default:
				// null and unknown shapes are skipped
			}
		}
	}

	return paths
}
