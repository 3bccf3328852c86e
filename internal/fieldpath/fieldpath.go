// Package fieldpath resolves dot-separated key paths inside decoded JSON values.
package fieldpath

import "strings"

// Get walks data by the dotted path and returns the value found there.
// Returns nil when the path is empty, a segment is missing, or an
// intermediate value is not an object. Falsy-but-present values (false, 0,
// "") are returned as-is. Array indexing is not supported: a numeric segment
// against a list resolves to nil.
func Get(data any, path string) any {
	if path == "" {
		return nil
	}

	current := data
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		value, ok := obj[part]
		if !ok {
			return nil
		}
		current = value
	}
	return current
}
