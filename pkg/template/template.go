// Package template provides placeholder substitution for dynamic node configuration.
//
// Templates use double-brace placeholders ("Hello {{contact.name}}") resolved against a
// nested context value. Paths support dotted keys and bracket indexes ("a.b[2].c").
// Missing, null or malformed paths resolve to the empty string.
package template

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{([^{}]*)\}\}`)

// Resolve replaces every {{expr}} occurrence in input with the stringified value found
// at the dotted path in data. It never fails; unresolvable expressions yield "".
func Resolve(input string, data map[string]any) string {
	if !strings.Contains(input, "{{") {
		return input
	}

	return placeholderPattern.ReplaceAllStringFunc(input, func(match string) string {
		path := strings.TrimSpace(match[2 : len(match)-2])
		if path == "" {
			return ""
		}

		value, ok := Lookup(path, data)
		if !ok || value == nil {
			return ""
		}

		return stringify(value)
	})
}

// ResolveMap resolves every value of a string map through Resolve.
func ResolveMap(input map[string]string, data map[string]any) map[string]string {
	resolved := make(map[string]string, len(input))
	for key, value := range input {
		resolved[key] = Resolve(value, data)
	}

	return resolved
}

// Lookup walks a dotted/bracket path ("a.b[2].c") into data, which is expected to be a
// JSON-shaped value (maps, slices, scalars). The second return is false when any
// segment does not resolve.
func Lookup(path string, data any) (any, bool) {
	segments, ok := parsePath(path)
	if !ok {
		return nil, false
	}

	current := data

	for _, segment := range segments {
		switch seg := segment.(type) {
		case string:
			obj, isMap := current.(map[string]any)
			if !isMap {
				return nil, false
			}

			value, exists := obj[seg]
			if !exists {
				return nil, false
			}

			current = value
		case int:
			arr, isSlice := current.([]any)
			if !isSlice || seg < 0 || seg >= len(arr) {
				return nil, false
			}

			current = arr[seg]
		}
	}

	return current, true
}

// parsePath splits "a.b[2].c" into []any{"a", "b", 2, "c"}.
func parsePath(path string) ([]any, bool) {
	segments := make([]any, 0, 4)

	for _, part := range strings.Split(path, ".") {
		if part == "" {
			return nil, false
		}

		for {
			open := strings.IndexByte(part, '[')
			if open == -1 {
				if part != "" {
					segments = append(segments, part)
				}

				break
			}

			closing := strings.IndexByte(part, ']')
			if closing < open {
				return nil, false
			}

			if open > 0 {
				segments = append(segments, part[:open])
			}

			index, err := strconv.Atoi(part[open+1 : closing])
			if err != nil {
				return nil, false
			}

			segments = append(segments, index)
			part = part[closing+1:]
		}
	}

	if len(segments) == 0 {
		return nil, false
	}

	return segments, true
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ""
		}

		return string(encoded)
	}
}
