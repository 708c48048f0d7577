package engine

import (
	"fmt"
)

// normalizeErrorValue flattens heterogeneous failure values into one log-friendly
// string. Provider clients surface errors as maps ({"message": ...} or {"error": ...}),
// internal failures as Go errors; logs store a single error_message column.
func normalizeErrorValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case error:
		return v.Error()
	case string:
		return v
	case map[string]any:
		if msg, ok := v["message"].(string); ok && msg != "" {
			return msg
		}

		if msg, ok := v["error"].(string); ok && msg != "" {
			return msg
		}

		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
