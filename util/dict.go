package util

import (
	"encoding/json"
	"strconv"
	"strings"
)

// DictGet - Walk a dotted path through nested maps and slices.
// Numeric segments index slices. Any missing segment yields the default.
func DictGet(data interface{}, path string, def interface{}) interface{} {
	if path == "" {
		if data == nil {
			return def
		}
		return data
	}
	result := data
	for _, key := range strings.Split(path, ".") {
		switch node := result.(type) {
		case map[string]interface{}:
			value, found := node[key]
			if !found {
				return def
			}
			result = value
		case []interface{}:
			index, err := strconv.Atoi(key)
			if err != nil || index < 0 || index >= len(node) {
				return def
			}
			result = node[index]
		case []map[string]interface{}:
			index, err := strconv.Atoi(key)
			if err != nil || index < 0 || index >= len(node) {
				return def
			}
			result = node[index]
		default:
			return def
		}
	}
	if result == nil {
		return def
	}
	return result
}

// ToFloat - Best-effort numeric conversion of decoded JSON values (numbers, numeric strings, bools).
func ToFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// ToString - Render scalar values as strings, empty for nil.
func ToString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return ""
	}
	return string(encoded)
}
