// Package jsonutil converts loosely typed JSON values produced by an LLM.
package jsonutil

import (
	"encoding/json"
	"strconv"
)

// StringValue renders a decoded JSON value as a plain string, the way a
// caller would have typed it. Integral numbers lose their fractional part and
// exponent (1e+06 becomes "1000000"), null becomes "", and objects and
// arrays are re-encoded as compact JSON.
func StringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return StringValue(float64(val))
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case json.Number:
		return val.String()
	case json.RawMessage:
		return RawStringValue(val)
	}

	encoded, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(encoded)
}

// RawStringValue is StringValue for an undecoded value.
func RawStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return StringValue(v)
}
