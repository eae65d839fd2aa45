package utils

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// GetField is a helper for retreiving nested JSON keys with dot notation
func GetField(key string, data map[string]interface{}) (interface{}, bool) {
	if data == nil {
		return nil, false
	}
	bits := strings.SplitN(key, ".", 2)
	val, ok := data[bits[0]]
	if !ok {
		return nil, false
	}
	if len(bits) == 1 {
		return val, true
	}
	if res, ok := val.(map[string]interface{}); ok {
		return GetField(bits[1], res)
	}
	return nil, false
}

// Stringify converts a value from a decoded record into its string form
// Nested objects and arrays are encoded as compact JSON
// Nil, empty and whitespace-only values are reported as missing
func Stringify(val interface{}) (string, bool) {
	var s string
	switch v := val.(type) {
	case nil:
		return "", false
	case string:
		s = v
	case []byte:
		s = string(v)
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", false
		}
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			s = strconv.FormatInt(int64(v), 10)
		} else {
			s = strconv.FormatFloat(v, 'f', -1, 64)
		}
	case float32:
		return Stringify(float64(v))
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	case json.Number:
		s = v.String()
	case bool:
		s = strconv.FormatBool(v)
	case fmt.Stringer:
		s = v.String()
	case map[string]interface{}:
		if len(v) == 0 {
			return "", false
		}
		return encodeJSON(v)
	case []interface{}:
		if len(v) == 0 {
			return "", false
		}
		return encodeJSON(v)
	default:
		s = fmt.Sprintf("%v", v)
	}
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// map keys come out sorted, so output is stable across runs
func encodeJSON(v interface{}) (string, bool) {
	out, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(out), true
}

// ToInt converts integral numbers and numeric strings to int
// Fractional numbers are rejected
func ToInt(val interface{}) (int, bool) {
	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != math.Trunc(v) || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
		// tabular exports sometimes render integer columns as floats
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return ToInt(f)
		}
	}
	return 0, false
}
