package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Stringify renders a raw property value as a trimmed string. Numbers are
// written without exponent or trailing zeros, so 11010.0 becomes "11010".
// It reports false for nil, empty and non-finite values.
func Stringify(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		s = t
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return "", false
		}
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return Stringify(float64(t))
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return Stringify(f)
		}
		s = t.String()
	case bool:
		s = strconv.FormatBool(t)
	default:
		s = fmt.Sprint(t)
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}
