package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// Normalize trims and stringifies a raw field map. Values that are empty,
// nil or false become "", numeric zero is kept as "0".
func Normalize(raw map[string]any) map[string]string {
	fields := make(map[string]string, len(raw))
	for key, value := range raw {
		fields[key] = strings.TrimSpace(stringify(value))
	}
	return fields
}

// NormalizeStrings trims every value of an already stringified map.
func NormalizeStrings(raw map[string]string) map[string]string {
	fields := make(map[string]string, len(raw))
	for key, value := range raw {
		fields[key] = strings.TrimSpace(value)
	}
	return fields
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case []string:
		if len(v) == 0 {
			return ""
		}
		return v[0]
	case bool:
		if !v {
			return ""
		}
		return "true"
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
