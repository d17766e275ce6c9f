package sign

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Params is a flat parameter map that takes part in signing.
type Params map[string]any

// Clone returns a shallow copy of p.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge copies every entry of other into p, overwriting existing keys.
func (p Params) Merge(other Params) Params {
	for k, v := range other {
		p[k] = v
	}
	return p
}

// Canonicalize renders params as the exact string that is signed.
//
// Keys are sorted by byte value. Entries whose value is nil, blank after
// trimming, or begins with '@' are omitted. The rest are joined as
// key=value pairs separated by '&'.
func Canonicalize(params Params) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		v, ok := Stringify(params[k])
		if !ok || strings.TrimSpace(v) == "" || strings.HasPrefix(v, "@") {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	return b.String()
}

// Stringify converts a scalar parameter value to its wire form.
// It reports false for nil values. Booleans render as "1" and "", so a
// false flag is left out of the signed string and the request.
func Stringify(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case []byte:
		return string(val), true
	case bool:
		if val {
			return "1", true
		}
		return "", true
	case int:
		return strconv.Itoa(val), true
	case int8, int16, int32, int64:
		return fmt.Sprintf("%d", val), true
	case uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case json.Number:
		return val.String(), true
	case fmt.Stringer:
		return val.String(), true
	default:
		return fmt.Sprint(val), true
	}
}
