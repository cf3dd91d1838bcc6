package domain

import (
	"fmt"
	"math"
	"strings"
)

// IsNull reports whether v counts as an absent attribute value.
func IsNull(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

// ValuesEqual compares two attribute values, treating numeric types by value.
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	af, aNum := asFloat(a)
	bf, bNum := asFloat(b)
	if aNum && bNum {
		return af == bf || (math.IsNaN(af) && math.IsNaN(bf))
	}
	if aNum != bNum {
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// KeyString renders natural key values as a stable, human readable string.
func KeyString(table string, values []any) string {
	var b strings.Builder
	b.WriteString(table)
	for _, v := range values {
		b.WriteByte('|')
		fmt.Fprint(&b, v)
	}
	return b.String()
}
