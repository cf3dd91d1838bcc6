package entitymodel

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ListSeparator joins list values stored in text columns.
const ListSeparator = ";"

// Coerce converts a decoded value to the canonical Go type of the column:
// string for text, int64 for integer and float64 for real. Nil stays nil.
func (c Column) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil, nil
	}
	switch c.Type {
	case TypeText:
		return coerceText(v)
	case TypeInteger:
		return coerceInteger(v)
	case TypeReal:
		return coerceReal(v)
	default:
		return nil, fmt.Errorf("column %s: unknown type %q", c.Name, c.Type)
	}
}

func coerceText(v any) (any, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	case time.Time:
		return t.UTC().Format(time.RFC3339), nil
	case []string:
		return strings.Join(t, ListSeparator), nil
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ListSeparator), nil
	default:
		return fmt.Sprint(t), nil
	}
}

func coerceInteger(v any) (any, error) {
	switch t := v.(type) {
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case int64:
		return t, nil
	case uint64:
		if t > math.MaxInt64 {
			return nil, fmt.Errorf("integer %d out of range", t)
		}
		return int64(t), nil
	case float64:
		if t != math.Trunc(t) {
			return nil, fmt.Errorf("%v is not an integer", t)
		}
		return int64(t), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			f, ferr := strconv.ParseFloat(s, 64)
			if ferr != nil || f != math.Trunc(f) {
				return nil, fmt.Errorf("%q is not an integer", t)
			}
			return int64(f), nil
		}
		return n, nil
	default:
		return nil, fmt.Errorf("cannot use %T as integer", v)
	}
}

func coerceReal(v any) (any, error) {
	switch t := v.(type) {
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case float32:
		return float64(t), nil
	case float64:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", t)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("cannot use %T as real", v)
	}
}

// CoerceRow converts every value of a stored row to its column type. Unknown
// columns are rejected and nil values are dropped.
func (t *Table) CoerceRow(values map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for name, v := range values {
		col, ok := t.StoredColumn(name)
		if !ok {
			return nil, fmt.Errorf("%s: unknown column %s", t.Name, name)
		}
		cv, err := col.Coerce(v)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t.Name, name, err)
		}
		if cv != nil {
			out[name] = cv
		}
	}
	return out, nil
}

// MissingRequired returns the stored non-nullable columns absent from values.
func (t *Table) MissingRequired(values map[string]any) []string {
	var missing []string
	for _, c := range t.Stored() {
		if c.Nullable {
			continue
		}
		if v, ok := values[c.Name]; !ok || v == nil {
			missing = append(missing, c.Name)
		}
	}
	return missing
}
