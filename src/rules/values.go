package rules

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// isNumber reports whether v holds a Go numeric type. Numeric strings are not numbers.
func isNumber(v interface{}) bool {
	switch v.(type) {
	case decimal.Decimal, *decimal.Decimal, int, int32, int64, uint, uint32, uint64, float32, float64, json.Number:
		return true
	}
	return false
}

// toDecimal coerces v to a decimal. Strings are accepted when they parse as numbers.
func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case *decimal.Decimal:
		if n == nil {
			return decimal.Zero, false
		}
		return *n, true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint:
		return decimal.NewFromUint64(uint64(n)), true
	case uint32:
		return decimal.NewFromUint64(uint64(n)), true
	case uint64:
		return decimal.NewFromUint64(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case float64:
		return decimal.NewFromFloat(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		return d, err == nil
	}
	return decimal.Zero, false
}

// stringify renders a field value the way templates and string comparisons see it.
func stringify(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case *string:
		if s == nil {
			return ""
		}
		return *s
	case decimal.Decimal:
		return formatDecimal(s)
	case *decimal.Decimal:
		if s == nil {
			return ""
		}
		return formatDecimal(*s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case int64:
		return strconv.FormatInt(s, 10)
	case int:
		return strconv.Itoa(s)
	case bool:
		return strconv.FormatBool(s)
	case time.Time:
		return s.Format("2006-01-02")
	case []interface{}:
		parts := make([]string, 0, len(s))
		for _, item := range s {
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprint(v)
}

// asList normalises the list shapes a condition value or field can take.
func asList(v interface{}) ([]interface{}, bool) {
	switch l := v.(type) {
	case []interface{}:
		return l, true
	case []string:
		out := make([]interface{}, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case []int64:
		out := make([]interface{}, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, true
	case []int:
		out := make([]interface{}, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]interface{}, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, true
	}
	return nil, false
}

// valuesEqual compares numerically when either side is a number, otherwise as
// case-insensitive strings. Two numeric-looking strings still compare as text.
func valuesEqual(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if isNumber(a) || isNumber(b) {
		da, okA := toDecimal(a)
		db, okB := toDecimal(b)
		return okA && okB && da.Equal(db)
	}
	return strings.EqualFold(stringify(a), stringify(b))
}

// formatDecimal prints whole numbers without a fraction and cents with two digits.
func formatDecimal(d decimal.Decimal) string {
	if d.IsInteger() {
		return d.String()
	}
	if d.Round(2).Equal(d) {
		return d.StringFixed(2)
	}
	return d.String()
}
