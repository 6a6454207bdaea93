package rules

import (
	"encoding/json"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// compare applies op to a resolved fact. defined is false when the fact path
// did not resolve; such a fact equals nothing and orders against nothing.
func compare(op Operator, fact any, defined bool, value any) bool {
	switch op {
	case OperatorEqual:
		return strictEqual(fact, defined, value)
	case OperatorNotEqual:
		return !strictEqual(fact, defined, value)
	case OperatorGreaterThan:
		c, ok := order(fact, defined, value)
		return ok && c > 0
	case OperatorGreaterThanInclusive:
		c, ok := order(fact, defined, value)
		return ok && c >= 0
	case OperatorLessThan:
		c, ok := order(fact, defined, value)
		return ok && c < 0
	case OperatorLessThanInclusive:
		c, ok := order(fact, defined, value)
		return ok && c <= 0
	case OperatorContains:
		return contains(fact, defined, value)
	case OperatorNotContains:
		return !contains(fact, defined, value)
	default:
		return false
	}
}

// strictEqual compares scalars by value. Numbers compare numerically whatever
// their Go type. Lists, maps and structs other than time.Time are never equal.
func strictEqual(a any, defined bool, b any) bool {
	if !defined {
		return false
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if fa, ok := toNumber(a); ok {
		fb, ok := toNumber(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch va.Kind() {
	case reflect.String:
		return vb.Kind() == reflect.String && va.String() == vb.String()
	case reflect.Bool:
		return vb.Kind() == reflect.Bool && va.Bool() == vb.Bool()
	default:
		return false
	}
}

// order returns the sign of a-b for comparable pairs. ok is false when the
// pair has no natural ordering.
func order(a any, defined bool, b any) (int, bool) {
	if !defined || a == nil || b == nil {
		return 0, false
	}
	if fa, ok := toNumber(a); ok {
		fb, ok := toNumber(b)
		if !ok || math.IsNaN(fa) || math.IsNaN(fb) {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		default:
			return 0, true
		}
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() == reflect.String && vb.Kind() == reflect.String {
		return strings.Compare(va.String(), vb.String()), true
	}
	return 0, false
}

// contains tests list membership when the fact is a list and substring
// containment of the string forms otherwise.
func contains(fact any, defined bool, value any) bool {
	if defined && fact != nil {
		v := reflect.ValueOf(fact)
		if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
			for i := 0; i < v.Len(); i++ {
				if strictEqual(v.Index(i).Interface(), true, value) {
					return true
				}
			}
			return false
		}
	}
	return strings.Contains(stringify(fact, defined), stringify(value, true))
}

func toNumber(v any) (float64, bool) {
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	default:
		return 0, false
	}
}

// stringify renders a value the way a loosely typed runtime would when
// concatenating it into text: "undefined", "null", shortest numbers and
// comma-joined lists.
func stringify(v any, defined bool) string {
	if !defined {
		return "undefined"
	}
	if v == nil {
		return "null"
	}
	if f, ok := toNumber(v); ok {
		return formatNumber(f)
	}
	if t, ok := v.(time.Time); ok {
		return t.Format(time.RFC3339)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			elem := rv.Index(i).Interface()
			if elem != nil {
				parts[i] = stringify(elem, true)
			}
		}
		return strings.Join(parts, ",")
	default:
		return "[object Object]"
	}
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	abs := math.Abs(f)
	if abs == 0 || (abs >= 1e-6 && abs < 1e21) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
