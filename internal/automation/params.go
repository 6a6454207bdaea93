package automation

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/lalithlochan/crmflow/internal/facts"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// interpolate replaces {{path}} references in string values with facts.
// A string that is exactly one placeholder takes the fact's own value, so
// numbers and lists keep their type. Unresolved placeholders are left as is.
func interpolate(v any, f map[string]any) any {
	switch t := v.(type) {
	case string:
		if m := placeholder.FindStringSubmatch(t); m != nil && m[0] == strings.TrimSpace(t) {
			if val, ok := facts.Resolve(f, m[1]); ok {
				return val
			}
			return t
		}
		return placeholder.ReplaceAllStringFunc(t, func(ref string) string {
			path := placeholder.FindStringSubmatch(ref)[1]
			if val, ok := facts.Resolve(f, path); ok && val != nil {
				return fmt.Sprint(val)
			}
			return ref
		})
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = interpolate(val, f)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = interpolate(val, f)
		}
		return out
	default:
		return v
	}
}

type params map[string]any

func (p params) str(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (p params) object(key string) (map[string]any, error) {
	switch v := p[key].(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("param %q must be an object, got %T", key, v)
	}
}

// number accepts any JSON or YAML number, or a numeric string.
func (p params) number(key string) (int64, error) {
	switch v := p[key].(type) {
	case nil:
		return 0, nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("param %q is not a finite number", key)
		}
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("param %q: %w", key, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("param %q must be a number, got %T", key, v)
	}
}

// list accepts a list or a comma separated string.
func (p params) list(key string) []string {
	switch v := p[key].(type) {
	case nil:
		return nil
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
