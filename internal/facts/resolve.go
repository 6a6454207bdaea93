// Package facts resolves dotted paths against nested fact maps.
package facts

import (
	"strconv"
	"strings"
)

// Resolve walks facts along a dotted path such as "customer.loyaltyLevel".
//
// The boolean reports whether the path is defined. A missing segment, a nil
// intermediate value or an intermediate scalar all yield
// (nil, false). A key that is present but holds nil yields (nil, true).
// Numeric segments index into lists, so "items.0.sku" reads the first item.
func Resolve(facts map[string]any, path string) (any, bool) {
	if facts == nil || path == "" {
		return nil, false
	}

	var current any = facts
	for _, segment := range strings.Split(path, ".") {
		switch m := current.(type) {
		case map[string]any:
			v, ok := m[segment]
			if !ok {
				return nil, false
			}
			current = v
		case map[string]string:
			v, ok := m[segment]
			if !ok {
				return nil, false
			}
			current = v
		case []any:
			i, err := strconv.Atoi(segment)
			if err != nil || i < 0 || i >= len(m) {
				return nil, false
			}
			current = m[i]
		default:
			return nil, false
		}
	}
	return current, true
}
