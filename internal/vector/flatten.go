package vector

import (
	"fmt"
	"sort"
	"strings"
)

// Flatten converts nested chunk metadata into the flat string form the
// vector store holds: list values are comma-joined, nested maps become
// dot-path keys, nil values are elided. Flatten and Parse are the only
// code touching the flat form; everything else works with typed metadata.
func Flatten(meta map[string]any) map[string]string {
	flat := make(map[string]string)
	flattenInto(flat, "", meta)
	return flat
}

func flattenInto(flat map[string]string, prefix string, value any) {
	switch v := value.(type) {
	case nil:
		// Elided.
	case map[string]any:
		for key, child := range v {
			childKey := key
			if prefix != "" {
				childKey = prefix + "." + key
			}
			flattenInto(flat, childKey, child)
		}
	case []string:
		if len(v) > 0 {
			flat[prefix] = strings.Join(v, ",")
		}
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		if len(parts) > 0 {
			flat[prefix] = strings.Join(parts, ",")
		}
	case string:
		if v != "" {
			flat[prefix] = v
		}
	case bool:
		flat[prefix] = fmt.Sprintf("%t", v)
	case float64:
		flat[prefix] = trimFloat(v)
	case float32:
		flat[prefix] = trimFloat(float64(v))
	case int:
		flat[prefix] = fmt.Sprintf("%d", v)
	default:
		flat[prefix] = fmt.Sprintf("%v", v)
	}
}

// trimFloat renders floats without trailing zeros so round-trips are
// stable.
func trimFloat(f float64) string {
	s := fmt.Sprintf("%g", f)
	return s
}

// ParseList splits a flattened list value back into its elements:
// comma-split, trimmed, empties dropped.
func ParseList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SortedKeys returns the flat map's keys in deterministic order.
func SortedKeys(flat map[string]string) []string {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
