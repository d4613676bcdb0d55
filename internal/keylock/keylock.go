// Package keylock provides mutual exclusion over sets of string keys, such as
// "user:<id>" and "group:<id>", so that concurrent team-formation requests
// touching the same users or groups run one at a time. Keys are always taken
// in Normalize order.
package keylock

import "sort"

// Normalize sorts keys and removes empties and duplicates. Two key sets are
// equal exactly when their normalized forms are equal.
func Normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Equal reports whether two normalized key sets are identical.
func Equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
