// Package strings holds small helpers for cleaning user supplied lists.
package strings

import (
	"strings"
)

// SplitList splits every value on sep and returns the trimmed, non-empty
// parts with duplicates removed. First occurrence wins the position.
//
//	SplitList([]string{"a, b", "b,,c"}, ",") // []string{"a", "b", "c"}
func SplitList(values []string, sep string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, v := range values {
		for _, part := range strings.Split(v, sep) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if _, dup := seen[part]; dup {
				continue
			}
			seen[part] = struct{}{}
			out = append(out, part)
		}
	}
	return out
}
