// Package strings provides string list helpers.
package strings

import (
	"strings"
)

// Dedupe applies normalize to each element and drops empty results and
// repeats, keeping first-seen order.
func Dedupe(values []string, normalize func(string) string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = normalize(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

// DedupeAndTrim is Dedupe with whitespace trimming.
//
//	DedupeAndTrim([]string{"  PRIMARY ", "PARTNERS", "PRIMARY", ""})
//	// []string{"PRIMARY", "PARTNERS"}
func DedupeAndTrim(values []string) []string {
	return Dedupe(values, strings.TrimSpace)
}

// SplitList splits a comma separated list and dedupes the trimmed parts.
func SplitList(s string) []string {
	return DedupeAndTrim(strings.Split(s, ","))
}
