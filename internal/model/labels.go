package model

import (
	"sort"
	"strings"
)

// NormalizeLabels trims, drops empties, deduplicates, and sorts a label set.
// Stored labels are always in this form; the function is idempotent.
func NormalizeLabels(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if _, dup := seen[l]; dup {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// NormalizeStringSet applies the label normalization to any set-like string
// list (files, linked task ids).
func NormalizeStringSet(items []string) []string {
	return NormalizeLabels(items)
}
