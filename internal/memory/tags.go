package memory

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// normalizeTags returns tags in NFC form with surrounding space removed.
// Empty tags and repeats are dropped; first-seen order is kept.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = norm.NFC.String(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
