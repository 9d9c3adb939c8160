package common

import (
	"strings"

	"github.com/IGLOU-EU/go-wildcard/v2"
)

// MatchesAny reports whether value matches any of the wildcard patterns
// (e.g. "eth_send*"). A leading "!" negates a pattern.
func MatchesAny(patterns []string, value string) bool {
	matched := false
	for _, pattern := range patterns {
		if strings.HasPrefix(pattern, "!") {
			if wildcard.Match(pattern[1:], value) {
				return false
			}
			continue
		}
		if wildcard.Match(pattern, value) {
			matched = true
		}
	}
	return matched
}
