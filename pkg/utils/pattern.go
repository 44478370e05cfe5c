package utils

import "strings"

// MatchPattern checks a cache key against a pattern.
//
// Pattern syntax:
//   - Exact: "seq:A000045" matches only that key
//   - Prefix: "search:*" matches every key in the search namespace
//   - "*" matches everything
//
// Prefix matching is the hot path for tier invalidation; anything more
// expressive is out of scope for cache keys this engine generates.
func MatchPattern(pattern, key string) bool {
	if pattern == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(key, pattern[:len(pattern)-1])
	}
	return pattern == key
}
