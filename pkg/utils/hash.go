// Package utils provides cache-key construction, query hashing, and key
// pattern matching for the sequence validation services.
//
// Design Notes:
//   - FNV-1a 64-bit hashing (stdlib, fast, good distribution) for search
//     cache keys; a collision only costs a redundant catalog fetch
//   - Key namespaces carry a short prefix ("seq:", "search:") so pattern
//     invalidation can target one class of entries
package utils

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"
)

// Key namespaces used across both cache tiers.
const (
	SequenceKeyPrefix = "seq:"
	SearchKeyPrefix   = "search:"
)

// Search kinds namespacing SearchKey.
const (
	SearchKindTerms   = "terms"
	SearchKindKeyword = "keyword"
)

// TermsSignature renders terms in the catalog's canonical comma-separated
// form, e.g. "2,4,6,8". Used both as a search query and as hash input.
func TermsSignature(terms []int64) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = strconv.FormatInt(t, 10)
	}
	return strings.Join(parts, ",")
}

// SequenceKey builds the cache key for one reference sequence.
func SequenceKey(id string) string {
	return SequenceKeyPrefix + id
}

// SearchKey builds the cache key for a search-result list. kind separates
// term searches from keyword searches so they never collide.
func SearchKey(kind, query string) string {
	return fmt.Sprintf("%s%s:%s", SearchKeyPrefix, kind, QueryHash(query))
}

// QueryHash returns the FNV-1a 64-bit hash of a normalized query as fixed
// width hex. Normalization lowercases and collapses interior whitespace so
// trivially different spellings share a cache slot.
//
// Complexity: O(len(query)).
func QueryHash(query string) string {
	h := fnv.New64a()
	h.Write([]byte(normalizeQuery(query)))
	return fmt.Sprintf("%016x", h.Sum64())
}

func normalizeQuery(query string) string {
	fields := strings.Fields(strings.ToLower(query))
	return strings.Join(fields, " ")
}
