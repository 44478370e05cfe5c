// Package models provides canonical data models shared by the sequence
// validation services.
//
// Design Philosophy:
// - Immutable reference data: a ReferenceSequence is never mutated after fetch;
//   updates replace the whole record
// - Confidence values are always clamped to [0,1]
// - Deterministic ordering: matches sort by confidence descending, ties broken
//   by ascending sequence ID
// - Sentinel errors for the taxonomy callers are allowed to branch on
package models

import (
	"errors"
	"fmt"
	"sort"
)

// Sentinel errors forming the externally visible error taxonomy.
var (
	// ErrInvalidQuery indicates malformed input (empty terms, or fewer than
	// MinQueryTerms where required). Surfaced to the caller, never retried.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrRateLimited is an internal signal absorbed by the remote source's
	// retry loop. It never crosses a service boundary.
	ErrRateLimited = errors.New("rate limited")

	// ErrNetworkUnavailable indicates the remote catalog was unreachable
	// after all retries.
	ErrNetworkUnavailable = errors.New("network unavailable")

	// ErrCacheCorruption indicates a durable-tier row failed to deserialize.
	// Treated as a cache miss; the row is dropped.
	ErrCacheCorruption = errors.New("cache corruption")
)

// MinQueryTerms is the minimum number of terms a validation query must carry.
const MinQueryTerms = 3

// ReferenceSequence is one entry of the external catalog (OEIS).
//
// Immutable once fetched. Terms are 64-bit signed; entries whose catalog data
// overflows int64 are truncated at the first overflowing term by the client.
type ReferenceSequence struct {
	ID          string   `json:"id"`          // Catalog identifier, e.g. "A000045"
	Name        string   `json:"name"`        // Human-readable name
	Terms       []int64  `json:"terms"`       // Ordered known terms
	Description string   `json:"description"` // Optional closed-form/comment text
	Keywords    []string `json:"keywords"`    // Free-text keywords
	Offset      int      `json:"offset"`      // Index of the first stored term
}

// PatternKind tags the mathematical law a detector proposed.
type PatternKind string

const (
	PatternArithmetic PatternKind = "arithmetic"
	PatternGeometric  PatternKind = "geometric"
	PatternPolynomial PatternKind = "polynomial"
	PatternRecursive  PatternKind = "recursive"
	PatternNone       PatternKind = "none"
)

// MathematicalPattern is a detected symbolic law for a sequence of terms.
// Created fresh per validation call; never cached by this core.
type MathematicalPattern struct {
	Kind       PatternKind `json:"kind"`
	Formula    string      `json:"formula"`              // Human-readable, e.g. "a(n) = 2 + 2*n"
	Confidence float64     `json:"confidence"`           // In [0,1]
	Degree     int         `json:"degree,omitempty"`     // Polynomial degree, 0 otherwise
	Params     []float64   `json:"params,omitempty"`     // Numeric parameters of the law
	RelatedIDs []string    `json:"related_ids,omitempty"` // Catalog IDs it structurally resembles
}

// MatchKind classifies how query terms correspond to a reference sequence.
type MatchKind string

const (
	MatchExact         MatchKind = "exact"
	MatchSubsequence   MatchKind = "subsequence"
	MatchPatternImplied MatchKind = "pattern_implied"
	MatchSemantic      MatchKind = "semantic"
)

// Match is one candidate correspondence between query terms and a catalog entry.
type Match struct {
	SequenceID   string    `json:"sequence_id"`
	Name         string    `json:"name"`
	Kind         MatchKind `json:"kind"`
	Confidence   float64   `json:"confidence"`    // In [0,1]
	AlignedTerms []int64   `json:"aligned_terms"` // Query terms that aligned
	TermOffset   int       `json:"term_offset"`   // Index of the alignment in the reference terms
}

// ValidationResult is the externally visible output of a validation call.
//
// Invariant: Success implies at least one match with confidence at or above
// the caller's minimum threshold. Matches are sorted best-first with
// deterministic tie-breaking.
type ValidationResult struct {
	JobID       string               `json:"job_id"`
	Success     bool                 `json:"success"`
	Matches     []Match              `json:"matches"`
	Pattern     *MathematicalPattern `json:"pattern,omitempty"`
	Confidence  float64              `json:"confidence"`
	Suggestions []string             `json:"suggestions,omitempty"`
	Degraded    bool                 `json:"degraded"` // True when the remote catalog was unreachable
	ElapsedMS   int64                `json:"elapsed_ms"`
}

// SortMatches orders matches descending by confidence, ties broken by
// ascending sequence ID, so result ordering is byte-identical across runs.
// Complexity: O(n log n).
func SortMatches(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Confidence != matches[j].Confidence {
			return matches[i].Confidence > matches[j].Confidence
		}
		return matches[i].SequenceID < matches[j].SequenceID
	})
}

// ClampConfidence bounds a raw score to [0,1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// ValidateTerms checks the structural preconditions on a query.
// Returns ErrInvalidQuery (wrapped) on violation.
func ValidateTerms(terms []int64) error {
	if len(terms) == 0 {
		return fmt.Errorf("%w: terms cannot be empty", ErrInvalidQuery)
	}
	if len(terms) < MinQueryTerms {
		return fmt.Errorf("%w: need at least %d terms, got %d", ErrInvalidQuery, MinQueryTerms, len(terms))
	}
	return nil
}
