package validator

import (
	"context"

	"encore.dev/rlog"

	"encore.app/pkg/embedding"
	"encore.app/pkg/models"
	"encore.app/pkg/pattern"
)

// Fixed weights of the four scoring signals. They sum to 1, so a perfect
// candidate scores exactly 1.0.
const (
	weightExact       = 0.4
	weightSubsequence = 0.3
	weightPattern     = 0.2
	weightSemantic    = 0.1
)

// score blends the four signals into one match. Returns false when the
// candidate shares nothing with the query. When the semantic signal is
// structurally absent (no context or no embedder), the blend renormalizes
// over the remaining weights so a perfect structural match still scores 1.0.
func (s *Service) score(ctx context.Context, query []int64, queryContext string, cand models.ReferenceSequence, pat *models.MathematicalPattern) (models.Match, bool) {
	exact, offset := alignExact(cand.Terms, query)

	var subseq float64
	aligned := query
	if exact == 0 {
		lcs := longestCommonSubsequence(query, cand.Terms)
		subseq = float64(len(lcs)) / float64(len(query))
		aligned = lcs
	} else {
		subseq = 1.0
	}

	// The pattern signal asks whether the law fitted to the query keeps
	// holding for the candidate from the aligned position onward.
	var patScore float64
	if pat != nil {
		window := cand.Terms
		if exact > 0 {
			window = cand.Terms[offset:]
		}
		if pattern.Explains(pat, window) {
			patScore = 1.0
		}
	}

	semantic, hasSemantic := s.semanticScore(ctx, queryContext, cand)

	total := weightExact*exact + weightSubsequence*subseq + weightPattern*patScore + weightSemantic*semantic
	if !hasSemantic {
		total /= 1 - weightSemantic
	}
	if total == 0 {
		return models.Match{}, false
	}

	kind := models.MatchSemantic
	switch {
	case exact > 0:
		kind = models.MatchExact
	case subseq > 0:
		kind = models.MatchSubsequence
	case patScore > 0:
		kind = models.MatchPatternImplied
	}

	return models.Match{
		SequenceID:   cand.ID,
		Name:         cand.Name,
		Kind:         kind,
		Confidence:   models.ClampConfidence(total),
		AlignedTerms: aligned,
		TermOffset:   offset,
	}, true
}

// semanticScore compares the caller-supplied context against the
// candidate's name and description. The boolean reports whether the signal
// participates at all; embedding failures drop the signal rather than
// failing the match.
func (s *Service) semanticScore(ctx context.Context, queryContext string, cand models.ReferenceSequence) (float64, bool) {
	if s.embedder == nil || queryContext == "" {
		return 0, false
	}

	qv, err := s.embedder.Embed(ctx, queryContext)
	if err != nil {
		s.metrics.EmbeddingErrors.Add(1)
		rlog.Warn("context embedding failed", "err", err)
		return 0, false
	}
	cv, err := s.embedder.Embed(ctx, cand.Name+" "+cand.Description)
	if err != nil {
		s.metrics.EmbeddingErrors.Add(1)
		rlog.Warn("candidate embedding failed", "id", cand.ID, "err", err)
		return 0, false
	}
	return embedding.Cosine(qv, cv), true
}

// alignExact reports whether the query occurs as a contiguous run of the
// reference terms, and at which index. Score is 1 or 0.
func alignExact(reference, query []int64) (score float64, offset int) {
	if len(query) == 0 || len(query) > len(reference) {
		return 0, 0
	}
	for i := 0; i+len(query) <= len(reference); i++ {
		match := true
		for j := range query {
			if reference[i+j] != query[j] {
				match = false
				break
			}
		}
		if match {
			return 1, i
		}
	}
	return 0, 0
}

// longestCommonSubsequence returns the LCS of the two term slices, keeping
// order but not contiguity. Standard dynamic program, O(len(a)*len(b)).
func longestCommonSubsequence(a, b []int64) []int64 {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}

	dp := make([][]int, len(a)+1)
	for i := range dp {
		dp[i] = make([]int, len(b)+1)
	}
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				dp[i][j] = dp[i-1][j-1] + 1
			} else if dp[i-1][j] >= dp[i][j-1] {
				dp[i][j] = dp[i-1][j]
			} else {
				dp[i][j] = dp[i][j-1]
			}
		}
	}

	out := make([]int64, 0, dp[len(a)][len(b)])
	for i, j := len(a), len(b); i > 0 && j > 0; {
		switch {
		case a[i-1] == b[j-1]:
			out = append(out, a[i-1])
			i--
			j--
		case dp[i-1][j] >= dp[i][j-1]:
			i--
		default:
			j--
		}
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}
