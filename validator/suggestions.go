package validator

import (
	"fmt"

	"encore.app/pkg/models"
)

// ambiguityGap is how close the top two confidences must be before we ask
// the caller for more terms.
const ambiguityGap = 0.05

// buildSuggestions derives actionable hints from the outcome. Empty when
// the result speaks for itself.
func buildSuggestions(matches []models.Match, pat *models.MathematicalPattern, degraded, timedOut bool) []string {
	var out []string

	if len(matches) >= 2 && matches[0].Confidence-matches[1].Confidence < ambiguityGap {
		out = append(out, fmt.Sprintf(
			"Top matches %s and %s are nearly tied; provide more terms to disambiguate.",
			matches[0].SequenceID, matches[1].SequenceID))
	}

	if len(matches) == 0 && pat != nil {
		out = append(out, fmt.Sprintf(
			"Terms follow %s but match no catalogued sequence; this may be a novel sequence.",
			pat.Formula))
	}

	if degraded {
		out = append(out, "The remote catalog was unreachable; results reflect cached data only.")
	}
	if timedOut {
		out = append(out, "Validation hit its time budget before scoring every candidate; results are partial.")
	}

	return out
}
