// Package pattern implements pure, stateless detection of mathematical laws
// in short integer sequences.
//
// Detectors run in a fixed order — arithmetic, geometric, polynomial,
// recursive — and the first confident result wins. A result below the 0.5
// confidence floor counts as "no structure detected", which is a legitimate
// outcome, not an error.
//
// Performance Characteristics:
// - Arithmetic/geometric/recursive: O(n) over the input terms
// - Polynomial: O(n*d) accumulation + constant-size solve per degree in {2,3,4}
//
// All functions are side-effect free and safe for concurrent use.
package pattern

import (
	"fmt"
	"math"
	"strings"

	"encore.app/pkg/models"
)

const (
	// minConfidence is the floor below which a detection is discarded.
	minConfidence = 0.5

	// geometricTolerance is the relative tolerance for equal consecutive ratios.
	geometricTolerance = 1e-4

	// polynomialMaxError is the mean relative error ceiling for an accepted fit.
	polynomialMaxError = 0.01

	minPolynomialTerms = 5
	minRecursiveTerms  = 6
)

// Detect proposes a symbolic law for terms, or nil when none of the
// detectors produces a confident match.
func Detect(terms []int64) *models.MathematicalPattern {
	if len(terms) < models.MinQueryTerms {
		return nil
	}

	detectors := []func([]int64) *models.MathematicalPattern{
		detectArithmetic,
		detectGeometric,
		detectPolynomial,
		detectRecursive,
	}

	for _, detect := range detectors {
		if p := detect(terms); p != nil && p.Confidence >= minConfidence {
			return p
		}
	}
	return nil
}

// detectArithmetic checks for a constant consecutive difference.
func detectArithmetic(terms []int64) *models.MathematicalPattern {
	d := terms[1] - terms[0]
	for i := 2; i < len(terms); i++ {
		if terms[i]-terms[i-1] != d {
			return nil
		}
	}

	return &models.MathematicalPattern{
		Kind:       models.PatternArithmetic,
		Formula:    formatLinear(terms[0], d),
		Confidence: 0.95,
		Params:     []float64{float64(terms[0]), float64(d)},
	}
}

// detectGeometric checks for a constant consecutive ratio. Zero terms
// disqualify the sequence outright.
func detectGeometric(terms []int64) *models.MathematicalPattern {
	for _, t := range terms {
		if t == 0 {
			return nil
		}
	}

	ratio := float64(terms[1]) / float64(terms[0])
	for i := 2; i < len(terms); i++ {
		r := float64(terms[i]) / float64(terms[i-1])
		if math.Abs(r/ratio-1) > geometricTolerance {
			return nil
		}
	}

	return &models.MathematicalPattern{
		Kind:       models.PatternGeometric,
		Formula:    fmt.Sprintf("a(n) = %d * %s^n", terms[0], formatFloat(ratio)),
		Confidence: 0.90,
		Params:     []float64{float64(terms[0]), ratio},
	}
}

// detectPolynomial tries degrees 2..4 by least squares and accepts the lowest
// degree whose mean relative error stays under 1%. Confidence decays with
// degree: 0.85, 0.80, 0.75.
func detectPolynomial(terms []int64) *models.MathematicalPattern {
	if len(terms) < minPolynomialTerms {
		return nil
	}

	ys := make([]float64, len(terms))
	for i, t := range terms {
		ys[i] = float64(t)
	}

	for degree := 2; degree <= 4; degree++ {
		coeffs, ok := fitPolynomial(ys, degree)
		if !ok {
			continue
		}
		if meanRelativeError(coeffs, ys) >= polynomialMaxError {
			continue
		}

		return &models.MathematicalPattern{
			Kind:       models.PatternPolynomial,
			Formula:    formatPolynomial(coeffs),
			Confidence: 0.85 - 0.05*float64(degree-2),
			Degree:     degree,
			Params:     coeffs,
		}
	}
	return nil
}

// detectRecursive tests the order-2 additive recurrence a(n) = a(n-1) + a(n-2)
// exactly for all n >= 2. Detected sequences link the canonical Fibonacci
// entry; a (2, 1) seed additionally links Lucas.
func detectRecursive(terms []int64) *models.MathematicalPattern {
	if len(terms) < minRecursiveTerms {
		return nil
	}

	for i := 2; i < len(terms); i++ {
		if terms[i] != terms[i-1]+terms[i-2] {
			return nil
		}
	}

	related := []string{FibonacciID}
	if terms[0] == 2 && terms[1] == 1 {
		related = append(related, LucasID)
	}

	return &models.MathematicalPattern{
		Kind:       models.PatternRecursive,
		Formula:    "a(n) = a(n-1) + a(n-2)",
		Confidence: 0.90,
		Params:     []float64{float64(terms[0]), float64(terms[1])},
		RelatedIDs: related,
	}
}

// Explains reports whether terms obey the law carried by p. Used by the
// validator to award the pattern sub-score to catalog candidates.
func Explains(p *models.MathematicalPattern, terms []int64) bool {
	if p == nil || len(terms) < 2 {
		return false
	}

	switch p.Kind {
	case models.PatternArithmetic:
		if len(p.Params) < 2 {
			return false
		}
		d := int64(p.Params[1])
		for i := 1; i < len(terms); i++ {
			if terms[i]-terms[i-1] != d {
				return false
			}
		}
		return true

	case models.PatternGeometric:
		if len(p.Params) < 2 {
			return false
		}
		ratio := p.Params[1]
		for i := 1; i < len(terms); i++ {
			if terms[i-1] == 0 {
				return false
			}
			r := float64(terms[i]) / float64(terms[i-1])
			if math.Abs(r/ratio-1) > geometricTolerance {
				return false
			}
		}
		return true

	case models.PatternPolynomial:
		if len(p.Params) == 0 {
			return false
		}
		ys := make([]float64, len(terms))
		for i, t := range terms {
			ys[i] = float64(t)
		}
		return meanRelativeError(p.Params, ys) < polynomialMaxError

	case models.PatternRecursive:
		if len(terms) < 3 {
			return false
		}
		for i := 2; i < len(terms); i++ {
			if terms[i] != terms[i-1]+terms[i-2] {
				return false
			}
		}
		return true
	}
	return false
}

// formatLinear renders "a(n) = a0 + d*n" with natural sign handling.
func formatLinear(a0, d int64) string {
	switch {
	case d >= 0:
		return fmt.Sprintf("a(n) = %d + %d*n", a0, d)
	default:
		return fmt.Sprintf("a(n) = %d - %d*n", a0, -d)
	}
}

// formatPolynomial renders fitted coefficients as a readable formula,
// dropping terms with negligible coefficients.
func formatPolynomial(coeffs []float64) string {
	var b strings.Builder
	b.WriteString("a(n) = ")

	wrote := false
	for i, c := range coeffs {
		if math.Abs(c) < 1e-9 {
			continue
		}
		if wrote {
			if c >= 0 {
				b.WriteString(" + ")
			} else {
				b.WriteString(" - ")
				c = -c
			}
		}
		switch i {
		case 0:
			b.WriteString(formatFloat(c))
		case 1:
			fmt.Fprintf(&b, "%s*n", formatFloat(c))
		default:
			fmt.Fprintf(&b, "%s*n^%d", formatFloat(c), i)
		}
		wrote = true
	}
	if !wrote {
		b.WriteString("0")
	}
	return b.String()
}

// formatFloat prints integers without a decimal point and everything else
// with minimal digits.
func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%.4g", f)
}
