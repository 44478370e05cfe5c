package pattern

import (
	"math"
	"testing"

	"encore.app/pkg/models"
)

func TestDetect_Arithmetic(t *testing.T) {
	cases := []struct {
		name  string
		terms []int64
		diff  float64
	}{
		{"even numbers", []int64{2, 4, 6, 8, 10}, 2},
		{"descending", []int64{10, 7, 4, 1, -2}, -3},
		{"constant", []int64{5, 5, 5}, 0},
		{"minimum length", []int64{1, 4, 7}, 3},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := Detect(c.terms)
			if p == nil {
				t.Fatal("expected arithmetic pattern, got nil")
			}
			if p.Kind != models.PatternArithmetic {
				t.Fatalf("kind = %s, want arithmetic", p.Kind)
			}
			if p.Confidence < 0.9 {
				t.Errorf("confidence = %v, want >= 0.9", p.Confidence)
			}
			if p.Params[1] != c.diff {
				t.Errorf("difference = %v, want %v", p.Params[1], c.diff)
			}
		})
	}
}

func TestDetect_Geometric(t *testing.T) {
	cases := []struct {
		name  string
		terms []int64
		ratio float64
	}{
		{"powers of two", []int64{1, 2, 4, 8, 16, 32}, 2},
		{"tripling", []int64{2, 6, 18, 54}, 3},
		{"alternating sign", []int64{1, -2, 4, -8, 16}, -2},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := Detect(c.terms)
			if p == nil {
				t.Fatal("expected geometric pattern, got nil")
			}
			if p.Kind != models.PatternGeometric {
				t.Fatalf("kind = %s, want geometric", p.Kind)
			}
			if p.Confidence < 0.85 {
				t.Errorf("confidence = %v, want >= 0.85", p.Confidence)
			}
			if math.Abs(p.Params[1]-c.ratio) > 1e-9 {
				t.Errorf("ratio = %v, want %v", p.Params[1], c.ratio)
			}
		})
	}
}

func TestDetect_GeometricRejectsZeroTerms(t *testing.T) {
	if p := Detect([]int64{0, 0, 0, 0}); p != nil && p.Kind == models.PatternGeometric {
		t.Error("sequence containing zeros must not be geometric")
	}
}

func TestDetect_PolynomialSquares(t *testing.T) {
	// n^2: degree 2, confidence 0.85.
	p := Detect([]int64{0, 1, 4, 9, 16, 25, 36})
	if p == nil {
		t.Fatal("expected polynomial pattern, got nil")
	}
	if p.Kind != models.PatternPolynomial {
		t.Fatalf("kind = %s, want polynomial", p.Kind)
	}
	if p.Degree != 2 {
		t.Errorf("degree = %d, want 2", p.Degree)
	}
	if math.Abs(p.Confidence-0.85) > 1e-9 {
		t.Errorf("confidence = %v, want 0.85", p.Confidence)
	}
}

func TestDetect_PolynomialCubes(t *testing.T) {
	p := Detect([]int64{0, 1, 8, 27, 64, 125, 216})
	if p == nil {
		t.Fatal("expected polynomial pattern, got nil")
	}
	if p.Degree != 3 {
		t.Errorf("degree = %d, want 3", p.Degree)
	}
	if math.Abs(p.Confidence-0.80) > 1e-9 {
		t.Errorf("confidence = %v, want 0.80", p.Confidence)
	}
}

func TestDetect_PolynomialNeedsFiveTerms(t *testing.T) {
	// Four terms of n^3: too short for the polynomial detector.
	if p := Detect([]int64{0, 1, 8, 27}); p != nil {
		t.Errorf("expected no pattern for 4 cube terms, got %s", p.Kind)
	}
}

func TestDetect_RecursiveFibonacci(t *testing.T) {
	p := Detect([]int64{1, 1, 2, 3, 5, 8, 13, 21})
	if p == nil {
		t.Fatal("expected recursive pattern, got nil")
	}
	if p.Kind != models.PatternRecursive {
		t.Fatalf("kind = %s, want recursive", p.Kind)
	}
	if p.Confidence < 0.85 {
		t.Errorf("confidence = %v, want >= 0.85", p.Confidence)
	}
	if len(p.RelatedIDs) == 0 || p.RelatedIDs[0] != FibonacciID {
		t.Errorf("related IDs = %v, want leading %s", p.RelatedIDs, FibonacciID)
	}
}

func TestDetect_RecursiveLucasLink(t *testing.T) {
	p := Detect([]int64{2, 1, 3, 4, 7, 11, 18, 29})
	if p == nil || p.Kind != models.PatternRecursive {
		t.Fatal("expected recursive pattern for Lucas prefix")
	}
	found := false
	for _, id := range p.RelatedIDs {
		if id == LucasID {
			found = true
		}
	}
	if !found {
		t.Errorf("Lucas seed should link %s, got %v", LucasID, p.RelatedIDs)
	}
}

func TestDetect_RecursiveNeedsSixTerms(t *testing.T) {
	if p := Detect([]int64{1, 1, 2, 3, 5}); p != nil && p.Kind == models.PatternRecursive {
		t.Error("5 terms must not trigger the recursive detector")
	}
}

func TestDetect_NoStructure(t *testing.T) {
	if p := Detect([]int64{7, 2, 19, 3, 11, 5}); p != nil {
		t.Errorf("expected nil for unstructured terms, got %s (%s)", p.Kind, p.Formula)
	}
}

func TestDetect_TooShort(t *testing.T) {
	if p := Detect([]int64{1, 2}); p != nil {
		t.Errorf("expected nil for 2 terms, got %s", p.Kind)
	}
}

func TestDetect_OrderPrefersArithmetic(t *testing.T) {
	// Constant sequences satisfy several laws; the fixed detector order
	// must report arithmetic.
	p := Detect([]int64{3, 3, 3, 3, 3, 3})
	if p == nil || p.Kind != models.PatternArithmetic {
		t.Fatalf("expected arithmetic for constant sequence, got %+v", p)
	}
}

func TestExplains(t *testing.T) {
	arith := Detect([]int64{2, 4, 6, 8, 10})
	if !Explains(arith, []int64{100, 102, 104, 106}) {
		t.Error("arithmetic pattern should explain any constant-diff-2 run")
	}
	if Explains(arith, []int64{1, 2, 4}) {
		t.Error("arithmetic pattern must not explain non-matching diffs")
	}

	geo := Detect([]int64{1, 2, 4, 8, 16})
	if !Explains(geo, []int64{3, 6, 12, 24}) {
		t.Error("geometric pattern should explain any ratio-2 run")
	}

	fib := Detect([]int64{1, 1, 2, 3, 5, 8})
	if !Explains(fib, []int64{5, 8, 13, 21, 34}) {
		t.Error("recursive pattern should explain a Fibonacci window")
	}
	if Explains(fib, []int64{5, 8, 14}) {
		t.Error("recursive pattern must not explain a broken recurrence")
	}

	if Explains(nil, []int64{1, 2, 3}) {
		t.Error("nil pattern explains nothing")
	}
}

func TestBuiltins(t *testing.T) {
	seqs := Builtins()
	if len(seqs) != 2 {
		t.Fatalf("builtins = %d entries, want 2", len(seqs))
	}
	byID := map[string]models.ReferenceSequence{}
	for _, s := range seqs {
		byID[s.ID] = s
	}

	fib := byID[FibonacciID]
	if len(fib.Terms) < 40 || fib.Terms[10] != 55 {
		t.Errorf("Fibonacci builtin malformed: %v...", fib.Terms[:11])
	}
	lucas := byID[LucasID]
	if lucas.Terms[0] != 2 || lucas.Terms[4] != 7 {
		t.Errorf("Lucas builtin malformed: %v...", lucas.Terms[:5])
	}

	// Entries must be copies, not aliases of the package tables.
	fib.Terms[0] = 99
	if Builtins()[0].Terms[0] == 99 {
		t.Error("Builtins must return copied term slices")
	}
}

func TestIsFibonacciIsLucas(t *testing.T) {
	for _, n := range []int64{0, 1, 55, 144, 6765} {
		if !IsFibonacci(n) {
			t.Errorf("IsFibonacci(%d) = false", n)
		}
	}
	if IsFibonacci(100) {
		t.Error("IsFibonacci(100) = true")
	}
	for _, n := range []int64{2, 1, 123, 322} {
		if !IsLucas(n) {
			t.Errorf("IsLucas(%d) = false", n)
		}
	}
	if IsLucas(100) {
		t.Error("IsLucas(100) = true")
	}
}
