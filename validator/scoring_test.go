package validator

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"encore.app/pkg/models"
	"encore.app/pkg/pattern"
)

func TestAlignExact(t *testing.T) {
	tests := []struct {
		name       string
		reference  []int64
		query      []int64
		wantScore  float64
		wantOffset int
	}{
		{"prefix", []int64{1, 2, 3, 4, 5}, []int64{1, 2, 3}, 1, 0},
		{"interior", []int64{0, 1, 1, 2, 3, 5, 8}, []int64{1, 2, 3, 5}, 1, 2},
		{"suffix", []int64{1, 2, 3, 4, 5}, []int64{4, 5}, 1, 3},
		{"absent", []int64{1, 2, 3, 4, 5}, []int64{2, 4}, 0, 0},
		{"longer than reference", []int64{1, 2}, []int64{1, 2, 3}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, offset := alignExact(tt.reference, tt.query)
			if score != tt.wantScore || offset != tt.wantOffset {
				t.Errorf("alignExact() = (%v, %v), want (%v, %v)", score, offset, tt.wantScore, tt.wantOffset)
			}
		})
	}
}

func TestLongestCommonSubsequence(t *testing.T) {
	tests := []struct {
		name string
		a, b []int64
		want []int64
	}{
		{"identical", []int64{1, 2, 3}, []int64{1, 2, 3}, []int64{1, 2, 3}},
		{"interleaved", []int64{1, 3, 5, 7}, []int64{1, 2, 3, 4, 5}, []int64{1, 3, 5}},
		{"disjoint", []int64{1, 2}, []int64{3, 4}, nil},
		{"empty", nil, []int64{1}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := longestCommonSubsequence(tt.a, tt.b)
			if len(got) == 0 && len(tt.want) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("lcs(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func fibonacciCandidate() models.ReferenceSequence {
	for _, seq := range pattern.Builtins() {
		if seq.ID == pattern.FibonacciID {
			return seq
		}
	}
	panic("fibonacci builtin missing")
}

func TestScore_ExactFibonacci(t *testing.T) {
	s := newService(DefaultConfig(), nil)
	query := []int64{1, 1, 2, 3, 5, 8, 13, 21}
	pat := pattern.Detect(query)
	if pat == nil || pat.Kind != models.PatternRecursive {
		t.Fatalf("Expected recursive pattern for fibonacci terms, got %+v", pat)
	}

	m, ok := s.score(context.Background(), query, "", fibonacciCandidate(), pat)
	if !ok {
		t.Fatal("Expected a match")
	}
	if m.Kind != models.MatchExact {
		t.Errorf("Expected exact match, got %s", m.Kind)
	}
	if m.Confidence < 0.95 {
		t.Errorf("Expected confidence >= 0.95, got %f", m.Confidence)
	}
	if m.TermOffset != 1 {
		t.Errorf("Expected alignment at offset 1, got %d", m.TermOffset)
	}
}

func TestScore_SubsequenceOnly(t *testing.T) {
	s := newService(DefaultConfig(), nil)
	query := []int64{1, 2, 3, 10}
	cand := models.ReferenceSequence{ID: "A000027", Name: "Natural numbers", Terms: []int64{1, 2, 3, 4, 5}}

	m, ok := s.score(context.Background(), query, "", cand, pattern.Detect(query))
	if !ok {
		t.Fatal("Expected a match")
	}
	if m.Kind != models.MatchSubsequence {
		t.Errorf("Expected subsequence match, got %s", m.Kind)
	}
	// 3 of 4 terms align, weight 0.3, renormalized over 0.9.
	want := 0.3 * 0.75 / 0.9
	if diff := m.Confidence - want; diff < -1e-9 || diff > 1e-9 {
		t.Errorf("Expected confidence %f, got %f", want, m.Confidence)
	}
	if !reflect.DeepEqual(m.AlignedTerms, []int64{1, 2, 3}) {
		t.Errorf("Wrong aligned terms: %v", m.AlignedTerms)
	}
}

func TestScore_NoOverlap(t *testing.T) {
	s := newService(DefaultConfig(), nil)
	query := []int64{100, 200, 300}
	cand := models.ReferenceSequence{ID: "A000001", Terms: []int64{1, 2, 4}}

	if _, ok := s.score(context.Background(), query, "", cand, pattern.Detect(query)); ok {
		t.Error("Disjoint candidate should not produce a match")
	}
}

// stubEmbedder returns a constant vector, so every cosine is 1.
type stubEmbedder struct {
	err   error
	calls int
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return []float32{1, 0, 0}, nil
}

func TestScore_SemanticSignal(t *testing.T) {
	s := newService(DefaultConfig(), nil)
	s.SetEmbedder(&stubEmbedder{})

	query := []int64{2, 4, 6, 8}
	cand := models.ReferenceSequence{ID: "A005843", Name: "The even numbers", Terms: []int64{2, 4, 6, 8}}

	m, ok := s.score(context.Background(), query, "even numbers", cand, pattern.Detect(query))
	if !ok {
		t.Fatal("Expected a match")
	}
	// All four signals at 1.0, no renormalization.
	if m.Confidence != 1.0 {
		t.Errorf("Expected confidence 1.0, got %f", m.Confidence)
	}
}

func TestScore_EmbedderFailureDropsSignal(t *testing.T) {
	s := newService(DefaultConfig(), nil)
	s.SetEmbedder(&stubEmbedder{err: errors.New("backend down")})

	query := []int64{2, 4, 6, 8}
	cand := models.ReferenceSequence{ID: "A005843", Name: "The even numbers", Terms: []int64{2, 4, 6, 8}}

	m, ok := s.score(context.Background(), query, "even numbers", cand, pattern.Detect(query))
	if !ok {
		t.Fatal("Expected a match despite embedding failure")
	}
	// Structural signals renormalize to a full score.
	if m.Confidence != 1.0 {
		t.Errorf("Expected confidence 1.0, got %f", m.Confidence)
	}
	if s.metrics.EmbeddingErrors.Load() == 0 {
		t.Error("Embedding failure should be counted")
	}
}

func TestScore_PatternCheckedAtAlignedOffset(t *testing.T) {
	s := newService(DefaultConfig(), nil)
	// Squares from n=2; the fitted polynomial must keep explaining the
	// candidate from the aligned position, not from its start.
	query := []int64{4, 9, 16, 25, 36}
	pat := pattern.Detect(query)
	if pat == nil || pat.Kind != models.PatternPolynomial {
		t.Fatalf("Expected polynomial pattern, got %+v", pat)
	}

	cand := models.ReferenceSequence{
		ID:    "A000290",
		Name:  "The squares",
		Terms: []int64{0, 1, 4, 9, 16, 25, 36, 49},
	}
	m, ok := s.score(context.Background(), query, "", cand, pat)
	if !ok {
		t.Fatal("Expected a match")
	}
	if m.Kind != models.MatchExact {
		t.Errorf("Expected exact match, got %s", m.Kind)
	}
	if m.Confidence < 0.95 {
		t.Errorf("Pattern signal should fire at the aligned offset; confidence %f", m.Confidence)
	}
}
