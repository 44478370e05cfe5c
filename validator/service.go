// Package validator implements sequence validation: given a handful of
// integer terms, it finds the catalog sequences they correspond to and the
// mathematical law they follow, and produces a ranked, deterministic set of
// matches.
//
// Design Choices:
// - Pattern detection is pure local computation and always runs, even when
//   the catalog is unreachable; network trouble degrades the answer instead
//   of failing it.
// - Candidate scoring fans out across a bounded errgroup; one slow or
//   failing candidate never blocks the rest.
// - Scoring is a fixed weighted blend of four signals (exact alignment,
//   subsequence overlap, shared pattern, semantic similarity), so the same
//   query always produces the same ranking.
// - The semantic signal is optional: without a configured embedder or a
//   caller-supplied context, the blend renormalizes over the remaining
//   signals.
package validator

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"encore.dev/rlog"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"encore.app/pkg/embedding"
	"encore.app/pkg/models"
	"encore.app/pkg/pattern"
	"encore.app/seqcache"
)

// Service implements sequence validation against the cached catalog.
//encore:service
type Service struct {
	candidates CandidateSource
	embedder   embedding.Embedder
	metrics    *Metrics
	config     Config
}

// Config holds runtime configuration for validation.
type Config struct {
	MinConfidence     float64       // Default match threshold
	MaxResults        int           // Default result cap
	ValidationTimeout time.Duration // Wall-clock budget per validation
	CandidateLimit    int           // Catalog candidates considered per query
	ScoreWorkers      int           // Concurrent scoring goroutines
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MinConfidence:     0.7,
		MaxResults:        10,
		ValidationTimeout: 10 * time.Second,
		CandidateLimit:    25,
		ScoreWorkers:      8,
	}
}

// CandidateSource abstracts the cache service so tests can inject fixtures.
type CandidateSource interface {
	// SearchByTerms returns candidate sequences plus a degraded flag set when
	// the remote catalog was unreachable and only cached data was searched.
	SearchByTerms(ctx context.Context, terms []int64, limit int) ([]models.ReferenceSequence, bool, error)
}

// cacheSource routes candidate lookups to the seqcache service.
type cacheSource struct{}

func (cacheSource) SearchByTerms(ctx context.Context, terms []int64, limit int) ([]models.ReferenceSequence, bool, error) {
	resp, err := seqcache.SearchByTerms(ctx, &seqcache.TermSearchRequest{Terms: terms, Limit: limit})
	if err != nil {
		return nil, false, err
	}
	return resp.Sequences, resp.Degraded, nil
}

// Metrics tracks validation counters.
type Metrics struct {
	Validations     atomic.Int64
	Successes       atomic.Int64
	InvalidQueries  atomic.Int64
	Degraded        atomic.Int64
	Timeouts        atomic.Int64
	PatternsFound   atomic.Int64
	EmbeddingErrors atomic.Int64
}

// Request and response types for API endpoints.

type ValidateRequest struct {
	Terms         []int64  `json:"terms"`
	Context       string   `json:"context,omitempty"`        // Free-text hint for semantic scoring
	MinConfidence *float64 `json:"min_confidence,omitempty"` // Defaults to 0.7
	MaxResults    int      `json:"max_results,omitempty"`    // Defaults to 10
}

type DetectRequest struct {
	Terms []int64 `json:"terms"`
}

type DetectResponse struct {
	Detected bool                        `json:"detected"`
	Pattern  *models.MathematicalPattern `json:"pattern,omitempty"`
}

var (
	svc  *Service
	once sync.Once
)

// initService wires the validator. Called by Encore at startup.
func initService() (*Service, error) {
	once.Do(func() {
		svc = newService(DefaultConfig(), cacheSource{})
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			svc.embedder = embedding.NewOpenAIEmbedder(key)
		}
	})
	return svc, nil
}

func newService(config Config, candidates CandidateSource) *Service {
	return &Service{
		candidates: candidates,
		metrics:    &Metrics{},
		config:     config,
	}
}

// SetEmbedder injects the semantic-similarity backend.
func (s *Service) SetEmbedder(e embedding.Embedder) {
	s.embedder = e
}

// SetCandidateSource swaps the candidate backend.
func (s *Service) SetCandidateSource(c CandidateSource) {
	s.candidates = c
}

// Validate checks query terms against the catalog and returns ranked matches.
//encore:api public method=POST path=/api/validate
func Validate(ctx context.Context, req *ValidateRequest) (*models.ValidationResult, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.Validate(ctx, req)
}

func (s *Service) Validate(ctx context.Context, req *ValidateRequest) (*models.ValidationResult, error) {
	s.metrics.Validations.Add(1)
	if err := models.ValidateTerms(req.Terms); err != nil {
		s.metrics.InvalidQueries.Add(1)
		return nil, err
	}

	start := time.Now()
	jobID := uuid.NewString()

	minConf := s.config.MinConfidence
	if req.MinConfidence != nil {
		minConf = models.ClampConfidence(*req.MinConfidence)
	}
	maxResults := s.config.MaxResults
	if req.MaxResults > 0 {
		maxResults = req.MaxResults
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.ValidationTimeout)
	defer cancel()

	// Detection is local and cheap; run it regardless of catalog health.
	pat := pattern.Detect(req.Terms)
	if pat != nil {
		s.metrics.PatternsFound.Add(1)
	}

	candidates, degraded, err := s.candidates.SearchByTerms(ctx, req.Terms, s.config.CandidateLimit)
	if err != nil {
		// The cache service degrades network failures itself, so an error
		// here is either a bad query or an internal fault.
		rlog.Warn("candidate lookup failed", "job_id", jobID, "err", err)
		degraded = true
	}
	if degraded {
		s.metrics.Degraded.Add(1)
	}

	matches, timedOut := s.scoreCandidates(ctx, req.Terms, req.Context, candidates, pat)
	if timedOut {
		s.metrics.Timeouts.Add(1)
	}

	kept := matches[:0]
	for _, m := range matches {
		if m.Confidence >= minConf {
			kept = append(kept, m)
		}
	}
	models.SortMatches(kept)
	if len(kept) > maxResults {
		kept = kept[:maxResults]
	}

	confidence := 0.0
	switch {
	case len(kept) > 0:
		confidence = kept[0].Confidence
	case pat != nil:
		confidence = pat.Confidence
	}

	success := len(kept) > 0
	if success {
		s.metrics.Successes.Add(1)
	}

	return &models.ValidationResult{
		JobID:       jobID,
		Success:     success,
		Matches:     kept,
		Pattern:     pat,
		Confidence:  confidence,
		Suggestions: buildSuggestions(kept, pat, degraded, timedOut),
		Degraded:    degraded || timedOut,
		ElapsedMS:   time.Since(start).Milliseconds(),
	}, nil
}

// DetectPattern runs only the local pattern detectors.
//encore:api public method=POST path=/api/pattern/detect
func DetectPattern(ctx context.Context, req *DetectRequest) (*DetectResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.DetectPattern(ctx, req)
}

func (s *Service) DetectPattern(ctx context.Context, req *DetectRequest) (*DetectResponse, error) {
	if err := models.ValidateTerms(req.Terms); err != nil {
		s.metrics.InvalidQueries.Add(1)
		return nil, err
	}
	pat := pattern.Detect(req.Terms)
	if pat != nil {
		s.metrics.PatternsFound.Add(1)
	}
	return &DetectResponse{Detected: pat != nil, Pattern: pat}, nil
}

type MetricsResponse struct {
	Validations     int64 `json:"validations"`
	Successes       int64 `json:"successes"`
	InvalidQueries  int64 `json:"invalid_queries"`
	Degraded        int64 `json:"degraded"`
	Timeouts        int64 `json:"timeouts"`
	PatternsFound   int64 `json:"patterns_found"`
	EmbeddingErrors int64 `json:"embedding_errors"`
}

// GetMetrics snapshots the validation counters for the monitoring service.
//encore:api private
func GetMetrics(ctx context.Context) (*MetricsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.GetMetrics(ctx)
}

func (s *Service) GetMetrics(ctx context.Context) (*MetricsResponse, error) {
	return &MetricsResponse{
		Validations:     s.metrics.Validations.Load(),
		Successes:       s.metrics.Successes.Load(),
		InvalidQueries:  s.metrics.InvalidQueries.Load(),
		Degraded:        s.metrics.Degraded.Load(),
		Timeouts:        s.metrics.Timeouts.Load(),
		PatternsFound:   s.metrics.PatternsFound.Load(),
		EmbeddingErrors: s.metrics.EmbeddingErrors.Load(),
	}, nil
}

// scoreCandidates scores every candidate concurrently. A candidate that
// cannot be scored before the deadline is skipped; the boolean result
// reports whether any were.
func (s *Service) scoreCandidates(ctx context.Context, query []int64, queryContext string, candidates []models.ReferenceSequence, pat *models.MathematicalPattern) ([]models.Match, bool) {
	if len(candidates) == 0 {
		return nil, false
	}

	var (
		mu      sync.Mutex
		matches []models.Match
		skipped atomic.Bool
	)

	g := new(errgroup.Group)
	g.SetLimit(s.config.ScoreWorkers)
	for _, cand := range candidates {
		cand := cand
		g.Go(func() error {
			if ctx.Err() != nil {
				skipped.Store(true)
				return nil
			}
			m, ok := s.score(ctx, query, queryContext, cand, pat)
			if !ok {
				return nil
			}
			mu.Lock()
			matches = append(matches, m)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return matches, skipped.Load() || ctx.Err() != nil
}
