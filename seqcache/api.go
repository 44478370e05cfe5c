package seqcache

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"encore.app/pkg/models"
)

// Request and response types for API endpoints.

type SearchRequest struct {
	Terms   string `query:"terms"`   // Comma-separated integers, e.g. "1,1,2,3,5"
	Keyword string `query:"keyword"` // Free-text name search; ignored when Terms is set
	Limit   int    `query:"limit"`   // Max sequences returned, 0 means default
}

type SearchResponse struct {
	Sequences []models.ReferenceSequence `json:"sequences"`
	Count     int                        `json:"count"`
	Degraded  bool                       `json:"degraded"` // True when the remote catalog was unreachable
}

type StatsResponse struct {
	FastEntries      int     `json:"fast_entries"`
	FastHits         int64   `json:"fast_hits"`
	FastMisses       int64   `json:"fast_misses"`
	FastHitRate      float64 `json:"fast_hit_rate"`
	FastEvictions    int64   `json:"fast_evictions"`
	DurableSequences int     `json:"durable_sequences"`
	DurableSearches  int     `json:"durable_searches"`
	DurableHits      int64   `json:"durable_hits"`
	DurableMisses    int64   `json:"durable_misses"`
	RemoteFetches    int64   `json:"remote_fetches"`
	RemoteErrors     int64   `json:"remote_errors"`
	BuiltinHits      int64   `json:"builtin_hits"`
	Clears           int64   `json:"clears"`
}

type ClearRequest struct {
	Keys           []string `json:"keys,omitempty"`    // Specific cache keys to drop
	Pattern        string   `json:"pattern,omitempty"` // e.g. "search:*"
	OlderThanHours int      `json:"older_than_hours,omitempty"`
}

type ClearResponse struct {
	Removed int  `json:"removed"`
	Success bool `json:"success"`
}

// Search finds catalog sequences by terms or keyword.
//encore:api public method=GET path=/api/sequences/search
func Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.Search(ctx, req)
}

func (s *Service) Search(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	var (
		seqs     []models.ReferenceSequence
		degraded bool
		err      error
	)
	switch {
	case strings.TrimSpace(req.Terms) != "":
		var terms []int64
		terms, err = parseTermList(req.Terms)
		if err != nil {
			return nil, err
		}
		seqs, degraded, err = s.SearchTerms(ctx, terms, req.Limit)
	case strings.TrimSpace(req.Keyword) != "":
		seqs, degraded, err = s.SearchKeyword(ctx, strings.TrimSpace(req.Keyword), req.Limit)
	default:
		return nil, models.ErrInvalidQuery
	}
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Sequences: seqs, Count: len(seqs), Degraded: degraded}, nil
}

// Stats reports cache counters and tier sizes.
//encore:api public method=GET path=/api/cache/stats
func Stats(ctx context.Context) (*StatsResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.Stats(ctx)
}

func (s *Service) Stats(ctx context.Context) (*StatsResponse, error) {
	fastHits := s.metrics.FastHits.Load()
	fastMisses := s.metrics.FastMisses.Load()
	hitRate := 0.0
	if total := fastHits + fastMisses; total > 0 {
		hitRate = float64(fastHits) / float64(total)
	}

	durableSeqs, durableSearches, err := s.durable.Count(ctx)
	if err != nil {
		return nil, err
	}

	return &StatsResponse{
		FastEntries:      s.fast.Size(),
		FastHits:         fastHits,
		FastMisses:       fastMisses,
		FastHitRate:      hitRate,
		FastEvictions:    s.fast.Evictions(),
		DurableSequences: durableSeqs,
		DurableSearches:  durableSearches,
		DurableHits:      s.metrics.DurableHits.Load(),
		DurableMisses:    s.metrics.DurableMisses.Load(),
		RemoteFetches:    s.metrics.RemoteFetches.Load(),
		RemoteErrors:     s.metrics.RemoteErrors.Load(),
		BuiltinHits:      s.metrics.BuiltinHits.Load(),
		Clears:           s.metrics.Clears.Load(),
	}, nil
}

// Clear drops cached entries by key, pattern, or age, and broadcasts the
// invalidation so every instance drops its fast tier too. An empty request
// clears everything.
//encore:api public method=POST path=/api/cache/clear
func Clear(ctx context.Context, req *ClearRequest) (*ClearResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.Clear(ctx, req)
}

func (s *Service) Clear(ctx context.Context, req *ClearRequest) (*ClearResponse, error) {
	removed := 0
	age := time.Duration(req.OlderThanHours) * time.Hour

	for _, key := range req.Keys {
		if s.fast.Delete(key) {
			removed++
		}
	}

	switch {
	case req.Pattern != "":
		removed += s.fast.DeletePattern(req.Pattern)
	case len(req.Keys) == 0:
		// Key-less, pattern-less clear: drop by age (zero age means all).
		removed += s.fast.DeleteOlderThan(age)
		n, err := s.durable.Clear(ctx, age)
		if err != nil {
			return nil, err
		}
		removed += n
	}

	s.metrics.Clears.Add(1)
	s.publishInvalidation(ctx, req.Keys, req.Pattern)

	return &ClearResponse{Removed: removed, Success: true}, nil
}

// SearchByTerms is the internal lookup used by the validator service.
//encore:api private
func SearchByTerms(ctx context.Context, req *TermSearchRequest) (*SearchResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	seqs, degraded, err := svc.SearchTerms(ctx, req.Terms, req.Limit)
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Sequences: seqs, Count: len(seqs), Degraded: degraded}, nil
}

type TermSearchRequest struct {
	Terms []int64 `json:"terms"`
	Limit int     `json:"limit"`
}

func parseTermList(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	terms := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, models.ErrInvalidQuery
		}
		terms = append(terms, n)
	}
	return terms, nil
}
