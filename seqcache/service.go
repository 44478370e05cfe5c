// Package seqcache implements a two-tier cache of integer-sequence catalog
// data: a fast in-memory tier (LRU+TTL) in front of a durable PostgreSQL
// tier, with a rate-limited remote catalog as the origin.
//
// Design Choices:
// - Fast tier uses a sync.Mutex-protected map with an intrusive LRU list;
//   eviction and TTL handling stay O(1) per operation.
// - Request coalescing via golang.org/x/sync/singleflight: concurrent misses
//   on the same query produce exactly one remote fetch.
// - The durable tier and the remote catalog are abstracted behind interfaces
//   so tests can inject counting fakes.
// - A small set of well-known sequences is kept warm at startup so the most
//   common lookups never touch the network.
//
// Performance Characteristics:
// - Fast-tier hit: O(1), sub-microsecond
// - Durable hit: one indexed SELECT, ~1ms
// - Remote fetch: network latency plus token-bucket wait, potentially seconds
package seqcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"encore.dev/rlog"
	"encore.dev/storage/sqldb"
	"golang.org/x/sync/singleflight"

	"encore.app/pkg/models"
	"encore.app/pkg/oeis"
	"encore.app/pkg/pattern"
	"encore.app/pkg/utils"
)

var db = sqldb.Named("seqcache_db")

// Service implements the two-tier sequence cache.
//encore:service
type Service struct {
	fast    *FastTier
	durable DurableStore
	remote  RemoteSource
	flight  singleflight.Group
	metrics *Metrics
	config  Config
}

// Config holds runtime configuration for the cache.
type Config struct {
	FastCapacity  int           // Maximum fast-tier entries before eviction
	FastTTL       time.Duration // Fast-tier entry lifetime
	DurableTTL    time.Duration // Durable-tier row lifetime
	SearchLimit   int           // Sequences returned per search by default
	RefreshWindow time.Duration // How close to expiry a row must be to get refreshed
	RefreshLimit  int           // Max rows refreshed per maintenance run
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		FastCapacity:  1000,
		FastTTL:       5 * time.Minute,
		DurableTTL:    7 * 24 * time.Hour,
		SearchLimit:   10,
		RefreshWindow: 12 * time.Hour,
		RefreshLimit:  50,
	}
}

// DurableStore abstracts the persistent tier so tests can inject fakes.
type DurableStore interface {
	GetSequence(ctx context.Context, id string) (*models.ReferenceSequence, bool, error)
	PutSequence(ctx context.Context, seq models.ReferenceSequence) error
	GetSearch(ctx context.Context, key string) ([]string, bool, error)
	PutSearch(ctx context.Context, key string, ids []string) error
	Sweep(ctx context.Context) (int, error)
	Clear(ctx context.Context, age time.Duration) (int, error)
	Count(ctx context.Context) (sequences, searches int, err error)
	ExpiringSoon(ctx context.Context, within time.Duration, limit int) ([]string, error)
}

// RemoteSource abstracts the upstream catalog. Satisfied by *oeis.Client.
type RemoteSource interface {
	FetchByTerms(ctx context.Context, terms []int64, limit int) (*oeis.CatalogResponse, error)
	FetchByID(ctx context.Context, id string) (*models.ReferenceSequence, error)
	FetchByKeyword(ctx context.Context, keyword string, limit int) (*oeis.CatalogResponse, error)
}

// Metrics tracks cache performance counters.
type Metrics struct {
	FastHits      atomic.Int64
	FastMisses    atomic.Int64
	DurableHits   atomic.Int64
	DurableMisses atomic.Int64
	RemoteFetches atomic.Int64
	RemoteErrors  atomic.Int64
	BuiltinHits   atomic.Int64
	Clears        atomic.Int64
}

var (
	svc  *Service
	once sync.Once
)

// initService wires the cache service. Called by Encore at startup.
func initService() (*Service, error) {
	var err error
	once.Do(func() {
		config := DefaultConfig()

		var durable DurableStore
		durable, err = NewSQLStore(db, config.DurableTTL)
		if err != nil {
			return
		}

		svc = newService(config, durable, oeis.NewClient(oeis.DefaultConfig()))
		svc.warmBuiltins(context.Background())
	})
	return svc, err
}

// newService builds a service around explicit collaborators. Tests call this
// directly with fakes.
func newService(config Config, durable DurableStore, remote RemoteSource) *Service {
	return &Service{
		fast:    NewFastTier(config.FastCapacity, config.FastTTL),
		durable: durable,
		remote:  remote,
		metrics: &Metrics{},
		config:  config,
	}
}

// SetRemote swaps the upstream catalog client.
func (s *Service) SetRemote(remote RemoteSource) {
	s.remote = remote
}

// SetDurable swaps the persistent tier.
func (s *Service) SetDurable(durable DurableStore) {
	s.durable = durable
}

// warmBuiltins seeds both tiers with the well-known sequences so the common
// lookups are always warm. Durable writes are best-effort.
func (s *Service) warmBuiltins(ctx context.Context) {
	for _, seq := range pattern.Builtins() {
		seq := seq
		s.fast.Put(utils.SequenceKey(seq.ID), &seq)
		if err := s.durable.PutSequence(ctx, seq); err != nil {
			rlog.Warn("failed to warm builtin sequence", "id", seq.ID, "err", err)
		}
	}
}

// GetSequence looks a sequence up by catalog ID, promoting durable hits into
// the fast tier and populating both tiers on a remote fetch. Returns
// (nil, nil) when the catalog has no such sequence.
func (s *Service) GetSequence(ctx context.Context, id string) (*models.ReferenceSequence, error) {
	key := utils.SequenceKey(id)

	if v, ok := s.fast.Get(key); ok {
		s.metrics.FastHits.Add(1)
		return v.(*models.ReferenceSequence), nil
	}
	s.metrics.FastMisses.Add(1)

	v, err := s.coalesce(ctx, key, func(ctx context.Context) (interface{}, error) {
		return s.fetchSequence(ctx, id, key)
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*models.ReferenceSequence), nil
}

func (s *Service) fetchSequence(ctx context.Context, id, key string) (interface{}, error) {
	seq, ok, err := s.durable.GetSequence(ctx, id)
	if err != nil {
		rlog.Warn("durable tier read failed", "id", id, "err", err)
	}
	if ok {
		s.metrics.DurableHits.Add(1)
		s.fast.Put(key, seq)
		return seq, nil
	}
	s.metrics.DurableMisses.Add(1)

	s.metrics.RemoteFetches.Add(1)
	seq, err = s.remote.FetchByID(ctx, id)
	if err != nil {
		s.metrics.RemoteErrors.Add(1)
		return nil, err
	}
	if seq == nil {
		return nil, nil
	}

	s.fast.Put(key, seq)
	if err := s.durable.PutSequence(ctx, *seq); err != nil {
		rlog.Warn("durable tier write failed", "id", id, "err", err)
	}
	return seq, nil
}

// SearchTerms finds catalog sequences containing the given terms. On network
// failure it degrades to whatever the cache tiers hold and reports degraded
// instead of failing, so callers can still produce a partial answer.
func (s *Service) SearchTerms(ctx context.Context, terms []int64, limit int) ([]models.ReferenceSequence, bool, error) {
	if err := models.ValidateTerms(terms); err != nil {
		return nil, false, err
	}
	if limit <= 0 {
		limit = s.config.SearchLimit
	}
	key := utils.SearchKey(utils.SearchKindTerms, utils.TermsSignature(terms))
	return s.search(ctx, key, limit, func(ctx context.Context, limit int) (*oeis.CatalogResponse, error) {
		if seqs := builtinMatches(terms); len(seqs) > 0 {
			s.metrics.BuiltinHits.Add(1)
			return &oeis.CatalogResponse{Sequences: seqs, Count: len(seqs)}, nil
		}
		return s.remote.FetchByTerms(ctx, terms, limit)
	})
}

// SearchKeyword finds catalog sequences by name or keyword.
func (s *Service) SearchKeyword(ctx context.Context, keyword string, limit int) ([]models.ReferenceSequence, bool, error) {
	if keyword == "" {
		return nil, false, models.ErrInvalidQuery
	}
	if limit <= 0 {
		limit = s.config.SearchLimit
	}
	key := utils.SearchKey(utils.SearchKindKeyword, keyword)
	return s.search(ctx, key, limit, func(ctx context.Context, limit int) (*oeis.CatalogResponse, error) {
		return s.remote.FetchByKeyword(ctx, keyword, limit)
	})
}

// search runs the tiered lookup for one search key: fast tier, durable tier,
// then the remote catalog, coalescing concurrent misses on the same key.
// The boolean result reports degraded mode (remote unreachable, cache-only
// answer).
func (s *Service) search(ctx context.Context, key string, limit int, fetch func(context.Context, int) (*oeis.CatalogResponse, error)) ([]models.ReferenceSequence, bool, error) {
	if v, ok := s.fast.Get(key); ok {
		s.metrics.FastHits.Add(1)
		return truncate(s.resolve(ctx, v.([]string)), limit), false, nil
	}
	s.metrics.FastMisses.Add(1)

	v, err := s.coalesce(ctx, key, func(ctx context.Context) (interface{}, error) {
		ids, ok, derr := s.durable.GetSearch(ctx, key)
		if derr != nil {
			rlog.Warn("durable search read failed", "key", key, "err", derr)
		}
		if ok {
			s.metrics.DurableHits.Add(1)
			s.fast.Put(key, ids)
			return ids, nil
		}
		s.metrics.DurableMisses.Add(1)

		s.metrics.RemoteFetches.Add(1)
		resp, ferr := fetch(ctx, limit)
		if ferr != nil {
			s.metrics.RemoteErrors.Add(1)
			return nil, ferr
		}

		ids = make([]string, 0, len(resp.Sequences))
		for _, seq := range resp.Sequences {
			seq := seq
			ids = append(ids, seq.ID)
			s.fast.Put(utils.SequenceKey(seq.ID), &seq)
			if perr := s.durable.PutSequence(ctx, seq); perr != nil {
				rlog.Warn("durable tier write failed", "id", seq.ID, "err", perr)
			}
		}
		s.fast.Put(key, ids)
		if perr := s.durable.PutSearch(ctx, key, ids); perr != nil {
			rlog.Warn("durable search write failed", "key", key, "err", perr)
		}
		return ids, nil
	})
	if err != nil {
		if errors.Is(err, models.ErrNetworkUnavailable) || errors.Is(err, models.ErrRateLimited) {
			rlog.Warn("remote catalog unavailable, serving cache-only results", "key", key, "err", err)
			return nil, true, nil
		}
		return nil, false, err
	}
	return truncate(s.resolve(ctx, v.([]string)), limit), false, nil
}

func truncate(seqs []models.ReferenceSequence, limit int) []models.ReferenceSequence {
	if limit > 0 && len(seqs) > limit {
		return seqs[:limit]
	}
	return seqs
}

// coalesce runs fn under singleflight. The shared execution is detached from
// the caller's cancellation so one impatient caller cannot abort the fetch
// for everyone else; the caller still unblocks on its own deadline.
func (s *Service) coalesce(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	inner := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(key, func() (interface{}, error) {
		return fn(inner)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// resolve turns a cached ID list back into sequences. IDs whose rows have
// since been evicted or expired are skipped rather than refetched; the next
// full search miss will repopulate them.
func (s *Service) resolve(ctx context.Context, ids []string) []models.ReferenceSequence {
	seqs := make([]models.ReferenceSequence, 0, len(ids))
	for _, id := range ids {
		if v, ok := s.fast.Get(utils.SequenceKey(id)); ok {
			seqs = append(seqs, *v.(*models.ReferenceSequence))
			continue
		}
		seq, ok, err := s.durable.GetSequence(ctx, id)
		if err != nil || !ok {
			continue
		}
		s.fast.Put(utils.SequenceKey(id), seq)
		seqs = append(seqs, *seq)
	}
	return seqs
}

// builtinMatches returns the warm well-known sequences whose terms contain
// the query as a contiguous run. This keeps the most common validation
// targets off the network entirely.
func builtinMatches(terms []int64) []models.ReferenceSequence {
	var out []models.ReferenceSequence
	for _, seq := range pattern.Builtins() {
		if containsRun(seq.Terms, terms) {
			out = append(out, seq)
		}
	}
	return out
}

func containsRun(haystack, needle []int64) bool {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
