// Package monitoring aggregates the counters of the cache and validator
// services into one operational snapshot and evaluates alert rules over it.
//
// Design Philosophy:
// - Pull-based: each snapshot is assembled on demand from the other
//   services' own atomic counters; no event ingestion pipeline to feed or
//   fall behind
// - Alert rules are small pure functions over a snapshot, evaluated on
//   every health check, so tests need no clock or scheduler
// - Rules report both warning and critical level; the overall status is the
//   worst level any rule reports
package monitoring

import (
	"context"
	"errors"
	"sync"
	"time"

	"encore.app/seqcache"
	"encore.app/validator"
)

//encore:service
type Service struct {
	collector Collector
	rules     []AlertRule
	config    Config
}

// Config holds the alert thresholds.
type Config struct {
	MinFastHitRate     float64 // Warn below this fast-tier hit rate
	MaxRemoteErrorRate float64 // Warn above this remote failure fraction
	MaxDegradedRate    float64 // Warn above this degraded-validation fraction
	MinSampleSize      int64   // Rules stay quiet below this many observations
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MinFastHitRate:     0.5,
		MaxRemoteErrorRate: 0.25,
		MaxDegradedRate:    0.25,
		MinSampleSize:      50,
	}
}

// Snapshot is one aggregated view over both services.
type Snapshot struct {
	Time             time.Time `json:"time"`
	FastEntries      int       `json:"fast_entries"`
	FastHits         int64     `json:"fast_hits"`
	FastMisses       int64     `json:"fast_misses"`
	FastHitRate      float64   `json:"fast_hit_rate"`
	FastEvictions    int64     `json:"fast_evictions"`
	DurableSequences int       `json:"durable_sequences"`
	RemoteFetches    int64     `json:"remote_fetches"`
	RemoteErrors     int64     `json:"remote_errors"`
	Validations      int64     `json:"validations"`
	Successes        int64     `json:"successes"`
	DegradedResults  int64     `json:"degraded_results"`
	Timeouts         int64     `json:"timeouts"`
	EmbeddingErrors  int64     `json:"embedding_errors"`
}

// Collector assembles a snapshot. The production implementation fans out to
// the other services; tests inject fixtures.
type Collector interface {
	Collect(ctx context.Context) (*Snapshot, error)
}

// serviceCollector pulls counters from seqcache and validator.
type serviceCollector struct{}

func (serviceCollector) Collect(ctx context.Context) (*Snapshot, error) {
	cache, err := seqcache.Stats(ctx)
	if err != nil {
		return nil, err
	}
	val, err := validator.GetMetrics(ctx)
	if err != nil {
		return nil, err
	}

	return &Snapshot{
		Time:             time.Now(),
		FastEntries:      cache.FastEntries,
		FastHits:         cache.FastHits,
		FastMisses:       cache.FastMisses,
		FastHitRate:      cache.FastHitRate,
		FastEvictions:    cache.FastEvictions,
		DurableSequences: cache.DurableSequences,
		RemoteFetches:    cache.RemoteFetches,
		RemoteErrors:     cache.RemoteErrors,
		Validations:      val.Validations,
		Successes:        val.Successes,
		DegradedResults:  val.Degraded,
		Timeouts:         val.Timeouts,
		EmbeddingErrors:  val.EmbeddingErrors,
	}, nil
}

var (
	svc  *Service
	once sync.Once
)

func initService() (*Service, error) {
	once.Do(func() {
		svc = newService(DefaultConfig(), serviceCollector{})
	})
	return svc, nil
}

func newService(config Config, collector Collector) *Service {
	return &Service{
		collector: collector,
		rules:     defaultRules(config),
		config:    config,
	}
}

type OverviewResponse struct {
	Snapshot Snapshot `json:"snapshot"`
}

type HealthResponse struct {
	Status   string   `json:"status"` // "ok", "warning", or "critical"
	Alerts   []Alert  `json:"alerts,omitempty"`
	Snapshot Snapshot `json:"snapshot"`
}

// Overview returns the current aggregated counters.
//encore:api public method=GET path=/api/monitoring/overview
func Overview(ctx context.Context) (*OverviewResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.Overview(ctx)
}

func (s *Service) Overview(ctx context.Context) (*OverviewResponse, error) {
	snap, err := s.collector.Collect(ctx)
	if err != nil {
		return nil, err
	}
	return &OverviewResponse{Snapshot: *snap}, nil
}

// Health evaluates every alert rule against a fresh snapshot.
//encore:api public method=GET path=/api/monitoring/health
func Health(ctx context.Context) (*HealthResponse, error) {
	if svc == nil {
		return nil, errors.New("service not initialized")
	}
	return svc.Health(ctx)
}

func (s *Service) Health(ctx context.Context) (*HealthResponse, error) {
	snap, err := s.collector.Collect(ctx)
	if err != nil {
		return nil, err
	}

	var alerts []Alert
	status := StatusOK
	for _, rule := range s.rules {
		if alert := rule.Evaluate(*snap); alert != nil {
			alerts = append(alerts, *alert)
			if alert.Level.worseThan(status) {
				status = alert.Level
			}
		}
	}

	return &HealthResponse{
		Status:   string(status),
		Alerts:   alerts,
		Snapshot: *snap,
	}, nil
}
