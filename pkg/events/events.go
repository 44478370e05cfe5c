// Package events defines topic names and event payloads for cache
// coordination between service instances.
//
// Topic Naming Convention:
//   - cache-invalidate: fast-tier invalidation broadcast (key/pattern based)
//   - cache-refreshed: a hot entry was re-fetched from the catalog
//
// Design Notes:
//   - Event types carry a Version field so the schema can grow without
//     breaking subscribers
//   - No Encore imports here; services own their pubsub.Topic declarations
package events

import (
	"fmt"
	"time"
)

// Topic names used when declaring Encore Pub/Sub topics in service code.
const (
	TopicCacheInvalidate = "cache-invalidate"
	TopicCacheRefreshed  = "cache-refreshed"
)

// EventVersion1 is the current event schema version.
const EventVersion1 = 1

// InvalidationEvent asks every cache instance to drop fast-tier entries.
// At least one of Keys or Pattern must be set.
type InvalidationEvent struct {
	Version     int       `json:"version"`
	Keys        []string  `json:"keys,omitempty"`    // Exact cache keys
	Pattern     string    `json:"pattern,omitempty"` // e.g. "search:*"
	TriggeredBy string    `json:"triggered_by"`      // "clear", "sweep", "admin"
	TriggeredAt time.Time `json:"triggered_at"`
	RequestID   string    `json:"request_id"` // Correlation ID
}

// Validate checks structural well-formedness before publishing.
func (e *InvalidationEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}
	if len(e.Keys) == 0 && e.Pattern == "" {
		return fmt.Errorf("invalidation event needs keys or a pattern")
	}
	return nil
}

// RefreshedEvent announces that a sequence entry was re-fetched from the
// catalog during hot-entry refresh, so peers can repopulate their fast tier
// on next access instead of going to the network.
type RefreshedEvent struct {
	Version     int       `json:"version"`
	SequenceID  string    `json:"sequence_id"`
	RefreshedAt time.Time `json:"refreshed_at"`
}

// Validate checks structural well-formedness before publishing.
func (e *RefreshedEvent) Validate() error {
	if e.Version != EventVersion1 {
		return fmt.Errorf("unsupported event version: %d", e.Version)
	}
	if e.SequenceID == "" {
		return fmt.Errorf("refreshed event needs a sequence id")
	}
	return nil
}
