package seqcache

import (
	"context"
	"time"

	"encore.dev/pubsub"
	"encore.dev/rlog"

	"github.com/google/uuid"

	"encore.app/pkg/events"
	"encore.app/pkg/utils"
)

// Pub/Sub topics for cache coordination across instances.
var CacheInvalidateTopic = pubsub.NewTopic[*events.InvalidationEvent](
	events.TopicCacheInvalidate,
	pubsub.TopicConfig{
		DeliveryGuarantee: pubsub.AtLeastOnce,
	},
)

var CacheRefreshedTopic = pubsub.NewTopic[*events.RefreshedEvent](
	events.TopicCacheRefreshed,
	pubsub.TopicConfig{
		DeliveryGuarantee: pubsub.AtLeastOnce,
	},
)

// Every instance drops its fast-tier copies when any instance clears. The
// durable tier is shared, so only the in-memory tier needs coordination.
var _ = pubsub.NewSubscription(
	CacheInvalidateTopic,
	"seqcache-invalidate",
	pubsub.SubscriptionConfig[*events.InvalidationEvent]{
		Handler: HandleInvalidateEvent,
	},
)

// HandleInvalidateEvent drops the named fast-tier entries.
func HandleInvalidateEvent(ctx context.Context, event *events.InvalidationEvent) error {
	if svc == nil {
		return nil
	}
	if err := event.Validate(); err != nil {
		rlog.Warn("ignoring malformed invalidation event", "request_id", event.RequestID, "err", err)
		return nil
	}

	for _, key := range event.Keys {
		svc.fast.Delete(key)
	}
	if event.Pattern != "" {
		svc.fast.DeletePattern(event.Pattern)
	}
	return nil
}

// A refreshed sequence invalidates the stale fast-tier copy everywhere; the
// next read promotes the fresh durable row.
var _ = pubsub.NewSubscription(
	CacheRefreshedTopic,
	"seqcache-refreshed",
	pubsub.SubscriptionConfig[*events.RefreshedEvent]{
		Handler: HandleRefreshedEvent,
	},
)

// HandleRefreshedEvent evicts the fast-tier copy of a refreshed sequence.
func HandleRefreshedEvent(ctx context.Context, event *events.RefreshedEvent) error {
	if svc == nil {
		return nil
	}
	if err := event.Validate(); err != nil {
		return nil
	}
	svc.fast.Delete(utils.SequenceKey(event.SequenceID))
	return nil
}

// publishInvalidation broadcasts a clear to the other instances. Failures
// are logged, not returned: the local clear already happened.
func (s *Service) publishInvalidation(ctx context.Context, keys []string, pattern string) {
	event := &events.InvalidationEvent{
		Version:     events.EventVersion1,
		Keys:        keys,
		Pattern:     pattern,
		TriggeredBy: "seqcache",
		TriggeredAt: time.Now(),
		RequestID:   uuid.NewString(),
	}
	if event.Pattern == "" && len(event.Keys) == 0 {
		event.Pattern = "*"
	}
	if _, err := CacheInvalidateTopic.Publish(ctx, event); err != nil {
		rlog.Error("failed to publish invalidation event", "request_id", event.RequestID, "err", err)
	}
}
