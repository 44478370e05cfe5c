package seqcache

import (
	"context"
	"time"

	"encore.dev/cron"
	"encore.dev/rlog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"encore.app/pkg/events"
	"encore.app/pkg/utils"
)

// Expired durable rows are reclaimed nightly; read paths already treat them
// as misses, so the sweep is pure space reclamation.
var _ = cron.NewJob("durable-sweep", cron.JobConfig{
	Title:    "Sweep expired cache rows",
	Schedule: "0 3 * * *",
	Endpoint: Sweep,
})

// Sweep removes expired rows from the durable tier.
//encore:api private
func Sweep(ctx context.Context) error {
	if svc == nil {
		return nil
	}
	removed, err := svc.durable.Sweep(ctx)
	if err != nil {
		return err
	}
	expired := svc.fast.CleanupExpired()
	rlog.Info("cache sweep complete", "durable_removed", removed, "fast_expired", expired)
	return nil
}

var _ = cron.NewJob("hot-refresh", cron.JobConfig{
	Title:    "Refresh hot cache entries near expiry",
	Schedule: "0 */6 * * *",
	Endpoint: RefreshHot,
})

// RefreshHot refetches the most-accessed sequences whose durable rows are
// about to expire, so hot entries never fall back to a cold remote fetch.
//encore:api private
func RefreshHot(ctx context.Context) error {
	if svc == nil {
		return nil
	}
	return svc.RefreshHot(ctx)
}

// refresher paces remote refetches so a maintenance run never competes with
// interactive traffic for the catalog's rate budget.
type refresher struct {
	limiter *rate.Limiter
	deduper singleflight.Group
}

func newRefresher(perSec float64) *refresher {
	burst := int(perSec)
	if burst < 1 {
		burst = 1
	}
	return &refresher{limiter: rate.NewLimiter(rate.Limit(perSec), burst)}
}

func (s *Service) RefreshHot(ctx context.Context) error {
	ids, err := s.durable.ExpiringSoon(ctx, s.config.RefreshWindow, s.config.RefreshLimit)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	r := newRefresher(1) // one refetch per second keeps well under catalog limits
	refreshed := 0
	for _, id := range ids {
		if err := r.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := s.refreshOne(ctx, r, id); err != nil {
			rlog.Warn("hot refresh failed", "id", id, "err", err)
			continue
		}
		refreshed++
	}
	rlog.Info("hot refresh complete", "candidates", len(ids), "refreshed", refreshed)
	return nil
}

func (s *Service) refreshOne(ctx context.Context, r *refresher, id string) error {
	_, err, _ := r.deduper.Do(id, func() (interface{}, error) {
		seq, err := s.remote.FetchByID(ctx, id)
		if err != nil {
			s.metrics.RemoteErrors.Add(1)
			return nil, err
		}
		s.metrics.RemoteFetches.Add(1)
		if seq == nil {
			// Catalog no longer has it; let the row age out.
			return nil, nil
		}
		if err := s.durable.PutSequence(ctx, *seq); err != nil {
			return nil, err
		}
		s.fast.Put(utils.SequenceKey(id), seq)

		event := &events.RefreshedEvent{
			Version:     events.EventVersion1,
			SequenceID:  id,
			RefreshedAt: time.Now(),
		}
		if _, perr := CacheRefreshedTopic.Publish(ctx, event); perr != nil {
			rlog.Warn("failed to publish refresh event", "id", id, "err", perr)
		}
		return seq, nil
	})
	return err
}
