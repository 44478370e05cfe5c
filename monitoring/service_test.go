package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fixtureCollector returns a canned snapshot.
type fixtureCollector struct {
	snap *Snapshot
	err  error
}

func (c fixtureCollector) Collect(ctx context.Context) (*Snapshot, error) {
	return c.snap, c.err
}

func healthySnapshot() *Snapshot {
	return &Snapshot{
		Time:          time.Now(),
		FastHits:      900,
		FastMisses:    100,
		FastHitRate:   0.9,
		RemoteFetches: 100,
		RemoteErrors:  2,
		Validations:   200,
		Successes:     180,
	}
}

func TestHealth_AllClear(t *testing.T) {
	s := newService(DefaultConfig(), fixtureCollector{snap: healthySnapshot()})

	resp, err := s.Health(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp.Status != string(StatusOK) {
		t.Errorf("Expected ok, got %s with alerts %+v", resp.Status, resp.Alerts)
	}
	if len(resp.Alerts) != 0 {
		t.Errorf("Expected no alerts, got %+v", resp.Alerts)
	}
}

func TestHealth_LowHitRateWarns(t *testing.T) {
	snap := healthySnapshot()
	snap.FastHits = 40
	snap.FastMisses = 60
	snap.FastHitRate = 0.4

	s := newService(DefaultConfig(), fixtureCollector{snap: snap})
	resp, err := s.Health(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp.Status != string(LevelWarning) {
		t.Errorf("Expected warning, got %s", resp.Status)
	}
	if len(resp.Alerts) != 1 || resp.Alerts[0].RuleID != "fast-hit-rate-low" {
		t.Errorf("Expected the hit-rate alert, got %+v", resp.Alerts)
	}
}

func TestHealth_CriticalDominates(t *testing.T) {
	snap := healthySnapshot()
	// Hit rate mildly low (warning) and remote errors extreme (critical).
	snap.FastHitRate = 0.45
	snap.RemoteErrors = 80

	s := newService(DefaultConfig(), fixtureCollector{snap: snap})
	resp, err := s.Health(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp.Status != string(LevelCritical) {
		t.Errorf("Expected critical, got %s", resp.Status)
	}
	if len(resp.Alerts) != 2 {
		t.Errorf("Expected both alerts, got %+v", resp.Alerts)
	}
}

func TestHealth_SmallSampleStaysQuiet(t *testing.T) {
	snap := &Snapshot{
		FastHits:        1,
		FastMisses:      9,
		FastHitRate:     0.1,
		RemoteFetches:   4,
		RemoteErrors:    4,
		Validations:     5,
		DegradedResults: 5,
	}

	s := newService(DefaultConfig(), fixtureCollector{snap: snap})
	resp, err := s.Health(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp.Status != string(StatusOK) {
		t.Errorf("Tiny samples should not alert, got %s with %+v", resp.Status, resp.Alerts)
	}
}

func TestHealth_DegradedValidations(t *testing.T) {
	snap := healthySnapshot()
	snap.Validations = 100
	snap.DegradedResults = 30

	s := newService(DefaultConfig(), fixtureCollector{snap: snap})
	resp, err := s.Health(context.Background())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	found := false
	for _, a := range resp.Alerts {
		if a.RuleID == "degraded-validations-high" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected degraded-validations alert, got %+v", resp.Alerts)
	}
}

func TestOverview_PropagatesCollectorError(t *testing.T) {
	s := newService(DefaultConfig(), fixtureCollector{err: errors.New("collect failed")})
	if _, err := s.Overview(context.Background()); err == nil {
		t.Error("Expected collector error to propagate")
	}
}
