package monitoring

import "fmt"

// AlertLevel orders severities; StatusOK doubles as the all-clear status.
type AlertLevel string

const (
	StatusOK      AlertLevel = "ok"
	LevelWarning  AlertLevel = "warning"
	LevelCritical AlertLevel = "critical"
)

func (l AlertLevel) rank() int {
	switch l {
	case LevelCritical:
		return 2
	case LevelWarning:
		return 1
	default:
		return 0
	}
}

func (l AlertLevel) worseThan(other AlertLevel) bool {
	return l.rank() > other.rank()
}

// Alert is one triggered rule.
type Alert struct {
	RuleID  string     `json:"rule_id"`
	Level   AlertLevel `json:"level"`
	Message string     `json:"message"`
	Value   float64    `json:"value"`
}

// AlertRule evaluates one condition over a snapshot. Returns nil when the
// condition is healthy.
type AlertRule interface {
	ID() string
	Evaluate(snap Snapshot) *Alert
}

func defaultRules(config Config) []AlertRule {
	return []AlertRule{
		&LowHitRateRule{Threshold: config.MinFastHitRate, MinSample: config.MinSampleSize},
		&RemoteErrorRateRule{Threshold: config.MaxRemoteErrorRate, MinSample: config.MinSampleSize},
		&DegradedValidationsRule{Threshold: config.MaxDegradedRate, MinSample: config.MinSampleSize},
	}
}

// LowHitRateRule fires when the fast tier stops absorbing traffic, which
// usually means the capacity is too small for the working set.
type LowHitRateRule struct {
	Threshold float64
	MinSample int64
}

func (r *LowHitRateRule) ID() string { return "fast-hit-rate-low" }

func (r *LowHitRateRule) Evaluate(snap Snapshot) *Alert {
	total := snap.FastHits + snap.FastMisses
	if total < r.MinSample || snap.FastHitRate >= r.Threshold {
		return nil
	}
	level := LevelWarning
	if snap.FastHitRate < r.Threshold/2 {
		level = LevelCritical
	}
	return &Alert{
		RuleID:  r.ID(),
		Level:   level,
		Message: fmt.Sprintf("fast-tier hit rate %.2f below threshold %.2f", snap.FastHitRate, r.Threshold),
		Value:   snap.FastHitRate,
	}
}

// RemoteErrorRateRule fires when too many catalog fetches fail, which means
// validations are about to degrade.
type RemoteErrorRateRule struct {
	Threshold float64
	MinSample int64
}

func (r *RemoteErrorRateRule) ID() string { return "remote-error-rate-high" }

func (r *RemoteErrorRateRule) Evaluate(snap Snapshot) *Alert {
	if snap.RemoteFetches < r.MinSample {
		return nil
	}
	rate := float64(snap.RemoteErrors) / float64(snap.RemoteFetches)
	if rate <= r.Threshold {
		return nil
	}
	level := LevelWarning
	if rate > 2*r.Threshold {
		level = LevelCritical
	}
	return &Alert{
		RuleID:  r.ID(),
		Level:   level,
		Message: fmt.Sprintf("remote catalog error rate %.2f above threshold %.2f", rate, r.Threshold),
		Value:   rate,
	}
}

// DegradedValidationsRule fires when too many validations run cache-only.
type DegradedValidationsRule struct {
	Threshold float64
	MinSample int64
}

func (r *DegradedValidationsRule) ID() string { return "degraded-validations-high" }

func (r *DegradedValidationsRule) Evaluate(snap Snapshot) *Alert {
	if snap.Validations < r.MinSample {
		return nil
	}
	rate := float64(snap.DegradedResults) / float64(snap.Validations)
	if rate <= r.Threshold {
		return nil
	}
	level := LevelWarning
	if rate > 2*r.Threshold {
		level = LevelCritical
	}
	return &Alert{
		RuleID:  r.ID(),
		Level:   level,
		Message: fmt.Sprintf("degraded validation rate %.2f above threshold %.2f", rate, r.Threshold),
		Value:   rate,
	}
}
