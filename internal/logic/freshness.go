package logic

import "time"

// Default freshness windows.
const (
	PrimaryStaleAfter   = 5 * time.Second
	SecondaryStaleAfter = 60 * time.Second
	PrimaryGracePeriod  = 5 * time.Second
	RecheckInterval     = 2 * time.Second
)

// FreshnessLimits configures the evaluator.
type FreshnessLimits struct {
	PrimaryStale   time.Duration
	SecondaryStale time.Duration
	Grace          time.Duration
}

// DefaultFreshnessLimits returns the 5s/60s/5s windows.
func DefaultFreshnessLimits() FreshnessLimits {
	return FreshnessLimits{
		PrimaryStale:   PrimaryStaleAfter,
		SecondaryStale: SecondaryStaleAfter,
		Grace:          PrimaryGracePeriod,
	}
}

// SourceTiming is the timestamp view of the active source.
// ConnectionTime and Connected only matter for Primary.
type SourceTiming struct {
	Source         SourceID
	Connected      bool
	ConnectionTime time.Time
	LastUpdate     time.Time
}

// Freshness is the trust verdict for the active source.
type Freshness struct {
	Stale        bool
	GraceExpired bool
}

// Trusted reports whether data may drive alerts and range reporting.
func (f Freshness) Trusted() bool {
	return !f.Stale && f.GraceExpired
}

// Evaluate applies the default limits.
func Evaluate(now time.Time, t SourceTiming) Freshness {
	return DefaultFreshnessLimits().Evaluate(now, t)
}

// Evaluate derives staleness and grace state from timestamps alone.
// All comparisons are strict: exactly at the limit is still fresh and still
// in grace.
func (l FreshnessLimits) Evaluate(now time.Time, t SourceTiming) Freshness {
	switch t.Source {
	case Primary:
		var f Freshness
		if t.Connected {
			f.Stale = t.LastUpdate.IsZero() || now.Sub(t.LastUpdate) > l.PrimaryStale
			f.GraceExpired = !t.ConnectionTime.IsZero() && now.Sub(t.ConnectionTime) > l.Grace
		}
		return f
	case Secondary:
		return Freshness{
			Stale:        t.LastUpdate.IsZero() || now.Sub(t.LastUpdate) > l.SecondaryStale,
			GraceExpired: true,
		}
	}
	return Freshness{Stale: true}
}

// OutOfRange reports a range violation only when the data is trusted.
func OutOfRange(bpm int, th Thresholds, f Freshness) bool {
	if !f.Trusted() || bpm <= 0 {
		return false
	}
	return !th.Contains(bpm)
}
