// Package logic contains pure business logic for heart-rate monitoring:
// source arbitration, freshness evaluation, alert throttling and session
// statistics. This package has NO external dependencies (no radio, MQTT, OS,
// or time.Sleep). Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"time"
)

// SourceID identifies where a reading came from.
type SourceID string

const (
	// Primary is the wireless chest-strap / wrist sensor.
	Primary SourceID = "primary"
	// Secondary is the platform health-data feed.
	Secondary SourceID = "secondary"
)

// Policy selects which source is authoritative.
type Policy string

const (
	PolicyForcePrimary   Policy = "bluetooth"
	PolicyForceSecondary Policy = "health"
	PolicyAutomatic      Policy = "automatic"
)

// ParsePolicy maps a stored or user-supplied policy name to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyForcePrimary, PolicyForceSecondary, PolicyAutomatic:
		return p, nil
	}
	return "", fmt.Errorf("unknown data source policy %q", s)
}

// Reading is a raw heart-rate value from either source, before arbitration.
type Reading struct {
	BPM       int
	Timestamp time.Time
	Source    SourceID
}

// Sample is an accepted reading. InRange reflects the thresholds in force at
// the last recomputation.
type Sample struct {
	BPM       int
	Timestamp time.Time
	Source    SourceID
	InRange   bool
}

// Threshold limits.
const (
	ThresholdFloor   = 40
	ThresholdCeiling = 200
	DefaultMinBPM    = 60
	DefaultMaxBPM    = 100
)

// Thresholds is the inclusive acceptable heart-rate band.
type Thresholds struct {
	Min int
	Max int
}

// DefaultThresholds returns the 60..100 band.
func DefaultThresholds() Thresholds {
	return Thresholds{Min: DefaultMinBPM, Max: DefaultMaxBPM}
}

// Validate checks limits and ordering.
func (t Thresholds) Validate() error {
	if t.Min < ThresholdFloor || t.Max > ThresholdCeiling {
		return fmt.Errorf("thresholds %d..%d outside %d..%d", t.Min, t.Max, ThresholdFloor, ThresholdCeiling)
	}
	if t.Min >= t.Max {
		return fmt.Errorf("minimum %d must be below maximum %d", t.Min, t.Max)
	}
	return nil
}

// Clamp forces both bounds into the allowed limits. It does not fix ordering.
func (t Thresholds) Clamp() Thresholds {
	return Thresholds{Min: clamp(t.Min), Max: clamp(t.Max)}
}

// Contains reports whether bpm is within [Min, Max].
func (t Thresholds) Contains(bpm int) bool {
	return bpm >= t.Min && bpm <= t.Max
}

func clamp(v int) int {
	if v < ThresholdFloor {
		return ThresholdFloor
	}
	if v > ThresholdCeiling {
		return ThresholdCeiling
	}
	return v
}

// AlertSettings holds the user's alert toggles.
type AlertSettings struct {
	Enabled       bool // master switch
	Sound         bool
	Haptic        bool
	Notifications bool
}

// Local reports whether the local (sound/haptic) channel is enabled.
func (a AlertSettings) Local() bool {
	return a.Sound || a.Haptic
}

// BreachKind says which side of the band a reading fell on.
type BreachKind string

const (
	BreachLow  BreachKind = "LOW"
	BreachHigh BreachKind = "HIGH"
)

// Breach describes an out-of-range reading and the threshold it crossed.
type Breach struct {
	Kind      BreachKind
	Threshold int
	BPM       int
}

// CheckBreach returns the breach for bpm, or nil when bpm is in range.
func CheckBreach(bpm int, th Thresholds) *Breach {
	switch {
	case bpm < th.Min:
		return &Breach{Kind: BreachLow, Threshold: th.Min, BPM: bpm}
	case bpm > th.Max:
		return &Breach{Kind: BreachHigh, Threshold: th.Max, BPM: bpm}
	}
	return nil
}

// EventCounts tracks alerting activity since startup.
type EventCounts struct {
	Samples       int
	LocalAlerts   int
	Notifications int
	Suppressed    int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
