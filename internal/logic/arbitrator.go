package logic

import "time"

// SourceStatus is the connection/authorization view the arbitrator needs.
type SourceStatus struct {
	PrimaryConnected    bool
	SecondaryAuthorized bool
}

// ActiveSource returns the authoritative source for the given policy and
// status. It is pure: the same inputs always give the same answer.
// Automatic prefers a connected primary, then an authorized secondary.
func ActiveSource(p Policy, s SourceStatus) (SourceID, bool) {
	switch p {
	case PolicyForcePrimary:
		return Primary, true
	case PolicyForceSecondary:
		return Secondary, true
	}
	if s.PrimaryConnected {
		return Primary, true
	}
	if s.SecondaryAuthorized {
		return Secondary, true
	}
	return "", false
}

// Arbitrator filters readings down to the active source.
type Arbitrator struct {
	policy        Policy
	status        SourceStatus
	active        SourceID
	hasActive     bool
	lastSecondary time.Time
}

// NewArbitrator creates an arbitrator with nothing connected or authorized.
func NewArbitrator(p Policy) *Arbitrator {
	a := &Arbitrator{}
	a.Update(p, SourceStatus{})
	return a
}

// Update recomputes the active source. Returns true when it changed.
func (a *Arbitrator) Update(p Policy, s SourceStatus) bool {
	a.policy = p
	a.status = s
	src, ok := ActiveSource(p, s)
	changed := src != a.active || ok != a.hasActive
	a.active, a.hasActive = src, ok
	return changed
}

// Policy returns the policy last passed to Update.
func (a *Arbitrator) Policy() Policy { return a.policy }

// Status returns the status last passed to Update.
func (a *Arbitrator) Status() SourceStatus { return a.status }

// Active returns the current authoritative source, if any.
func (a *Arbitrator) Active() (SourceID, bool) {
	return a.active, a.hasActive
}

// Accept reports whether r should become a sample. Readings from an inactive
// source, zero readings, and secondary readings that are not newer than the
// last accepted secondary reading are rejected.
func (a *Arbitrator) Accept(r Reading) bool {
	if !a.hasActive || r.Source != a.active {
		return false
	}
	if r.BPM <= 0 {
		return false
	}
	if r.Source == Secondary {
		if !a.lastSecondary.IsZero() && !r.Timestamp.After(a.lastSecondary) {
			return false
		}
		a.lastSecondary = r.Timestamp
	}
	return true
}
