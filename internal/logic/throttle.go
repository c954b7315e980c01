package logic

import "time"

// Default cooldown windows per channel.
const (
	LocalCooldown  = 5 * time.Second
	RemoteCooldown = 60 * time.Second
)

// Cooldowns configures the throttle.
type Cooldowns struct {
	Local  time.Duration
	Remote time.Duration
}

// DefaultCooldowns returns 5s local, 60s remote.
func DefaultCooldowns() Cooldowns {
	return Cooldowns{Local: LocalCooldown, Remote: RemoteCooldown}
}

// Decision is the throttle's verdict for one sample.
type Decision struct {
	Breach *Breach // nil unless every alert precondition held
	Local  bool    // fire sound/haptic
	Remote bool    // fire a notification
	// Suppressed is set when an alert was due but every enabled channel was
	// still cooling down.
	Suppressed bool
}

// Fired reports whether any channel fires.
func (d Decision) Fired() bool {
	return d.Local || d.Remote
}

// Throttle decides whether an out-of-range sample fires the local channel,
// the remote channel, both, or neither. Each channel has its own cooldown.
type Throttle struct {
	cooldowns  Cooldowns
	lastLocal  time.Time
	lastRemote time.Time
}

// NewThrottle creates a throttle with no channel fired yet.
func NewThrottle(c Cooldowns) *Throttle {
	return &Throttle{cooldowns: c}
}

// Evaluate checks the preconditions (alerts enabled, bpm outside th, data
// trusted) and then each channel's enablement and cooldown. Firing a channel
// records now as that channel's last fire time.
func (t *Throttle) Evaluate(now time.Time, bpm int, th Thresholds, f Freshness, s AlertSettings) Decision {
	if !s.Enabled || !OutOfRange(bpm, th, f) {
		return Decision{}
	}
	d := Decision{Breach: CheckBreach(bpm, th)}

	if s.Local() && ready(now, t.lastLocal, t.cooldowns.Local) {
		d.Local = true
		t.lastLocal = now
	}
	if s.Notifications && ready(now, t.lastRemote, t.cooldowns.Remote) {
		d.Remote = true
		t.lastRemote = now
	}
	d.Suppressed = !d.Fired() && (s.Local() || s.Notifications)
	return d
}

// LastFired returns the last fire time per channel (zero if never).
func (t *Throttle) LastFired() (local, remote time.Time) {
	return t.lastLocal, t.lastRemote
}

// ready reports whether a channel last fired at last may fire again at now.
// A timestamp earlier than last never fires, so last only moves forward.
func ready(now, last time.Time, cooldown time.Duration) bool {
	if last.IsZero() {
		return true
	}
	if now.Before(last) {
		return false
	}
	return now.Sub(last) >= cooldown
}
