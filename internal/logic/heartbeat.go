package logic

import "time"

// Heartbeat counts alerting activity and emits periodic summaries.
type Heartbeat struct {
	startTime     time.Time
	lastHeartbeat time.Time
	counts        EventCounts
}

// NewHeartbeat creates a heartbeat. The startTime is used for calculating
// uptime in heartbeat events.
func NewHeartbeat(startTime time.Time) *Heartbeat {
	return &Heartbeat{startTime: startTime, lastHeartbeat: startTime}
}

// Record folds one accepted sample and its throttle decision into the counts.
func (h *Heartbeat) Record(d Decision) {
	h.counts.Samples++
	if d.Local {
		h.counts.LocalAlerts++
	}
	if d.Remote {
		h.counts.Notifications++
	}
	if d.Suppressed {
		h.counts.Suppressed++
	}
}

// Counts returns the counts since startup.
func (h *Heartbeat) Counts() EventCounts {
	return h.counts
}

// Check returns heartbeat data if the interval has elapsed since the last
// heartbeat (or startup). Returns nil if the interval has not elapsed, or if
// interval is <= 0 (disabled).
func (h *Heartbeat) Check(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(h.lastHeartbeat) < interval {
		return nil
	}
	h.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(h.startTime),
		Counts:    h.counts,
	}
}
