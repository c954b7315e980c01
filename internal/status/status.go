// Package status provides a thread-safe status tracker for the heartsafe daemon.
// The monitor writes it; HTTP handlers, the live feed and system events read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/heartsafe/internal/logic"
)

// NetworkInfo contains network state.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	HeartbeatMs   int64
	ScanTimeoutMs int64
	Broker        string
	NATS          string
	HTTPAddr      string
}

// Monitor is the monitor's state as published after each event.
type Monitor struct {
	Connection     string // e.g. "connected(1)"
	ConnectionKind string // e.g. "connected"
	Power          string
	Device         string
	LastError      string

	BPM        int
	Source     logic.SourceID // empty when no source is active
	Policy     logic.Policy
	LastUpdate time.Time
	Freshness  logic.Freshness

	Thresholds logic.Thresholds
	Alerts     logic.AlertSettings

	SecondaryAuth      string
	SecondaryRunning   bool
	SecondaryLastError string

	LastNotificationError string
	Background            bool

	Session logic.SessionStats
	Counts  logic.EventCounts
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Monitor
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// SessionDuration returns how long the current session has run.
func (s Snapshot) SessionDuration() time.Duration {
	if s.Session.Start.IsZero() || s.Now.Before(s.Session.Start) {
		return 0
	}
	return s.Now.Sub(s.Session.Start)
}

// InRange reports whether the current reading is trusted and inside the
// thresholds.
func (s Snapshot) InRange() bool {
	return s.Source != "" && s.BPM > 0 && s.Freshness.Trusted() && s.Thresholds.Contains(s.BPM)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time

	subMu sync.Mutex
	subs  map[chan struct{}]struct{}
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now:  time.Now,
		subs: make(map[chan struct{}]struct{}),
	}
}

// SetClock replaces the clock used to stamp snapshots.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	t.now = now
	t.mu.Unlock()
}

// Update replaces the monitor state and wakes subscribers.
func (t *Tracker) Update(m Monitor) {
	t.mu.Lock()
	t.snap.Monitor = m
	t.mu.Unlock()
	t.notify()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	now := t.now
	t.mu.RUnlock()
	s.Now = now()
	return s
}

// Subscribe returns a channel that receives a signal after each Update.
// Signals coalesce: a slow reader sees at most one pending wakeup. The
// returned function unsubscribes.
func (t *Tracker) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	t.subMu.Lock()
	t.subs[ch] = struct{}{}
	t.subMu.Unlock()
	return ch, func() {
		t.subMu.Lock()
		delete(t.subs, ch)
		t.subMu.Unlock()
	}
}

func (t *Tracker) notify() {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	for ch := range t.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
