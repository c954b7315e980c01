package logic

import (
	"testing"
	"time"
)

var trusted = Freshness{GraceExpired: true}

func allAlerts() AlertSettings {
	return AlertSettings{Enabled: true, Sound: true, Haptic: true, Notifications: true}
}

func TestThrottleLocalCooldown(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	th := NewThrottle(DefaultCooldowns())
	settings := AlertSettings{Enabled: true, Sound: true}

	d1 := th.Evaluate(t0, 130, DefaultThresholds(), trusted, settings)
	if !d1.Local {
		t.Fatal("expected first out-of-range sample to fire local")
	}

	d2 := th.Evaluate(t0.Add(3*time.Second), 131, DefaultThresholds(), trusted, settings)
	if d2.Local {
		t.Error("expected second sample within 5s suppressed")
	}
	if !d2.Suppressed {
		t.Error("expected suppressed flag on throttled sample")
	}

	d3 := th.Evaluate(t0.Add(6*time.Second), 132, DefaultThresholds(), trusted, settings)
	if !d3.Local {
		t.Error("expected third sample 6s after first to fire")
	}
}

func TestThrottleChannelsIndependent(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	th := NewThrottle(DefaultCooldowns())

	d := th.Evaluate(t0, 45, DefaultThresholds(), trusted, allAlerts())
	if !d.Local || !d.Remote {
		t.Fatalf("expected both channels on first breach, got %+v", d)
	}

	// 10s later: local ready again, remote still cooling down.
	d = th.Evaluate(t0.Add(10*time.Second), 45, DefaultThresholds(), trusted, allAlerts())
	if !d.Local || d.Remote {
		t.Errorf("expected local only, got %+v", d)
	}
	local, remote := th.LastFired()
	if !local.Equal(t0.Add(10 * time.Second)) {
		t.Errorf("expected local last fired at +10s, got %v", local)
	}
	if !remote.Equal(t0) {
		t.Errorf("expected remote last fired unchanged, got %v", remote)
	}

	d = th.Evaluate(t0.Add(60*time.Second), 45, DefaultThresholds(), trusted, allAlerts())
	if !d.Remote {
		t.Error("expected remote to fire after 60s")
	}
}

func TestThrottleBreachDetails(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	th := NewThrottle(DefaultCooldowns())

	d := th.Evaluate(t0, 45, DefaultThresholds(), trusted, allAlerts())
	if d.Breach == nil || d.Breach.Kind != BreachLow || d.Breach.Threshold != 60 || d.Breach.BPM != 45 {
		t.Errorf("expected low breach of 60 at 45, got %+v", d.Breach)
	}

	th = NewThrottle(DefaultCooldowns())
	d = th.Evaluate(t0, 130, DefaultThresholds(), trusted, allAlerts())
	if d.Breach == nil || d.Breach.Kind != BreachHigh || d.Breach.Threshold != 100 || d.Breach.BPM != 130 {
		t.Errorf("expected high breach of 100 at 130, got %+v", d.Breach)
	}
}

func TestThrottlePreconditions(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		bpm      int
		fresh    Freshness
		settings AlertSettings
	}{
		{"alerts disabled", 130, trusted, AlertSettings{Sound: true, Notifications: true}},
		{"in range", 80, trusted, allAlerts()},
		{"boundary min in range", 60, trusted, allAlerts()},
		{"boundary max in range", 100, trusted, allAlerts()},
		{"stale", 130, Freshness{Stale: true, GraceExpired: true}, allAlerts()},
		{"in grace", 130, Freshness{}, allAlerts()},
		{"no channel enabled", 130, trusted, AlertSettings{Enabled: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := NewThrottle(DefaultCooldowns())
			d := th.Evaluate(t0, tt.bpm, DefaultThresholds(), tt.fresh, tt.settings)
			if d.Fired() {
				t.Errorf("expected no fire, got %+v", d)
			}
			if d.Suppressed {
				t.Error("expected not suppressed when preconditions fail")
			}
		})
	}
}

func TestThrottleIgnoresEarlierTimestamp(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	th := NewThrottle(DefaultCooldowns())
	settings := AlertSettings{Enabled: true, Haptic: true}

	th.Evaluate(t0, 130, DefaultThresholds(), trusted, settings)
	d := th.Evaluate(t0.Add(-time.Hour), 130, DefaultThresholds(), trusted, settings)
	if d.Local {
		t.Error("expected earlier timestamp not to fire")
	}
	local, _ := th.LastFired()
	if !local.Equal(t0) {
		t.Errorf("expected last fired to stay at %v, got %v", t0, local)
	}
}

func TestThrottleRemoteRequiresNotifications(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	th := NewThrottle(DefaultCooldowns())
	d := th.Evaluate(t0, 130, DefaultThresholds(), trusted, AlertSettings{Enabled: true, Sound: true})
	if d.Remote {
		t.Error("expected no remote fire with notifications disabled")
	}
	if !d.Local {
		t.Error("expected local fire")
	}
}
