package logic

import (
	"testing"
	"time"
)

func TestPrimaryStaleBoundary(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	timing := SourceTiming{
		Source:         Primary,
		Connected:      true,
		ConnectionTime: t0.Add(-time.Minute),
		LastUpdate:     t0,
	}

	if f := Evaluate(t0.Add(4999*time.Millisecond), timing); f.Stale {
		t.Error("expected fresh at t0+4.999s")
	}
	if f := Evaluate(t0.Add(5*time.Second), timing); f.Stale {
		t.Error("expected fresh exactly at t0+5s")
	}
	if f := Evaluate(t0.Add(5001*time.Millisecond), timing); !f.Stale {
		t.Error("expected stale at t0+5.001s")
	}
}

func TestPrimaryStaleWithoutUpdate(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f := Evaluate(now, SourceTiming{Source: Primary, Connected: true, ConnectionTime: now.Add(-time.Minute)})
	if !f.Stale {
		t.Error("expected stale when connected with no update")
	}
}

func TestPrimaryGracePeriod(t *testing.T) {
	connected := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		offset time.Duration
		want   bool
	}{
		{0, false},
		{3 * time.Second, false},
		{5 * time.Second, false},
		{5*time.Second + time.Millisecond, true},
		{time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.offset.String(), func(t *testing.T) {
			now := connected.Add(tt.offset)
			f := Evaluate(now, SourceTiming{Source: Primary, Connected: true, ConnectionTime: connected, LastUpdate: now})
			if f.GraceExpired != tt.want {
				t.Errorf("expected GraceExpired %v, got %v", tt.want, f.GraceExpired)
			}
		})
	}
}

func TestPrimaryDisconnectedNotTrusted(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f := Evaluate(now, SourceTiming{Source: Primary})
	if f.Trusted() {
		t.Error("expected disconnected primary to be untrusted")
	}
}

func TestSecondaryStaleWindow(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	timing := SourceTiming{Source: Secondary, LastUpdate: t0}

	f := Evaluate(t0.Add(59*time.Second), timing)
	if f.Stale {
		t.Error("expected fresh at t0+59s")
	}
	if !f.GraceExpired {
		t.Error("secondary source has no grace period")
	}
	if f := Evaluate(t0.Add(61*time.Second), timing); !f.Stale {
		t.Error("expected stale at t0+61s")
	}
	if f := Evaluate(t0, SourceTiming{Source: Secondary}); !f.Stale {
		t.Error("expected stale with no secondary update")
	}
}

func TestOutOfRangeRequiresTrust(t *testing.T) {
	th := DefaultThresholds()
	trusted := Freshness{GraceExpired: true}

	if !OutOfRange(130, th, trusted) {
		t.Error("expected 130 out of range when trusted")
	}
	if OutOfRange(130, th, Freshness{GraceExpired: false}) {
		t.Error("expected no range violation during grace")
	}
	if OutOfRange(130, th, Freshness{Stale: true, GraceExpired: true}) {
		t.Error("expected no range violation when stale")
	}
	if OutOfRange(80, th, trusted) {
		t.Error("expected 80 in range")
	}
}
