package logic

import (
	"testing"
	"time"
)

func feed(s *Session, start time.Time, step time.Duration, bpms ...int) {
	for i, b := range bpms {
		s.Add(Reading{BPM: b, Timestamp: start.Add(time.Duration(i) * step), Source: Primary})
	}
}

func TestSessionBasicStats(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession("s1", start, Thresholds{Min: 60, Max: 100})
	feed(s, start, time.Second, 75, 82, 91, 68)

	st := s.Stats()
	if st.Min != 68 {
		t.Errorf("expected min 68, got %d", st.Min)
	}
	if st.Max != 91 {
		t.Errorf("expected max 91, got %d", st.Max)
	}
	if st.Mean != 79 {
		t.Errorf("expected mean 79, got %v", st.Mean)
	}
	if st.Count != 4 {
		t.Errorf("expected 4 samples, got %d", st.Count)
	}
	if st.TimeOutOfRange != 0 {
		t.Errorf("expected no out-of-range time, got %v", st.TimeOutOfRange)
	}
	if st.TimeInRange != 3*time.Second {
		t.Errorf("expected 3s in range, got %v", st.TimeInRange)
	}
	for i, smp := range s.Samples() {
		if !smp.InRange {
			t.Errorf("sample %d expected in range", i)
		}
	}
}

func TestSessionAttributesByPreviousSample(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession("s1", start, DefaultThresholds())

	s.Add(Reading{BPM: 80, Timestamp: start, Source: Primary})
	// Out-of-range sample arrives 10s later: the 10s belong to the in-range sample.
	s.Add(Reading{BPM: 130, Timestamp: start.Add(10 * time.Second), Source: Primary})
	// Back in range 4s later: the 4s belong to the out-of-range sample.
	s.Add(Reading{BPM: 90, Timestamp: start.Add(14 * time.Second), Source: Primary})

	st := s.Stats()
	if st.TimeInRange != 10*time.Second {
		t.Errorf("expected 10s in range, got %v", st.TimeInRange)
	}
	if st.TimeOutOfRange != 4*time.Second {
		t.Errorf("expected 4s out of range, got %v", st.TimeOutOfRange)
	}
	want := 10.0 / 14.0 * 100
	if got := s.PercentInRange(); got != want {
		t.Errorf("expected %.4f%%, got %.4f%%", want, got)
	}
}

func TestSessionRecomputeOnThresholdChange(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession("s1", start, DefaultThresholds())
	feed(s, start, 5*time.Second, 75, 82, 91, 68)

	before := s.Stats()
	s.SetThresholds(Thresholds{Min: 70, Max: 85})
	after := s.Stats()

	// 75 in, 82 in, 91 out, 68 out: 5s+5s in, 5s out.
	if after.TimeInRange != 10*time.Second {
		t.Errorf("expected 10s in range, got %v", after.TimeInRange)
	}
	if after.TimeOutOfRange != 5*time.Second {
		t.Errorf("expected 5s out of range, got %v", after.TimeOutOfRange)
	}
	if after.Min != before.Min || after.Max != before.Max || after.Mean != before.Mean {
		t.Errorf("min/max/mean changed: before %+v, after %+v", before, after)
	}

	samples := s.Samples()
	wantInRange := []bool{true, true, false, false}
	for i, w := range wantInRange {
		if samples[i].InRange != w {
			t.Errorf("sample %d: expected InRange %v, got %v", i, w, samples[i].InRange)
		}
	}
}

func TestSessionRecomputeIdempotent(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession("s1", start, DefaultThresholds())
	feed(s, start, 3*time.Second, 55, 75, 120, 99, 101, 60)

	s.SetThresholds(DefaultThresholds())
	first := s.Stats()
	s.SetThresholds(DefaultThresholds())
	second := s.Stats()

	if first.TimeInRange != second.TimeInRange || first.TimeOutOfRange != second.TimeOutOfRange {
		t.Errorf("recompute not idempotent: %+v vs %+v", first, second)
	}
}

func TestSessionEmpty(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession("s1", start, DefaultThresholds())
	if p := s.PercentInRange(); p != 0 {
		t.Errorf("expected 0%% with no samples, got %v", p)
	}
	st := s.Stats()
	if st.Count != 0 || st.Min != 0 || st.Max != 0 || st.Mean != 0 {
		t.Errorf("expected zero stats, got %+v", st)
	}

	// A single sample attributes no time.
	s.Add(Reading{BPM: 70, Timestamp: start, Source: Primary})
	if p := s.PercentInRange(); p != 0 {
		t.Errorf("expected 0%% with one sample, got %v", p)
	}
}

func TestSessionReset(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewSession("s1", start, Thresholds{Min: 50, Max: 120})
	feed(s, start, time.Second, 70, 80)

	later := start.Add(time.Hour)
	s.Reset("s2", later)

	if s.ID() != "s2" {
		t.Errorf("expected id s2, got %s", s.ID())
	}
	if s.Stats().Count != 0 {
		t.Error("expected samples cleared")
	}
	if s.Thresholds() != (Thresholds{Min: 50, Max: 120}) {
		t.Errorf("expected thresholds kept, got %+v", s.Thresholds())
	}
	if d := s.Duration(later.Add(9 * time.Second)); d != 9*time.Second {
		t.Errorf("expected 9s duration, got %v", d)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{9 * time.Second, "9s"},
		{3*time.Minute + 5*time.Second, "3m 05s"},
		{time.Hour + 2*time.Minute + 30*time.Second, "1h 02m"},
		{0, "0s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v): expected %q, got %q", tt.d, tt.want, got)
		}
	}
}

func TestFormatInterval(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{9 * time.Second, "9s"},
		{3*time.Minute + 5*time.Second, "3m 5s"},
		{time.Hour + 2*time.Minute, "1h 2m"},
	}
	for _, tt := range tests {
		if got := FormatInterval(tt.d); got != tt.want {
			t.Errorf("FormatInterval(%v): expected %q, got %q", tt.d, tt.want, got)
		}
	}
}
