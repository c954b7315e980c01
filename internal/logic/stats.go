package logic

import (
	"fmt"
	"time"
)

// Session accumulates statistics for one monitoring session.
type Session struct {
	id         string
	start      time.Time
	thresholds Thresholds
	samples    []Sample

	min, max int
	sum      int
	inRange  time.Duration
	outRange time.Duration
}

// SessionStats is a point-in-time copy of a session's aggregates.
type SessionStats struct {
	ID             string
	Start          time.Time
	Count          int
	Min            int
	Max            int
	Mean           float64
	TimeInRange    time.Duration
	TimeOutOfRange time.Duration
	PercentInRange float64
}

// NewSession starts a session at start with the given thresholds.
func NewSession(id string, start time.Time, th Thresholds) *Session {
	return &Session{id: id, start: start, thresholds: th}
}

// Add records an accepted reading and returns the stored sample.
// The time since the previous sample is credited to in-range or
// out-of-range according to the previous sample's status.
func (s *Session) Add(r Reading) Sample {
	sample := Sample{
		BPM:       r.BPM,
		Timestamp: r.Timestamp,
		Source:    r.Source,
		InRange:   s.thresholds.Contains(r.BPM),
	}

	if len(s.samples) == 0 {
		s.min, s.max = r.BPM, r.BPM
	} else {
		if r.BPM < s.min {
			s.min = r.BPM
		}
		if r.BPM > s.max {
			s.max = r.BPM
		}
		s.credit(s.samples[len(s.samples)-1], r.Timestamp)
	}
	s.sum += r.BPM
	s.samples = append(s.samples, sample)
	return sample
}

// SetThresholds re-categorises every buffered sample and rebuilds both
// duration totals from scratch. Min, max and mean are unaffected.
func (s *Session) SetThresholds(th Thresholds) {
	s.thresholds = th
	s.inRange, s.outRange = 0, 0
	for i := range s.samples {
		s.samples[i].InRange = th.Contains(s.samples[i].BPM)
		if i > 0 {
			s.credit(s.samples[i-1], s.samples[i].Timestamp)
		}
	}
}

func (s *Session) credit(prev Sample, ts time.Time) {
	elapsed := ts.Sub(prev.Timestamp)
	if elapsed <= 0 {
		return
	}
	if prev.InRange {
		s.inRange += elapsed
	} else {
		s.outRange += elapsed
	}
}

// Reset discards all samples and starts a new session.
func (s *Session) Reset(id string, now time.Time) {
	*s = Session{id: id, start: now, thresholds: s.thresholds}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Thresholds returns the thresholds used for categorisation.
func (s *Session) Thresholds() Thresholds { return s.thresholds }

// Samples returns a copy of the buffered samples.
func (s *Session) Samples() []Sample {
	out := make([]Sample, len(s.samples))
	copy(out, s.samples)
	return out
}

// Duration returns how long the session has been running at now.
func (s *Session) Duration(now time.Time) time.Duration {
	if now.Before(s.start) {
		return 0
	}
	return now.Sub(s.start)
}

// PercentInRange returns in/(in+out)*100, or 0 with no attributed time.
func (s *Session) PercentInRange() float64 {
	total := s.inRange + s.outRange
	if total == 0 {
		return 0
	}
	return float64(s.inRange) / float64(total) * 100
}

// Stats returns the current aggregates.
func (s *Session) Stats() SessionStats {
	st := SessionStats{
		ID:             s.id,
		Start:          s.start,
		Count:          len(s.samples),
		TimeInRange:    s.inRange,
		TimeOutOfRange: s.outRange,
		PercentInRange: s.PercentInRange(),
	}
	if st.Count > 0 {
		st.Min, st.Max = s.min, s.max
		st.Mean = float64(s.sum) / float64(st.Count)
	}
	return st
}

// FormatDuration renders a session length: "1h 02m", "3m 05s" or "9s".
func FormatDuration(d time.Duration) string {
	h, m, sec := split(d)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, sec)
	default:
		return fmt.Sprintf("%ds", sec)
	}
}

// FormatInterval renders an accumulated interval: "1h 2m", "3m 5s" or "9s".
func FormatInterval(d time.Duration) string {
	h, m, sec := split(d)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, sec)
	default:
		return fmt.Sprintf("%ds", sec)
	}
}

func split(d time.Duration) (h, m, s int) {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return total / 3600, (total % 3600) / 60, total % 60
}
