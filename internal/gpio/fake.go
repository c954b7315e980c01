package gpio

import "sync"

// FakeFeedback is a test double that counts feedback requests.
type FakeFeedback struct {
	mu sync.Mutex

	// Sounds and Pulses count successful calls.
	Sounds int
	Pulses int

	// Closed tracks if Close was called
	Closed bool

	// SoundError and PulseError, if set, are returned instead of counting.
	SoundError error
	PulseError error
}

// NewFakeFeedback creates a FakeFeedback.
func NewFakeFeedback() *FakeFeedback {
	return &FakeFeedback{}
}

// PlaySound records a sound request.
func (f *FakeFeedback) PlaySound() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SoundError != nil {
		return f.SoundError
	}
	f.Sounds++
	return nil
}

// Pulse records a haptic request.
func (f *FakeFeedback) Pulse() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PulseError != nil {
		return f.PulseError
	}
	f.Pulses++
	return nil
}

// Counts returns (sounds, pulses).
func (f *FakeFeedback) Counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Sounds, f.Pulses
}

// Close marks the feedback as closed.
func (f *FakeFeedback) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset clears counters and errors.
func (f *FakeFeedback) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sounds, f.Pulses = 0, 0
	f.Closed = false
	f.SoundError, f.PulseError = nil, nil
}
