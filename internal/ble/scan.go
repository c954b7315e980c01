package ble

import (
	"errors"
	"sync"
	"time"
)

// scanStopWait bounds how long Scan waits for a stopped scan to unwind.
const scanStopWait = 2 * time.Second

var errScanStuck = errors.New("previous scan did not stop")

// scanSlot allows one background scan at a time. Stopping a scan only asks
// the scan loop to exit; the slot stays held until the loop calls release,
// and a scan requested in between waits for it instead of being mistaken for
// the one still running.
type scanSlot struct {
	mu       sync.Mutex
	running  bool
	stopping bool
	done     chan struct{}
}

// claim takes the slot for a new scan and returns the channel that release
// closes. It returns nil when a live scan already holds the slot.
func (s *scanSlot) claim(wait time.Duration) (chan struct{}, error) {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	s.mu.Lock()
	for s.running && s.stopping {
		prev := s.done
		s.mu.Unlock()
		select {
		case <-prev:
		case <-deadline.C:
			return nil, errScanStuck
		}
		s.mu.Lock()
	}
	defer s.mu.Unlock()
	if s.running {
		return nil, nil
	}
	s.running = true
	s.done = make(chan struct{})
	return s.done, nil
}

// stop marks the running scan as stopping and returns its done channel, or
// nil when nothing is scanning.
func (s *scanSlot) stop() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.stopping = true
	return s.done
}

// release frees the slot once the scan loop has returned.
func (s *scanSlot) release() {
	s.mu.Lock()
	done := s.done
	s.running = false
	s.stopping = false
	s.mu.Unlock()
	close(done)
}
