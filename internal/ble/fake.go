package ble

import (
	"fmt"
	"sync"
)

// FakeRadio records commands for test assertions and lets tests inject
// events. It is safe for concurrent use.
type FakeRadio struct {
	mu sync.Mutex

	handler func(RadioEvent)

	// Power, if not PowerUnknown, is reported by Start.
	Power Power

	// StartError, ScanError, ConnectError and SubscribeError are returned by
	// the matching command when set.
	StartError     error
	ScanError      error
	ConnectError   error
	SubscribeError error

	calls []string
}

// NewFakeRadio creates a fake radio that reports power p on Start.
func NewFakeRadio(p Power) *FakeRadio {
	return &FakeRadio{Power: p}
}

// Start stores the handler and reports Power.
func (f *FakeRadio) Start(handler func(RadioEvent)) error {
	f.mu.Lock()
	if f.StartError != nil {
		f.mu.Unlock()
		return f.StartError
	}
	f.handler = handler
	f.calls = append(f.calls, "start")
	p := f.Power
	f.mu.Unlock()

	if p != PowerUnknown {
		handler(RadioEvent{Type: EventPower, Power: p})
	}
	return nil
}

// Scan records a scan for service.
func (f *FakeRadio) Scan(service uint16) error {
	return f.record(fmt.Sprintf("scan %04x", service), f.ScanError)
}

// StopScan records a stop.
func (f *FakeRadio) StopScan() error {
	return f.record("stop-scan", nil)
}

// Connect records a connection request.
func (f *FakeRadio) Connect(address string) error {
	return f.record("connect "+address, f.ConnectError)
}

// Disconnect records a cancellation.
func (f *FakeRadio) Disconnect(address string) error {
	return f.record("disconnect "+address, nil)
}

// Subscribe records a subscription request.
func (f *FakeRadio) Subscribe(address string, service, characteristic uint16) error {
	return f.record(fmt.Sprintf("subscribe %s %04x/%04x", address, service, characteristic), f.SubscribeError)
}

// Close records the close.
func (f *FakeRadio) Close() error {
	return f.record("close", nil)
}

func (f *FakeRadio) record(call string, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		return err
	}
	f.calls = append(f.calls, call)
	return nil
}

// Emit delivers ev to the handler registered by Start.
func (f *FakeRadio) Emit(ev RadioEvent) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

// Calls returns the commands received so far, e.g. "scan 180d",
// "connect AA:BB", "subscribe AA:BB 180d/2a37".
func (f *FakeRadio) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// Reset clears recorded calls.
func (f *FakeRadio) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}
