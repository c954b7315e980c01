package mqtt

import (
	"context"
	"sync"

	"github.com/sweeney/heartsafe/internal/alert"
)

// FakePublisher records published alerts and system events for test
// assertions. It is safe for use from the alert dispatcher goroutine; read
// the recorded fields through the accessor methods while it is in use.
type FakePublisher struct {
	mu sync.Mutex

	// Notifications contains all alerts that were published.
	Notifications []alert.Notification

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// NotifyError, if set, will be returned by Notify.
	NotifyError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Notify records the alert.
func (f *FakePublisher) Notify(_ context.Context, n alert.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.NotifyError != nil {
		return f.NotifyError
	}

	payload, err := FormatPayload(n)
	if err != nil {
		return err
	}
	f.Notifications = append(f.Notifications, n)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Sent returns a copy of the recorded notifications.
func (f *FakePublisher) Sent() []alert.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]alert.Notification(nil), f.Notifications...)
}

// System returns a copy of the recorded system events.
func (f *FakePublisher) System() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.SystemEvents...)
}

// SetNotifyError changes the Notify error while the fake is in use.
func (f *FakePublisher) SetNotifyError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.NotifyError = err
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Notifications = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.NotifyError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
