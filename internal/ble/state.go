// Package ble owns the link to a Bluetooth LE heart rate sensor: the radio
// abstraction, the measurement codec and the connection state machine.
package ble

import "fmt"

// Kind is the discriminant of a ConnectionState.
type Kind int

const (
	KindUnknown Kind = iota
	KindPoweredOff
	KindUnauthorized
	KindUnsupported
	KindScanning
	KindConnecting
	KindConnected
	KindDisconnected
)

var kindNames = [...]string{
	KindUnknown:      "unknown",
	KindPoweredOff:   "powered_off",
	KindUnauthorized: "unauthorized",
	KindUnsupported:  "unsupported",
	KindScanning:     "scanning",
	KindConnecting:   "connecting",
	KindConnected:    "connected",
	KindDisconnected: "disconnected",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DeviceHandle is an opaque reference to a peripheral known to a Machine.
// Zero is never a valid handle.
type DeviceHandle uint64

// ConnectionState is a tagged variant. Build values with the constructors
// below; the zero value is Unknown.
type ConnectionState struct {
	kind   Kind
	handle DeviceHandle
	err    error
}

func Unknown() ConnectionState      { return ConnectionState{kind: KindUnknown} }
func PoweredOff() ConnectionState   { return ConnectionState{kind: KindPoweredOff} }
func Unauthorized() ConnectionState { return ConnectionState{kind: KindUnauthorized} }
func Unsupported() ConnectionState  { return ConnectionState{kind: KindUnsupported} }
func Scanning() ConnectionState     { return ConnectionState{kind: KindScanning} }

// Connecting panics on a zero handle.
func Connecting(h DeviceHandle) ConnectionState {
	mustHandle(h)
	return ConnectionState{kind: KindConnecting, handle: h}
}

// Connected panics on a zero handle.
func Connected(h DeviceHandle) ConnectionState {
	mustHandle(h)
	return ConnectionState{kind: KindConnected, handle: h}
}

// Disconnected carries the cause, or nil for a clean stop.
func Disconnected(err error) ConnectionState {
	return ConnectionState{kind: KindDisconnected, err: err}
}

func mustHandle(h DeviceHandle) {
	if h == 0 {
		panic("ble: connection state requires a device handle")
	}
}

// Kind returns the variant.
func (s ConnectionState) Kind() Kind { return s.kind }

// Handle returns the device handle for Connecting and Connected.
func (s ConnectionState) Handle() (DeviceHandle, bool) {
	return s.handle, s.handle != 0
}

// Err returns the Disconnected cause.
func (s ConnectionState) Err() error { return s.err }

// IsConnected reports whether the link is up.
func (s ConnectionState) IsConnected() bool { return s.kind == KindConnected }

// CanScan reports whether a scan may start from this state.
func (s ConnectionState) CanScan() bool {
	return s.kind == KindDisconnected || s.kind == KindScanning
}

func (s ConnectionState) String() string {
	switch s.kind {
	case KindConnecting, KindConnected:
		return fmt.Sprintf("%s(%d)", s.kind, s.handle)
	case KindDisconnected:
		if s.err != nil {
			return fmt.Sprintf("%s(%v)", s.kind, s.err)
		}
	}
	return s.kind.String()
}
