package ble

import "fmt"

// Power is the radio adapter's availability.
type Power int

const (
	PowerUnknown Power = iota
	PowerOn
	PowerOff
	PowerUnauthorized
	PowerUnsupported
)

func (p Power) String() string {
	switch p {
	case PowerOn:
		return "on"
	case PowerOff:
		return "off"
	case PowerUnauthorized:
		return "unauthorized"
	case PowerUnsupported:
		return "unsupported"
	}
	return "unknown"
}

// EventType identifies a radio callback.
type EventType int

const (
	EventPower EventType = iota
	EventDeviceFound
	EventLinkUp
	EventLinkDown
	EventConnectFailed
	EventDiscoveryFailed
	EventNotification
)

func (t EventType) String() string {
	switch t {
	case EventPower:
		return "power"
	case EventDeviceFound:
		return "device_found"
	case EventLinkUp:
		return "link_up"
	case EventLinkDown:
		return "link_down"
	case EventConnectFailed:
		return "connect_failed"
	case EventDiscoveryFailed:
		return "discovery_failed"
	case EventNotification:
		return "notification"
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// RadioEvent is delivered by a Radio. Only the fields relevant to Type are set.
type RadioEvent struct {
	Type    EventType
	Power   Power  // EventPower
	Address string // peripheral address for every other type
	Name    string // EventDeviceFound
	RSSI    int16  // EventDeviceFound
	Err     error  // EventLinkDown, EventConnectFailed, EventDiscoveryFailed
	Payload []byte // EventNotification
}

// Radio is the transport under the state machine. Commands return promptly;
// outcomes arrive later as events on the handler passed to Start. Handlers
// may be called from any goroutine.
type Radio interface {
	// Start enables the adapter and begins reporting events. The current
	// power state is reported as the first event.
	Start(handler func(RadioEvent)) error
	// Scan looks for peripherals advertising service. Each match is
	// reported as EventDeviceFound until StopScan.
	Scan(service uint16) error
	StopScan() error
	// Connect opens a link. Reports EventLinkUp or EventConnectFailed.
	Connect(address string) error
	// Disconnect cancels a pending or established link.
	Disconnect(address string) error
	// Subscribe discovers service and characteristic on a connected
	// peripheral and enables value-change notifications. Reports
	// EventDiscoveryFailed on failure, EventNotification per value.
	Subscribe(address string, service, characteristic uint16) error
	Close() error
}
