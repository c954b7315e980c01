//go:build linux || darwin || windows

package ble

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/sweeney/heartsafe/internal/fault"
)

// TinyGoRadio drives a real adapter through tinygo.org/x/bluetooth (BlueZ on
// Linux, CoreBluetooth on macOS, WinRT on Windows). Blocking library calls
// run on their own goroutines; results are reported as events.
type TinyGoRadio struct {
	adapter *bluetooth.Adapter
	log     *slog.Logger

	mu       sync.Mutex
	handler  func(RadioEvent)
	seen     map[string]bluetooth.Address
	devices  map[string]bluetooth.Device
	pending  map[string]bool // connect in flight; false once cancelled
	closed   bool

	scan scanSlot
}

// NewTinyGoRadio wraps the system's default adapter.
func NewTinyGoRadio(log *slog.Logger) *TinyGoRadio {
	if log == nil {
		log = slog.Default()
	}
	return &TinyGoRadio{
		adapter: bluetooth.DefaultAdapter,
		log:     log.With("component", "radio"),
		seen:    make(map[string]bluetooth.Address),
		devices: make(map[string]bluetooth.Device),
		pending: make(map[string]bool),
	}
}

// Start enables the adapter. The library has no power-state observation, so
// a successful enable is reported as PowerOn and a failed one as
// PowerUnsupported.
func (r *TinyGoRadio) Start(handler func(RadioEvent)) error {
	r.mu.Lock()
	r.handler = handler
	r.mu.Unlock()

	r.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		addr := device.Address.String()
		r.mu.Lock()
		_, known := r.devices[addr]
		delete(r.devices, addr)
		r.mu.Unlock()
		if known {
			r.emit(RadioEvent{Type: EventLinkDown, Address: addr, Err: errors.New("peripheral disconnected")})
		}
	})

	if err := r.adapter.Enable(); err != nil {
		r.emit(RadioEvent{Type: EventPower, Power: PowerUnsupported})
		return fault.New(fault.RadioUnavailable, "enable", err)
	}
	r.emit(RadioEvent{Type: EventPower, Power: PowerOn})
	return nil
}

// Scan starts a background scan filtered on service.
func (r *TinyGoRadio) Scan(service uint16) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.New("radio closed")
	}
	r.mu.Unlock()

	done, err := r.scan.claim(scanStopWait)
	if err != nil {
		return fault.New(fault.RadioUnavailable, "scan", err)
	}
	if done == nil {
		return nil
	}

	want := bluetooth.New16BitUUID(service)
	go func() {
		defer r.scan.release()
		err := r.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.HasServiceUUID(want) {
				return
			}
			addr := result.Address.String()
			r.mu.Lock()
			r.seen[addr] = result.Address
			r.mu.Unlock()
			r.emit(RadioEvent{
				Type:    EventDeviceFound,
				Address: addr,
				Name:    result.LocalName(),
				RSSI:    result.RSSI,
			})
		})
		if err != nil {
			r.log.Warn("scan ended", "error", err)
		}
	}()
	return nil
}

// StopScan ends a running scan.
func (r *TinyGoRadio) StopScan() error {
	if r.scan.stop() == nil {
		return nil
	}
	return r.adapter.StopScan()
}

// Connect opens a link to a previously discovered peripheral.
func (r *TinyGoRadio) Connect(address string) error {
	r.mu.Lock()
	addr, ok := r.seen[address]
	if ok {
		r.pending[address] = true
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown peripheral %s", address)
	}

	go func() {
		dev, err := r.adapter.Connect(addr, bluetooth.ConnectionParams{})

		r.mu.Lock()
		wanted := r.pending[address]
		delete(r.pending, address)
		if err == nil && wanted {
			r.devices[address] = dev
		}
		r.mu.Unlock()

		switch {
		case err != nil:
			r.emit(RadioEvent{Type: EventConnectFailed, Address: address, Err: err})
		case !wanted:
			// Cancelled while connecting.
			if derr := dev.Disconnect(); derr != nil {
				r.log.Warn("disconnect after cancel failed", "address", address, "error", derr)
			}
		default:
			r.emit(RadioEvent{Type: EventLinkUp, Address: address})
		}
	}()
	return nil
}

// Disconnect cancels a pending connect or drops an established link.
func (r *TinyGoRadio) Disconnect(address string) error {
	r.mu.Lock()
	if _, ok := r.pending[address]; ok {
		r.pending[address] = false
	}
	dev, ok := r.devices[address]
	delete(r.devices, address)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return dev.Disconnect()
}

// Subscribe discovers the measurement characteristic and enables
// notifications on it.
func (r *TinyGoRadio) Subscribe(address string, service, characteristic uint16) error {
	r.mu.Lock()
	dev, ok := r.devices[address]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("peripheral %s not connected", address)
	}

	go func() {
		if err := r.subscribe(dev, address, service, characteristic); err != nil {
			r.emit(RadioEvent{Type: EventDiscoveryFailed, Address: address, Err: err})
		}
	}()
	return nil
}

func (r *TinyGoRadio) subscribe(dev bluetooth.Device, address string, service, characteristic uint16) error {
	services, err := dev.DiscoverServices([]bluetooth.UUID{bluetooth.New16BitUUID(service)})
	if err != nil {
		return fault.New(fault.ServiceDiscoveryFailed, "discover services", err)
	}
	if len(services) == 0 {
		return fault.New(fault.ServiceDiscoveryFailed, "discover services", fmt.Errorf("service %04x not found", service))
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{bluetooth.New16BitUUID(characteristic)})
	if err != nil {
		return fault.New(fault.CharacteristicDiscoveryFailed, "discover characteristics", err)
	}
	if len(chars) == 0 {
		return fault.New(fault.CharacteristicDiscoveryFailed, "discover characteristics", fmt.Errorf("characteristic %04x not found", characteristic))
	}

	err = chars[0].EnableNotifications(func(buf []byte) {
		payload := make([]byte, len(buf))
		copy(payload, buf)
		r.emit(RadioEvent{Type: EventNotification, Address: address, Payload: payload})
	})
	if err != nil {
		return fault.New(fault.CharacteristicDiscoveryFailed, "enable notifications", err)
	}
	return nil
}

// Close stops scanning and drops every link.
func (r *TinyGoRadio) Close() error {
	r.mu.Lock()
	r.closed = true
	devices := r.devices
	r.devices = make(map[string]bluetooth.Device)
	for addr := range r.pending {
		r.pending[addr] = false
	}
	r.handler = nil
	r.mu.Unlock()

	var errs []error
	if done := r.scan.stop(); done != nil {
		if err := r.adapter.StopScan(); err != nil {
			errs = append(errs, fmt.Errorf("stop scan: %w", err))
		}
		<-done
	}
	for addr, dev := range devices {
		if err := dev.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("disconnect %s: %w", addr, err))
		}
	}
	return errors.Join(errs...)
}

func (r *TinyGoRadio) emit(ev RadioEvent) {
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()
	if h != nil {
		h(ev)
	}
}
