package ble

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sweeney/heartsafe/internal/fault"
	"github.com/sweeney/heartsafe/internal/logic"
	"github.com/sweeney/heartsafe/internal/sched"
)

// Timer keys scheduled by the machine.
const (
	TimerScanTimeout = "scan-timeout"
	TimerReconnect   = "reconnect"
	TimerRefresh     = "refresh"
)

// Default timings.
const (
	DefaultScanTimeout    = 30 * time.Second
	DefaultReconnectDelay = 2 * time.Second
	DefaultRefreshDelay   = 500 * time.Millisecond
)

// Timing configures the machine's one-shot delays.
type Timing struct {
	ScanTimeout    time.Duration
	ReconnectDelay time.Duration
	RefreshDelay   time.Duration
}

// DefaultTiming returns 30s scan timeout, 2s reconnect, 500ms refresh.
func DefaultTiming() Timing {
	return Timing{
		ScanTimeout:    DefaultScanTimeout,
		ReconnectDelay: DefaultReconnectDelay,
		RefreshDelay:   DefaultRefreshDelay,
	}
}

// Timers schedules one-shot tasks on behalf of the machine. When a task
// fires, the owner calls Machine.HandleTimer with its key.
type Timers interface {
	Schedule(key string, d time.Duration) sched.TaskID
	Cancel(id sched.TaskID)
}

var errNoDevice = errors.New("no heart rate monitor found, ensure the device is powered on and nearby")

// Machine is the connection state machine for one sensor. It is not safe for
// concurrent use: every method must be called from the owner goroutine.
type Machine struct {
	radio  Radio
	timers Timers
	timing Timing
	now    func() time.Time
	log    *slog.Logger

	power Power
	state ConnectionState

	devices    map[DeviceHandle]string
	nextHandle DeviceHandle

	scanTask      sched.TaskID
	reconnectTask sched.TaskID
	refreshTask   sched.TaskID

	bpm            uint16
	lastUpdate     time.Time
	connectionTime time.Time
	lastError      error

	disabled bool
}

// NewMachine creates a machine in the Unknown state. A nil logger uses
// slog.Default; a nil now uses time.Now.
func NewMachine(radio Radio, timers Timers, timing Timing, now func() time.Time, log *slog.Logger) *Machine {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = slog.Default()
	}
	return &Machine{
		radio:   radio,
		timers:  timers,
		timing:  timing,
		now:     now,
		log:     log.With("component", "ble"),
		state:   Unknown(),
		devices: make(map[DeviceHandle]string),
	}
}

// State returns the current connection state.
func (m *Machine) State() ConnectionState { return m.state }

// Power returns the last reported adapter power state.
func (m *Machine) Power() Power { return m.power }

// BPM returns the last decoded value, 0 when not connected.
func (m *Machine) BPM() uint16 { return m.bpm }

// LastUpdate returns when the last notification was decoded.
func (m *Machine) LastUpdate() time.Time { return m.lastUpdate }

// ConnectionTime returns when the link came up.
func (m *Machine) ConnectionTime() time.Time { return m.connectionTime }

// LastError returns the most recent failure, or nil.
func (m *Machine) LastError() error { return m.lastError }

// Address resolves a handle to a peripheral address.
func (m *Machine) Address(h DeviceHandle) (string, bool) {
	addr, ok := m.devices[h]
	return addr, ok
}

// CurrentAddress returns the address behind Connecting/Connected.
func (m *Machine) CurrentAddress() (string, bool) {
	h, ok := m.state.Handle()
	if !ok {
		return "", false
	}
	return m.Address(h)
}

// Timing returns the configured delays.
func (m *Machine) Timing() Timing { return m.timing }

// Start begins monitoring according to the adapter's power state.
func (m *Machine) Start() {
	switch m.power {
	case PowerOn:
		if !m.disabled {
			m.startScanning()
		}
	case PowerOff:
		m.setState(PoweredOff())
	case PowerUnauthorized:
		m.setState(Unauthorized())
	case PowerUnsupported:
		m.setState(Unsupported())
	default:
		m.setState(Unknown())
	}
}

// Stop cancels every pending timer, any scan and any link, forgets all
// device handles and settles in Disconnected(nil). Events that arrive later
// for the dropped peripheral are ignored.
func (m *Machine) Stop() {
	m.cancelTimers()

	switch m.state.Kind() {
	case KindScanning:
		if err := m.radio.StopScan(); err != nil {
			m.log.Warn("stop scan failed", "error", err)
		}
	case KindConnecting, KindConnected:
		if addr, ok := m.CurrentAddress(); ok {
			if err := m.radio.Disconnect(addr); err != nil {
				m.log.Warn("disconnect failed", "address", addr, "error", err)
			}
		}
	}
	clear(m.devices)

	if m.power == PowerOn {
		m.setState(Disconnected(nil))
	}
}

// Disable stops the machine and keeps it idle. Power changes, reconnect
// and refresh timers leave it in Disconnected until Enable.
func (m *Machine) Disable() {
	if m.disabled {
		return
	}
	m.disabled = true
	m.Stop()
	m.resetLink()
	m.log.Info("primary source disabled")
}

// Enable undoes Disable and starts scanning when the radio is on.
func (m *Machine) Enable() {
	if !m.disabled {
		return
	}
	m.disabled = false
	m.log.Info("primary source enabled")
	m.Start()
}

// Disabled reports whether Disable is in force.
func (m *Machine) Disabled() bool { return m.disabled }

// Refresh tears down and restarts monitoring after the refresh delay.
func (m *Machine) Refresh() {
	m.Stop()
	m.resetLink()
	m.lastError = nil
	m.refreshTask = m.timers.Schedule(TimerRefresh, m.timing.RefreshDelay)
	m.log.Info("refresh scheduled", "delay", m.timing.RefreshDelay)
}

// HandleTimer processes a fired task previously scheduled by the machine.
func (m *Machine) HandleTimer(key string) {
	switch key {
	case TimerScanTimeout:
		m.scanTask = 0
		if m.state.Kind() != KindScanning {
			return
		}
		if err := m.radio.StopScan(); err != nil {
			m.log.Warn("stop scan failed", "error", err)
		}
		err := fault.New(fault.ScanTimeout, "scan", errNoDevice)
		m.lastError = err
		m.setState(Disconnected(err))
	case TimerReconnect:
		m.reconnectTask = 0
		m.Start()
	case TimerRefresh:
		m.refreshTask = 0
		m.Start()
	}
}

// HandleRadio applies a radio event. It returns a reading when a
// notification from the connected peripheral decodes successfully.
func (m *Machine) HandleRadio(ev RadioEvent) *logic.Reading {
	switch ev.Type {
	case EventPower:
		m.handlePower(ev.Power)
	case EventDeviceFound:
		m.handleDeviceFound(ev)
	case EventLinkUp:
		m.handleLinkUp(ev.Address)
	case EventConnectFailed:
		m.handleConnectFailed(ev.Address, ev.Err)
	case EventLinkDown:
		m.handleLinkDown(ev.Address, ev.Err)
	case EventDiscoveryFailed:
		if m.isCurrent(ev.Address) {
			m.lastError = asFault(fault.ServiceDiscoveryFailed, "discover", ev.Err)
			m.log.Warn("discovery failed", "address", ev.Address, "error", ev.Err)
		}
	case EventNotification:
		return m.handleNotification(ev.Address, ev.Payload)
	}
	return nil
}

func (m *Machine) handlePower(p Power) {
	prev := m.power
	m.power = p
	if p != prev {
		m.log.Info("radio power", "from", prev, "to", p)
	}

	switch p {
	case PowerOn:
		if prev == PowerOn {
			return
		}
		m.setState(Disconnected(nil))
		m.Start()
	default:
		m.cancelTimers()
		clear(m.devices)
		m.resetLink()
		if p != PowerUnknown {
			m.lastError = fault.New(fault.RadioUnavailable, "power", fmt.Errorf("adapter %s", p))
		}
		m.Start()
	}
}

func (m *Machine) handleDeviceFound(ev RadioEvent) {
	if m.state.Kind() != KindScanning {
		return
	}
	m.cancel(&m.scanTask)
	if err := m.radio.StopScan(); err != nil {
		m.log.Warn("stop scan failed", "error", err)
	}

	m.nextHandle++
	h := m.nextHandle
	m.devices[h] = ev.Address
	m.log.Info("device found", "address", ev.Address, "name", ev.Name, "rssi", ev.RSSI)
	m.setState(Connecting(h))

	if err := m.radio.Connect(ev.Address); err != nil {
		m.handleConnectFailed(ev.Address, err)
	}
}

func (m *Machine) handleLinkUp(addr string) {
	if m.state.Kind() != KindConnecting || !m.isCurrent(addr) {
		return
	}
	h, _ := m.state.Handle()
	m.connectionTime = m.now()
	m.setState(Connected(h))

	if err := m.radio.Subscribe(addr, HeartRateService, HeartRateMeasurement); err != nil {
		m.lastError = asFault(fault.ServiceDiscoveryFailed, "subscribe", err)
		m.log.Warn("subscribe failed", "address", addr, "error", err)
	}
}

func (m *Machine) handleConnectFailed(addr string, cause error) {
	if m.state.Kind() != KindConnecting || !m.isCurrent(addr) {
		return
	}
	h, _ := m.state.Handle()
	delete(m.devices, h)

	err := asFault(fault.ConnectionFailed, "connect", cause)
	m.lastError = err
	m.setState(Disconnected(err))
	m.Start()
}

func (m *Machine) handleLinkDown(addr string, cause error) {
	if !m.isCurrent(addr) {
		return
	}
	if m.state.Kind() == KindConnecting {
		m.handleConnectFailed(addr, cause)
		return
	}
	h, _ := m.state.Handle()
	delete(m.devices, h)

	err := asFault(fault.ConnectionLost, "link", cause)
	m.lastError = err
	m.resetLink()
	m.setState(Disconnected(err))

	m.cancel(&m.reconnectTask)
	m.reconnectTask = m.timers.Schedule(TimerReconnect, m.timing.ReconnectDelay)
	m.log.Info("reconnect scheduled", "delay", m.timing.ReconnectDelay)
}

func (m *Machine) handleNotification(addr string, payload []byte) *logic.Reading {
	if m.state.Kind() != KindConnected || !m.isCurrent(addr) {
		return nil
	}
	bpm, err := DecodeMeasurement(payload)
	if err != nil {
		m.log.Debug("dropping measurement", "address", addr, "error", err)
		return nil
	}
	if c := ParseSensorContact(payload[0]); c.Supported && !c.Detected {
		m.log.Debug("sensor contact lost", "address", addr)
	}

	now := m.now()
	m.bpm = bpm
	m.lastUpdate = now
	return &logic.Reading{BPM: int(bpm), Timestamp: now, Source: logic.Primary}
}

func (m *Machine) startScanning() {
	if !m.state.CanScan() {
		return
	}
	m.cancel(&m.scanTask)
	if err := m.radio.Scan(HeartRateService); err != nil {
		e := fault.New(fault.RadioUnavailable, "scan", err)
		m.lastError = e
		m.setState(Disconnected(e))
		return
	}
	m.setState(Scanning())
	m.scanTask = m.timers.Schedule(TimerScanTimeout, m.timing.ScanTimeout)
}

// isCurrent reports whether addr is the peripheral behind the current state.
func (m *Machine) isCurrent(addr string) bool {
	cur, ok := m.CurrentAddress()
	return ok && cur == addr
}

func (m *Machine) setState(s ConnectionState) {
	if s == m.state {
		return
	}
	m.log.Info("connection state", "from", m.state, "to", s)
	m.state = s
}

func (m *Machine) resetLink() {
	m.bpm = 0
	m.lastUpdate = time.Time{}
	m.connectionTime = time.Time{}
}

func (m *Machine) cancel(id *sched.TaskID) {
	if *id != 0 {
		m.timers.Cancel(*id)
		*id = 0
	}
}

func (m *Machine) cancelTimers() {
	m.cancel(&m.scanTask)
	m.cancel(&m.reconnectTask)
	m.cancel(&m.refreshTask)
}

// asFault classifies err as kind unless it already carries a kind.
func asFault(kind fault.Kind, op string, err error) error {
	if _, ok := fault.KindOf(err); ok {
		return err
	}
	return fault.New(kind, op, err)
}
