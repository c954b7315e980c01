// Package monitor is the single owner of a monitoring session. It serialises
// radio events, timer fires, secondary readings and user commands onto one
// goroutine and wires the connection machine, source arbitration, freshness,
// throttling and session statistics together.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/heartsafe/internal/alert"
	"github.com/sweeney/heartsafe/internal/ble"
	"github.com/sweeney/heartsafe/internal/health"
	"github.com/sweeney/heartsafe/internal/logic"
	"github.com/sweeney/heartsafe/internal/mqtt"
	"github.com/sweeney/heartsafe/internal/prefs"
	"github.com/sweeney/heartsafe/internal/sched"
	"github.com/sweeney/heartsafe/internal/status"
)

// Timer keys owned by the monitor. Keys not listed here belong to the
// connection machine.
const (
	TimerStaleCheck = "stale-check"
	TimerHeartbeat  = "heartbeat"
)

const defaultQueueSize = 16

// ErrStopped is returned by commands issued after Run has returned.
var ErrStopped = errors.New("monitor stopped")

// ErrNoSecondary is returned by AuthorizeSecondary when no secondary source
// is configured.
var ErrNoSecondary = errors.New("no secondary source configured")

// SystemPublisher receives heartbeat events.
type SystemPublisher interface {
	PublishSystem(event mqtt.SystemEvent) error
}

// Options configures a Monitor. Radio and Prefs are required; every other
// field has a usable zero value.
type Options struct {
	Radio     ble.Radio
	Secondary *health.Adapter
	Prefs     prefs.Store

	Notifier alert.Notifier
	Feedback alert.Feedback
	System   SystemPublisher
	Tracker  *status.Tracker

	Clock     sched.Clock
	Timing    ble.Timing
	Freshness logic.FreshnessLimits
	Recheck   time.Duration
	Cooldowns logic.Cooldowns
	Heartbeat time.Duration // 0 disables heartbeat events

	// QueueSize bounds the alert dispatcher queue.
	QueueSize int
	// NotifyTimeout bounds a single sink call.
	NotifyTimeout time.Duration

	Log *slog.Logger
}

func (o *Options) setDefaults() {
	if o.Log == nil {
		o.Log = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = sched.Wall
	}
	if o.Timing == (ble.Timing{}) {
		o.Timing = ble.DefaultTiming()
	}
	if o.Freshness == (logic.FreshnessLimits{}) {
		o.Freshness = logic.DefaultFreshnessLimits()
	}
	if o.Recheck <= 0 {
		o.Recheck = logic.RecheckInterval
	}
	if o.Cooldowns == (logic.Cooldowns{}) {
		o.Cooldowns = logic.DefaultCooldowns()
	}
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.NotifyTimeout <= 0 {
		o.NotifyTimeout = 10 * time.Second
	}
	if o.Notifier == nil {
		o.Notifier = alert.LogNotifier{Log: o.Log}
	}
	if o.Feedback == nil {
		o.Feedback = alert.LogFeedback{Log: o.Log}
	}
}

// Monitor owns one monitoring session. Create it with New, start it with
// Run and drive it through the command methods, which are safe to call from
// any goroutine.
type Monitor struct {
	opts   Options
	log    *slog.Logger
	events chan func()
	done   chan struct{}

	// Owner-only state below.
	clock     sched.Clock
	timers    *sched.Scheduler
	machine   *ble.Machine
	secondary *health.Adapter
	arb       *logic.Arbitrator
	throttle  *logic.Throttle
	session   *logic.Session
	heartbeat *logic.Heartbeat
	dispatch  *dispatcher

	settings      prefs.Settings
	lastReading   logic.Reading
	lastSecondary time.Time
	freshness     logic.Freshness
	background    bool
	staleTask     sched.TaskID

	secondaryAuth health.AuthStatus
	secondaryErr  error
	lastNotifyErr error
	runCtx        context.Context
}

// New builds a monitor from opts. Stored preferences are loaded here; a
// store that cannot be read falls back to the defaults.
func New(opts Options) (*Monitor, error) {
	if opts.Radio == nil {
		return nil, errors.New("monitor: radio is required")
	}
	if opts.Prefs == nil {
		return nil, errors.New("monitor: preference store is required")
	}
	opts.setDefaults()
	log := opts.Log.With("component", "monitor")

	settings, err := prefs.Load(opts.Prefs, opts.Log)
	if err != nil {
		log.Warn("loading preferences failed, using defaults", "error", err)
		settings = prefs.Defaults()
	}

	m := &Monitor{
		opts:      opts,
		log:       log,
		events:    make(chan func(), 256),
		done:      make(chan struct{}),
		clock:     opts.Clock,
		secondary: opts.Secondary,
		settings:  settings,
	}
	now := m.clock.Now()
	m.timers = sched.New(m.clock, m.postFired)
	m.machine = ble.NewMachine(opts.Radio, m.timers, opts.Timing, m.clock.Now, opts.Log)
	m.arb = logic.NewArbitrator(settings.Policy)
	m.throttle = logic.NewThrottle(opts.Cooldowns)
	m.session = logic.NewSession(uuid.NewString(), now, settings.Thresholds)
	m.heartbeat = logic.NewHeartbeat(now)
	m.dispatch = newDispatcher(opts.Notifier, opts.Feedback, opts.QueueSize, opts.NotifyTimeout, m.reportDelivery, log)
	if settings.Policy == logic.PolicyForceSecondary {
		m.machine.Disable()
	}
	return m, nil
}

// Run owns the session until ctx is cancelled. It starts the radio, the
// secondary subscription (when already authorized) and the periodic
// re-check, then handles events one at a time. On return every timer is
// cancelled, the machine and secondary subscription are stopped and queued
// alerts are flushed.
func (m *Monitor) Run(ctx context.Context) error {
	m.runCtx = ctx

	if err := m.opts.Radio.Start(m.postRadio); err != nil {
		m.log.Error("radio start failed", "error", err)
		// The machine stays in Unknown and the status shows the failure.
	}
	go m.dispatch.run()

	m.startSecondary()
	m.updateSources()
	m.scheduleStaleCheck()
	if m.opts.Heartbeat > 0 {
		m.timers.Schedule(TimerHeartbeat, m.opts.Heartbeat)
	}
	m.publish()
	m.log.Info("monitor started",
		"policy", m.settings.Policy,
		"min", m.settings.Thresholds.Min,
		"max", m.settings.Thresholds.Max)

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return nil
		case fn := <-m.events:
			fn()
		}
	}
}

func (m *Monitor) shutdown() {
	m.timers.CancelAll()
	m.machine.Stop()
	if m.secondary != nil {
		m.secondary.Stop()
	}
	if err := m.opts.Radio.Close(); err != nil {
		m.log.Warn("radio close failed", "error", err)
	}
	m.publish()
	close(m.done)
	m.dispatch.close()
	m.log.Info("monitor stopped")
}

// post hands fn to the owner. It gives up once Run has returned.
func (m *Monitor) post(fn func()) {
	select {
	case m.events <- fn:
	case <-m.done:
	}
}

func (m *Monitor) postRadio(ev ble.RadioEvent) {
	m.post(func() { m.handleRadio(ev) })
}

func (m *Monitor) postFired(f sched.Fired) {
	m.post(func() { m.handleFired(f) })
}

func (m *Monitor) postSecondary(r logic.Reading) {
	m.post(func() {
		m.handleReading(r)
		m.publish()
	})
}

// do runs fn on the owner and waits for it to finish.
func (m *Monitor) do(ctx context.Context, fn func()) error {
	reply := make(chan struct{})
	select {
	case m.events <- func() { fn(); close(reply) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrStopped
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return ErrStopped
	}
}

func (m *Monitor) handleRadio(ev ble.RadioEvent) {
	r := m.machine.HandleRadio(ev)
	m.updateSources()
	if r != nil {
		m.handleReading(*r)
	}
	m.publish()
}

func (m *Monitor) handleFired(f sched.Fired) {
	if !m.timers.Deliver(f) {
		return
	}
	switch f.Key {
	case TimerStaleCheck:
		m.staleTask = 0
		m.recheck()
		m.scheduleStaleCheck()
	case TimerHeartbeat:
		m.sendHeartbeat()
		m.timers.Schedule(TimerHeartbeat, m.opts.Heartbeat)
	default:
		m.machine.HandleTimer(f.Key)
		m.updateSources()
	}
	m.publish()
}

// handleReading runs one raw reading through arbitration, statistics and
// the throttle.
func (m *Monitor) handleReading(r logic.Reading) {
	if !m.arb.Accept(r) {
		m.log.Debug("reading rejected", "source", r.Source, "bpm", r.BPM)
		return
	}
	m.lastReading = r
	if r.Source == logic.Secondary {
		m.lastSecondary = r.Timestamp
	}

	now := m.clock.Now()
	m.freshness = m.evaluate(now)
	m.session.Add(r)

	d := m.throttle.Evaluate(now, r.BPM, m.settings.Thresholds, m.freshness, m.settings.Alerts)
	m.heartbeat.Record(d)
	if d.Fired() {
		m.fire(now, d)
	} else if d.Suppressed {
		m.log.Debug("alert suppressed", "bpm", r.BPM)
	}
}

func (m *Monitor) fire(now time.Time, d logic.Decision) {
	j := job{
		sound:  d.Local && m.settings.Alerts.Sound,
		haptic: d.Local && m.settings.Alerts.Haptic,
	}
	if d.Remote {
		n := alert.NewNotification(*d.Breach, now)
		j.notification = &n
	}
	m.log.Info("alert",
		"kind", d.Breach.Kind,
		"bpm", d.Breach.BPM,
		"threshold", d.Breach.Threshold,
		"local", d.Local,
		"remote", d.Remote)
	if !m.dispatch.enqueue(j) {
		m.log.Warn("alert queue full, dropping alert", "bpm", d.Breach.BPM)
	}
}

// applyPolicy runs only the sources the current policy can use: the sensor
// link is held idle under ForceSecondary and the secondary subscription is
// dropped under ForcePrimary.
func (m *Monitor) applyPolicy() {
	if m.settings.Policy == logic.PolicyForceSecondary {
		m.machine.Disable()
	} else {
		m.machine.Enable()
	}
	if m.secondary != nil {
		if m.settings.Policy == logic.PolicyForcePrimary {
			m.secondary.Stop()
		} else {
			m.startSecondary()
		}
	}
	m.updateSources()
}

// updateSources recomputes the active source from the current connection
// and authorization state.
func (m *Monitor) updateSources() {
	st := logic.SourceStatus{
		PrimaryConnected:    m.machine.State().IsConnected(),
		SecondaryAuthorized: m.secondaryAuth == health.Authorized,
	}
	if m.arb.Update(m.settings.Policy, st) {
		src, ok := m.arb.Active()
		m.log.Info("active source", "source", src, "available", ok)
	}
	m.freshness = m.evaluate(m.clock.Now())
}

// evaluate derives freshness for the active source.
func (m *Monitor) evaluate(now time.Time) logic.Freshness {
	src, ok := m.arb.Active()
	if !ok {
		return logic.Freshness{Stale: true}
	}
	t := logic.SourceTiming{Source: src}
	switch src {
	case logic.Primary:
		t.Connected = m.machine.State().IsConnected()
		t.ConnectionTime = m.machine.ConnectionTime()
		t.LastUpdate = m.machine.LastUpdate()
	case logic.Secondary:
		t.LastUpdate = m.lastSecondary
	}
	return m.opts.Freshness.Evaluate(now, t)
}

func (m *Monitor) recheck() {
	prev := m.freshness
	m.freshness = m.evaluate(m.clock.Now())
	if m.freshness != prev {
		m.log.Info("freshness",
			"stale", m.freshness.Stale,
			"grace_expired", m.freshness.GraceExpired)
	}
}

func (m *Monitor) scheduleStaleCheck() {
	if m.background || m.staleTask != 0 {
		return
	}
	m.staleTask = m.timers.Schedule(TimerStaleCheck, m.opts.Recheck)
}

func (m *Monitor) sendHeartbeat() {
	hb := m.heartbeat.Check(m.clock.Now(), m.opts.Heartbeat)
	if hb == nil {
		return
	}
	m.log.Info("heartbeat",
		"uptime", hb.Uptime.Truncate(time.Second),
		"samples", hb.Counts.Samples,
		"local_alerts", hb.Counts.LocalAlerts,
		"notifications", hb.Counts.Notifications,
		"suppressed", hb.Counts.Suppressed)
	if m.opts.System == nil {
		return
	}
	m.publish()
	ev := mqtt.SystemEvent{Timestamp: hb.Timestamp, Event: "HEARTBEAT"}
	if m.opts.Tracker != nil {
		ev.RawPayload = status.FormatStatusEvent(m.opts.Tracker.Snapshot(), "HEARTBEAT", "")
	}
	// Don't crash on publish failure
	if err := m.opts.System.PublishSystem(ev); err != nil {
		m.log.Warn("heartbeat publish failed", "error", err)
	}
}

func (m *Monitor) startSecondary() {
	if m.secondary == nil {
		return
	}
	if m.secondary.Authorized() {
		m.secondaryAuth = health.Authorized
	}
	if m.secondaryAuth != health.Authorized || m.secondary.Running() {
		return
	}
	if m.settings.Policy == logic.PolicyForcePrimary {
		return
	}
	if err := m.secondary.Start(m.runCtx, m.postSecondary); err != nil {
		m.secondaryErr = err
		m.log.Warn("secondary subscribe failed", "error", err)
		return
	}
	m.secondaryErr = nil
}

func (m *Monitor) reportDelivery(err error) {
	m.post(func() {
		m.lastNotifyErr = err
		m.publish()
	})
}

// state builds the status view of the owner's fields.
func (m *Monitor) state() status.Monitor {
	st := m.machine.State()
	s := status.Monitor{
		Connection:     st.String(),
		ConnectionKind: st.Kind().String(),
		Power:          m.machine.Power().String(),
		Policy:         m.settings.Policy,
		Freshness:      m.freshness,
		Thresholds:     m.settings.Thresholds,
		Alerts:         m.settings.Alerts,
		SecondaryAuth:  m.secondaryAuth.String(),
		Background:     m.background,
		Session:        m.session.Stats(),
		Counts:         m.heartbeat.Counts(),
	}
	if addr, ok := m.machine.CurrentAddress(); ok {
		s.Device = addr
	}
	if err := m.machine.LastError(); err != nil {
		s.LastError = err.Error()
	}
	if src, ok := m.arb.Active(); ok {
		s.Source = src
		switch src {
		case logic.Primary:
			s.BPM = int(m.machine.BPM())
			s.LastUpdate = m.machine.LastUpdate()
		case logic.Secondary:
			if m.lastReading.Source == logic.Secondary {
				s.BPM = m.lastReading.BPM
			}
			s.LastUpdate = m.lastSecondary
		}
	}
	if m.secondary != nil {
		s.SecondaryRunning = m.secondary.Running()
	}
	if m.secondaryErr != nil {
		s.SecondaryLastError = m.secondaryErr.Error()
	}
	if m.lastNotifyErr != nil {
		s.LastNotificationError = m.lastNotifyErr.Error()
	}
	return s
}

func (m *Monitor) publish() {
	if m.opts.Tracker != nil {
		m.opts.Tracker.Update(m.state())
	}
}
