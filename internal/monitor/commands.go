package monitor

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/sweeney/heartsafe/internal/health"
	"github.com/sweeney/heartsafe/internal/logic"
	"github.com/sweeney/heartsafe/internal/prefs"
	"github.com/sweeney/heartsafe/internal/status"
)

// Refresh tears down the sensor link, restarts it after the refresh delay
// and starts a new session.
func (m *Monitor) Refresh(ctx context.Context) error {
	return m.do(ctx, func() {
		m.machine.Refresh()
		m.lastReading = logic.Reading{}
		m.session.Reset(uuid.NewString(), m.clock.Now())
		m.updateSources()
		m.log.Info("session reset", "session", m.session.ID())
		m.publish()
	})
}

// SetThresholds validates and applies a new alert band. Session statistics
// are recomputed against it and the band is persisted. A persistence failure
// is returned but the new band stays in force.
func (m *Monitor) SetThresholds(ctx context.Context, th logic.Thresholds) error {
	if err := th.Validate(); err != nil {
		return err
	}
	var saveErr error
	err := m.do(ctx, func() {
		m.settings.Thresholds = th
		m.session.SetThresholds(th)
		m.log.Info("thresholds", "min", th.Min, "max", th.Max)
		saveErr = m.save()
		m.publish()
	})
	if err != nil {
		return err
	}
	return saveErr
}

// SetPolicy changes which source is authoritative and starts or stops the
// sources the new policy needs or excludes.
func (m *Monitor) SetPolicy(ctx context.Context, p logic.Policy) error {
	if _, err := logic.ParsePolicy(string(p)); err != nil {
		return err
	}
	var saveErr error
	err := m.do(ctx, func() {
		m.settings.Policy = p
		m.log.Info("policy", "policy", p)
		m.applyPolicy()
		saveErr = m.save()
		m.publish()
	})
	if err != nil {
		return err
	}
	return saveErr
}

// SetAlerts replaces the alert toggles.
func (m *Monitor) SetAlerts(ctx context.Context, a logic.AlertSettings) error {
	var saveErr error
	err := m.do(ctx, func() {
		m.settings.Alerts = a
		m.log.Info("alert settings",
			"enabled", a.Enabled,
			"sound", a.Sound,
			"haptic", a.Haptic,
			"notifications", a.Notifications)
		saveErr = m.save()
		m.publish()
	})
	if err != nil {
		return err
	}
	return saveErr
}

// Settings returns the preferences currently in force.
func (m *Monitor) Settings(ctx context.Context) (prefs.Settings, error) {
	var s prefs.Settings
	err := m.do(ctx, func() { s = m.settings })
	return s, err
}

// AuthorizeSecondary asks the secondary provider for access. The request
// runs on the caller's goroutine; its outcome is applied by the owner, which
// starts the subscription when access is granted.
func (m *Monitor) AuthorizeSecondary(ctx context.Context) (health.AuthStatus, error) {
	if m.secondary == nil {
		return health.NotDetermined, ErrNoSecondary
	}
	st, authErr := m.secondary.RequestAuthorization(ctx)
	err := m.do(ctx, func() {
		m.secondaryAuth = st
		m.secondaryErr = authErr
		if st == health.Authorized {
			m.startSecondary()
		} else {
			m.secondary.Stop()
		}
		m.updateSources()
		m.publish()
	})
	if err != nil {
		return st, err
	}
	return st, authErr
}

// FetchSecondary performs a one-shot query for the latest secondary reading
// and feeds it through arbitration like a pushed one.
func (m *Monitor) FetchSecondary(ctx context.Context) (logic.Reading, error) {
	if m.secondary == nil {
		return logic.Reading{}, ErrNoSecondary
	}
	r, err := m.secondary.FetchLatest(ctx)
	if err != nil {
		return r, err
	}
	return r, m.do(ctx, func() {
		m.handleReading(r)
		m.publish()
	})
}

// Background pauses the freshness re-check.
func (m *Monitor) Background(ctx context.Context) error {
	return m.do(ctx, func() {
		if m.background {
			return
		}
		m.background = true
		m.timers.CancelKey(TimerStaleCheck)
		m.staleTask = 0
		m.log.Info("lifecycle", "state", "background")
		m.publish()
	})
}

// Foreground re-checks freshness immediately and resumes the periodic
// re-check.
func (m *Monitor) Foreground(ctx context.Context) error {
	return m.do(ctx, func() {
		if !m.background {
			return
		}
		m.background = false
		m.recheck()
		m.scheduleStaleCheck()
		m.log.Info("lifecycle", "state", "foreground")
		m.publish()
	})
}

// Status returns the owner's current view. It also serves as a barrier:
// every event posted before the call has been handled when it returns.
func (m *Monitor) Status(ctx context.Context) (status.Monitor, error) {
	var s status.Monitor
	err := m.do(ctx, func() { s = m.state() })
	return s, err
}

func (m *Monitor) save() error {
	if err := prefs.Save(m.opts.Prefs, m.settings); err != nil {
		m.log.Warn("saving preferences failed", "error", err)
		return fmt.Errorf("saving preferences: %w", err)
	}
	return nil
}
