package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/heartsafe/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string         `json:"event,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	Ready         bool           `json:"ready"`
	Background    bool           `json:"background"`
	Connection    ConnectionJSON `json:"connection"`
	HeartRate     HeartRateJSON  `json:"heart_rate"`
	Thresholds    ThresholdsJSON `json:"thresholds"`
	Alerts        AlertsJSON     `json:"alerts"`
	Secondary     SecondaryJSON  `json:"secondary"`
	Session       SessionJSON    `json:"session"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	StartTime     string         `json:"start_time"`
	Timestamp     string         `json:"timestamp"`
	MQTT          MQTTStatus     `json:"mqtt"`
	Counts        CountsJSON     `json:"event_counts"`
	Network       *NetworkJSON   `json:"network,omitempty"`
	Config        ConfigJSON     `json:"config"`
}

// ConnectionJSON reports the sensor link.
type ConnectionJSON struct {
	State     string `json:"state"`
	Kind      string `json:"kind"`
	Power     string `json:"power"`
	Device    string `json:"device,omitempty"`
	LastError string `json:"last_error,omitempty"`
}

// HeartRateJSON reports the current reading and its validity.
type HeartRateJSON struct {
	BPM          int    `json:"bpm"`
	Source       string `json:"source"`
	Policy       string `json:"policy"`
	LastUpdate   string `json:"last_update,omitempty"`
	Stale        bool   `json:"stale"`
	GraceExpired bool   `json:"grace_expired"`
	InRange      bool   `json:"in_range"`
}

// ThresholdsJSON is the alert band.
type ThresholdsJSON struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// AlertsJSON reports alert preferences and the last delivery failure.
type AlertsJSON struct {
	Enabled               bool   `json:"enabled"`
	Sound                 bool   `json:"sound"`
	Haptic                bool   `json:"haptic"`
	Notifications         bool   `json:"notifications"`
	LastNotificationError string `json:"last_notification_error,omitempty"`
}

// SecondaryJSON reports the secondary source.
type SecondaryJSON struct {
	Authorization string `json:"authorization"`
	Running       bool   `json:"running"`
	LastError     string `json:"last_error,omitempty"`
}

// SessionJSON reports session statistics.
type SessionJSON struct {
	ID                string  `json:"id"`
	Start             string  `json:"start,omitempty"`
	Duration          string  `json:"duration"`
	Samples           int     `json:"samples"`
	Min               int     `json:"min"`
	Max               int     `json:"max"`
	Mean              float64 `json:"mean"`
	TimeInRange       string  `json:"time_in_range"`
	TimeOutOfRange    string  `json:"time_out_of_range"`
	PercentInRange    float64 `json:"percent_in_range"`
	InRangeSeconds    int64   `json:"in_range_seconds"`
	OutOfRangeSeconds int64   `json:"out_of_range_seconds"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Samples       int `json:"samples"`
	LocalAlerts   int `json:"local_alerts"`
	Notifications int `json:"notifications"`
	Suppressed    int `json:"suppressed"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	HeartbeatMs   int64  `json:"heartbeat_ms"`
	ScanTimeoutMs int64  `json:"scan_timeout_ms"`
	Broker        string `json:"broker"`
	NATS          string `json:"nats,omitempty"`
	HTTPAddr      string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	source := string(snap.Source)
	if source == "" {
		source = "NONE"
	}
	kind := snap.ConnectionKind
	if kind == "" {
		kind = "unknown"
	}
	auth := snap.SecondaryAuth
	if auth == "" {
		auth = "not_determined"
	}

	inner := StatusInner{
		Ready:      snap.Source != "" && snap.Freshness.Trusted(),
		Background: snap.Background,
		Connection: ConnectionJSON{
			State:     snap.Connection,
			Kind:      kind,
			Power:     snap.Power,
			Device:    snap.Device,
			LastError: snap.LastError,
		},
		HeartRate: HeartRateJSON{
			BPM:          snap.BPM,
			Source:       source,
			Policy:       string(snap.Policy),
			Stale:        snap.Freshness.Stale,
			GraceExpired: snap.Freshness.GraceExpired,
			InRange:      snap.InRange(),
		},
		Thresholds: ThresholdsJSON{Min: snap.Thresholds.Min, Max: snap.Thresholds.Max},
		Alerts: AlertsJSON{
			Enabled:               snap.Alerts.Enabled,
			Sound:                 snap.Alerts.Sound,
			Haptic:                snap.Alerts.Haptic,
			Notifications:         snap.Alerts.Notifications,
			LastNotificationError: snap.LastNotificationError,
		},
		Secondary: SecondaryJSON{
			Authorization: auth,
			Running:       snap.SecondaryRunning,
			LastError:     snap.SecondaryLastError,
		},
		Session:       buildSession(snap),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Samples:       snap.Counts.Samples,
			LocalAlerts:   snap.Counts.LocalAlerts,
			Notifications: snap.Counts.Notifications,
			Suppressed:    snap.Counts.Suppressed,
		},
		Config: ConfigJSON{
			HeartbeatMs:   snap.Config.HeartbeatMs,
			ScanTimeoutMs: snap.Config.ScanTimeoutMs,
			Broker:        snap.Config.Broker,
			NATS:          snap.Config.NATS,
			HTTPAddr:      snap.Config.HTTPAddr,
		},
	}
	if !snap.LastUpdate.IsZero() {
		inner.HeartRate.LastUpdate = snap.LastUpdate.UTC().Format(time.RFC3339)
	}
	return inner
}

func buildSession(snap Snapshot) SessionJSON {
	s := snap.Session
	out := SessionJSON{
		ID:                s.ID,
		Duration:          logic.FormatDuration(snap.SessionDuration()),
		Samples:           s.Count,
		Min:               s.Min,
		Max:               s.Max,
		Mean:              math.Round(s.Mean*10) / 10,
		TimeInRange:       logic.FormatInterval(s.TimeInRange),
		TimeOutOfRange:    logic.FormatInterval(s.TimeOutOfRange),
		PercentInRange:    math.Round(s.PercentInRange*10) / 10,
		InRangeSeconds:    int64(s.TimeInRange.Seconds()),
		OutOfRangeSeconds: int64(s.TimeOutOfRange.Seconds()),
	}
	if !s.Start.IsZero() {
		out.Start = s.Start.UTC().Format(time.RFC3339)
	}
	return out
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatCompact returns the status as a single-line JSON document, used by
// the live feed.
func FormatCompact(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
