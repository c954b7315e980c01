// Package mqtt publishes alert notifications and daemon lifecycle events to
// an MQTT broker, with an abstraction for testing.
package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sweeney/heartsafe/internal/alert"
)

// TopicAlerts is the MQTT topic for heart-rate alert notifications.
const TopicAlerts = "health/heartsafe/alerts"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "health/heartsafe/system"

// Publisher publishes alerts and system events to MQTT.
type Publisher interface {
	// Notify sends an alert notification to the broker.
	// Returns error if publishing fails (should not crash the process).
	Notify(ctx context.Context, n alert.Notification) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload for an alert.
type Payload struct {
	Alert AlertPayload `json:"alert"`
}

// AlertPayload contains the alert details.
type AlertPayload struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Category  string `json:"category"`
	Kind      string `json:"kind"`
	BPM       int    `json:"bpm"`
	Threshold int    `json:"threshold"`
}

// FormatPayload creates the JSON payload for an alert notification.
func FormatPayload(n alert.Notification) ([]byte, error) {
	payload := Payload{
		Alert: AlertPayload{
			ID:        n.ID,
			Timestamp: n.Timestamp.UTC().Format(time.RFC3339),
			Title:     n.Title,
			Body:      n.Body,
			Category:  n.Category,
			Kind:      string(n.Breach.Kind),
			BPM:       n.Breach.BPM,
			Threshold: n.Breach.Threshold,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
