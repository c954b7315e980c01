package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/heartsafe/internal/alert"
)

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	BufferSize int           // system events held while disconnected; 0 means 64
	Timeout    time.Duration // per-publish wait; 0 means 5s
}

// ErrNotConnected is returned by Notify while the broker is unreachable.
var ErrNotConnected = errors.New("mqtt broker not connected")

// RealPublisher publishes to an actual MQTT broker. System events published
// while the connection is down are held in a ring buffer and replayed on
// reconnect. Alerts are never held.
type RealPublisher struct {
	client  paho.Client
	log     *slog.Logger
	timeout time.Duration

	mu        sync.Mutex
	held      *ring[outbound]
	connected bool // at least one successful connect
}

// NewRealPublisher creates a publisher for the given broker. The connection
// is established in the background and retried until it succeeds.
func NewRealPublisher(o Options, log *slog.Logger) *RealPublisher {
	if log == nil {
		log = slog.Default()
	}
	if o.ClientID == "" {
		o.ClientID = "heartsafe"
	}
	if o.BufferSize <= 0 {
		o.BufferSize = 64
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Second
	}

	p := &RealPublisher{
		log:     log.With("component", "mqtt"),
		timeout: o.Timeout,
		held:    newRing[outbound](o.BufferSize),
	}

	will, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE", Reason: "LWT"})

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			p.log.Warn("connection lost", "error", err)
		})

	p.client = paho.NewClient(opts)
	p.client.Connect()
	p.log.Info("connecting", "broker", o.Broker, "client_id", o.ClientID)
	return p
}

func (p *RealPublisher) onConnect(_ paho.Client) {
	p.mu.Lock()
	msgs := p.held.take()
	reconnect := p.connected
	p.connected = true
	p.mu.Unlock()

	p.log.Info("connected", "buffered", len(msgs))

	// Tokens must not be waited on inside a paho callback.
	go func() {
		for _, m := range msgs {
			if err := p.send(context.Background(), m); err != nil {
				p.log.Warn("replay failed", "topic", m.topic, "error", err)
			}
		}
		if reconnect {
			payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
			if err := p.send(context.Background(), outbound{topic: TopicSystem, payload: payload, qos: 1, retained: true}); err != nil {
				p.log.Warn("reconnected event failed", "error", err)
			}
		}
	}()
}

// Notify publishes an alert notification with QoS 1. It fails with
// ErrNotConnected instead of queueing when the broker is down.
func (p *RealPublisher) Notify(ctx context.Context, n alert.Notification) error {
	if !p.client.IsConnectionOpen() {
		return fmt.Errorf("publish %s: %w", TopicAlerts, ErrNotConnected)
	}
	payload, err := FormatPayload(n)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.send(ctx, outbound{topic: TopicAlerts, payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	m := outbound{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained}

	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		if p.held.add(m) {
			p.log.Warn("system buffer full, dropping oldest", "capacity", p.held.capacity())
		}
		p.mu.Unlock()
		p.log.Debug("held while disconnected", "event", event.Event)
		return nil
	}
	p.mu.Unlock()
	return p.send(context.Background(), m)
}

func (p *RealPublisher) send(ctx context.Context, m outbound) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-timer.C:
		return fmt.Errorf("publish %s: timeout", m.topic)
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", m.topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of system events waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.held.size()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second quiesce
	return nil
}
