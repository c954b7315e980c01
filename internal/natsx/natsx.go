// Package natsx delivers alert notifications over NATS.
package natsx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sweeney/heartsafe/internal/alert"
)

// DefaultSubject is the subject alerts are published on.
const DefaultSubject = "heartsafe.alerts"

// Config holds NATS connection configuration.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	URL string

	// Name is the client name for identification.
	Name string

	// Subject overrides DefaultSubject.
	Subject string

	// ReconnectWait is the time to wait between reconnection attempts.
	ReconnectWait time.Duration

	// MaxReconnects is the maximum number of reconnection attempts.
	// -1 = unlimited
	MaxReconnects int

	// ConnectTimeout for initial connection.
	ConnectTimeout time.Duration
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:            nats.DefaultURL,
		Name:           "heartsafe",
		Subject:        DefaultSubject,
		ReconnectWait:  2 * time.Second,
		MaxReconnects:  -1,
		ConnectTimeout: 5 * time.Second,
	}
}

func (c Config) options(log *slog.Logger) []nats.Option {
	opts := []nats.Option{
		nats.ReconnectWait(c.ReconnectWait),
		nats.MaxReconnects(c.MaxReconnects),
		nats.Timeout(c.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if c.Name != "" {
		opts = append(opts, nats.Name(c.Name))
	}
	return opts
}

// conn is the part of *nats.Conn the notifier uses.
type conn interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// Notifier publishes alert notifications to a NATS subject.
type Notifier struct {
	conn    conn
	subject string
	log     *slog.Logger
}

// Connect dials the server and returns a Notifier.
func Connect(cfg Config, log *slog.Logger) (*Notifier, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "nats")
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}

	nc, err := nats.Connect(cfg.URL, cfg.options(log)...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	log.Info("connected", "url", nc.ConnectedUrl())
	return newNotifier(nc, cfg.Subject, log), nil
}

// NewFromConn wraps an existing connection.
func NewFromConn(nc *nats.Conn, subject string, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return newNotifier(nc, subject, log.With("component", "nats"))
}

func newNotifier(c conn, subject string, log *slog.Logger) *Notifier {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Notifier{conn: c, subject: subject, log: log}
}

// Message is the JSON body published for each alert.
type Message struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Category  string    `json:"category"`
	Kind      string    `json:"kind"`
	BPM       int       `json:"hr"`
	Threshold int       `json:"threshold"`
}

// NewMessage converts a notification to its wire form.
func NewMessage(n alert.Notification) Message {
	return Message{
		ID:        n.ID,
		Timestamp: n.Timestamp.UTC(),
		Title:     n.Title,
		Body:      n.Body,
		Category:  n.Category,
		Kind:      string(n.Breach.Kind),
		BPM:       n.Breach.BPM,
		Threshold: n.Breach.Threshold,
	}
}

// Notify publishes n and waits for the server to acknowledge the flush.
func (n *Notifier) Notify(ctx context.Context, note alert.Notification) error {
	data, err := json.Marshal(NewMessage(note))
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", n.subject, err)
	}
	if err := n.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}
	n.log.Debug("alert published", "subject", n.subject, "id", note.ID)
	return nil
}

// Close drains pending messages and closes the connection.
func (n *Notifier) Close() error {
	return n.conn.Drain()
}
