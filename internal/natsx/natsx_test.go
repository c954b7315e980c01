package natsx

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/heartsafe/internal/alert"
	"github.com/sweeney/heartsafe/internal/logic"
)

type fakeConn struct {
	subjects   []string
	data       [][]byte
	publishErr error
	flushErr   error
	drained    bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.subjects = append(f.subjects, subject)
	f.data = append(f.data, data)
	return nil
}

func (f *fakeConn) FlushWithContext(context.Context) error { return f.flushErr }

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func lowAlert() alert.Notification {
	return alert.NewNotification(
		logic.Breach{Kind: logic.BreachLow, Threshold: 60, BPM: 44},
		time.Date(2026, 4, 2, 6, 30, 0, 0, time.UTC),
	)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.URL)
	assert.Equal(t, "heartsafe.alerts", cfg.Subject)
	assert.Equal(t, -1, cfg.MaxReconnects)
	assert.Len(t, cfg.options(slog.New(slog.DiscardHandler)), 6)
}

func TestNotifyPublishesJSON(t *testing.T) {
	fc := &fakeConn{}
	n := newNotifier(fc, "", slog.New(slog.DiscardHandler))

	note := lowAlert()
	require.NoError(t, n.Notify(context.Background(), note))

	require.Len(t, fc.subjects, 1)
	assert.Equal(t, DefaultSubject, fc.subjects[0])

	var msg Message
	require.NoError(t, json.Unmarshal(fc.data[0], &msg))
	assert.Equal(t, note.ID, msg.ID)
	assert.Equal(t, 44, msg.BPM)
	assert.Equal(t, 60, msg.Threshold)
	assert.Equal(t, "LOW", msg.Kind)
	assert.True(t, msg.Timestamp.Equal(note.Timestamp))
}

func TestNotifyErrors(t *testing.T) {
	fc := &fakeConn{publishErr: errors.New("connection closed")}
	n := newNotifier(fc, "custom.alerts", slog.New(slog.DiscardHandler))
	err := n.Notify(context.Background(), lowAlert())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "custom.alerts")

	fc = &fakeConn{flushErr: context.DeadlineExceeded}
	n = newNotifier(fc, "", slog.New(slog.DiscardHandler))
	assert.ErrorIs(t, n.Notify(context.Background(), lowAlert()), context.DeadlineExceeded)
}

func TestClose(t *testing.T) {
	fc := &fakeConn{}
	n := newNotifier(fc, "", slog.New(slog.DiscardHandler))
	require.NoError(t, n.Close())
	assert.True(t, fc.drained)
}
