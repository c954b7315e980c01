// Package alert builds user-facing alert notifications and defines the sinks
// that deliver them: remote notifiers and local feedback devices.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/heartsafe/internal/logic"
)

const (
	// Title is the notification title for every heart-rate alert.
	Title = "Heart Rate Alert!"

	// Category groups heart-rate alerts for the receiving side.
	Category = "HEART_ALERT"
)

// Notification is a single remote alert.
type Notification struct {
	ID        string
	Title     string
	Body      string
	Category  string
	Timestamp time.Time
	Breach    logic.Breach
}

// NewNotification builds the notification for a breach observed at now.
func NewNotification(b logic.Breach, now time.Time) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Title:     Title,
		Body:      Body(b),
		Category:  Category,
		Timestamp: now,
		Breach:    b,
	}
}

// Body formats the human-readable alert text.
func Body(b logic.Breach) string {
	if b.Kind == logic.BreachLow {
		return fmt.Sprintf("Your heart rate is too low: %d BPM (minimum: %d BPM)", b.BPM, b.Threshold)
	}
	return fmt.Sprintf("Your heart rate is too high: %d BPM (maximum: %d BPM)", b.BPM, b.Threshold)
}

// Notifier delivers remote notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Feedback drives local alert output.
type Feedback interface {
	PlaySound() error
	Pulse() error
}

// MultiNotifier fans a notification out to every notifier. All notifiers are
// attempted; their errors are joined.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, nt := range m {
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Log *slog.Logger
}

func (l LogNotifier) Notify(_ context.Context, n Notification) error {
	logger(l.Log).Warn("alert", "id", n.ID, "category", n.Category, "body", n.Body)
	return nil
}

// LogFeedback stands in for a sound and haptic device by logging.
type LogFeedback struct {
	Log *slog.Logger
}

func (l LogFeedback) PlaySound() error {
	logger(l.Log).Info("feedback", "output", "sound")
	return nil
}

func (l LogFeedback) Pulse() error {
	logger(l.Log).Info("feedback", "output", "haptic")
	return nil
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
