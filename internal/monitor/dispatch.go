package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sweeney/heartsafe/internal/alert"
	"github.com/sweeney/heartsafe/internal/fault"
)

// job is one fired alert. A nil notification means the remote channel did
// not fire.
type job struct {
	notification *alert.Notification
	sound        bool
	haptic       bool
}

// dispatcher delivers alerts off the owner goroutine so sink I/O never
// stalls event handling. Failures are reported through report and never
// retried.
type dispatcher struct {
	notifier alert.Notifier
	feedback alert.Feedback
	timeout  time.Duration
	report   func(error)
	log      *slog.Logger

	queue     chan job
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newDispatcher(n alert.Notifier, f alert.Feedback, size int, timeout time.Duration, report func(error), log *slog.Logger) *dispatcher {
	d := &dispatcher{
		notifier: n,
		feedback: f,
		timeout:  timeout,
		report:   report,
		log:      log,
		queue:    make(chan job, size),
	}
	d.wg.Add(1)
	return d
}

// enqueue queues j without blocking. It returns false when the queue is full.
func (d *dispatcher) enqueue(j job) bool {
	select {
	case d.queue <- j:
		return true
	default:
		return false
	}
}

// run delivers queued jobs until close is called.
func (d *dispatcher) run() {
	defer d.wg.Done()
	for j := range d.queue {
		if err := d.deliver(j); err != nil {
			d.log.Warn("alert delivery failed", "error", err)
			d.report(err)
		}
	}
}

// close stops accepting jobs and waits for queued ones to be delivered.
func (d *dispatcher) close() {
	d.closeOnce.Do(func() { close(d.queue) })
	d.wg.Wait()
}

func (d *dispatcher) deliver(j job) error {
	var errs []error
	if j.sound {
		if err := d.feedback.PlaySound(); err != nil {
			errs = append(errs, fault.New(fault.NotificationDeliveryFailed, "sound", err))
		}
	}
	if j.haptic {
		if err := d.feedback.Pulse(); err != nil {
			errs = append(errs, fault.New(fault.NotificationDeliveryFailed, "haptic", err))
		}
	}
	if j.notification != nil {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.notifier.Notify(ctx, *j.notification)
		cancel()
		if err != nil {
			errs = append(errs, fault.New(fault.NotificationDeliveryFailed, "notify", err))
		}
	}
	return errors.Join(errs...)
}
