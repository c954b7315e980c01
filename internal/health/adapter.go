// Package health adapts a platform health-data feed into secondary-source
// heart-rate readings.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/sweeney/heartsafe/internal/fault"
	"github.com/sweeney/heartsafe/internal/logic"
)

// ErrNoData is returned by Provider.Latest when no sample has been seen.
var ErrNoData = errors.New("no heart rate data received")

// AuthStatus is the user's authorization for reading heart-rate data.
type AuthStatus int

const (
	NotDetermined AuthStatus = iota
	Denied
	Authorized
)

func (s AuthStatus) String() string {
	switch s {
	case Denied:
		return "denied"
	case Authorized:
		return "authorized"
	}
	return "not_determined"
}

// Point is one heart-rate sample from the provider.
type Point struct {
	BPM   float64
	Start time.Time
	End   time.Time
}

// Provider is the platform health store.
type Provider interface {
	// RequestAuthorization asks for read access and returns the outcome.
	RequestAuthorization(ctx context.Context) (AuthStatus, error)
	AuthorizationStatus() AuthStatus
	// Subscribe calls fn with every new batch of points until cancel is
	// called or ctx is done. fn may be called from any goroutine.
	Subscribe(ctx context.Context, fn func([]Point)) (cancel func(), err error)
	// Latest returns the most recent point by end time.
	Latest(ctx context.Context) (Point, error)
}

// Adapter turns provider batches into secondary readings. Start, Stop and
// RequestAuthorization are called from the owner goroutine; the emit
// callback runs on the provider's goroutine.
type Adapter struct {
	provider Provider
	log      *slog.Logger
	cancel   func()
}

// NewAdapter wraps p. A nil logger uses slog.Default.
func NewAdapter(p Provider, log *slog.Logger) *Adapter {
	if log == nil {
		log = slog.Default()
	}
	return &Adapter{provider: p, log: log.With("component", "health")}
}

// RequestAuthorization asks the provider for access. A denial is returned as
// a SecondaryAuthDenied fault alongside the status.
func (a *Adapter) RequestAuthorization(ctx context.Context) (AuthStatus, error) {
	status, err := a.provider.RequestAuthorization(ctx)
	if err != nil {
		return status, fault.New(fault.SecondaryUnavailable, "authorize", err)
	}
	a.log.Info("authorization", "status", status)
	if status != Authorized {
		return status, fault.New(fault.SecondaryAuthDenied, "authorize", nil)
	}
	return status, nil
}

// Authorized reports the provider's current authorization.
func (a *Adapter) Authorized() bool {
	return a.provider.AuthorizationStatus() == Authorized
}

// Start subscribes to the provider. Each batch is reduced to its most
// recent point and passed to emit. Start refuses without authorization and
// replaces any running subscription.
func (a *Adapter) Start(ctx context.Context, emit func(logic.Reading)) error {
	if !a.Authorized() {
		return fault.New(fault.SecondaryAuthDenied, "subscribe", nil)
	}
	a.Stop()

	cancel, err := a.provider.Subscribe(ctx, func(points []Point) {
		p, ok := Latest(points)
		if !ok {
			return
		}
		emit(ToReading(p))
	})
	if err != nil {
		return fault.New(fault.SecondaryUnavailable, "subscribe", err)
	}
	a.cancel = cancel
	a.log.Info("subscribed")
	return nil
}

// Stop cancels the subscription, if any.
func (a *Adapter) Stop() {
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
		a.log.Info("unsubscribed")
	}
}

// Running reports whether a subscription is active.
func (a *Adapter) Running() bool {
	return a.cancel != nil
}

// FetchLatest performs a one-shot query for the most recent sample.
func (a *Adapter) FetchLatest(ctx context.Context) (logic.Reading, error) {
	if !a.Authorized() {
		return logic.Reading{}, fault.New(fault.SecondaryAuthDenied, "fetch latest", nil)
	}
	p, err := a.provider.Latest(ctx)
	if err != nil {
		if _, ok := fault.KindOf(err); ok {
			return logic.Reading{}, err
		}
		return logic.Reading{}, fault.New(fault.SecondaryUnavailable, "fetch latest", err)
	}
	return ToReading(p), nil
}

// Latest returns the point with the greatest end time.
func Latest(points []Point) (Point, bool) {
	if len(points) == 0 {
		return Point{}, false
	}
	best := points[0]
	for _, p := range points[1:] {
		if p.End.After(best.End) {
			best = p
		}
	}
	return best, true
}

// ToReading converts a point to a secondary reading, rounding to whole BPM.
func ToReading(p Point) logic.Reading {
	return logic.Reading{
		BPM:       int(math.Round(p.BPM)),
		Timestamp: p.End,
		Source:    logic.Secondary,
	}
}

func (p Point) String() string {
	return fmt.Sprintf("%.0f bpm @ %s", p.BPM, p.End.Format(time.RFC3339))
}
