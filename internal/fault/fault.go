// Package fault defines the error kinds surfaced by the heart-rate monitor and
// the recovery policy attached to each kind.
//
// Transport-level failures are never fatal: they are wrapped in an *Error,
// recorded as the monitor's last error and logged. Callers classify them with
// errors.Is against the per-kind sentinels or with KindOf.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies a class of failure.
type Kind int

const (
	Unknown Kind = iota
	RadioUnavailable
	ScanTimeout
	ConnectionLost
	ConnectionFailed
	ServiceDiscoveryFailed
	CharacteristicDiscoveryFailed
	MalformedMeasurement
	SecondaryAuthDenied
	SecondaryUnavailable
	NotificationDeliveryFailed
)

var kindNames = map[Kind]string{
	Unknown:                       "unknown",
	RadioUnavailable:              "radio unavailable",
	ScanTimeout:                   "scan timeout",
	ConnectionLost:                "connection lost",
	ConnectionFailed:              "connection failed",
	ServiceDiscoveryFailed:        "service discovery failed",
	CharacteristicDiscoveryFailed: "characteristic discovery failed",
	MalformedMeasurement:          "malformed measurement",
	SecondaryAuthDenied:           "secondary source authorization denied",
	SecondaryUnavailable:          "secondary source unavailable",
	NotificationDeliveryFailed:    "notification delivery failed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Recoverable reports whether the condition can clear without user action
// outside the application (toggling the radio, granting OS permissions).
func (k Kind) Recoverable() bool {
	switch k {
	case RadioUnavailable:
		return false
	default:
		return true
	}
}

// AutoRetried reports whether the monitor retries on its own after this
// failure. Scan timeouts wait for a manual refresh; discovery failures are
// device-side anomalies and are only surfaced.
func (k Kind) AutoRetried() bool {
	switch k {
	case ConnectionLost, ConnectionFailed:
		return true
	default:
		return false
	}
}

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "scan", "notify"
	Err  error  // underlying cause, may be nil
}

// New returns an *Error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with
// errors.Is regardless of Op or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrRadioUnavailable              = &Error{Kind: RadioUnavailable}
	ErrScanTimeout                   = &Error{Kind: ScanTimeout}
	ErrConnectionLost                = &Error{Kind: ConnectionLost}
	ErrConnectionFailed              = &Error{Kind: ConnectionFailed}
	ErrServiceDiscoveryFailed        = &Error{Kind: ServiceDiscoveryFailed}
	ErrCharacteristicDiscoveryFailed = &Error{Kind: CharacteristicDiscoveryFailed}
	ErrMalformedMeasurement          = &Error{Kind: MalformedMeasurement}
	ErrSecondaryAuthDenied           = &Error{Kind: SecondaryAuthDenied}
	ErrSecondaryUnavailable          = &Error{Kind: SecondaryUnavailable}
	ErrNotificationDeliveryFailed    = &Error{Kind: NotificationDeliveryFailed}
)

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return Unknown, false
}
