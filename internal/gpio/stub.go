//go:build !linux

package gpio

import "errors"

// RealFeedback is not available on non-Linux platforms.
type RealFeedback struct{}

// NewRealFeedback returns an error on non-Linux platforms.
func NewRealFeedback(Config) (*RealFeedback, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// PlaySound is not implemented on non-Linux platforms.
func (r *RealFeedback) PlaySound() error {
	return errors.New("gpio: not supported")
}

// Pulse is not implemented on non-Linux platforms.
func (r *RealFeedback) Pulse() error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *RealFeedback) Close() error {
	return nil
}
