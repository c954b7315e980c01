//go:build !linux && !darwin && !windows

package ble

import (
	"errors"
	"log/slog"

	"github.com/sweeney/heartsafe/internal/fault"
)

var errUnsupported = errors.New("ble: not supported on this platform")

// TinyGoRadio is not available on this platform. It reports the adapter as
// unsupported so the machine settles in the Unsupported state.
type TinyGoRadio struct{}

// NewTinyGoRadio returns a radio that is always unsupported.
func NewTinyGoRadio(log *slog.Logger) *TinyGoRadio {
	return &TinyGoRadio{}
}

func (r *TinyGoRadio) Start(handler func(RadioEvent)) error {
	handler(RadioEvent{Type: EventPower, Power: PowerUnsupported})
	return fault.New(fault.RadioUnavailable, "enable", errUnsupported)
}

func (r *TinyGoRadio) Scan(uint16) error { return errUnsupported }
func (r *TinyGoRadio) StopScan() error { return nil }
func (r *TinyGoRadio) Connect(string) error { return errUnsupported }
func (r *TinyGoRadio) Disconnect(string) error { return nil }
func (r *TinyGoRadio) Subscribe(string, uint16, uint16) error { return errUnsupported }
func (r *TinyGoRadio) Close() error { return nil }
