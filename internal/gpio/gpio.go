// Package gpio drives local alert feedback over GPIO output lines: a buzzer
// for the sound channel and a vibration motor for the haptic channel.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

import (
	"fmt"
	"sync"
	"time"
)

// Defaults (BCM numbering).
const (
	DefaultChip      = "gpiochip0"
	DefaultBuzzerPin = 18
	DefaultHapticPin = 23
	DefaultPulse     = 300 * time.Millisecond
)

// Config selects the chip, output lines and pulse length.
type Config struct {
	Chip      string
	BuzzerPin int
	HapticPin int
	Pulse     time.Duration
}

// DefaultConfig returns the default wiring.
func DefaultConfig() Config {
	return Config{
		Chip:      DefaultChip,
		BuzzerPin: DefaultBuzzerPin,
		HapticPin: DefaultHapticPin,
		Pulse:     DefaultPulse,
	}
}

type outputLine interface {
	SetValue(int) error
}

// pulser drives a line high for a fixed duration without blocking the
// caller. A pulse requested while one is active extends it.
type pulser struct {
	name string
	line outputLine
	d    time.Duration

	mu  sync.Mutex
	off *time.Timer
}

func newPulser(name string, line outputLine, d time.Duration) *pulser {
	if d <= 0 {
		d = DefaultPulse
	}
	return &pulser{name: name, line: line, d: d}
}

func (p *pulser) pulse() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.off != nil {
		p.off.Stop()
	}
	if err := p.line.SetValue(1); err != nil {
		return fmt.Errorf("set %s high: %w", p.name, err)
	}
	p.off = time.AfterFunc(p.d, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.off = nil
		_ = p.line.SetValue(0)
	})
	return nil
}

// stop cancels any pending pulse and drives the line low.
func (p *pulser) stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.off != nil {
		p.off.Stop()
		p.off = nil
	}
	return p.line.SetValue(0)
}
