//go:build linux

package gpio

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealFeedback drives a buzzer and a vibration motor on actual hardware
// using the Linux GPIO character device.
type RealFeedback struct {
	chip   *gpiocdev.Chip
	buzzer *gpiocdev.Line
	haptic *gpiocdev.Line

	sound *pulser
	motor *pulser
}

// NewRealFeedback requests both lines as outputs driven low.
func NewRealFeedback(cfg Config) (*RealFeedback, error) {
	if cfg.Chip == "" {
		cfg.Chip = DefaultChip
	}
	chip, err := gpiocdev.NewChip(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	buzzer, err := chip.RequestLine(cfg.BuzzerPin, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request buzzer pin %d: %w", cfg.BuzzerPin, err)
	}

	haptic, err := chip.RequestLine(cfg.HapticPin, gpiocdev.AsOutput(0))
	if err != nil {
		buzzer.Close()
		chip.Close()
		return nil, fmt.Errorf("request haptic pin %d: %w", cfg.HapticPin, err)
	}

	return &RealFeedback{
		chip:   chip,
		buzzer: buzzer,
		haptic: haptic,
		sound:  newPulser("buzzer", buzzer, cfg.Pulse),
		motor:  newPulser("haptic", haptic, cfg.Pulse),
	}, nil
}

// PlaySound pulses the buzzer.
func (r *RealFeedback) PlaySound() error {
	return r.sound.pulse()
}

// Pulse pulses the vibration motor.
func (r *RealFeedback) Pulse() error {
	return r.motor.pulse()
}

// Close drives both lines low and releases them.
// Lines are reconfigured to input with pull-down (matching Pi boot defaults)
// before closing so a buzzer is never left powered across a reboot.
func (r *RealFeedback) Close() error {
	var errs []error

	for _, l := range []struct {
		name string
		p    *pulser
		line *gpiocdev.Line
	}{
		{"buzzer", r.sound, r.buzzer},
		{"haptic", r.motor, r.haptic},
	} {
		if l.line == nil {
			continue
		}
		if err := l.p.stop(); err != nil {
			errs = append(errs, fmt.Errorf("drive %s low: %w", l.name, err))
		}
		if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", l.name, err))
		}
		if err := l.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", l.name, err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	return errors.Join(errs...)
}
