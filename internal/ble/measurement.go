package ble

import (
	"encoding/binary"
	"errors"

	"github.com/sweeney/heartsafe/internal/fault"
)

// Standard GATT identifiers for the heart rate profile.
const (
	HeartRateService     uint16 = 0x180D
	HeartRateMeasurement uint16 = 0x2A37
)

// Flags field bits of a heart rate measurement.
const (
	flagUint16          = 0x01
	flagContactDetected = 0x02
	flagContactSupport  = 0x04
)

var errEmptyPayload = errors.New("empty payload")

// DecodeMeasurement extracts beats per minute from a heart rate measurement
// notification.
//
// Byte 0 is the flags field. With bit 0 set and at least three bytes the
// value is a little-endian uint16 in bytes 1-2; otherwise, with at least two
// bytes, it is the uint8 in byte 1. A non-empty payload too short for either
// format decodes to 0 without error. Remaining fields (energy, RR intervals)
// are ignored.
func DecodeMeasurement(b []byte) (uint16, error) {
	if len(b) == 0 {
		return 0, fault.New(fault.MalformedMeasurement, "decode", errEmptyPayload)
	}
	flags := b[0]
	switch {
	case flags&flagUint16 != 0 && len(b) >= 3:
		return binary.LittleEndian.Uint16(b[1:3]), nil
	case len(b) >= 2:
		return uint16(b[1]), nil
	}
	return 0, nil
}

// SensorContact is the skin-contact status carried in the flags field.
type SensorContact struct {
	Supported bool
	Detected  bool
}

// ParseSensorContact reads the contact bits of a flags byte.
func ParseSensorContact(flags byte) SensorContact {
	return SensorContact{
		Supported: flags&flagContactSupport != 0,
		Detected:  flags&flagContactDetected != 0,
	}
}
