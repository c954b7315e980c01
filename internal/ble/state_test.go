package ble

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionStateVariants(t *testing.T) {
	cause := errors.New("gone")
	tests := []struct {
		state   ConnectionState
		kind    Kind
		handle  bool
		canScan bool
		str     string
	}{
		{Unknown(), KindUnknown, false, false, "unknown"},
		{PoweredOff(), KindPoweredOff, false, false, "powered_off"},
		{Unauthorized(), KindUnauthorized, false, false, "unauthorized"},
		{Unsupported(), KindUnsupported, false, false, "unsupported"},
		{Scanning(), KindScanning, false, true, "scanning"},
		{Connecting(3), KindConnecting, true, false, "connecting(3)"},
		{Connected(3), KindConnected, true, false, "connected(3)"},
		{Disconnected(nil), KindDisconnected, false, true, "disconnected"},
		{Disconnected(cause), KindDisconnected, false, true, "disconnected(gone)"},
	}
	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.state.Kind())
			_, ok := tt.state.Handle()
			assert.Equal(t, tt.handle, ok)
			assert.Equal(t, tt.canScan, tt.state.CanScan())
			assert.Equal(t, tt.str, tt.state.String())
		})
	}
}

func TestZeroValueIsUnknown(t *testing.T) {
	var s ConnectionState
	assert.Equal(t, KindUnknown, s.Kind())
	assert.Equal(t, Unknown(), s)
}

func TestHandleRequired(t *testing.T) {
	assert.Panics(t, func() { Connecting(0) })
	assert.Panics(t, func() { Connected(0) })
}

func TestDisconnectedCarriesError(t *testing.T) {
	cause := errors.New("supervision timeout")
	s := Disconnected(cause)
	assert.Same(t, cause, s.Err())
	assert.False(t, s.IsConnected())
	assert.True(t, Connected(1).IsConnected())
}
