package prefs

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/heartsafe/internal/logic"
)

func quiet() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestLoadDefaults(t *testing.T) {
	st, err := Load(NewMemoryStore(), quiet())
	require.NoError(t, err)
	assert.Equal(t, Defaults(), st)
	assert.Equal(t, logic.Thresholds{Min: 60, Max: 100}, st.Thresholds)
	assert.Equal(t, logic.PolicyAutomatic, st.Policy)
	assert.False(t, st.Alerts.Enabled)
}

func TestSQLiteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs", "heartsafe.db")
	store, err := OpenSQLite(path)
	require.NoError(t, err)

	want := Settings{
		Thresholds: logic.Thresholds{Min: 55, Max: 120},
		Alerts:     logic.AlertSettings{Enabled: true, Sound: true, Haptic: false, Notifications: true},
		Policy:     logic.PolicyForceSecondary,
	}
	require.NoError(t, Save(store, want))
	require.NoError(t, store.Close())

	// Reopen: values survive.
	store, err = OpenSQLite(path)
	require.NoError(t, err)
	defer store.Close()

	got, err := Load(store, quiet())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSQLiteGetSet(t *testing.T) {
	store, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, ok, err := store.Get(KeyDataSource)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(KeyDataSource, "bluetooth"))
	require.NoError(t, store.Set(KeyDataSource, "health"))

	v, ok, err := store.Get(KeyDataSource)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "health", v)
}

func TestLoadClampsThresholds(t *testing.T) {
	tests := []struct {
		name     string
		min, max string
		want     logic.Thresholds
	}{
		{"below floor", "10", "100", logic.Thresholds{Min: 40, Max: 100}},
		{"above ceiling", "60", "250", logic.Thresholds{Min: 60, Max: 200}},
		{"inverted", "150", "90", logic.DefaultThresholds()},
		{"both clamp to same", "300", "400", logic.DefaultThresholds()},
		{"garbage", "abc", "", logic.DefaultThresholds()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore()
			require.NoError(t, s.Set(KeyMinHeartRate, tt.min))
			require.NoError(t, s.Set(KeyMaxHeartRate, tt.max))

			st, err := Load(s, quiet())
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.Thresholds)
		})
	}
}

func TestLoadIgnoresBadValues(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Set(KeyAlertsEnabled, "maybe"))
	require.NoError(t, s.Set(KeySoundAlertsEnabled, "true"))
	require.NoError(t, s.Set(KeyDataSource, "Apple Watch"))

	st, err := Load(s, quiet())
	require.NoError(t, err)
	assert.False(t, st.Alerts.Enabled)
	assert.True(t, st.Alerts.Sound)
	assert.Equal(t, logic.PolicyAutomatic, st.Policy)
}
