// Package prefs persists user preferences: alert thresholds, alert toggles
// and the data source policy. Storage is a narrow string key-value store.
package prefs

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/sweeney/heartsafe/internal/logic"
)

// Store is a string key-value store.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
}

// Preference keys.
const (
	KeyMinHeartRate                   = "minHeartRate"
	KeyMaxHeartRate                   = "maxHeartRate"
	KeyAlertsEnabled                  = "alertsEnabled"
	KeySoundAlertsEnabled             = "soundAlertsEnabled"
	KeyVibrationAlertsEnabled         = "vibrationAlertsEnabled"
	KeyBackgroundNotificationsEnabled = "backgroundNotificationsEnabled"
	KeyDataSource                     = "dataSource"
)

// Settings is the full set of user preferences.
type Settings struct {
	Thresholds logic.Thresholds
	Alerts     logic.AlertSettings
	Policy     logic.Policy
}

// Defaults returns 60..100 BPM with every alert off and automatic source
// selection.
func Defaults() Settings {
	return Settings{
		Thresholds: logic.DefaultThresholds(),
		Policy:     logic.PolicyAutomatic,
	}
}

// Load reads settings from s. Missing or unparseable values fall back to
// defaults; thresholds are clamped to the allowed limits, and an inverted
// pair reverts to the defaults. Only store failures are returned as errors.
func Load(s Store, log *slog.Logger) (Settings, error) {
	if log == nil {
		log = slog.Default()
	}
	st := Defaults()
	var err error

	if st.Thresholds.Min, err = loadInt(s, log, KeyMinHeartRate, st.Thresholds.Min); err != nil {
		return st, err
	}
	if st.Thresholds.Max, err = loadInt(s, log, KeyMaxHeartRate, st.Thresholds.Max); err != nil {
		return st, err
	}
	clamped := st.Thresholds.Clamp()
	if clamped != st.Thresholds {
		log.Warn("clamped stored thresholds", "min", clamped.Min, "max", clamped.Max)
	}
	if clamped.Validate() != nil {
		log.Warn("stored thresholds invalid, using defaults", "min", clamped.Min, "max", clamped.Max)
		clamped = logic.DefaultThresholds()
	}
	st.Thresholds = clamped

	bools := []struct {
		key string
		dst *bool
	}{
		{KeyAlertsEnabled, &st.Alerts.Enabled},
		{KeySoundAlertsEnabled, &st.Alerts.Sound},
		{KeyVibrationAlertsEnabled, &st.Alerts.Haptic},
		{KeyBackgroundNotificationsEnabled, &st.Alerts.Notifications},
	}
	for _, b := range bools {
		if *b.dst, err = loadBool(s, log, b.key, *b.dst); err != nil {
			return st, err
		}
	}

	raw, ok, err := s.Get(KeyDataSource)
	if err != nil {
		return st, fmt.Errorf("read %s: %w", KeyDataSource, err)
	}
	if ok {
		if p, perr := logic.ParsePolicy(raw); perr == nil {
			st.Policy = p
		} else {
			log.Warn("ignoring stored preference", "key", KeyDataSource, "error", perr)
		}
	}
	return st, nil
}

// Save writes every setting to s.
func Save(s Store, st Settings) error {
	values := []struct {
		key, value string
	}{
		{KeyMinHeartRate, strconv.Itoa(st.Thresholds.Min)},
		{KeyMaxHeartRate, strconv.Itoa(st.Thresholds.Max)},
		{KeyAlertsEnabled, strconv.FormatBool(st.Alerts.Enabled)},
		{KeySoundAlertsEnabled, strconv.FormatBool(st.Alerts.Sound)},
		{KeyVibrationAlertsEnabled, strconv.FormatBool(st.Alerts.Haptic)},
		{KeyBackgroundNotificationsEnabled, strconv.FormatBool(st.Alerts.Notifications)},
		{KeyDataSource, string(st.Policy)},
	}
	for _, v := range values {
		if err := s.Set(v.key, v.value); err != nil {
			return fmt.Errorf("write %s: %w", v.key, err)
		}
	}
	return nil
}

func loadInt(s Store, log *slog.Logger, key string, def int) (int, error) {
	raw, ok, err := s.Get(key)
	if err != nil {
		return def, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return def, nil
	}
	v, perr := strconv.Atoi(raw)
	if perr != nil {
		log.Warn("ignoring stored preference", "key", key, "value", raw)
		return def, nil
	}
	return v, nil
}

func loadBool(s Store, log *slog.Logger, key string, def bool) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil {
		return def, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok {
		return def, nil
	}
	v, perr := strconv.ParseBool(raw)
	if perr != nil {
		log.Warn("ignoring stored preference", "key", key, "value", raw)
		return def, nil
	}
	return v, nil
}
