// Package config loads daemon configuration from a YAML or TOML file and
// applies HEARTSAFE_* environment overrides.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sosodev/duration"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that reads Go syntax ("30s", "1m30s") or
// ISO-8601 ("PT30S").
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// MarshalText writes Go duration syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText accepts Go or ISO-8601 duration syntax.
func (d *Duration) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if v, err := time.ParseDuration(s); err == nil {
		*d = Duration(v)
		return nil
	}
	parsed, err := duration.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	*d = Duration(parsed.ToTimeDuration())
	return nil
}

type Config struct {
	LogLevel  string          `yaml:"log_level" toml:"log_level"`
	Heartbeat Duration        `yaml:"heartbeat" toml:"heartbeat"`
	BLE       BLEConfig       `yaml:"ble" toml:"ble"`
	Freshness FreshnessConfig `yaml:"freshness" toml:"freshness"`
	Alerts    AlertsConfig    `yaml:"alerts" toml:"alerts"`
	MQTT      MQTTConfig      `yaml:"mqtt" toml:"mqtt"`
	NATS      NATSConfig      `yaml:"nats" toml:"nats"`
	GPIO      GPIOConfig      `yaml:"gpio" toml:"gpio"`
	Secondary SecondaryConfig `yaml:"secondary" toml:"secondary"`
	Prefs     PrefsConfig     `yaml:"prefs" toml:"prefs"`
	HTTP      HTTPConfig      `yaml:"http" toml:"http"`
}

type BLEConfig struct {
	ScanTimeout    Duration `yaml:"scan_timeout" toml:"scan_timeout"`
	ReconnectDelay Duration `yaml:"reconnect_delay" toml:"reconnect_delay"`
	RefreshDelay   Duration `yaml:"refresh_delay" toml:"refresh_delay"`
}

type FreshnessConfig struct {
	PrimaryStale   Duration `yaml:"primary_stale" toml:"primary_stale"`
	SecondaryStale Duration `yaml:"secondary_stale" toml:"secondary_stale"`
	Grace          Duration `yaml:"grace" toml:"grace"`
	Recheck        Duration `yaml:"recheck" toml:"recheck"`
}

type AlertsConfig struct {
	LocalCooldown  Duration `yaml:"local_cooldown" toml:"local_cooldown"`
	RemoteCooldown Duration `yaml:"remote_cooldown" toml:"remote_cooldown"`
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Broker   string `yaml:"broker" toml:"broker"`
	ClientID string `yaml:"client_id" toml:"client_id"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	URL     string `yaml:"url" toml:"url"`
	Subject string `yaml:"subject" toml:"subject"`
}

type GPIOConfig struct {
	Enabled   bool     `yaml:"enabled" toml:"enabled"`
	Chip      string   `yaml:"chip" toml:"chip"`
	BuzzerPin int      `yaml:"buzzer_pin" toml:"buzzer_pin"`
	HapticPin int      `yaml:"haptic_pin" toml:"haptic_pin"`
	Pulse     Duration `yaml:"pulse" toml:"pulse"`
}

type SecondaryConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	APIKey  string `yaml:"api_key" toml:"api_key"`
}

type PrefsConfig struct {
	Path string `yaml:"path" toml:"path"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		Heartbeat: Duration(15 * time.Minute),
		BLE: BLEConfig{
			ScanTimeout:    Duration(30 * time.Second),
			ReconnectDelay: Duration(2 * time.Second),
			RefreshDelay:   Duration(500 * time.Millisecond),
		},
		Freshness: FreshnessConfig{
			PrimaryStale:   Duration(5 * time.Second),
			SecondaryStale: Duration(60 * time.Second),
			Grace:          Duration(5 * time.Second),
			Recheck:        Duration(2 * time.Second),
		},
		Alerts: AlertsConfig{
			LocalCooldown:  Duration(5 * time.Second),
			RemoteCooldown: Duration(60 * time.Second),
		},
		MQTT: MQTTConfig{
			Broker:   "tcp://localhost:1883",
			ClientID: "heartsafe",
		},
		NATS: NATSConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "heartsafe.alerts",
		},
		GPIO: GPIOConfig{
			Chip:      "gpiochip0",
			BuzzerPin: 18,
			HapticPin: 23,
			Pulse:     Duration(300 * time.Millisecond),
		},
		Prefs: PrefsConfig{Path: "/var/lib/heartsafe/prefs.db"},
		HTTP:  HTTPConfig{Addr: ":8080"},
	}
}

// Load reads config from a YAML or TOML file (chosen by extension) on top of
// the defaults, then applies environment variable overrides. An empty path
// skips the file. Env vars use the prefix HEARTSAFE_ and underscore-separated
// paths:
//
//	HEARTSAFE_LOG_LEVEL, HEARTSAFE_HEARTBEAT,
//	HEARTSAFE_MQTT_ENABLED, HEARTSAFE_MQTT_BROKER, HEARTSAFE_MQTT_CLIENT_ID,
//	HEARTSAFE_NATS_ENABLED, HEARTSAFE_NATS_URL,
//	HEARTSAFE_GPIO_ENABLED, HEARTSAFE_SECONDARY_ENABLED,
//	HEARTSAFE_SECONDARY_API_KEY, HEARTSAFE_PREFS_PATH, HEARTSAFE_HTTP_ADDR
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("env override: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	default:
		return fmt.Errorf("unsupported config format %q (want .yaml, .yml or .toml)", filepath.Ext(path))
	}
}

// Encode writes cfg in the format implied by ext (".yaml" or ".toml").
func Encode(cfg *Config, ext string) ([]byte, error) {
	switch strings.ToLower(ext) {
	case ".toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return yaml.Marshal(cfg)
	}
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("HEARTSAFE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("HEARTSAFE_HEARTBEAT"); v != "" {
		if err := cfg.Heartbeat.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("HEARTSAFE_HEARTBEAT: %w", err)
		}
	}
	if v := os.Getenv("HEARTSAFE_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("HEARTSAFE_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.ClientID = v
	}
	if v := os.Getenv("HEARTSAFE_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("HEARTSAFE_SECONDARY_API_KEY"); v != "" {
		cfg.Secondary.APIKey = v
	}
	if v := os.Getenv("HEARTSAFE_PREFS_PATH"); v != "" {
		cfg.Prefs.Path = v
	}
	if v, ok := os.LookupEnv("HEARTSAFE_HTTP_ADDR"); ok {
		cfg.HTTP.Addr = v
	}

	bools := []struct {
		env string
		dst *bool
	}{
		{"HEARTSAFE_MQTT_ENABLED", &cfg.MQTT.Enabled},
		{"HEARTSAFE_NATS_ENABLED", &cfg.NATS.Enabled},
		{"HEARTSAFE_GPIO_ENABLED", &cfg.GPIO.Enabled},
		{"HEARTSAFE_SECONDARY_ENABLED", &cfg.Secondary.Enabled},
	}
	for _, b := range bools {
		v := os.Getenv(b.env)
		if v == "" {
			continue
		}
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", b.env, err)
		}
		*b.dst = parsed
	}
	return nil
}

func (c *Config) validate() error {
	var errs []error

	positive := []struct {
		name string
		d    Duration
	}{
		{"ble.scan_timeout", c.BLE.ScanTimeout},
		{"ble.reconnect_delay", c.BLE.ReconnectDelay},
		{"ble.refresh_delay", c.BLE.RefreshDelay},
		{"freshness.primary_stale", c.Freshness.PrimaryStale},
		{"freshness.secondary_stale", c.Freshness.SecondaryStale},
		{"freshness.grace", c.Freshness.Grace},
		{"freshness.recheck", c.Freshness.Recheck},
		{"alerts.local_cooldown", c.Alerts.LocalCooldown},
		{"alerts.remote_cooldown", c.Alerts.RemoteCooldown},
	}
	for _, p := range positive {
		if p.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", p.name))
		}
	}
	if c.Heartbeat < 0 {
		errs = append(errs, errors.New("heartbeat must not be negative (0 disables)"))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required when nats is enabled"))
	}
	if c.Secondary.Enabled && c.Secondary.APIKey == "" {
		errs = append(errs, errors.New("secondary.api_key is required when secondary is enabled"))
	}
	if c.GPIO.Enabled {
		if c.GPIO.BuzzerPin == c.GPIO.HapticPin {
			errs = append(errs, errors.New("gpio.buzzer_pin and gpio.haptic_pin must differ"))
		}
		if c.GPIO.Pulse <= 0 {
			errs = append(errs, errors.New("gpio.pulse must be positive"))
		}
	}
	if c.Prefs.Path == "" {
		errs = append(errs, errors.New("prefs.path is required"))
	}

	return errors.Join(errs...)
}
