// Command heartsafe monitors a heart-rate sensor, falls back to pushed health
// data, and raises local and remote alerts when the rate leaves the
// configured band.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/sweeney/heartsafe/internal/alert"
	"github.com/sweeney/heartsafe/internal/ble"
	"github.com/sweeney/heartsafe/internal/config"
	"github.com/sweeney/heartsafe/internal/gpio"
	"github.com/sweeney/heartsafe/internal/health"
	"github.com/sweeney/heartsafe/internal/logic"
	"github.com/sweeney/heartsafe/internal/monitor"
	"github.com/sweeney/heartsafe/internal/mqtt"
	"github.com/sweeney/heartsafe/internal/natsx"
	"github.com/sweeney/heartsafe/internal/prefs"
	"github.com/sweeney/heartsafe/internal/status"
	"github.com/sweeney/heartsafe/internal/web"
)

// statusInterval is how often MQTT and network state are refreshed in the
// status tracker.
const statusInterval = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to a YAML or TOML config file")
	logLevel := flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	printConfig := flag.String("print-config", "", `Print the effective config as "yaml" or "toml" and exit`)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if *printConfig != "" {
		out, err := config.Encode(cfg, "."+*printConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		return
	}

	log := newLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      parseLevel(level),
		TimeFormat: time.DateTime,
	}))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func run(cfg *config.Config, log *slog.Logger) error {
	// Preferences
	store, err := prefs.OpenSQLite(cfg.Prefs.Path)
	if err != nil {
		return fmt.Errorf("init prefs: %w", err)
	}
	defer store.Close()

	// Local feedback
	var feedback alert.Feedback = alert.LogFeedback{Log: log}
	if cfg.GPIO.Enabled {
		fb, err := gpio.NewRealFeedback(gpioConfig(cfg))
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		defer fb.Close()
		feedback = fb
	}

	// Remote sinks
	notifiers := alert.MultiNotifier{alert.LogNotifier{Log: log}}
	var system monitor.SystemPublisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Enabled {
		publisher := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
		}, log)
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
		system = publisher
		mqttStatus = publisher
	}
	if cfg.NATS.Enabled {
		nc, err := natsx.Connect(natsConfig(cfg), log)
		if err != nil {
			// Don't crash when the broker is down; MQTT and local alerts still work.
			log.Warn("nats unavailable, continuing without it", "error", err)
		} else {
			defer nc.Close()
			notifiers = append(notifiers, nc)
		}
	}

	// Status tracker (before STARTUP so the snapshot is available)
	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Secondary source
	var provider *health.PushProvider
	var secondary *health.Adapter
	if cfg.Secondary.Enabled {
		provider = health.NewPushProvider(true, cfg.Secondary.APIKey, log)
		secondary = health.NewAdapter(provider, log)
	}

	opts := monitorOptions(cfg)
	opts.Radio = ble.NewTinyGoRadio(log)
	opts.Secondary = secondary
	opts.Prefs = store
	opts.Notifier = notifiers
	opts.Feedback = feedback
	opts.System = system
	opts.Tracker = tracker
	opts.Log = log
	mon, err := monitor.New(opts)
	if err != nil {
		return fmt.Errorf("init monitor: %w", err)
	}

	if system != nil {
		snap := tracker.Snapshot()
		startup := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := system.PublishSystem(startup); err != nil {
			log.Warn("failed to publish startup event", "error", err)
		} else {
			log.Info("published startup event")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// HTTP status and control
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, mon, log)
		if provider != nil {
			srv.MountIngest(provider.Routes())
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			srv.Shutdown(shutdownCtx)
		}()
		log.Info("http server listening", "addr", cfg.HTTP.Addr)
	}

	go monitor.SignalLifecycle(ctx, mon, log)

	if secondary != nil {
		go func() {
			st, err := mon.AuthorizeSecondary(ctx)
			if err != nil {
				log.Warn("secondary authorization failed", "status", st, "error", err)
				return
			}
			log.Info("secondary authorized")
			// Show the last known reading before the first push arrives.
			if r, err := mon.FetchSecondary(ctx); err != nil {
				log.Info("no secondary reading yet", "error", err)
			} else {
				log.Info("secondary reading", "bpm", r.BPM, "at", r.Timestamp)
			}
		}()
	}

	log.Info("started",
		"heartbeat", cfg.Heartbeat.D(),
		"scan_timeout", cfg.BLE.ScanTimeout.D(),
		"mqtt", cfg.MQTT.Enabled,
		"nats", cfg.NATS.Enabled,
		"gpio", cfg.GPIO.Enabled,
		"secondary", cfg.Secondary.Enabled)

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return runLoop(ctx, mon, system, mqttStatus, tracker, time.Now, ticker.C, sigCh, log)
}

// runLoop runs the monitor until a signal arrives, keeping MQTT and network
// state in the tracker current. On shutdown it stops the monitor and
// publishes a SHUTDOWN event carrying the final status.
func runLoop(ctx context.Context, mon *monitor.Monitor, system monitor.SystemPublisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal, log *slog.Logger) error {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	runErr := make(chan error, 1)
	go func() { runErr <- mon.Run(runCtx) }()

	refresh := func() {
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
	}
	refresh()

	var reason string
	stopped := false
loop:
	for {
		select {
		case s := <-sig:
			log.Info("shutting down", "signal", s)
			reason = signalName(s)
			break loop
		case <-ctx.Done():
			reason = "CONTEXT"
			break loop
		case err := <-runErr:
			// Run only returns once its context is done.
			if ctx.Err() == nil {
				return fmt.Errorf("monitor exited unexpectedly: %v", err)
			}
			reason, stopped = "CONTEXT", true
			break loop
		case <-tick:
			refresh()
			if net := readNetworkInfo(); net != nil {
				tracker.SetNetwork(net)
			}
		}
	}

	stop()
	if !stopped {
		if err := <-runErr; err != nil {
			log.Warn("monitor shutdown", "error", err)
		}
	}

	if system == nil {
		return nil
	}
	refresh()
	snap := tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  now(),
		Event:      "SHUTDOWN",
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", reason),
	}
	if err := system.PublishSystem(event); err != nil {
		log.Warn("failed to publish shutdown event", "error", err)
	} else {
		log.Info("published shutdown event")
	}
	return nil
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func monitorOptions(cfg *config.Config) monitor.Options {
	return monitor.Options{
		Timing: ble.Timing{
			ScanTimeout:    cfg.BLE.ScanTimeout.D(),
			ReconnectDelay: cfg.BLE.ReconnectDelay.D(),
			RefreshDelay:   cfg.BLE.RefreshDelay.D(),
		},
		Freshness: logic.FreshnessLimits{
			PrimaryStale:   cfg.Freshness.PrimaryStale.D(),
			SecondaryStale: cfg.Freshness.SecondaryStale.D(),
			Grace:          cfg.Freshness.Grace.D(),
		},
		Recheck: cfg.Freshness.Recheck.D(),
		Cooldowns: logic.Cooldowns{
			Local:  cfg.Alerts.LocalCooldown.D(),
			Remote: cfg.Alerts.RemoteCooldown.D(),
		},
		Heartbeat: cfg.Heartbeat.D(),
	}
}

func statusConfig(cfg *config.Config) status.Config {
	sc := status.Config{
		HeartbeatMs:   cfg.Heartbeat.D().Milliseconds(),
		ScanTimeoutMs: cfg.BLE.ScanTimeout.D().Milliseconds(),
		HTTPAddr:      cfg.HTTP.Addr,
	}
	if cfg.MQTT.Enabled {
		sc.Broker = cfg.MQTT.Broker
	}
	if cfg.NATS.Enabled {
		sc.NATS = cfg.NATS.URL
	}
	return sc
}

func gpioConfig(cfg *config.Config) gpio.Config {
	return gpio.Config{
		Chip:      cfg.GPIO.Chip,
		BuzzerPin: cfg.GPIO.BuzzerPin,
		HapticPin: cfg.GPIO.HapticPin,
		Pulse:     cfg.GPIO.Pulse.D(),
	}
}

func natsConfig(cfg *config.Config) natsx.Config {
	nc := natsx.DefaultConfig()
	nc.URL = cfg.NATS.URL
	if cfg.NATS.Subject != "" {
		nc.Subject = cfg.NATS.Subject
	}
	return nc
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
