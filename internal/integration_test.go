package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/heartsafe/internal/ble"
	"github.com/sweeney/heartsafe/internal/gpio"
	"github.com/sweeney/heartsafe/internal/health"
	"github.com/sweeney/heartsafe/internal/logic"
	"github.com/sweeney/heartsafe/internal/monitor"
	"github.com/sweeney/heartsafe/internal/mqtt"
	"github.com/sweeney/heartsafe/internal/prefs"
	"github.com/sweeney/heartsafe/internal/sched"
	"github.com/sweeney/heartsafe/internal/status"
	"github.com/sweeney/heartsafe/internal/web"
)

const (
	apiKey = "test-key"
	strap  = "C0:FF:EE:00:00:01"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// stack is the daemon wired together with fakes at the hardware and broker
// edges: sqlite preferences, the HAE push provider, the monitor and the HTTP
// server are all real.
type stack struct {
	clock    *sched.FakeClock
	radio    *ble.FakeRadio
	store    *prefs.SQLiteStore
	provider *health.PushProvider
	pub      *mqtt.FakePublisher
	feedback *gpio.FakeFeedback
	tracker  *status.Tracker
	mon      *monitor.Monitor
	srv      *httptest.Server

	cancel context.CancelFunc
	done   chan error
}

func newStack(t *testing.T, heartbeat time.Duration) *stack {
	t.Helper()
	store, err := prefs.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open prefs: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return startStack(t, store, heartbeat)
}

func startStack(t *testing.T, store *prefs.SQLiteStore, heartbeat time.Duration) *stack {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	s := &stack{
		clock:    sched.NewFakeClock(epoch),
		radio:    ble.NewFakeRadio(ble.PowerOn),
		store:    store,
		provider: health.NewPushProvider(true, apiKey, log),
		pub:      mqtt.NewFakePublisher(),
		feedback: gpio.NewFakeFeedback(),
		tracker:  status.NewTracker(epoch, status.Config{Broker: "tcp://test:1883"}),
	}
	s.tracker.SetClock(s.clock.Now)

	mon, err := monitor.New(monitor.Options{
		Radio:     s.radio,
		Secondary: health.NewAdapter(s.provider, log),
		Prefs:     store,
		Notifier:  s.pub,
		Feedback:  s.feedback,
		System:    s.pub,
		Tracker:   s.tracker,
		Clock:     s.clock,
		Heartbeat: heartbeat,
		Log:       log,
	})
	if err != nil {
		t.Fatalf("monitor.New: %v", err)
	}
	s.mon = mon

	ws := web.New(":0", s.tracker, mon, log)
	ws.MountIngest(s.provider.Routes())
	s.srv = httptest.NewServer(ws.Handler())
	t.Cleanup(s.srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan error, 1)
	go func() { s.done <- mon.Run(ctx) }()
	t.Cleanup(s.stop)

	s.barrier(t)
	return s
}

func (s *stack) stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

// barrier waits until the monitor has handled everything posted so far.
func (s *stack) barrier(t *testing.T) status.Monitor {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	st, err := s.mon.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	return st
}

func (s *stack) tick(t *testing.T, d time.Duration) {
	t.Helper()
	for d > 0 {
		step := min(d, logic.RecheckInterval)
		s.clock.Advance(step)
		s.barrier(t)
		d -= step
	}
}

func (s *stack) call(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.HasPrefix(path, "/api/v1/ingest") {
		req.Header.Set("X-API-Key", apiKey)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes()
}

func (s *stack) mustCall(t *testing.T, method, path, body string, want int) []byte {
	t.Helper()
	code, out := s.call(t, method, path, body)
	if code != want {
		t.Fatalf("%s %s: got %d, want %d (%s)", method, path, code, want, out)
	}
	return out
}

func (s *stack) statusJSON(t *testing.T) status.StatusInner {
	t.Helper()
	s.barrier(t)
	out := s.mustCall(t, http.MethodGet, "/index.json", "", http.StatusOK)
	var sj status.StatusJSON
	if err := json.Unmarshal(out, &sj); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	return sj.Status
}

// useSecondary switches to the pushed source and authorizes it over HTTP.
func (s *stack) useSecondary(t *testing.T) {
	t.Helper()
	s.mustCall(t, http.MethodPut, "/api/v1/policy", `{"policy":"health"}`, http.StatusOK)
	out := s.mustCall(t, http.MethodPost, "/api/v1/secondary/authorize", "", http.StatusOK)
	if !strings.Contains(string(out), `"authorized"`) {
		t.Fatalf("authorize: unexpected body %s", out)
	}
}

// ingest pushes an HAE heart_rate batch; each entry is bpm at epoch+offset.
func (s *stack) ingest(t *testing.T, points map[time.Duration]float64) health.IngestResult {
	t.Helper()
	var data []string
	for off, bpm := range points {
		data = append(data, fmt.Sprintf(`{"date":%q,"Avg":%g}`, epoch.Add(off).Format(health.HAETimeLayout), bpm))
	}
	body := `{"data":{"metrics":[{"name":"heart_rate","units":"count/min","data":[` + strings.Join(data, ",") + `]}]}}`
	out := s.mustCall(t, http.MethodPost, "/api/v1/ingest", body, http.StatusOK)
	var res health.IngestResult
	if err := json.Unmarshal(out, &res); err != nil {
		t.Fatalf("decode ingest result: %v", err)
	}
	return res
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestIntegrationIngestDrivesStatus pushes health data over HTTP and reads
// it back from the status document.
func TestIntegrationIngestDrivesStatus(t *testing.T) {
	s := newStack(t, 0)
	s.useSecondary(t)

	res := s.ingest(t, map[time.Duration]float64{
		-time.Second: 66.2,
		0:            70.4,
	})
	if res.Accepted != 2 {
		t.Fatalf("accepted: got %d, want 2", res.Accepted)
	}

	st := s.statusJSON(t)
	if st.HeartRate.Source != "secondary" {
		t.Errorf("source: got %q, want secondary", st.HeartRate.Source)
	}
	if st.HeartRate.BPM != 70 {
		t.Errorf("bpm: got %d, want 70 (latest point, rounded)", st.HeartRate.BPM)
	}
	if st.HeartRate.Policy != "health" {
		t.Errorf("policy: got %q, want health", st.HeartRate.Policy)
	}
	if !st.Ready {
		t.Error("expected ready with fresh secondary data")
	}
	if st.Secondary.Authorization != "authorized" || !st.Secondary.Running {
		t.Errorf("secondary: got %+v", st.Secondary)
	}
	if st.Session.Samples != 1 {
		t.Errorf("session samples: got %d, want 1", st.Session.Samples)
	}
}

// TestIntegrationFetchSecondaryOverHTTP runs the one-shot fetch through each
// stage of the push provider's life.
func TestIntegrationFetchSecondaryOverHTTP(t *testing.T) {
	s := newStack(t, 0)

	s.mustCall(t, http.MethodPost, "/api/v1/secondary/fetch", "", http.StatusForbidden)

	s.useSecondary(t)
	s.mustCall(t, http.MethodPost, "/api/v1/secondary/fetch", "", http.StatusBadGateway)

	s.ingest(t, map[time.Duration]float64{0: 63.6})
	out := s.mustCall(t, http.MethodPost, "/api/v1/secondary/fetch", "", http.StatusOK)
	var got struct {
		BPM    int    `json:"bpm"`
		Source string `json:"source"`
	}
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("decode fetch: %v", err)
	}
	if got.BPM != 64 || got.Source != "secondary" {
		t.Errorf("fetch: got %+v, want 64 from secondary", got)
	}
	if st := s.statusJSON(t); st.Session.Samples != 1 {
		t.Errorf("a fetched copy of a pushed point is not a new sample: got %d", st.Session.Samples)
	}
}

// TestIntegrationSecondaryGoesStale lets pushed data age past the secondary
// window.
func TestIntegrationSecondaryGoesStale(t *testing.T) {
	s := newStack(t, 0)
	s.useSecondary(t)
	s.ingest(t, map[time.Duration]float64{0: 72})

	s.tick(t, 58*time.Second)
	if st := s.statusJSON(t); st.HeartRate.Stale {
		t.Fatal("stale before the secondary window elapsed")
	}

	s.tick(t, 4*time.Second)
	st := s.statusJSON(t)
	if !st.HeartRate.Stale {
		t.Error("expected stale after the secondary window")
	}
	if st.Ready {
		t.Error("stale data must not be ready")
	}
}

// TestIntegrationBreachAlertsEverySink raises one alert from pushed data and
// checks the notification, local feedback and counters.
func TestIntegrationBreachAlertsEverySink(t *testing.T) {
	s := newStack(t, 0)
	s.mustCall(t, http.MethodPut, "/api/v1/alerts",
		`{"enabled":true,"sound":true,"haptic":true,"notifications":true}`, http.StatusOK)
	s.useSecondary(t)

	s.ingest(t, map[time.Duration]float64{0: 131})

	eventually(t, "notification", func() bool { return len(s.pub.Sent()) == 1 })
	n := s.pub.Sent()[0]
	if n.Breach.Kind != logic.BreachHigh || n.Breach.BPM != 131 || n.Breach.Threshold != 100 {
		t.Errorf("breach: got %+v", n.Breach)
	}

	payload, err := mqtt.FormatPayload(n)
	if err != nil {
		t.Fatalf("format payload: %v", err)
	}
	var decoded map[string]map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded["alert"]["kind"] != "HIGH" {
		t.Errorf("payload kind: got %v, want HIGH", decoded["alert"]["kind"])
	}

	eventually(t, "feedback", func() bool {
		sounds, pulses := s.feedback.Counts()
		return sounds == 1 && pulses == 1
	})

	st := s.statusJSON(t)
	if st.Counts.LocalAlerts != 1 || st.Counts.Notifications != 1 {
		t.Errorf("counts: got %+v", st.Counts)
	}
	if st.HeartRate.InRange {
		t.Error("131 BPM should be out of range")
	}

	// A second breach inside the cooldown is suppressed.
	s.ingest(t, map[time.Duration]float64{time.Second: 135})
	st = s.statusJSON(t)
	if st.Counts.Suppressed != 1 {
		t.Errorf("suppressed: got %d, want 1", st.Counts.Suppressed)
	}
	if len(s.pub.Sent()) != 1 {
		t.Errorf("notifications: got %d, want 1", len(s.pub.Sent()))
	}
}

// TestIntegrationAlertsDisabledByDefault checks nothing is sent before the
// user opts in.
func TestIntegrationAlertsDisabledByDefault(t *testing.T) {
	s := newStack(t, 0)
	s.useSecondary(t)

	s.ingest(t, map[time.Duration]float64{0: 30})
	s.barrier(t)

	if n := len(s.pub.Sent()); n != 0 {
		t.Errorf("notifications: got %d, want 0", n)
	}
	if sounds, pulses := s.feedback.Counts(); sounds+pulses != 0 {
		t.Errorf("feedback: got %d sounds %d pulses", sounds, pulses)
	}
}

// TestIntegrationSettingsPersistAcrossRestart changes settings over HTTP,
// restarts the monitor on the same database and reads them back.
func TestIntegrationSettingsPersistAcrossRestart(t *testing.T) {
	s := newStack(t, 0)
	s.mustCall(t, http.MethodPut, "/api/v1/thresholds", `{"min":50,"max":150}`, http.StatusOK)
	s.mustCall(t, http.MethodPut, "/api/v1/policy", `{"policy":"bluetooth"}`, http.StatusOK)
	s.mustCall(t, http.MethodPut, "/api/v1/alerts", `{"enabled":true,"sound":true}`, http.StatusOK)
	s.stop()

	again := startStack(t, s.store, 0)
	got, err := again.mon.Settings(context.Background())
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if got.Thresholds != (logic.Thresholds{Min: 50, Max: 150}) {
		t.Errorf("thresholds: got %+v", got.Thresholds)
	}
	if got.Policy != logic.PolicyForcePrimary {
		t.Errorf("policy: got %q, want bluetooth", got.Policy)
	}
	if !got.Alerts.Enabled || !got.Alerts.Sound || got.Alerts.Haptic {
		t.Errorf("alerts: got %+v", got.Alerts)
	}

	st := again.statusJSON(t)
	if st.Thresholds.Min != 50 || st.Thresholds.Max != 150 {
		t.Errorf("status thresholds: got %+v", st.Thresholds)
	}
}

// TestIntegrationRejectsInvalidThresholds leaves the stored band untouched.
func TestIntegrationRejectsInvalidThresholds(t *testing.T) {
	s := newStack(t, 0)
	s.mustCall(t, http.MethodPut, "/api/v1/thresholds", `{"min":120,"max":80}`, http.StatusBadRequest)

	got, err := prefs.Load(s.store, nil)
	if err != nil {
		t.Fatalf("load prefs: %v", err)
	}
	if got.Thresholds != logic.DefaultThresholds() {
		t.Errorf("thresholds: got %+v, want defaults", got.Thresholds)
	}
}

// TestIntegrationIngestAuth checks the API key gate on the ingest mount.
func TestIntegrationIngestAuth(t *testing.T) {
	s := newStack(t, 0)

	for _, tc := range []struct {
		name string
		key  string
		want int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "nope", http.StatusForbidden},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodPost, s.srv.URL+"/api/v1/ingest", strings.NewReader(`{}`))
			if tc.key != "" {
				req.Header.Set("X-API-Key", tc.key)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("POST ingest: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Errorf("status: got %d, want %d", resp.StatusCode, tc.want)
			}
		})
	}

	// Before authorization the provider refuses data even with the right key.
	s.mustCall(t, http.MethodPost, "/api/v1/ingest", `{"data":{"metrics":[]}}`, http.StatusConflict)
}

// TestIntegrationPrimaryRefresh connects the strap, then refreshes over HTTP.
func TestIntegrationPrimaryRefresh(t *testing.T) {
	s := newStack(t, 0)

	s.radio.Emit(ble.RadioEvent{Type: ble.EventDeviceFound, Address: strap, Name: "H10"})
	s.radio.Emit(ble.RadioEvent{Type: ble.EventLinkUp, Address: strap})
	s.tick(t, 6*time.Second)
	s.radio.Emit(ble.RadioEvent{Type: ble.EventNotification, Address: strap, Payload: []byte{0x00, 72}})

	before := s.statusJSON(t)
	if before.Connection.Kind != "connected" || before.HeartRate.BPM != 72 {
		t.Fatalf("before refresh: connection %+v bpm %d", before.Connection, before.HeartRate.BPM)
	}
	if before.HeartRate.Source != "primary" || !before.Ready {
		t.Errorf("expected trusted primary, got source %q ready %v", before.HeartRate.Source, before.Ready)
	}

	s.mustCall(t, http.MethodPost, "/api/v1/refresh", "", http.StatusAccepted)

	after := s.statusJSON(t)
	if after.Session.ID == before.Session.ID {
		t.Error("refresh should start a new session")
	}
	if after.Session.Samples != 0 {
		t.Errorf("samples after refresh: got %d, want 0", after.Session.Samples)
	}
	found := false
	for _, c := range s.radio.Calls() {
		if c == "disconnect "+strap {
			found = true
		}
	}
	if !found {
		t.Errorf("expected disconnect, calls: %v", s.radio.Calls())
	}
}

// TestIntegrationLifecycleOverHTTP pauses and resumes the freshness re-check.
func TestIntegrationLifecycleOverHTTP(t *testing.T) {
	s := newStack(t, 0)

	s.mustCall(t, http.MethodPost, "/api/v1/lifecycle/background", "", http.StatusOK)
	if st := s.statusJSON(t); !st.Background {
		t.Error("expected background")
	}
	s.mustCall(t, http.MethodPost, "/api/v1/lifecycle/foreground", "", http.StatusOK)
	if st := s.statusJSON(t); st.Background {
		t.Error("expected foreground")
	}
}

// TestIntegrationHeartbeatPayload checks the periodic system event carries a
// full status snapshot.
func TestIntegrationHeartbeatPayload(t *testing.T) {
	s := newStack(t, time.Minute)
	s.useSecondary(t)
	s.ingest(t, map[time.Duration]float64{0: 64})

	s.tick(t, time.Minute)

	var hb *mqtt.SystemEvent
	for _, ev := range s.pub.System() {
		if ev.Event == "HEARTBEAT" {
			hb = &ev
		}
	}
	if hb == nil {
		t.Fatalf("no HEARTBEAT event, got %+v", s.pub.System())
	}

	payload, err := mqtt.FormatSystemPayload(*hb)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	var sj status.StatusJSON
	if err := json.Unmarshal(payload, &sj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sj.Status.Event != "HEARTBEAT" {
		t.Errorf("event: got %q", sj.Status.Event)
	}
	if sj.Status.HeartRate.BPM != 64 {
		t.Errorf("bpm: got %d, want 64", sj.Status.HeartRate.BPM)
	}
	if sj.Status.Counts.Samples != 1 {
		t.Errorf("samples: got %d, want 1", sj.Status.Counts.Samples)
	}
	if sj.Status.MQTT.Broker != "tcp://test:1883" {
		t.Errorf("broker: got %q", sj.Status.MQTT.Broker)
	}
}

// TestIntegrationShutdownStopsEverything checks the monitor releases the
// radio, timers and subscription and refuses later commands.
func TestIntegrationShutdownStopsEverything(t *testing.T) {
	s := newStack(t, time.Minute)
	s.useSecondary(t)

	s.stop()

	if n := s.clock.Pending(); n != 0 {
		t.Errorf("pending timers after stop: got %d", n)
	}
	calls := s.radio.Calls()
	if calls[len(calls)-1] != "close" {
		t.Errorf("last radio call: got %q, want close", calls[len(calls)-1])
	}
	code, _ := s.call(t, http.MethodPost, "/api/v1/refresh", "")
	if code != http.StatusServiceUnavailable {
		t.Errorf("refresh after stop: got %d, want 503", code)
	}
}
