package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/relvacode/iso8601"

	"github.com/sweeney/heartsafe/internal/fault"
)

// HAETimeLayout is the Health Auto Export date format.
const HAETimeLayout = "2006-01-02 15:04:05 -0700"

// HAEPayload is the top-level Health Auto Export REST body.
type HAEPayload struct {
	Data HAEData `json:"data"`
}

// HAEData holds the exported metrics. Workouts are ignored.
type HAEData struct {
	Metrics []HAEMetric `json:"metrics"`
}

// HAEMetric is a named series of data points.
type HAEMetric struct {
	Name  string            `json:"name"`
	Units string            `json:"units"`
	Data  []json.RawMessage `json:"data"`
}

// haeHeartRatePoint covers both the Min/Avg/Max shape and the plain qty
// shape used when aggregation is off.
type haeHeartRatePoint struct {
	Date string   `json:"date"`
	Avg  *float64 `json:"Avg"`
	Qty  *float64 `json:"qty"`
}

// IngestResult reports what a push contained.
type IngestResult struct {
	Received int    `json:"received"`
	Accepted int    `json:"accepted"`
	Skipped  int    `json:"skipped"`
	Latest   string `json:"latest,omitempty"`
}

// ParseHAETime parses the HAE layout, falling back to ISO-8601.
func ParseHAETime(s string) (time.Time, error) {
	t, err := time.Parse(HAETimeLayout, s)
	if err == nil {
		return t, nil
	}
	t, err2 := iso8601.ParseString(s)
	if err2 == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot parse HAE time %q: %w", s, err)
}

// PushProvider receives heart-rate data pushed by Health Auto Export over
// HTTP. Authorization is granted only when ingest is enabled with an API key.
type PushProvider struct {
	enabled bool
	apiKey  string
	log     *slog.Logger

	mu     sync.Mutex
	status AuthStatus
	subs   map[int]func([]Point)
	nextID int
	latest Point
	has    bool
}

// NewPushProvider creates a push provider. A nil logger uses slog.Default.
func NewPushProvider(enabled bool, apiKey string, log *slog.Logger) *PushProvider {
	if log == nil {
		log = slog.Default()
	}
	return &PushProvider{
		enabled: enabled,
		apiKey:  apiKey,
		log:     log.With("component", "hae"),
		subs:    make(map[int]func([]Point)),
	}
}

// RequestAuthorization grants access when ingest is configured.
func (p *PushProvider) RequestAuthorization(ctx context.Context) (AuthStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.enabled && p.apiKey != "" {
		p.status = Authorized
	} else {
		p.status = Denied
	}
	return p.status, nil
}

// AuthorizationStatus returns the last authorization outcome.
func (p *PushProvider) AuthorizationStatus() AuthStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Subscribe registers fn for every ingested batch.
func (p *PushProvider) Subscribe(ctx context.Context, fn func([]Point)) (func(), error) {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.subs[id] = fn
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return cancel, nil
}

// Latest returns the most recent ingested point.
func (p *PushProvider) Latest(ctx context.Context) (Point, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.has {
		return Point{}, fault.New(fault.SecondaryUnavailable, "latest", ErrNoData)
	}
	return p.latest, nil
}

// Ingest extracts heart_rate points from payload and fans them out.
func (p *PushProvider) Ingest(payload *HAEPayload) (IngestResult, error) {
	if p.AuthorizationStatus() != Authorized {
		return IngestResult{}, fault.New(fault.SecondaryAuthDenied, "ingest", nil)
	}

	var result IngestResult
	var points []Point
	for _, m := range payload.Data.Metrics {
		if m.Name != "heart_rate" {
			continue
		}
		for _, raw := range m.Data {
			result.Received++
			pt, err := convertPoint(raw)
			if err != nil {
				p.log.Warn("skipping data point", "metric", m.Name, "error", err)
				result.Skipped++
				continue
			}
			points = append(points, pt)
		}
	}
	result.Accepted = len(points)
	if len(points) == 0 {
		return result, nil
	}

	latest, _ := Latest(points)
	result.Latest = latest.End.Format(time.RFC3339)

	p.mu.Lock()
	if !p.has || latest.End.After(p.latest.End) {
		p.latest, p.has = latest, true
	}
	subs := make([]func([]Point), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(points)
	}
	return result, nil
}

func convertPoint(raw json.RawMessage) (Point, error) {
	var dp haeHeartRatePoint
	if err := json.Unmarshal(raw, &dp); err != nil {
		return Point{}, fmt.Errorf("decode: %w", err)
	}
	ts, err := ParseHAETime(dp.Date)
	if err != nil {
		return Point{}, err
	}
	var bpm float64
	switch {
	case dp.Avg != nil:
		bpm = *dp.Avg
	case dp.Qty != nil:
		bpm = *dp.Qty
	default:
		return Point{}, errors.New("no Avg or qty field")
	}
	return Point{BPM: bpm, Start: ts, End: ts}, nil
}

// Routes returns the ingest handler, meant to be mounted at /api/v1/ingest.
func (p *PushProvider) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(APIKeyAuth(p.apiKey))
	r.Post("/", p.handleIngest)
	return r
}

func (p *PushProvider) handleIngest(w http.ResponseWriter, r *http.Request) {
	var payload HAEPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	result, err := p.Ingest(&payload)
	if err != nil {
		if errors.Is(err, fault.ErrSecondaryAuthDenied) {
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
			return
		}
		p.log.Error("ingest error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// APIKeyAuth returns middleware that validates the X-API-Key header.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				http.Error(w, `{"error":"missing API key"}`, http.StatusUnauthorized)
				return
			}
			if apiKey == "" || key != apiKey {
				http.Error(w, `{"error":"invalid API key"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
