// Package web provides the HTTP surface of the heartsafe daemon: the status
// document, the control API, the live websocket feed and the secondary
// ingest endpoint.
package web

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/sweeney/heartsafe/internal/health"
	"github.com/sweeney/heartsafe/internal/logic"
	"github.com/sweeney/heartsafe/internal/status"
)

// Controller is the set of monitor commands exposed over HTTP.
// *monitor.Monitor implements it.
type Controller interface {
	Refresh(ctx context.Context) error
	SetThresholds(ctx context.Context, th logic.Thresholds) error
	SetPolicy(ctx context.Context, p logic.Policy) error
	SetAlerts(ctx context.Context, a logic.AlertSettings) error
	AuthorizeSecondary(ctx context.Context) (health.AuthStatus, error)
	FetchSecondary(ctx context.Context) (logic.Reading, error)
	Background(ctx context.Context) error
	Foreground(ctx context.Context) error
}

// Server serves status and control over HTTP.
type Server struct {
	httpServer *http.Server
	router     chi.Router
	api        chi.Router
	tracker    *status.Tracker
	ctl        Controller
	log        *slog.Logger

	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a Server that reads state from tracker and sends commands to
// ctl. A nil logger uses slog.Default.
func New(addr string, tracker *status.Tracker, ctl Controller, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		router:  chi.NewRouter(),
		tracker: tracker,
		ctl:     ctl,
		log:     log.With("component", "web"),
		closing: make(chan struct{}),
	}
	s.routes()
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))

	s.router.Get("/", s.handleJSON)
	s.router.Get("/index.json", s.handleJSON)

	s.api = s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/live", s.handleLive)
		r.Post("/refresh", s.handleRefresh)
		r.Put("/thresholds", s.handleThresholds)
		r.Put("/policy", s.handlePolicy)
		r.Put("/alerts", s.handleAlerts)
		r.Post("/secondary/authorize", s.handleAuthorize)
		r.Post("/secondary/fetch", s.handleFetch)
		r.Post("/lifecycle/{state}", s.handleLifecycle)
	})
}

// MountIngest serves h under /api/v1/ingest. It must be called before the
// server starts.
func (s *Server) MountIngest(h http.Handler) {
	s.api.Mount("/ingest", h)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server and ends live feeds.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
