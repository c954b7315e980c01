package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sweeney/heartsafe/internal/fault"
	"github.com/sweeney/heartsafe/internal/logic"
	"github.com/sweeney/heartsafe/internal/monitor"
)

type thresholdsRequest struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type policyRequest struct {
	Policy string `json:"policy"`
}

type alertsRequest struct {
	Enabled       bool `json:"enabled"`
	Sound         bool `json:"sound"`
	Haptic        bool `json:"haptic"`
	Notifications bool `json:"notifications"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.ctl.Refresh(r.Context()); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refreshing"})
}

func (s *Server) handleThresholds(w http.ResponseWriter, r *http.Request) {
	var req thresholdsRequest
	if !decode(w, r, &req) {
		return
	}
	th := logic.Thresholds{Min: req.Min, Max: req.Max}
	if err := th.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.ctl.SetThresholds(r.Context(), th); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handlePolicy(w http.ResponseWriter, r *http.Request) {
	var req policyRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := logic.ParsePolicy(req.Policy)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.ctl.SetPolicy(r.Context(), p); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	var req alertsRequest
	if !decode(w, r, &req) {
		return
	}
	a := logic.AlertSettings{
		Enabled:       req.Enabled,
		Sound:         req.Sound,
		Haptic:        req.Haptic,
		Notifications: req.Notifications,
	}
	if err := s.ctl.SetAlerts(r.Context(), a); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	st, err := s.ctl.AuthorizeSecondary(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"authorization": st.String()})
	case errors.Is(err, monitor.ErrNoSecondary):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, fault.ErrSecondaryAuthDenied):
		writeJSON(w, http.StatusForbidden, map[string]string{
			"authorization": st.String(),
			"error":         err.Error(),
		})
	default:
		s.fail(w, err)
	}
}

type readingResponse struct {
	BPM       int       `json:"bpm"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	rd, err := s.ctl.FetchSecondary(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, readingResponse{BPM: rd.BPM, Timestamp: rd.Timestamp, Source: string(rd.Source)})
	case errors.Is(err, monitor.ErrNoSecondary):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, fault.ErrSecondaryAuthDenied):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, fault.ErrSecondaryUnavailable):
		writeError(w, http.StatusBadGateway, err)
	default:
		s.fail(w, err)
	}
}

func (s *Server) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	state := chi.URLParam(r, "state")
	var err error
	switch state {
	case "background":
		err = s.ctl.Background(r.Context())
	case "foreground":
		err = s.ctl.Foreground(r.Context())
	default:
		writeError(w, http.StatusBadRequest, errors.New("state must be background or foreground"))
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": state})
}

// fail maps a command error to a status code.
func (s *Server) fail(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, monitor.ErrStopped):
		code = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		code = http.StatusGatewayTimeout
	}
	if code == http.StatusInternalServerError {
		s.log.Error("command failed", "error", err)
	}
	writeError(w, code, err)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid JSON: "+err.Error()))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
