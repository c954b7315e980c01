package web

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/heartsafe/internal/status"
)

const liveWriteTimeout = 2 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleLive streams a compact status document on connect and after every
// tracker update. Updates coalesce, so a slow client only ever sees the
// latest state.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.tracker.Subscribe()
	defer unsubscribe()

	// Client messages are ignored; reading detects the close.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func() error {
		conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		return conn.WriteMessage(websocket.TextMessage, status.FormatCompact(s.tracker.Snapshot()))
	}
	if err := send(); err != nil {
		return
	}
	for {
		select {
		case <-updates:
			if err := send(); err != nil {
				s.log.Debug("live feed closed", "error", err)
				return
			}
		case <-gone:
			return
		case <-s.closing:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		case <-r.Context().Done():
			return
		}
	}
}
