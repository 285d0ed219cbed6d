package server

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const pushWriteTimeout = 5 * time.Second

var pushUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := pushUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.serveSnapshots(conn)
}

// serveSnapshots sends the current snapshot and then one more after every
// burst of store mutations, at most once per push interval.
func (s *Server) serveSnapshots(conn *websocket.Conn) {
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		changed := s.store.Changed()
		_ = conn.SetWriteDeadline(time.Now().Add(pushWriteTimeout))
		if err := conn.WriteJSON(s.store.Snapshot()); err != nil {
			return
		}

		select {
		case <-changed:
		case <-done:
			return
		case <-s.closing:
			s.sendGoingAway(conn)
			return
		}

		select {
		case <-time.After(s.pushInterval):
		case <-done:
			return
		case <-s.closing:
			s.sendGoingAway(conn)
			return
		}
	}
}

func (s *Server) sendGoingAway(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(pushWriteTimeout))
}
