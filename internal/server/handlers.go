// Package server exposes HTTP handlers: the WebSocket upgrade that feeds the
// line protocol, and a health check.
package server

import (
	"fmt"
	"net/http"
)

// WebSocketHandler handles WebSocket upgrade requests. It validates that the
// request uses the GET method, upgrades the HTTP connection, and hands the
// connection to a peer handler exactly like an accepted TCP connection.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "error", err)
		return
	}

	s.HandleConn(NewWebSocketConn(conn, s.cfg.MaxLineLength, s.logger))
}

// HealthHandler provides a simple health check endpoint that returns server
// status and the number of registered peers.
func (s *Server) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "peerchat server is running! peers: %d", s.registry.Count())
}
