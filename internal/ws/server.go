package ws

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// Server upgrades HTTP requests to WebSocket connections and hands them to
// the broadcaster.
type Server struct {
	broadcaster *Broadcaster
}

func NewServer(broadcaster *Broadcaster) *Server {
	return &Server{broadcaster: broadcaster}
}

// SetupRoutes registers the /ws endpoint.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[ws] upgrade failed", "error", err)
		return
	}

	slog.Info("[ws] client connected", "remote", r.RemoteAddr)
	c := s.broadcaster.AddClient(conn)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			slog.Info("[ws] client disconnected", "remote", r.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
