package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"agentdash/internal/service"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// handleStream pushes the current snapshot on connect and every refresh
// afterwards until the client goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.dash.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snap, stats := s.dash.Current()
	if err := s.push(conn, service.Update{Snapshot: snap, Stats: stats}); err != nil {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	s.logger.Debug().Str("remote", r.RemoteAddr).Msg("stream client connected")
	for {
		select {
		case <-closed:
			s.logger.Debug().Str("remote", r.RemoteAddr).Msg("stream client disconnected")
			return
		case <-r.Context().Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := s.push(conn, u); err != nil {
				s.logger.Debug().Err(err).Msg("stream write failed")
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) push(conn *websocket.Conn, u service.Update) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(u)
}
