package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsWriteTimeout = 5 * time.Second
)

// wsReply wraps either a route response or an error for one request.
type wsReply struct {
	Seq   int            `json:"seq"`
	Route *routeResponse `json:"route,omitempty"`
	Error string         `json:"error,omitempty"`
}

// handleWebsocket treats every text message as a route request and answers
// each one in order on the same connection.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()
	if s.cfg.MaxRequestBytes > 0 {
		conn.SetReadLimit(s.cfg.MaxRequestBytes)
	}

	ctx := r.Context()
	for seq := 1; ; seq++ {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket read ended", "err", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		reply := wsReply{Seq: seq}
		resp, err := s.planRoute(ctx, msg)
		if err != nil {
			reply.Error = err.Error()
		} else {
			reply.Route = &resp
		}
		data, err := json.Marshal(reply)
		if err != nil {
			s.logger.Warn("websocket encode failed", "err", err)
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.logger.Debug("websocket write failed", "err", err)
			return
		}
	}
}
