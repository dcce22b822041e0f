package server

import (
	"context"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// wsWriteTimeout bounds a single event write to a client.
const wsWriteTimeout = 10 * time.Second

// handleWebsocket streams bus events to the client as JSON messages until
// the client disconnects.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		http.Error(w, "events not available", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // same-host UI, origins vary in dev
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	eventCh, cancel := s.bus.Subscribe(64)
	defer cancel()

	ctx := r.Context()
	s.log.Debug().Msg("Websocket client connected")

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventCh:
			if !ok {
				return
			}
			writeCtx, done := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(writeCtx, conn, event)
			done()
			if err != nil {
				s.log.Debug().Err(err).Msg("Websocket client gone")
				return
			}
		}
	}
}
