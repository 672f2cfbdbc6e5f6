package web

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"pseudo.chat/vouchd/internal/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEventsWS streams authentication and rotation audit events to an
// operator over websocket. It replays recent history on connect, then tails
// the in-memory log.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Send initial history (last 50 entries). GetRecent returns newest
	// first; replay oldest first so the feed reads top to bottom.
	initial := s.logger.GetRecent(50)
	for i := len(initial) - 1; i >= 0; i-- {
		if err := conn.WriteJSON(initial[i]); err != nil {
			return
		}
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	var lastSent time.Time
	if len(initial) > 0 {
		lastSent = initial[0].Timestamp
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			recent := s.logger.GetRecent(20)

			var fresh []logger.Message
			for _, msg := range recent {
				if msg.Timestamp.After(lastSent) {
					fresh = append(fresh, msg)
				}
			}

			for i := len(fresh) - 1; i >= 0; i-- {
				msg := fresh[i]
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
				if msg.Timestamp.After(lastSent) {
					lastSent = msg.Timestamp
				}
			}
		}
	}
}
