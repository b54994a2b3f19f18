package console

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/janw/rtscope/internal/eventlog"
	"github.com/janw/rtscope/internal/log"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPingPeriod = 30 * time.Second
	feedBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS handled elsewhere
	},
}

// handleEventsFeed streams event-log entries over a websocket: the current
// backlog first, then every new entry as it is appended. A slow client
// drops entries rather than stalling the log.
func (s *Server) handleEventsFeed(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("console: feed upgrade failed", "error", err.Error())
		return
	}
	defer ws.Close()

	events := make(chan eventlog.Entry, feedBuffer)
	off := s.ctrl.EventLog().Watch(func(e eventlog.Entry) {
		select {
		case events <- e:
		default:
			log.Debug("console: feed buffer full, dropping entry", "id", e.ID)
		}
	})
	defer off()

	for _, entry := range s.ctrl.EventLog().Entries() {
		ws.SetWriteDeadline(time.Now().Add(feedWriteWait))
		if err := ws.WriteJSON(entry); err != nil {
			return
		}
	}

	// Reader goroutine only notices the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(feedPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case entry := <-events:
			ws.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := ws.WriteJSON(entry); err != nil {
				return
			}
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
