package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/kongor-project/bercon/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleEvents upgrades to a websocket and streams one JSON frame per
// Event for as long as the client stays connected, with the usual
// writer/reader goroutine split.
func (s *Server) handleEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	send := make(chan []byte, 64)
	name := "ws-" + c.Request.RemoteAddr

	handler := func(e events.Event) {
		data, err := json.Marshal(e)
		if err != nil {
			return
		}
		select {
		case send <- data:
		default:
			// Slow client: drop rather than block event delivery.
		}
	}

	for _, t := range []events.Type{
		events.TypeConnected, events.TypeDisconnected, events.TypeError,
		events.TypePlayers, events.TypePlayerJoin, events.TypePlayerLeave,
		events.TypePlayerUpdated, events.TypeBELog, events.TypePlayerMessage,
		events.TypeAdminMessage,
	} {
		s.session.Events().Subscribe(t, name, handler)
	}

	defer func() {
		for _, t := range []events.Type{
			events.TypeConnected, events.TypeDisconnected, events.TypeError,
			events.TypePlayers, events.TypePlayerJoin, events.TypePlayerLeave,
			events.TypePlayerUpdated, events.TypeBELog, events.TypePlayerMessage,
			events.TypeAdminMessage,
		} {
			s.session.Events().Unsubscribe(t, name)
		}
		conn.Close()
	}()

	// send is never closed: a handler invocation can race the unsubscribe
	// above, so disconnection is signalled through gone instead.
	gone := make(chan struct{})
	go func() {
		readPumpDiscard(conn)
		close(gone)
	}()

	for {
		select {
		case data := <-send:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

// readPumpDiscard drains and discards client frames purely to detect
// disconnects (this feed is push-only).
func readPumpDiscard(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
