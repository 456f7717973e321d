package handlers

import (
	"net/http"

	gorilla "github.com/gorilla/websocket"

	"github.com/gin-gonic/gin"

	"github.com/vigil-ops/vigil-backend-go/internal/websocket"
)

var upgrader = gorilla.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Dashboards connect cross-origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketHandler upgrades the connection and streams transition events.
func (h *Handlers) WebSocketHandler(hub *websocket.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.log.WithError(err).Warn("WebSocket upgrade failed")
			return
		}

		client := websocket.NewClient(hub, conn, h.log)
		go client.WritePump()
		go client.ReadPump()
	}
}
