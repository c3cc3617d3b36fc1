package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"parkaro/internal/domain"
	"parkaro/internal/notify"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // displays are served from other origins
	},
}

type WebSocketHandler struct {
	hub    *notify.Hub
	status func() domain.ParkingStatusView
	logger *zerolog.Logger
}

func NewWebSocketHandler(hub *notify.Hub, status func() domain.ParkingStatusView, logger *zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, status: status, logger: logger}
}

// GET /ws. A new client first receives the current occupancy, then every
// notification the hub broadcasts.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	view := h.status()
	if err := conn.WriteJSON(domain.Notification{
		Type:      domain.NotificationOccupancy,
		Timestamp: view.UpdatedAt,
		Data:      view,
	}); err != nil {
		conn.Close()
		return
	}
	h.hub.Register(conn)

	go func() {
		defer h.hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Debug().Err(err).Msg("websocket closed unexpectedly")
				}
				return
			}
		}
	}()
}
