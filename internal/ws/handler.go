package ws

import (
	"context"
	"net/http"

	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/config"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/logging"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/registry"
	"github.com/dinhkhaphancs/real-time-quiz-backend/internal/roomhub"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP connections on /ws/sessions/{roomCode} and wires
// them to the Room Actor behind that roomCode.
type Handler struct {
	registry *registry.Registry
	hub      *roomhub.Hub
	cfg      config.RoomConfig
	log      logging.Logger
}

// NewHandler builds the WebSocket Adapter's HTTP entry point.
func NewHandler(reg *registry.Registry, hub *roomhub.Hub, cfg config.RoomConfig, log logging.Logger) *Handler {
	return &Handler{registry: reg, hub: hub, cfg: cfg, log: log}
}

// HandleConnection upgrades a request and hands the socket to a Conn bound
// to the room named by the roomCode path parameter.
func (h *Handler) HandleConnection(c *gin.Context) {
	roomCode := c.Param("roomCode")
	if roomCode == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "roomCode is required"})
		return
	}

	rm, err := h.registry.Acquire(c.Request.Context(), roomCode)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found or closed"})
		return
	}

	wsConn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("ws: upgrade failed", "error", err)
		return
	}

	conn := newConn(context.Background(), wsConn, roomCode, rm, h.hub, h.cfg, h.log)
	go conn.WritePump()
	conn.ReadPump()
}
