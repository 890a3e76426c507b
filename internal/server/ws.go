// Package server provides the switchmon gin-based REST API, JWT auth,
// and the websocket alert fan-out.
package server

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mzanin/switchmon/internal/models"
)

// AlertHub broadcasts alert events to every connected websocket client.
// Delivery is fire-and-forget: a client that cannot be written to is
// dropped, and nothing is buffered for later.
type AlertHub struct {
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewAlertHub builds an empty hub.
func NewAlertHub(logger zerolog.Logger) *AlertHub {
	return &AlertHub{
		logger: logger.With().Str("component", "alert-hub").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API is same-origin behind the embedded UI; cross-origin
			// dashboards are expected deployments.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// Handle upgrades the request and keeps the connection registered until
// the client goes away.
func (h *AlertHub) Handle(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error().Err(err).Str("remote", c.Request.RemoteAddr).
			Msg("websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	total := len(h.conns)
	h.mu.Unlock()

	h.logger.Info().Str("remote", conn.RemoteAddr().String()).
		Int("clients", total).Msg("websocket client connected")

	// Drain reads until the peer closes; clients only listen on this socket.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

// BroadcastAlert sends one event to all connected clients.
func (h *AlertHub) BroadcastAlert(event *models.AlertEvent) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(event); err != nil {
			h.logger.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).
				Msg("dropping websocket client")
			h.drop(conn)
		}
	}
}

// ClientCount reports the number of live connections.
func (h *AlertHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *AlertHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	_, present := h.conns[conn]
	delete(h.conns, conn)
	h.mu.Unlock()

	if present {
		_ = conn.Close()
	}
}
