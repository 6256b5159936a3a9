package ws

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler handles WebSocket connections for live detection events
type Handler struct {
	hub *EventHub
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *EventHub) *Handler {
	return &Handler{hub: hub}
}

// ServeHTTP upgrades the request. It is mounted at /ws/events/{entity_id};
// "all" subscribes to every entity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "entity_id")
	if entityID == "" {
		http.Error(w, "entity_id required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("[WS] Upgrade error: %v", err)
		return
	}

	log.Infof("[WS] New connection for %s from %s", entityID, r.RemoteAddr)

	c := &client{conn: conn}
	h.hub.Register(entityID, c)

	go h.readPump(entityID, c)
}

// readPump keeps the connection alive and detects disconnection
func (h *Handler) readPump(entityID string, c *client) {
	done := make(chan struct{})
	defer func() {
		close(done)
		h.hub.Unregister(entityID, c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := c.write(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warnf("[WS] Read error for %s: %v", entityID, err)
			}
			return
		}
	}
}
