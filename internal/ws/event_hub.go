package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"hound/internal/pipeline"
)

// AllEntities subscribes a client to every entity
const AllEntities = "all"

const writeWait = 10 * time.Second

// client serializes writes to one connection
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// EventHub manages WebSocket connections for live detection events
type EventHub struct {
	// clients maps entity_id -> set of connections
	clients map[string]map[*client]bool
	mu      sync.RWMutex
}

// NewEventHub creates a new event hub
func NewEventHub() *EventHub {
	return &EventHub{
		clients: make(map[string]map[*client]bool),
	}
}

// Register adds a connection for an entity, or AllEntities
func (h *EventHub) Register(entityID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[entityID] == nil {
		h.clients[entityID] = make(map[*client]bool)
	}
	h.clients[entityID][c] = true
	log.Debugf("[WS] Client registered for %s (total: %d)", entityID, len(h.clients[entityID]))
}

// Unregister removes a connection for an entity
func (h *EventHub) Unregister(entityID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[entityID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.clients, entityID)
		}
		log.Debugf("[WS] Client unregistered for %s", entityID)
	}
}

// HasClients returns true if any client would receive messages for an entity
func (h *EventHub) HasClients(entityID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[entityID]) > 0 || len(h.clients[AllEntities]) > 0
}

// ClientCount returns the total number of connected clients
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, conns := range h.clients {
		count += len(conns)
	}
	return count
}

// Broadcast sends a message to the entity's subscribers and to AllEntities
func (h *EventHub) Broadcast(entityID string, message []byte) {
	h.mu.RLock()
	targets := make(map[*client]string)
	for c := range h.clients[entityID] {
		targets[c] = entityID
	}
	for c := range h.clients[AllEntities] {
		targets[c] = AllEntities
	}
	h.mu.RUnlock()

	for c, key := range targets {
		if err := c.write(websocket.TextMessage, message); err != nil {
			log.Warnf("[WS] Error sending to client: %v", err)
			h.Unregister(key, c)
			c.conn.Close()
		}
	}
}

// OnEvent forwards bus events to subscribers
func (h *EventHub) OnEvent(event pipeline.Event) {
	if !h.HasClients(event.EntityID) {
		return
	}
	h.send(event.EntityID, NewEventMessage(event))
}

// OnStateChanged forwards entity state to subscribers
func (h *EventHub) OnStateChanged(entityID string, state pipeline.State) {
	if !h.HasClients(entityID) {
		return
	}
	h.send(entityID, NewStateMessage(entityID, state))
}

func (h *EventHub) send(entityID string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Errorf("[WS] Error marshaling message: %v", err)
		return
	}
	h.Broadcast(entityID, data)
}

var (
	_ pipeline.EventHandler  = (*EventHub)(nil)
	_ pipeline.StateListener = (*EventHub)(nil)
)
