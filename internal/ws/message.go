package ws

import (
	"time"

	"hound/internal/pipeline"
)

// Message types
const (
	TypeEvent = "event"
	TypeState = "state"
)

// EventMessage carries one detection event to subscribers
type EventMessage struct {
	Type      string         `json:"type"` // "event"
	EntityID  string         `json:"entity_id"`
	Timestamp time.Time      `json:"timestamp"`
	Event     pipeline.Event `json:"event"`
}

// StateMessage carries the state of an entity after a call
type StateMessage struct {
	Type      string         `json:"type"` // "state"
	EntityID  string         `json:"entity_id"`
	Timestamp time.Time      `json:"timestamp"`
	State     pipeline.State `json:"state"`
}

// NewEventMessage wraps a bus event
func NewEventMessage(event pipeline.Event) *EventMessage {
	return &EventMessage{
		Type:      TypeEvent,
		EntityID:  event.EntityID,
		Timestamp: event.Time,
		Event:     event,
	}
}

// NewStateMessage creates a state message stamped with the current time
func NewStateMessage(entityID string, state pipeline.State) *StateMessage {
	return &StateMessage{
		Type:      TypeState,
		EntityID:  entityID,
		Timestamp: time.Now(),
		State:     state,
	}
}
