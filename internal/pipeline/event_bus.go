package pipeline

import (
	"sync"
)

// EventHandler receives events from the bus
type EventHandler interface {
	OnEvent(event Event)
}

// EventHandlerFunc adapts a function to EventHandler
type EventHandlerFunc func(event Event)

func (f EventHandlerFunc) OnEvent(event Event) {
	f(event)
}

// EventBus provides pub/sub for detection events
type EventBus struct {
	subscribers map[*eventSubscription]bool
	mu          sync.RWMutex
}

type eventSubscription struct {
	entityFilter string // Empty string means receive all entities
	channel      chan Event
	handler      EventHandler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[*eventSubscription]bool),
	}
}

// Subscribe registers a handler for events from all entities.
// Returns an unsubscribe function.
func (b *EventBus) Subscribe(handler EventHandler) func() {
	return b.add(&eventSubscription{handler: handler})
}

// SubscribeEntity registers a handler for events from a single entity
func (b *EventBus) SubscribeEntity(entityID string, handler EventHandler) func() {
	return b.add(&eventSubscription{entityFilter: entityID, handler: handler})
}

// SubscribeChannel returns a buffered channel receiving events from all
// entities (or one entity when entityID is set) and an unsubscribe function
// that closes it
func (b *EventBus) SubscribeChannel(entityID string, bufferSize int) (<-chan Event, func()) {
	if bufferSize <= 0 {
		bufferSize = 10
	}

	ch := make(chan Event, bufferSize)
	sub := &eventSubscription{
		entityFilter: entityID,
		channel:      ch,
	}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[sub]; ok {
			delete(b.subscribers, sub)
			close(ch)
		}
		b.mu.Unlock()
	}

	return ch, unsubscribe
}

func (b *EventBus) add(sub *eventSubscription) func() {
	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, sub)
		b.mu.Unlock()
	}
}

// Publish sends an event to all matching subscribers.
// Handlers run synchronously so events keep the order they were fired in.
// Channel subscribers that are full miss the event.
func (b *EventBus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		if sub.entityFilter != "" && sub.entityFilter != event.EntityID {
			continue
		}

		if sub.handler != nil {
			sub.handler.OnEvent(event)
		} else if sub.channel != nil {
			select {
			case sub.channel <- event:
			default:
			}
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close unsubscribes all subscribers and closes channels
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		if sub.channel != nil {
			close(sub.channel)
		}
		delete(b.subscribers, sub)
	}
}
