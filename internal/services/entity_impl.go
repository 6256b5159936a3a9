package services

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"hound/internal/camera"
	"hound/internal/entity"
	"hound/internal/pipeline"
)

// callEventBuffer bounds the events collected for one scan or upload
const callEventBuffer = 256

// EntityImplementation implements the entity service
type EntityImplementation struct {
	registry *entity.Registry
	bus      *pipeline.EventBus
}

// NewEntityService creates a new entity service implementation. Scan and
// Process report the events the entity fired while they ran when bus is set.
func NewEntityService(registry *entity.Registry, bus *pipeline.EventBus) *EntityImplementation {
	return &EntityImplementation{registry: registry, bus: bus}
}

// List returns all entities in registration order
func (s *EntityImplementation) List(ctx context.Context) ([]*EntityInfo, error) {
	entities := s.registry.All()
	result := make([]*EntityInfo, len(entities))
	for i, e := range entities {
		result[i] = entityInfo(e)
	}
	return result, nil
}

// Get returns one entity
func (s *EntityImplementation) Get(ctx context.Context, id string) (*EntityInfo, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return entityInfo(e), nil
}

// Scan fetches a snapshot from the entity's camera and processes it
func (s *EntityImplementation) Scan(ctx context.Context, id string) (*EntityInfo, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	var scanErr error
	events := s.collect(e.EntityID(), func() {
		scanErr = e.Scan(ctx)
	})
	if scanErr != nil {
		log.Warnf("[Entity] Scan of %s failed: %v", id, scanErr)
		if errors.Is(scanErr, camera.ErrNoSource) {
			return nil, &BadRequestError{Message: scanErr.Error()}
		}
		return nil, &UnavailableError{Message: scanErr.Error()}
	}

	info := entityInfo(e)
	info.Events = events
	return info, nil
}

// Process runs an uploaded image through the entity's pipeline
func (s *EntityImplementation) Process(ctx context.Context, id string, image []byte) (*EntityInfo, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if len(image) == 0 {
		return nil, &BadRequestError{Message: "image body is empty"}
	}

	events := s.collect(e.EntityID(), func() {
		e.ProcessImage(ctx, image)
	})

	info := entityInfo(e)
	info.Events = events
	return info, nil
}

// collect runs fn and returns the events entityID fired meanwhile
func (s *EntityImplementation) collect(entityID string, fn func()) []pipeline.Event {
	if s.bus == nil {
		fn()
		return nil
	}

	ch, unsubscribe := s.bus.SubscribeChannel(entityID, callEventBuffer)
	fn()
	unsubscribe()

	var events []pipeline.Event
	for event := range ch {
		events = append(events, event)
	}
	return events
}

func (s *EntityImplementation) lookup(id string) (*entity.DetectionEntity, error) {
	e, err := s.registry.Get(id)
	if err != nil {
		return nil, &NotFoundError{Message: "Entity not found", ID: id}
	}
	return e, nil
}
