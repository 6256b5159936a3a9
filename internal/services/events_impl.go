package services

import (
	"context"
	"fmt"

	"hound/internal/database"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
)

// EventsImplementation implements the event journal service
type EventsImplementation struct {
	db *database.Database
}

// NewEventsService creates a new events service implementation.
// db may be nil when the journal is disabled.
func NewEventsService(db *database.Database) *EventsImplementation {
	return &EventsImplementation{db: db}
}

// List returns journaled events newest first
func (s *EventsImplementation) List(ctx context.Context, entityID string, limit int) ([]*EventInfo, error) {
	if s.db == nil {
		return nil, &UnavailableError{Message: "event journal is disabled"}
	}
	if limit < 0 || limit > maxEventLimit {
		return nil, &BadRequestError{Message: fmt.Sprintf("limit must be between 0 and %d", maxEventLimit)}
	}
	if limit == 0 {
		limit = defaultEventLimit
	}

	records, err := s.db.ListEvents(entityID, nil, limit)
	if err != nil {
		return nil, err
	}

	result := make([]*EventInfo, len(records))
	for i, r := range records {
		result[i] = &EventInfo{
			ID:        r.ID,
			EntityID:  r.EntityID,
			EventType: r.EventType,
			TimeFired: r.Timestamp,
			Data:      r.Data,
		}
	}
	return result, nil
}
