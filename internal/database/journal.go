package database

import (
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"

	"hound/internal/pipeline"
)

// Journal records bus events and entity state changes.
// It implements pipeline.EventHandler and pipeline.StateListener.
type Journal struct {
	db    *Database
	clock clock.Clock
}

// NewJournal creates a journal writing to db
func NewJournal(db *Database, clk clock.Clock) *Journal {
	if clk == nil {
		clk = clock.New()
	}
	return &Journal{db: db, clock: clk}
}

// OnEvent stores one event; failures are logged
func (j *Journal) OnEvent(event pipeline.Event) {
	record := &EventRecord{
		ID:        event.ID,
		EntityID:  event.EntityID,
		EventType: event.Name,
		Timestamp: event.Time,
		Data:      event.Data,
	}
	if err := j.db.SaveEvent(record); err != nil {
		log.Errorf("[Journal] %v", err)
	}
}

// OnStateChanged stores the latest state of an entity
func (j *Journal) OnStateChanged(entityID string, state pipeline.State) {
	record := &EntityStateRecord{
		EntityID:      entityID,
		Count:         state.Count,
		Faces:         state.Faces,
		Plates:        state.Plates,
		LastDetection: state.LastDetection,
		UpdatedAt:     j.clock.Now(),
	}
	if err := j.db.SaveEntityState(record); err != nil {
		log.Errorf("[Journal] %v", err)
	}
}

// LastDetection returns the stored last_detection of an entity, "" if unknown
func (j *Journal) LastDetection(entityID string) string {
	state, err := j.db.GetEntityState(entityID)
	if err != nil {
		log.Warnf("[Journal] %v", err)
		return ""
	}
	if state == nil {
		return ""
	}
	return state.LastDetection
}

// Prune removes events older than retention
func (j *Journal) Prune(retention time.Duration) {
	n, err := j.db.DeleteOldEvents(j.clock.Now().Add(-retention))
	if err != nil {
		log.Errorf("[Journal] %v", err)
		return
	}
	if n > 0 {
		log.Infof("[Journal] Pruned %d events", n)
	}
}

var (
	_ pipeline.EventHandler  = (*Journal)(nil)
	_ pipeline.StateListener = (*Journal)(nil)
)
