package pipeline

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event names
const (
	EventPersonDetected  = "image_processing.person_detected"
	EventFaceDetected    = "image_processing.face_detected"
	EventVehicleDetected = "image_processing.vehicle_detected"
	EventFileSaved       = "image_processing.file_saved"
)

// Event payload keys
const (
	AttrEntityID    = "entity_id"
	AttrBoundingBox = "bounding_box"
	AttrAge         = "age"
	AttrGender      = "gender"
	AttrPlate       = "plate"
	AttrVehicleType = "vehicle_type"
	AttrMake        = "make"
	AttrModel       = "model"
	AttrColor       = "color"
	AttrRegion      = "region"
	AttrFilePath    = "file_path"
)

// Event is a discrete detection event fired by a pipeline
type Event struct {
	ID       string         `json:"id"`
	Name     string         `json:"event_type"`
	EntityID string         `json:"entity_id"`
	Time     time.Time      `json:"time_fired"`
	Data     map[string]any `json:"data"`
}

// NewEvent creates an event with a fresh ID; entity_id is always part of Data
func NewEvent(name, entityID string, at time.Time, data map[string]any) Event {
	if data == nil {
		data = make(map[string]any)
	}
	data[AttrEntityID] = entityID
	return Event{
		ID:       uuid.New().String(),
		Name:     name,
		EntityID: entityID,
		Time:     at,
		Data:     data,
	}
}

// ShortName strips the "image_processing." domain, e.g. "person_detected"
func (e Event) ShortName() string {
	return e.Name[strings.LastIndex(e.Name, ".")+1:]
}

func personEvent(entityID string, at time.Time, p PersonResult) Event {
	return NewEvent(EventPersonDetected, entityID, at, map[string]any{
		AttrBoundingBox: p.Box,
	})
}

func faceEvent(entityID string, at time.Time, f FaceResult) Event {
	return NewEvent(EventFaceDetected, entityID, at, map[string]any{
		AttrBoundingBox: f.Box,
		AttrAge:         optional(f.Age),
		AttrGender:      optional(f.Gender),
	})
}

func vehicleEvent(entityID string, at time.Time, v VehicleResult) Event {
	return NewEvent(EventVehicleDetected, entityID, at, map[string]any{
		AttrPlate:       v.Plate,
		AttrVehicleType: v.VehicleType,
		AttrMake:        v.Make,
		AttrModel:       v.Model,
		AttrColor:       v.Color,
		AttrRegion:      v.Region,
		AttrBoundingBox: v.Box,
	})
}

func fileSavedEvent(entityID string, at time.Time, path string) Event {
	return NewEvent(EventFileSaved, entityID, at, map[string]any{
		AttrFilePath: path,
	})
}

// optional keeps missing face attributes as JSON null
func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
