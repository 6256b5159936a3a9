package pipeline

import (
	"hound/internal/geometry"
)

// TimestampLayout formats last_detection values and timestamped file names
const TimestampLayout = "2006-01-02_15:04:05"

// Category is the primary kind of object an entity counts
type Category string

const (
	CategoryPerson  Category = "person"
	CategoryVehicle Category = "vehicle"
)

// RecognizeVehicles is the object kind list sent for vehicle entities
const RecognizeVehicles = "vehicle,licenseplate"

// Stage tracks the progress of a single ProcessImage call
type Stage int

const (
	StageIdle Stage = iota
	StageSubmitted
	StageParsed
	StageAnnotating
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageSubmitted:
		return "submitted"
	case StageParsed:
		return "parsed"
	case StageAnnotating:
		return "annotating"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is the derived detection state for one camera and category
type State struct {
	Count         int      `json:"count"`
	Faces         int      `json:"faces"`            // person category only
	Plates        []string `json:"plates,omitempty"` // vehicle category only
	LastDetection string   `json:"last_detection,omitempty"`
}

// FaceResult is a face with its box in fractional coordinates
type FaceResult struct {
	Box              geometry.Box
	Gender           *string
	GenderConfidence *float64
	Age              *string
	Label            string
}

// PersonResult is a person with its box in fractional coordinates
type PersonResult struct {
	Box geometry.Box
}

// VehicleResult is a vehicle with its box in fractional coordinates
type VehicleResult struct {
	Box         geometry.Box
	Plate       string
	VehicleType string
	Make        string
	Model       string
	Color       string
	Region      string
}

// Result holds the normalized detections of one call
type Result struct {
	Faces    []FaceResult
	People   []PersonResult
	Vehicles []VehicleResult
}

// StateListener is notified after every ProcessImage call, failed or not
type StateListener interface {
	OnStateChanged(entityID string, state State)
}

// StateListenerFunc adapts a function to StateListener
type StateListenerFunc func(entityID string, state State)

func (f StateListenerFunc) OnStateChanged(entityID string, state State) {
	f(entityID, state)
}
