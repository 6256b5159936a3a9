package detection

import (
	"hound/internal/geometry"
)

// Object kinds reported by the detection service
const (
	KindFace         = "face"
	KindPerson       = "person"
	KindVehicle      = "vehicle"
	KindLicensePlate = "licenseplate"
)

// ImageMetadata describes the submitted image as the service interpreted it
type ImageMetadata struct {
	Width       int `json:"width"`
	Height      int `json:"height"`
	Orientation int `json:"orientation,omitempty"`
}

// Face is a detected face. The service has returned gender and age in
// different shapes over time, so every attribute is optional.
type Face struct {
	Box              geometry.Rect `json:"bounding_box"`
	Gender           *string       `json:"gender,omitempty"`
	GenderConfidence *float64      `json:"gender_confidence,omitempty"`
	Age              *string       `json:"age,omitempty"`
	AgeConfidence    *float64      `json:"age_confidence,omitempty"`
}

// Person is a detected person
type Person struct {
	Box geometry.Rect `json:"bounding_box"`
}

// Vehicle is a recognized vehicle with its license plate lifted to the top level
type Vehicle struct {
	Box         geometry.Polygon `json:"bounding_box"`
	VehicleType string           `json:"vehicle_type"`
	Make        string           `json:"make"`
	Model       string           `json:"model"`
	Color       string           `json:"color"`
	Region      string           `json:"region"`
	Plate       string           `json:"plate"`
	Confidence  float64          `json:"confidence"`
}

// Parsed is the typed split of one detection service response
type Parsed struct {
	Faces    []Face
	People   []Person
	Vehicles []Vehicle
	Metadata ImageMetadata
}

// Label returns the "{gender}_{age}" text drawn next to a face, or an empty
// string when the service reported neither
func (f Face) Label() string {
	if f.Gender == nil && f.Age == nil {
		return ""
	}
	return deref(f.Gender) + "_" + deref(f.Age)
}

func deref(s *string) string {
	if s == nil {
		return "unknown"
	}
	return *s
}
