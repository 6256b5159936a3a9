package detection

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"hound/internal/geometry"
)

var ErrMalformedResponse = errors.New("malformed detection response")

// rawResponse covers both the detections and the recognition endpoint.
// Pointers distinguish a missing key from an empty value.
type rawResponse struct {
	Image   *ImageMetadata `json:"image"`
	Objects *[]rawObject   `json:"objects"`
}

type rawObject struct {
	Type       string `json:"type"`
	ObjectType string `json:"objectType"`

	// detections endpoint
	BoundingBox *geometry.Rect  `json:"boundingBox"`
	Attributes  json.RawMessage `json:"attributes"`

	// flattened face shape
	Gender           optString  `json:"gender"`
	GenderConfidence optFloat   `json:"genderConfidence"`
	Age              flexString `json:"age"`
	AgeConfidence    optFloat   `json:"ageConfidence"`

	// recognition endpoint
	VehicleAnnotation *rawVehicleAnnotation `json:"vehicleAnnotation"`
}

type rawFaceAttribs struct {
	Gender           optString  `json:"gender"`
	GenderConfidence optFloat   `json:"genderConfidence"`
	Age              flexString `json:"age"`
	AgeConfidence    optFloat   `json:"ageConfidence"`
}

type rawNamed struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type rawBounding struct {
	Vertices geometry.Polygon `json:"vertices"`
}

type rawVehicleAnnotation struct {
	Bounding              *rawBounding `json:"bounding"`
	RecognitionConfidence float64      `json:"recognitionConfidence"`
	Attributes            struct {
		System struct {
			Make        rawNamed `json:"make"`
			Model       rawNamed `json:"model"`
			Color       rawNamed `json:"color"`
			VehicleType string   `json:"vehicleType"`
		} `json:"system"`
	} `json:"attributes"`
	Licenseplate *struct {
		Attributes struct {
			System struct {
				String rawNamed `json:"string"`
				Region rawNamed `json:"region"`
			} `json:"system"`
		} `json:"attributes"`
	} `json:"licenseplate"`
}

// Optional face attributes never fail the response: a value of the wrong
// JSON type is left unset.

// flexString accepts a JSON string or number
type flexString struct {
	Value *string
}

func (f *flexString) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		f.Value = &s
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		s = n.String()
		f.Value = &s
	}
	return nil
}

type optString struct {
	Value *string
}

func (o *optString) UnmarshalJSON(data []byte) error {
	var s string
	if !isNull(data) && json.Unmarshal(data, &s) == nil {
		o.Value = &s
	}
	return nil
}

type optFloat struct {
	Value *float64
}

func (o *optFloat) UnmarshalJSON(data []byte) error {
	var v float64
	if !isNull(data) && json.Unmarshal(data, &v) == nil {
		o.Value = &v
	}
	return nil
}

func isNull(data []byte) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}

// Parse splits a raw detection service response into faces, people and
// vehicles. Objects of unknown kinds are skipped.
func Parse(raw []byte) (*Parsed, error) {
	var resp rawResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if resp.Objects == nil {
		return nil, fmt.Errorf("%w: missing objects", ErrMalformedResponse)
	}
	if resp.Image == nil {
		return nil, fmt.Errorf("%w: missing image metadata", ErrMalformedResponse)
	}

	parsed := &Parsed{
		Faces:    make([]Face, 0),
		People:   make([]Person, 0),
		Vehicles: make([]Vehicle, 0),
		Metadata: *resp.Image,
	}

	for i, obj := range *resp.Objects {
		kind := obj.Type
		if kind == "" {
			kind = obj.ObjectType
		}

		switch kind {
		case KindFace:
			if obj.BoundingBox == nil {
				return nil, fmt.Errorf("%w: face %d has no boundingBox", ErrMalformedResponse, i)
			}
			parsed.Faces = append(parsed.Faces, parseFace(obj))

		case KindPerson:
			if obj.BoundingBox == nil {
				return nil, fmt.Errorf("%w: person %d has no boundingBox", ErrMalformedResponse, i)
			}
			parsed.People = append(parsed.People, Person{Box: *obj.BoundingBox})

		case KindVehicle:
			v := obj.VehicleAnnotation
			if v == nil || v.Bounding == nil || len(v.Bounding.Vertices) == 0 {
				return nil, fmt.Errorf("%w: vehicle %d has no bounding vertices", ErrMalformedResponse, i)
			}
			parsed.Vehicles = append(parsed.Vehicles, parseVehicle(v))
		}
	}

	return parsed, nil
}

func parseFace(obj rawObject) Face {
	face := Face{
		Box:              *obj.BoundingBox,
		Gender:           obj.Gender.Value,
		GenderConfidence: obj.GenderConfidence.Value,
		Age:              obj.Age.Value,
		AgeConfidence:    obj.AgeConfidence.Value,
	}

	// nested attributes win over the flattened shape; a non-object is ignored
	var a rawFaceAttribs
	if len(obj.Attributes) == 0 || json.Unmarshal(obj.Attributes, &a) != nil {
		return face
	}
	if a.Gender.Value != nil {
		face.Gender = a.Gender.Value
	}
	if a.GenderConfidence.Value != nil {
		face.GenderConfidence = a.GenderConfidence.Value
	}
	if a.Age.Value != nil {
		face.Age = a.Age.Value
	}
	if a.AgeConfidence.Value != nil {
		face.AgeConfidence = a.AgeConfidence.Value
	}
	return face
}

func parseVehicle(v *rawVehicleAnnotation) Vehicle {
	sys := v.Attributes.System
	vehicle := Vehicle{
		Box:         v.Bounding.Vertices,
		VehicleType: sys.VehicleType,
		Make:        sys.Make.Name,
		Model:       sys.Model.Name,
		Color:       sys.Color.Name,
		Confidence:  v.RecognitionConfidence,
	}
	if lp := v.Licenseplate; lp != nil {
		vehicle.Plate = lp.Attributes.System.String.Name
		vehicle.Region = lp.Attributes.System.Region.Name
	}
	return vehicle
}
