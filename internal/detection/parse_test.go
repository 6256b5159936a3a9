package detection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const detectionsResponse = `{
  "image": {"width": 1000, "height": 500, "orientation": 1},
  "objects": [
    {"type": "person", "boundingBox": {"x": 100, "y": 50, "width": 200, "height": 100}},
    {"type": "face", "boundingBox": {"x": 120, "y": 60, "width": 40, "height": 40},
     "attributes": {"gender": "male", "genderConfidence": 0.9558, "frontal": true}},
    {"type": "person", "boundingBox": {"x": 400, "y": 40, "width": 150, "height": 300}},
    {"type": "dog", "boundingBox": {"x": 1, "y": 1, "width": 5, "height": 5}},
    {"type": "face", "boundingBox": {"x": 420, "y": 60, "width": 30, "height": 30},
     "gender": "female", "age": 34},
    {"type": "person", "boundingBox": {"x": 700, "y": 10, "width": 100, "height": 200}},
    {"type": "licenseplate", "boundingBox": {"x": 5, "y": 5, "width": 10, "height": 4}}
  ]
}`

const recognitionResponse = `{
  "image": {"width": 1280, "height": 720, "orientation": 1},
  "requestId": "b4b5e1d7",
  "objects": [
    {
      "objectId": "_vehicle_1",
      "objectType": "vehicle",
      "vehicleAnnotation": {
        "bounding": {"vertices": [{"x": 200, "y": 300}, {"x": 600, "y": 300}, {"x": 600, "y": 560}, {"x": 200, "y": 560}]},
        "recognitionConfidence": 0.87,
        "attributes": {"system": {
          "make": {"name": "Toyota", "confidence": 0.91},
          "model": {"name": "Corolla", "confidence": 0.88},
          "color": {"name": "Silver", "confidence": 0.77},
          "vehicleType": "Sedan"
        }},
        "licenseplate": {
          "bounding": {"vertices": [{"x": 350, "y": 500}, {"x": 450, "y": 500}, {"x": 450, "y": 530}, {"x": 350, "y": 530}]},
          "attributes": {"system": {
            "string": {"name": "7ABC123", "confidence": 0.95},
            "region": {"name": "California", "confidence": 0.8}
          }}
        }
      }
    },
    {"objectId": "_licenseplate_2", "objectType": "licenseplate"}
  ]
}`

func TestParseSplitsByKind(t *testing.T) {
	parsed, err := Parse([]byte(detectionsResponse))
	require.NoError(t, err)

	assert.Len(t, parsed.Faces, 2)
	assert.Len(t, parsed.People, 3)
	assert.Empty(t, parsed.Vehicles)
	assert.Equal(t, ImageMetadata{Width: 1000, Height: 500, Orientation: 1}, parsed.Metadata)

	// parser keeps service order within a kind
	assert.Equal(t, 100.0, parsed.People[0].Box.X)
	assert.Equal(t, 400.0, parsed.People[1].Box.X)
	assert.Equal(t, 700.0, parsed.People[2].Box.X)
}

func TestParseMixedKinds(t *testing.T) {
	raw := `{"image": {"width": 10, "height": 10}, "objects": [
		{"type": "face", "boundingBox": {"x": 0, "y": 0, "width": 1, "height": 1}},
		{"type": "face", "boundingBox": {"x": 0, "y": 0, "width": 1, "height": 1}},
		{"type": "person", "boundingBox": {"x": 0, "y": 0, "width": 1, "height": 1}},
		{"type": "person", "boundingBox": {"x": 0, "y": 0, "width": 1, "height": 1}},
		{"type": "person", "boundingBox": {"x": 0, "y": 0, "width": 1, "height": 1}},
		{"type": "cat", "boundingBox": {"x": 0, "y": 0, "width": 1, "height": 1}},
		{"objectType": "vehicle", "vehicleAnnotation": {"bounding": {"vertices": [{"x": 1, "y": 1}, {"x": 2, "y": 2}]}}}
	]}`

	parsed, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Len(t, parsed.Faces, 2)
	assert.Len(t, parsed.People, 3)
	assert.Len(t, parsed.Vehicles, 1)
}

func TestParseFaceShapes(t *testing.T) {
	parsed, err := Parse([]byte(detectionsResponse))
	require.NoError(t, err)

	nested := parsed.Faces[0]
	require.NotNil(t, nested.Gender)
	assert.Equal(t, "male", *nested.Gender)
	require.NotNil(t, nested.GenderConfidence)
	assert.InDelta(t, 0.9558, *nested.GenderConfidence, 1e-9)
	assert.Nil(t, nested.Age)
	assert.Equal(t, "male_unknown", nested.Label())

	flat := parsed.Faces[1]
	require.NotNil(t, flat.Gender)
	assert.Equal(t, "female", *flat.Gender)
	require.NotNil(t, flat.Age)
	assert.Equal(t, "34", *flat.Age)
	assert.Nil(t, flat.GenderConfidence)
	assert.Equal(t, "female_34", flat.Label())
}

func TestParseFaceWithoutAttributes(t *testing.T) {
	raw := `{"image": {"width": 10, "height": 10}, "objects": [
		{"type": "face", "boundingBox": {"x": 0, "y": 0, "width": 1, "height": 1}, "attributes": {"age": "adult"}}
	]}`

	parsed, err := Parse([]byte(raw))
	require.NoError(t, err)
	require.Len(t, parsed.Faces, 1)

	face := parsed.Faces[0]
	assert.Nil(t, face.Gender)
	require.NotNil(t, face.Age)
	assert.Equal(t, "adult", *face.Age)
}

func TestParseFaceIgnoresMistypedAttributes(t *testing.T) {
	raw := `{"image": {"width": 10, "height": 10}, "objects": [
		{"type": "person", "boundingBox": {"x": 0, "y": 0, "width": 5, "height": 5}},
		{"type": "face", "boundingBox": {"x": 0, "y": 0, "width": 1, "height": 1},
		 "gender": 1, "genderConfidence": "high", "age": 31, "ageConfidence": null},
		{"type": "face", "boundingBox": {"x": 2, "y": 2, "width": 1, "height": 1},
		 "attributes": "none"},
		{"type": "face", "boundingBox": {"x": 4, "y": 4, "width": 1, "height": 1},
		 "attributes": {"gender": ["female"], "age": {"min": 20}, "ageConfidence": 0.4}}
	]}`

	parsed, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Len(t, parsed.People, 1)
	require.Len(t, parsed.Faces, 3)

	first := parsed.Faces[0]
	assert.Nil(t, first.Gender)
	assert.Nil(t, first.GenderConfidence)
	assert.Nil(t, first.AgeConfidence)
	require.NotNil(t, first.Age)
	assert.Equal(t, "31", *first.Age)
	assert.Equal(t, "unknown_31", first.Label())

	assert.Nil(t, parsed.Faces[1].Gender)
	assert.Nil(t, parsed.Faces[1].Age)

	third := parsed.Faces[2]
	assert.Nil(t, third.Gender)
	assert.Nil(t, third.Age)
	require.NotNil(t, third.AgeConfidence)
	assert.InDelta(t, 0.4, *third.AgeConfidence, 1e-9)
}

func TestParseVehicle(t *testing.T) {
	parsed, err := Parse([]byte(recognitionResponse))
	require.NoError(t, err)
	require.Len(t, parsed.Vehicles, 1)

	v := parsed.Vehicles[0]
	assert.Equal(t, "7ABC123", v.Plate)
	assert.Equal(t, "California", v.Region)
	assert.Equal(t, "Toyota", v.Make)
	assert.Equal(t, "Corolla", v.Model)
	assert.Equal(t, "Silver", v.Color)
	assert.Equal(t, "Sedan", v.VehicleType)
	assert.InDelta(t, 0.87, v.Confidence, 1e-9)
	assert.Len(t, v.Box, 4)
	assert.Equal(t, 1280, parsed.Metadata.Width)
}

func TestParseVehicleWithoutPlate(t *testing.T) {
	raw := `{"image": {"width": 10, "height": 10}, "objects": [
		{"objectType": "vehicle", "vehicleAnnotation": {"bounding": {"vertices": [{"x": 1, "y": 1}, {"x": 5, "y": 5}]},
		 "attributes": {"system": {"vehicleType": "Truck"}}}}
	]}`

	parsed, err := Parse([]byte(raw))
	require.NoError(t, err)
	require.Len(t, parsed.Vehicles, 1)
	assert.Empty(t, parsed.Vehicles[0].Plate)
	assert.Equal(t, "Truck", parsed.Vehicles[0].VehicleType)
}

func TestParseMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":        `<html>502</html>`,
		"missing objects": `{"image": {"width": 10, "height": 10}}`,
		"missing image":   `{"objects": []}`,
		"null objects":    `{"image": {"width": 10, "height": 10}, "objects": null}`,
		"person no box":   `{"image": {"width": 10, "height": 10}, "objects": [{"type": "person"}]}`,
		"vehicle no box":  `{"image": {"width": 10, "height": 10}, "objects": [{"objectType": "vehicle"}]}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			assert.ErrorIs(t, err, ErrMalformedResponse)
		})
	}
}

func TestParseEmptyObjects(t *testing.T) {
	parsed, err := Parse([]byte(`{"image": {"width": 0, "height": 0}, "objects": []}`))
	require.NoError(t, err)
	assert.Empty(t, parsed.Faces)
	assert.Empty(t, parsed.People)
	assert.Empty(t, parsed.Vehicles)
}
