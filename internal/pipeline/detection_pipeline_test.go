package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hound/internal/detection"
	"hound/internal/geometry"
)

const personResponse = `{
  "image": {"width": 1000, "height": 500},
  "objects": [
    {"type": "face", "boundingBox": {"x": 120, "y": 60, "width": 40, "height": 40},
     "attributes": {"gender": "male", "genderConfidence": 0.95}},
    {"type": "person", "boundingBox": {"x": 100, "y": 50, "width": 200, "height": 100}},
    {"type": "face", "boundingBox": {"x": 420, "y": 60, "width": 30, "height": 30},
     "gender": "female", "age": "34"},
    {"type": "tree", "boundingBox": {"x": 0, "y": 0, "width": 5, "height": 5}},
    {"type": "person", "boundingBox": {"x": 400, "y": 40, "width": 150, "height": 300}}
  ]
}`

const emptyResponse = `{"image": {"width": 1000, "height": 500}, "objects": []}`

const vehicleResponse = `{
  "image": {"width": 1000, "height": 500},
  "objects": [
    {"objectType": "vehicle", "vehicleAnnotation": {
      "bounding": {"vertices": [{"x": 600, "y": 250}, {"x": 100, "y": 50}, {"x": 600, "y": 50}, {"x": 100, "y": 250}]},
      "attributes": {"system": {"make": {"name": "Ford"}, "model": {"name": "Focus"}, "color": {"name": "Blue"}, "vehicleType": "Hatchback"}},
      "licenseplate": {"attributes": {"system": {"string": {"name": "XYZ987"}, "region": {"name": "Texas"}}}}
    }},
    {"objectType": "vehicle", "vehicleAnnotation": {
      "bounding": {"vertices": [{"x": 700, "y": 100}, {"x": 900, "y": 100}, {"x": 900, "y": 300}, {"x": 700, "y": 300}]},
      "attributes": {"system": {"make": {"name": "Kia"}, "vehicleType": "SUV"}}
    }}
  ]
}`

type fakeService struct {
	mu       sync.Mutex
	response string
	err      error
	detects  int
	kinds    []string
}

func (s *fakeService) Detect(ctx context.Context, image []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detects++
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.response), nil
}

func (s *fakeService) Recognize(ctx context.Context, image []byte, kinds string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = append(s.kinds, kinds)
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.response), nil
}

func (s *fakeService) set(response string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.response = response
	s.err = err
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.events))
	for _, e := range r.events {
		names = append(names, e.Name)
	}
	return names
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func testImage(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1000, 500))))
	return buf.Bytes()
}

type harness struct {
	pipeline *DetectionPipeline
	service  *fakeService
	events   *recorder
	clock    *clock.Mock
	dir      string
}

func newHarness(t *testing.T, category Category, mutate func(*Config)) *harness {
	t.Helper()

	mock := clock.NewMock()
	mock.Set(time.Date(2024, 5, 1, 10, 11, 12, 0, time.UTC))

	dir := t.TempDir()
	cfg := Config{
		EntityID:       "image_processing.sighthound_front_door",
		Name:           "sighthound_front_door",
		Category:       category,
		SaveFileFolder: dir,
		Clock:          mock,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	bus := NewEventBus()
	rec := &recorder{}
	bus.Subscribe(rec)
	svc := &fakeService{}

	return &harness{
		pipeline: NewDetectionPipeline(cfg, svc, bus),
		service:  svc,
		events:   rec,
		clock:    mock,
		dir:      dir,
	}
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestProcessImagePeople(t *testing.T) {
	h := newHarness(t, CategoryPerson, nil)
	h.service.set(personResponse, nil)

	h.pipeline.ProcessImage(context.Background(), testImage(t))

	state := h.pipeline.State()
	assert.Equal(t, 2, state.Count)
	assert.Equal(t, 2, state.Faces)
	assert.Equal(t, "2024-05-01_10:11:12", state.LastDetection)
	assert.Equal(t, StageDone, h.pipeline.LastStage())
	assert.Equal(t, 1, h.service.detects)

	assert.Equal(t, []string{
		EventFaceDetected,
		EventFaceDetected,
		EventPersonDetected,
		EventPersonDetected,
		EventFileSaved,
	}, h.events.names())

	person := h.events.events[2]
	assert.Equal(t, "image_processing.sighthound_front_door", person.Data[AttrEntityID])
	assert.Equal(t, geometry.Box{Left: 0.1, Top: 0.1, Right: 0.3, Bottom: 0.3}, person.Data[AttrBoundingBox])

	male := h.events.events[0]
	assert.Equal(t, "male", male.Data[AttrGender])
	assert.Nil(t, male.Data[AttrAge])
	female := h.events.events[1]
	assert.Equal(t, "female", female.Data[AttrGender])
	assert.Equal(t, "34", female.Data[AttrAge])

	saved := h.events.events[4]
	assert.Equal(t, filepath.Join(h.dir, "sighthound_front_door_latest.jpg"), saved.Data[AttrFilePath])
	assert.FileExists(t, filepath.Join(h.dir, "sighthound_front_door_latest.jpg"))
}

func TestProcessImageTimestampedFile(t *testing.T) {
	h := newHarness(t, CategoryPerson, func(c *Config) { c.SaveTimestampedFile = true })
	h.service.set(personResponse, nil)

	h.pipeline.ProcessImage(context.Background(), testImage(t))

	assert.ElementsMatch(t, []string{
		"sighthound_front_door_latest.jpg",
		"sighthound_front_door_2024-05-01_10:11:12.jpg",
	}, dirEntries(t, h.dir))

	names := h.events.names()
	assert.Equal(t, []string{EventFileSaved, EventFileSaved}, names[len(names)-2:])
}

func TestProcessImageServiceError(t *testing.T) {
	h := newHarness(t, CategoryPerson, func(c *Config) { c.AlwaysSaveLatest = true })

	h.service.set(personResponse, nil)
	h.pipeline.ProcessImage(context.Background(), testImage(t))
	require.Equal(t, 2, h.pipeline.State().Count)

	// clear the first call's files and events
	require.NoError(t, os.RemoveAll(h.dir))
	require.NoError(t, os.MkdirAll(h.dir, 0o755))
	h.events.reset()

	h.clock.Add(time.Minute)
	h.service.set("", &detection.ServiceError{StatusCode: 503, Message: "unavailable"})
	h.pipeline.ProcessImage(context.Background(), testImage(t))

	state := h.pipeline.State()
	assert.Equal(t, 0, state.Count)
	assert.Equal(t, 0, state.Faces)
	assert.Equal(t, "2024-05-01_10:11:12", state.LastDetection)
	assert.Equal(t, StageFailed, h.pipeline.LastStage())
	assert.Empty(t, h.events.names())
	assert.Empty(t, dirEntries(t, h.dir))
}

func TestProcessImageLastDetectionSticky(t *testing.T) {
	h := newHarness(t, CategoryPerson, nil)

	h.service.set(personResponse, nil)
	h.pipeline.ProcessImage(context.Background(), testImage(t))
	first := h.pipeline.State().LastDetection

	h.clock.Add(30 * time.Second)
	h.service.set(emptyResponse, nil)
	h.pipeline.ProcessImage(context.Background(), testImage(t))

	state := h.pipeline.State()
	assert.Equal(t, 0, state.Count)
	assert.Equal(t, first, state.LastDetection)

	h.clock.Add(30 * time.Second)
	h.service.set(personResponse, nil)
	h.pipeline.ProcessImage(context.Background(), testImage(t))
	assert.Equal(t, "2024-05-01_10:12:12", h.pipeline.State().LastDetection)
}

func TestProcessImageLastDetectionMonotonic(t *testing.T) {
	h := newHarness(t, CategoryPerson, nil)
	h.service.set(personResponse, nil)

	h.pipeline.ProcessImage(context.Background(), testImage(t))

	// wall clock stepped backwards
	h.clock.Set(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	h.pipeline.ProcessImage(context.Background(), testImage(t))

	assert.Equal(t, "2024-05-01_10:11:12", h.pipeline.State().LastDetection)
}

func TestProcessImageSaveConditions(t *testing.T) {
	t.Run("zero detections without always save", func(t *testing.T) {
		h := newHarness(t, CategoryPerson, nil)
		h.service.set(emptyResponse, nil)

		h.pipeline.ProcessImage(context.Background(), testImage(t))

		assert.Empty(t, dirEntries(t, h.dir))
		assert.Empty(t, h.events.names())
	})

	t.Run("zero detections with always save", func(t *testing.T) {
		h := newHarness(t, CategoryPerson, func(c *Config) {
			c.AlwaysSaveLatest = true
			c.SaveTimestampedFile = true
		})
		h.service.set(emptyResponse, nil)

		h.pipeline.ProcessImage(context.Background(), testImage(t))

		assert.Equal(t, []string{"sighthound_front_door_latest.jpg"}, dirEntries(t, h.dir))
		assert.Equal(t, []string{EventFileSaved}, h.events.names())
	})

	t.Run("no save folder", func(t *testing.T) {
		h := newHarness(t, CategoryPerson, func(c *Config) {
			c.SaveFileFolder = ""
			c.AlwaysSaveLatest = true
		})
		h.service.set(personResponse, nil)

		h.pipeline.ProcessImage(context.Background(), testImage(t))

		assert.Empty(t, dirEntries(t, h.dir))
		assert.NotContains(t, h.events.names(), EventFileSaved)
	})
}

func TestProcessImageMalformedResponse(t *testing.T) {
	h := newHarness(t, CategoryPerson, nil)
	h.service.set(personResponse, nil)
	h.pipeline.ProcessImage(context.Background(), testImage(t))
	h.events.reset()

	for _, raw := range []string{
		`not json`,
		`{"objects": []}`,
		`{"image": {"width": 0, "height": 500}, "objects": [{"type": "person", "boundingBox": {"x": 1, "y": 1, "width": 1, "height": 1}}]}`,
	} {
		h.service.set(raw, nil)
		h.pipeline.ProcessImage(context.Background(), testImage(t))

		state := h.pipeline.State()
		assert.Equal(t, 0, state.Count, raw)
		assert.Equal(t, "2024-05-01_10:11:12", state.LastDetection, raw)
		assert.Equal(t, StageDone, h.pipeline.LastStage(), raw)
	}
	assert.Empty(t, h.events.names())
}

func TestProcessImageUndecodableImage(t *testing.T) {
	h := newHarness(t, CategoryPerson, nil)
	h.service.set(personResponse, nil)

	h.pipeline.ProcessImage(context.Background(), []byte("garbage"))

	assert.Equal(t, 2, h.pipeline.State().Count)
	assert.Equal(t, []string{
		EventFaceDetected,
		EventFaceDetected,
		EventPersonDetected,
		EventPersonDetected,
	}, h.events.names())
	assert.Empty(t, dirEntries(t, h.dir))
	assert.Equal(t, StageDone, h.pipeline.LastStage())
}

func TestProcessImageVehicles(t *testing.T) {
	h := newHarness(t, CategoryVehicle, nil)
	h.service.set(vehicleResponse, nil)

	h.pipeline.ProcessImage(context.Background(), testImage(t))

	assert.Equal(t, []string{RecognizeVehicles}, h.service.kinds)
	assert.Zero(t, h.service.detects)

	state := h.pipeline.State()
	assert.Equal(t, 2, state.Count)
	assert.Equal(t, []string{"XYZ987"}, state.Plates)

	require.Equal(t, []string{EventVehicleDetected, EventVehicleDetected, EventFileSaved}, h.events.names())
	ford := h.events.events[0].Data
	assert.Equal(t, "XYZ987", ford[AttrPlate])
	assert.Equal(t, "Texas", ford[AttrRegion])
	assert.Equal(t, "Ford", ford[AttrMake])
	assert.Equal(t, "Focus", ford[AttrModel])
	assert.Equal(t, "Blue", ford[AttrColor])
	assert.Equal(t, "Hatchback", ford[AttrVehicleType])
	assert.Equal(t, geometry.Box{Left: 0.1, Top: 0.1, Right: 0.6, Bottom: 0.5}, ford[AttrBoundingBox])

	kia := h.events.events[1].Data
	assert.Equal(t, "", kia[AttrPlate])
	assert.Equal(t, "Kia", kia[AttrMake])

	// failed call clears plates
	h.service.set("", &detection.ServiceError{StatusCode: 429, Message: "quota"})
	h.pipeline.ProcessImage(context.Background(), testImage(t))
	assert.Empty(t, h.pipeline.State().Plates)
	assert.Zero(t, h.pipeline.State().Count)
}

func TestProcessImageNotifiesListeners(t *testing.T) {
	h := newHarness(t, CategoryPerson, nil)

	var got []State
	h.pipeline.AddStateListener(StateListenerFunc(func(entityID string, state State) {
		assert.Equal(t, "image_processing.sighthound_front_door", entityID)
		got = append(got, state)
	}))

	h.service.set(personResponse, nil)
	h.pipeline.ProcessImage(context.Background(), testImage(t))
	h.service.set("", &detection.ServiceError{Message: "boom"})
	h.pipeline.ProcessImage(context.Background(), testImage(t))

	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Count)
	assert.Equal(t, 0, got[1].Count)
	assert.Equal(t, got[0].LastDetection, got[1].LastDetection)
}

func TestRestoreLastDetection(t *testing.T) {
	h := newHarness(t, CategoryPerson, nil)

	h.pipeline.RestoreLastDetection("2024-04-30_08:00:00")
	assert.Equal(t, "2024-04-30_08:00:00", h.pipeline.State().LastDetection)

	h.pipeline.RestoreLastDetection("2023-01-01_00:00:00")
	assert.Equal(t, "2024-04-30_08:00:00", h.pipeline.State().LastDetection)

	h.service.set(personResponse, nil)
	h.pipeline.ProcessImage(context.Background(), testImage(t))
	assert.Equal(t, "2024-05-01_10:11:12", h.pipeline.State().LastDetection)
}

func TestNormalizeInvalidDimensions(t *testing.T) {
	parsed, err := detection.Parse([]byte(`{"image": {"width": 100, "height": -1}, "objects": [
		{"type": "person", "boundingBox": {"x": 1, "y": 1, "width": 1, "height": 1}}]}`))
	require.NoError(t, err)

	_, err = Normalize(parsed)
	assert.ErrorIs(t, err, geometry.ErrInvalidDimensions)
}

func TestNormalizeNoObjectsIgnoresDimensions(t *testing.T) {
	parsed, err := detection.Parse([]byte(`{"image": {"width": 0, "height": 0}, "objects": []}`))
	require.NoError(t, err)

	result, err := Normalize(parsed)
	require.NoError(t, err)
	assert.Empty(t, result.People)
}
