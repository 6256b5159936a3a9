package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"

	"hound/internal/annotate"
	"hound/internal/detection"
	"hound/internal/geometry"
)

// Config holds per-entity pipeline configuration
type Config struct {
	EntityID            string
	Name                string // base name for saved files
	Category            Category
	SaveFileFolder      string // empty disables saving
	SaveTimestampedFile bool
	AlwaysSaveLatest    bool
	Clock               clock.Clock
}

// DetectionPipeline runs one image at a time through the detection service
// for a single camera and category. Calling ProcessImage concurrently on the
// same pipeline is undefined: the last writer wins on State.
type DetectionPipeline struct {
	config    Config
	service   detection.Service
	eventBus  *EventBus
	clock     clock.Clock
	listeners []StateListener

	mu    sync.RWMutex
	state State
	stage Stage
}

// NewDetectionPipeline creates a pipeline publishing to eventBus
func NewDetectionPipeline(config Config, service detection.Service, eventBus *EventBus) *DetectionPipeline {
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}
	if config.Category == "" {
		config.Category = CategoryPerson
	}

	return &DetectionPipeline{
		config:   config,
		service:  service,
		eventBus: eventBus,
		clock:    clk,
		stage:    StageIdle,
	}
}

// AddStateListener registers a listener called after every ProcessImage
func (p *DetectionPipeline) AddStateListener(l StateListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// Config returns the pipeline configuration
func (p *DetectionPipeline) Config() Config {
	return p.config
}

// State returns a copy of the current state
func (p *DetectionPipeline) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := p.state
	if p.state.Plates != nil {
		s.Plates = append([]string(nil), p.state.Plates...)
	}
	return s
}

// LastStage returns the stage the most recent call ended in
func (p *DetectionPipeline) LastStage() Stage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stage
}

// RestoreLastDetection seeds last_detection, e.g. from a journal on startup.
// It never moves the value backwards.
func (p *DetectionPipeline) RestoreLastDetection(ts string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ts > p.state.LastDetection {
		p.state.LastDetection = ts
	}
}

// ProcessImage submits an image, updates state, fires events and saves
// annotated snapshots. Every error is contained here; the outcome is
// observed through State, events and files.
func (p *DetectionPipeline) ProcessImage(ctx context.Context, image []byte) {
	p.setStage(StageSubmitted)

	raw, err := p.submit(ctx, image)
	if err != nil {
		log.Errorf("[Pipeline] Detection failed for %s: %v", p.config.EntityID, err)
		p.reset()
		p.setStage(StageFailed)
		p.notify()
		return
	}

	result, err := p.normalize(raw)
	if err != nil {
		// malformed payloads count as zero detections for this call
		log.Errorf("[Pipeline] Discarding response for %s: %v", p.config.EntityID, err)
		result = &Result{}
	}
	p.setStage(StageParsed)

	count, lastDetection := p.update(result)
	log.Infof("[Pipeline] %s: %d %s(s) detected", p.config.EntityID, count, p.config.Category)

	for _, event := range p.events(result) {
		p.publish(event)
	}

	if p.config.SaveFileFolder != "" && (count > 0 || p.config.AlwaysSaveLatest) {
		p.setStage(StageAnnotating)
		timestamp := ""
		if count > 0 {
			timestamp = lastDetection
		}
		p.save(image, result, timestamp)
	}

	p.setStage(StageDone)
	p.notify()
}

// submit calls the detection service for this pipeline's category
func (p *DetectionPipeline) submit(ctx context.Context, image []byte) ([]byte, error) {
	if p.config.Category == CategoryVehicle {
		return p.service.Recognize(ctx, image, RecognizeVehicles)
	}
	return p.service.Detect(ctx, image)
}

// normalize parses a raw response and converts every box to fractions
func (p *DetectionPipeline) normalize(raw []byte) (*Result, error) {
	parsed, err := detection.Parse(raw)
	if err != nil {
		return nil, err
	}
	return Normalize(parsed)
}

// Normalize converts the native boxes of a parsed response into fractional
// boxes. Any invalid box fails the whole response.
func Normalize(parsed *detection.Parsed) (*Result, error) {
	w, h := parsed.Metadata.Width, parsed.Metadata.Height
	result := &Result{
		Faces:    make([]FaceResult, 0, len(parsed.Faces)),
		People:   make([]PersonResult, 0, len(parsed.People)),
		Vehicles: make([]VehicleResult, 0, len(parsed.Vehicles)),
	}

	for _, f := range parsed.Faces {
		box, err := geometry.RectToFraction(f.Box, w, h)
		if err != nil {
			return nil, fmt.Errorf("face box: %w", err)
		}
		result.Faces = append(result.Faces, FaceResult{
			Box:              box,
			Gender:           f.Gender,
			GenderConfidence: f.GenderConfidence,
			Age:              f.Age,
			Label:            f.Label(),
		})
	}

	for _, person := range parsed.People {
		box, err := geometry.RectToFraction(person.Box, w, h)
		if err != nil {
			return nil, fmt.Errorf("person box: %w", err)
		}
		result.People = append(result.People, PersonResult{Box: box})
	}

	for _, v := range parsed.Vehicles {
		box, err := geometry.VerticesToFraction(v.Box, w, h)
		if err != nil {
			return nil, fmt.Errorf("vehicle box: %w", err)
		}
		result.Vehicles = append(result.Vehicles, VehicleResult{
			Box:         box,
			Plate:       v.Plate,
			VehicleType: v.VehicleType,
			Make:        v.Make,
			Model:       v.Model,
			Color:       v.Color,
			Region:      v.Region,
		})
	}

	return result, nil
}

// update derives the new state and returns the count and last_detection
func (p *DetectionPipeline) update(result *Result) (int, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.config.Category {
	case CategoryVehicle:
		p.state.Count = len(result.Vehicles)
		plates := make([]string, 0, len(result.Vehicles))
		for _, v := range result.Vehicles {
			if v.Plate != "" {
				plates = append(plates, v.Plate)
			}
		}
		p.state.Plates = plates
	default:
		p.state.Count = len(result.People)
		p.state.Faces = len(result.Faces)
	}

	if p.state.Count > 0 {
		// fixed-width layout, so string order is time order
		ts := p.clock.Now().Format(TimestampLayout)
		if ts > p.state.LastDetection {
			p.state.LastDetection = ts
		}
	}

	return p.state.Count, p.state.LastDetection
}

// reset drops detections after a failed call; last_detection is kept
func (p *DetectionPipeline) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.Count = 0
	p.state.Faces = 0
	if p.config.Category == CategoryVehicle {
		p.state.Plates = []string{}
	} else {
		p.state.Plates = nil
	}
}

// events builds detection events in parser order
func (p *DetectionPipeline) events(result *Result) []Event {
	now := p.clock.Now()
	id := p.config.EntityID
	events := make([]Event, 0, len(result.Faces)+len(result.People)+len(result.Vehicles))

	switch p.config.Category {
	case CategoryVehicle:
		for _, v := range result.Vehicles {
			events = append(events, vehicleEvent(id, now, v))
		}
	default:
		for _, f := range result.Faces {
			events = append(events, faceEvent(id, now, f))
		}
		for _, person := range result.People {
			events = append(events, personEvent(id, now, person))
		}
	}
	return events
}

// save renders the detections and fires file_saved for each written file
func (p *DetectionPipeline) save(image []byte, result *Result, timestamp string) {
	var objects []annotate.Object
	switch p.config.Category {
	case CategoryVehicle:
		for _, v := range result.Vehicles {
			objects = append(objects, annotate.Object{Box: v.Box, Label: v.Plate})
		}
	default:
		for _, person := range result.People {
			objects = append(objects, annotate.Object{Box: person.Box})
		}
		for _, f := range result.Faces {
			objects = append(objects, annotate.Object{Box: f.Box, Label: f.Label})
		}
	}

	paths, err := annotate.RenderAndSave(image, objects, p.config.SaveFileFolder, p.config.Name,
		timestamp, p.config.SaveTimestampedFile)
	if err != nil {
		if errors.Is(err, annotate.ErrUndecodableImage) {
			log.Warnf("[Pipeline] Skipping snapshot for %s: %v", p.config.EntityID, err)
		} else {
			log.Errorf("[Pipeline] Failed to save snapshot for %s: %v", p.config.EntityID, err)
		}
	}

	for _, path := range paths {
		log.Infof("[Pipeline] Saved %s", path)
		p.publish(fileSavedEvent(p.config.EntityID, p.clock.Now(), path))
	}
}

func (p *DetectionPipeline) publish(event Event) {
	if p.eventBus != nil {
		p.eventBus.Publish(event)
	}
}

func (p *DetectionPipeline) setStage(stage Stage) {
	p.mu.Lock()
	p.stage = stage
	p.mu.Unlock()
	log.Debugf("[Pipeline] %s -> %s", p.config.EntityID, stage)
}

func (p *DetectionPipeline) notify() {
	p.mu.RLock()
	listeners := append([]StateListener(nil), p.listeners...)
	p.mu.RUnlock()

	state := p.State()
	for _, l := range listeners {
		l.OnStateChanged(p.config.EntityID, state)
	}
}
