package entity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/benbjohnson/clock"

	"hound/internal/camera"
	"hound/internal/detection"
	"hound/internal/pipeline"
)

// Domain prefixes every entity id
const Domain = "image_processing"

// Attribute keys
const (
	AttrFaces         = "faces"
	AttrPlates        = "plates"
	AttrLastDetection = "last_detection"
	AttrAccountType   = "account_type"
)

// Entity is the host-visible view of one camera's detection state
type Entity interface {
	EntityID() string
	Name() string
	CameraEntity() string
	Category() pipeline.Category
	State() int
	Attributes() map[string]any
	UnitOfMeasurement() string
	ProcessImage(ctx context.Context, image []byte)
	Scan(ctx context.Context) error
}

// Config describes one configured source
type Config struct {
	CameraEntity        string
	Name                string
	Category            pipeline.Category
	AccountType         string
	SaveFileFolder      string
	SaveTimestampedFile bool
	AlwaysSaveLatest    bool
}

// Option adjusts the pipeline configuration of a new entity
type Option func(*pipeline.Config)

// WithClock sets the clock used for last_detection
func WithClock(clk clock.Clock) Option {
	return func(c *pipeline.Config) { c.Clock = clk }
}

// DetectionEntity binds a camera to a detection pipeline
type DetectionEntity struct {
	id           string
	name         string
	cameraEntity string
	accountType  string
	camera       *camera.Camera
	pipeline     *pipeline.DetectionPipeline

	// serializes ProcessImage between the scan loop and manual triggers
	processMu sync.Mutex
}

// DefaultName returns sighthound_<camera object id>
func DefaultName(cameraEntity string) string {
	return "sighthound_" + camera.ObjectID(cameraEntity)
}

// EntityIDFor returns image_processing.<slug(name)>
func EntityIDFor(name string) string {
	return Domain + "." + Slugify(name)
}

// Slugify lowercases a name and joins its alphanumeric runs with underscores
func Slugify(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}

// New creates an entity and its pipeline. cam may be nil when images only
// arrive through ProcessImage.
func New(cfg Config, cam *camera.Camera, service detection.Service, bus *pipeline.EventBus, opts ...Option) (*DetectionEntity, error) {
	if cfg.CameraEntity == "" {
		return nil, fmt.Errorf("camera entity id cannot be empty")
	}

	name := cfg.Name
	if name == "" {
		name = DefaultName(cfg.CameraEntity)
	}
	category := cfg.Category
	if category == "" {
		category = pipeline.CategoryPerson
	}
	if category != pipeline.CategoryPerson && category != pipeline.CategoryVehicle {
		return nil, fmt.Errorf("unknown category %q", category)
	}

	pcfg := pipeline.Config{
		EntityID:            EntityIDFor(name),
		Name:                Slugify(name), // saved file names never contain path separators
		Category:            category,
		SaveFileFolder:      cfg.SaveFileFolder,
		SaveTimestampedFile: cfg.SaveTimestampedFile,
		AlwaysSaveLatest:    cfg.AlwaysSaveLatest,
	}
	for _, opt := range opts {
		opt(&pcfg)
	}

	return &DetectionEntity{
		id:           pcfg.EntityID,
		name:         name,
		cameraEntity: cfg.CameraEntity,
		accountType:  cfg.AccountType,
		camera:       cam,
		pipeline:     pipeline.NewDetectionPipeline(pcfg, service, bus),
	}, nil
}

func (e *DetectionEntity) EntityID() string { return e.id }

func (e *DetectionEntity) Name() string { return e.name }

func (e *DetectionEntity) Category() pipeline.Category { return e.pipeline.Config().Category }

// CameraEntity returns the camera entity id images are taken from
func (e *DetectionEntity) CameraEntity() string {
	return e.cameraEntity
}

// State returns the count of the primary category
func (e *DetectionEntity) State() int {
	return e.pipeline.State().Count
}

// UnitOfMeasurement is "people" or "vehicles"
func (e *DetectionEntity) UnitOfMeasurement() string {
	if e.Category() == pipeline.CategoryVehicle {
		return "vehicles"
	}
	return "people"
}

// Attributes returns the secondary state exposed next to the count
func (e *DetectionEntity) Attributes() map[string]any {
	state := e.pipeline.State()
	attrs := map[string]any{
		AttrAccountType: e.accountType,
	}

	if e.Category() == pipeline.CategoryVehicle {
		plates := state.Plates
		if plates == nil {
			plates = []string{}
		}
		attrs[AttrPlates] = plates
	} else {
		attrs[AttrFaces] = state.Faces
	}

	if state.LastDetection != "" {
		attrs[AttrLastDetection] = state.LastDetection
	}
	return attrs
}

// Snapshot returns the full pipeline state
func (e *DetectionEntity) Snapshot() pipeline.State {
	return e.pipeline.State()
}

// LastStage returns the stage the last call ended in
func (e *DetectionEntity) LastStage() pipeline.Stage {
	return e.pipeline.LastStage()
}

// Pipeline exposes the underlying pipeline for listeners and restore
func (e *DetectionEntity) Pipeline() *pipeline.DetectionPipeline {
	return e.pipeline
}

// ProcessImage runs one image through the pipeline
func (e *DetectionEntity) ProcessImage(ctx context.Context, image []byte) {
	e.processMu.Lock()
	defer e.processMu.Unlock()
	e.pipeline.ProcessImage(ctx, image)
}

// Scan takes a snapshot from the camera and processes it
func (e *DetectionEntity) Scan(ctx context.Context) error {
	if e.camera == nil {
		return fmt.Errorf("%s: %w", e.id, camera.ErrNoSource)
	}
	image, err := e.camera.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to get snapshot for %s: %w", e.id, err)
	}
	e.ProcessImage(ctx, image)
	return nil
}

var _ Entity = (*DetectionEntity)(nil)
