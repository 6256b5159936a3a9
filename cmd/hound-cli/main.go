package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"hound/internal/detection"
	"hound/internal/entity"
	"hound/internal/pipeline"
)

type output struct {
	EntityID          string         `json:"entity_id"`
	State             int            `json:"state"`
	UnitOfMeasurement string         `json:"unit_of_measurement"`
	Attributes        map[string]any `json:"attributes"`
	Stage             string         `json:"stage"`
}

func main() {
	var (
		apiKeyF    = flag.String("api-key", os.Getenv("SIGHTHOUND_API_KEY"), "Sighthound API key")
		accountF   = flag.String("account", detection.AccountDev, "Account type: dev or prod")
		categoryF  = flag.String("category", string(pipeline.CategoryPerson), "Category: person or vehicle")
		cameraF    = flag.String("camera", "camera.cli", "Camera entity id the image belongs to")
		nameF      = flag.String("name", "", "Entity name (default sighthound_<camera>)")
		saveF      = flag.String("save", "", "Folder for annotated images")
		timestampF = flag.Bool("timestamped", false, "Also save a timestamped image")
		alwaysF    = flag.Bool("always-latest", false, "Save the latest image even without detections")
		timeoutF   = flag.Int("timeout", 9, "Maximum number of seconds to wait for the service")
		verboseF   = flag.Bool("verbose", false, "Print debug logs to stderr")
	)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(1)
	}
	if *apiKeyF == "" {
		fmt.Fprintln(os.Stderr, "an API key is required (-api-key or SIGHTHOUND_API_KEY)")
		os.Exit(1)
	}

	log.SetOutput(os.Stderr)
	log.SetLevel(log.WarnLevel)
	if *verboseF {
		log.SetLevel(log.DebugLevel)
	}

	image, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read image: %v\n", err)
		os.Exit(1)
	}

	client := detection.NewClient(detection.ClientConfig{
		APIKey:      *apiKeyF,
		AccountType: *accountF,
		Timeout:     time.Duration(*timeoutF) * time.Second,
	})

	bus := pipeline.NewEventBus()

	e, err := entity.New(entity.Config{
		CameraEntity:        *cameraF,
		Name:                *nameF,
		Category:            pipeline.Category(*categoryF),
		AccountType:         *accountF,
		SaveFileFolder:      *saveF,
		SaveTimestampedFile: *timestampF,
		AlwaysSaveLatest:    *alwaysF,
	}, nil, client, bus)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	bus.SubscribeEntity(e.EntityID(), pipeline.EventHandlerFunc(func(event pipeline.Event) {
		if err := enc.Encode(event); err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode event: %v\n", err)
		}
	}))

	e.ProcessImage(context.Background(), image)

	if err := enc.Encode(output{
		EntityID:          e.EntityID(),
		State:             e.State(),
		UnitOfMeasurement: e.UnitOfMeasurement(),
		Attributes:        e.Attributes(),
		Stage:             e.LastStage().String(),
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode state: %v\n", err)
		os.Exit(1)
	}

	if e.LastStage() == pipeline.StageFailed {
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `%s runs one image through the detection pipeline.

Usage:
    %s [-api-key KEY] [-category person|vehicle] [-save DIR] IMAGE

Events are written to stdout as JSON lines, followed by the entity state.

Flags:
`, os.Args[0], os.Args[0])
	flag.PrintDefaults()
}
