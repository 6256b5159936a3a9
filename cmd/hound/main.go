package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"hound/internal/auth"
	"hound/internal/camera"
	"hound/internal/config"
	"hound/internal/database"
	"hound/internal/detection"
	"hound/internal/entity"
	"hound/internal/grpcserver"
	"hound/internal/mqtt"
	"hound/internal/pipeline"
	"hound/internal/services"
	"hound/internal/telegram"
	"hound/internal/ws"
)

func main() {
	var (
		configF = flag.String("config", "hound.yaml", "Path to the YAML configuration file")
		dbgF    = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	cfg, err := config.Load(*configF)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	level, _ := log.ParseLevel(cfg.LogLevel)
	if *dbgF {
		level = log.DebugLevel
	}
	log.SetLevel(level)

	// Detection service and event bus
	client := detection.NewClient(cfg.ClientConfig())
	bus := pipeline.NewEventBus()

	// Optional event journal
	var (
		db      *database.Database
		journal *database.Journal
	)
	if cfg.Database.Path != "" {
		db, err = database.New(cfg.Database.Path)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
		}
		journal = database.NewJournal(db, nil)
		bus.Subscribe(journal)
	}

	// Cameras and entities
	cameraManager := camera.NewCameraManager()
	registry := entity.NewRegistry()
	for _, src := range cfg.Sources {
		var cam *camera.Camera
		if device := src.Device(); device != "" {
			cam = camera.NewCamera(src.EntityID, "", device)
			if err := cameraManager.AddCamera(cam); err != nil {
				log.Warnf("Camera %s unavailable: %v", src.EntityID, err)
			}
		}

		e, err := entity.New(cfg.EntityConfig(src), cam, client, bus)
		if err != nil {
			log.Fatalf("Failed to create entity for %s: %v", src.EntityID, err)
		}
		if err := registry.Register(e); err != nil {
			log.Fatalf("Failed to register %s: %v", e.EntityID(), err)
		}
		if journal != nil {
			if ts := journal.LastDetection(e.EntityID()); ts != "" {
				e.Pipeline().RestoreLastDetection(ts)
				log.Debugf("Restored last_detection %s for %s", ts, e.EntityID())
			}
		}
		log.Infof("Registered %s (%s) for %s", e.EntityID(), e.Category(), src.EntityID)
	}

	// Live consumers
	hub := ws.NewEventHub()
	bus.Subscribe(hub)

	grpcSrv := grpcserver.New(registry)

	listeners := []pipeline.StateListener{hub, grpcSrv}
	if journal != nil {
		listeners = append(listeners, journal)
	}

	var (
		bot      *telegram.TelegramBot
		notifier *telegram.Notifier
	)
	if cfg.Telegram.Enabled {
		bot = telegram.NewTelegramBot(cfg.TelegramBot(), nil)
		notifier = telegram.NewNotifier(bot)
		bus.Subscribe(notifier)
		listeners = append(listeners, notifier)
	}

	if cfg.MQTTEnabled() {
		mqttClient, err := mqtt.NewClient(cfg.MQTTClient())
		if err != nil {
			log.Errorf("MQTT disabled: %v", err)
		} else {
			defer mqttClient.Close()
			publisher := mqtt.NewPublisher(mqttClient, cfg.MQTT.TopicPrefix)
			bus.Subscribe(publisher)
			listeners = append(listeners, publisher)
		}
	}

	for _, e := range registry.All() {
		for _, l := range listeners {
			e.Pipeline().AddStateListener(l)
		}
	}

	authenticator, err := auth.NewAuthenticator(cfg.AuthSettings())
	if err != nil {
		log.Fatalf("Failed to initialize authentication: %v", err)
	}
	if authenticator.IsEnabled() {
		log.Info("Authentication enabled")
	}

	svcs := services.Services{
		Health:        services.NewHealthService(registry, db),
		Auth:          services.NewAuthService(authenticator),
		Entities:      services.NewEntityService(registry, bus),
		Events:        services.NewEventsService(db),
		Cameras:       services.NewCameraService(cameraManager),
		Authenticator: authenticator,
		WebSocket:     ws.NewHandler(hub),
	}

	// Create channel used by both the signal handler and server goroutines
	// to notify the main goroutine when to stop.
	errc := make(chan error, 4)

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	if notifier != nil {
		infoCtx, infoCancel := context.WithTimeout(ctx, 10*time.Second)
		if info, err := bot.GetBotInfo(infoCtx); err != nil {
			log.Warnf("[Telegram] Failed to reach bot: %v", err)
		} else {
			log.Infof("[Telegram] Connected as @%v", info["username"])
		}
		infoCancel()

		wg.Add(1)
		go func() {
			defer wg.Done()
			notifier.Run(ctx)
		}()

		if cfg.Telegram.Commands {
			handler := telegram.NewCommandHandler(bot, registry, db)
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := handler.StartPolling(ctx); err != nil {
					log.Warnf("Telegram commands disabled: %v", err)
				}
			}()
		}
	}

	if journal != nil && cfg.Database.EventRetention > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pruneEvents(ctx, journal, cfg.Database.EventRetention)
		}()
	}

	scanner := entity.NewScanner(registry, cfg.ScanInterval, nil)
	scanner.Start(ctx)

	handleHTTPServer(ctx, cfg.HTTP.Addr, services.NewRouter(svcs), &wg, errc)

	if cfg.GRPC.Addr != "" {
		go func() {
			if err := grpcSrv.ListenAndServe(cfg.GRPC.Addr); err != nil {
				errc <- err
			}
		}()
	}

	log.Infof("Hound started with %d entities, %d cameras and %d event subscribers",
		registry.Len(), len(cameraManager.ListCameras()), bus.SubscriberCount())

	// Wait for signal.
	log.Infof("Exiting (%v)", <-errc)

	cancel()
	scanner.Stop()
	grpcSrv.Stop()
	bus.Close()

	wg.Wait()
	log.Info("Exited")
}

// pruneEvents drops old journal events once an hour
func pruneEvents(ctx context.Context, journal *database.Journal, retention time.Duration) {
	journal.Prune(retention)

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			journal.Prune(retention)
		}
	}
}
