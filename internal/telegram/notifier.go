package telegram

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"hound/internal/pipeline"
)

const queueSize = 16

type alert struct {
	entityID string
	path     string
	counts   map[string]int
	at       string
}

// Notifier sends one annotated snapshot per detecting call to the chat.
// Detection events are tallied per entity until the first file_saved
// event of the call arrives; later file_saved events of the same call
// are ignored. The tally is dropped when the call ends, saved or not.
type Notifier struct {
	bot     *TelegramBot
	queue   chan alert
	mu      sync.Mutex
	pending map[string]map[string]int
}

// NewNotifier creates a notifier for a bot
func NewNotifier(bot *TelegramBot) *Notifier {
	return &Notifier{
		bot:     bot,
		queue:   make(chan alert, queueSize),
		pending: make(map[string]map[string]int),
	}
}

// OnEvent tallies detections and queues an alert on file_saved
func (n *Notifier) OnEvent(event pipeline.Event) {
	if !n.bot.IsEnabled() {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if event.Name != pipeline.EventFileSaved {
		counts := n.pending[event.EntityID]
		if counts == nil {
			counts = make(map[string]int)
			n.pending[event.EntityID] = counts
		}
		counts[event.ShortName()]++
		return
	}

	counts := n.pending[event.EntityID]
	if len(counts) == 0 {
		return
	}
	delete(n.pending, event.EntityID)

	path, _ := event.Data[pipeline.AttrFilePath].(string)
	a := alert{
		entityID: event.EntityID,
		path:     path,
		counts:   counts,
		at:       formatTime(event.Time),
	}
	select {
	case n.queue <- a:
	default:
		log.Warnf("[Telegram] Alert queue full, dropping alert for %s", event.EntityID)
	}
}

// OnStateChanged ends the call for an entity
func (n *Notifier) OnStateChanged(entityID string, _ pipeline.State) {
	n.mu.Lock()
	delete(n.pending, entityID)
	n.mu.Unlock()
}

// Run delivers queued alerts until ctx is done. Stale cooldown entries
// are cleaned up once an hour.
func (n *Notifier) Run(ctx context.Context) {
	log.Info("[Telegram] Notifier started")

	cleanup := n.bot.clock.Ticker(time.Hour)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("[Telegram] Notifier stopped")
			return
		case <-cleanup.C:
			n.bot.CleanupCooldownTracking()
		case a := <-n.queue:
			if err := n.deliver(ctx, a); err != nil {
				log.Warnf("[Telegram] Failed to send alert for %s: %v", a.entityID, err)
			}
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, a alert) error {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	return n.bot.SendPhoto(ctx, a.entityID, data, filepath.Base(a.path), caption(a))
}

func caption(a alert) string {
	var sb strings.Builder
	sb.WriteString("🚨 <b>Detection Alert!</b>\n\n")
	sb.WriteString(fmt.Sprintf("📹 Entity: %s\n", a.entityID))
	for _, name := range []string{"person_detected", "face_detected", "vehicle_detected"} {
		if c := a.counts[name]; c > 0 {
			sb.WriteString(fmt.Sprintf("🎯 %s: %d\n", strings.TrimSuffix(name, "_detected"), c))
		}
	}
	sb.WriteString(fmt.Sprintf("🕐 Time: %s", a.at))
	return sb.String()
}

var (
	_ pipeline.EventHandler  = (*Notifier)(nil)
	_ pipeline.StateListener = (*Notifier)(nil)
)
