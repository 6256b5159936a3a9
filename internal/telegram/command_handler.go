package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"hound/internal/database"
	"hound/internal/entity"
)

// Update represents a Telegram update
type Update struct {
	UpdateID int64            `json:"update_id"`
	Message  *TelegramMessage `json:"message,omitempty"`
}

// TelegramMessage represents an incoming Telegram message
type TelegramMessage struct {
	MessageID int64         `json:"message_id"`
	Chat      *TelegramChat `json:"chat,omitempty"`
	Date      int64         `json:"date"`
	Text      string        `json:"text,omitempty"`
}

// TelegramChat represents a Telegram chat
type TelegramChat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

// CommandHandler answers bot commands from the authorized chat
type CommandHandler struct {
	bot          *TelegramBot
	registry     *entity.Registry
	db           *database.Database
	lastUpdateID int64
	startTime    time.Time
	mu           sync.Mutex
}

// NewCommandHandler creates a new command handler; db may be nil
func NewCommandHandler(bot *TelegramBot, registry *entity.Registry, db *database.Database) *CommandHandler {
	return &CommandHandler{
		bot:       bot,
		registry:  registry,
		db:        db,
		startTime: bot.clock.Now(),
	}
}

// StartPolling polls for updates every two seconds until ctx is done
func (ch *CommandHandler) StartPolling(ctx context.Context) error {
	if err := ch.bot.ready(); err != nil {
		return err
	}

	log.Info("[Telegram] Starting command polling")

	ticker := ch.bot.clock.Ticker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("[Telegram] Command polling stopped")
			return nil
		case <-ticker.C:
			if err := ch.pollUpdates(ctx); err != nil {
				log.Warnf("[Telegram] Failed to poll updates: %v", err)
			}
		}
	}
}

// pollUpdates fetches and processes pending updates
func (ch *CommandHandler) pollUpdates(ctx context.Context) error {
	ch.mu.Lock()
	offset := ch.lastUpdateID + 1
	ch.mu.Unlock()

	url := fmt.Sprintf("%s?offset=%d&timeout=1", ch.bot.methodURL("getUpdates"), offset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := ch.bot.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch updates: %w", err)
	}
	defer resp.Body.Close()

	result, err := handleResponse(resp)
	if err != nil {
		return err
	}

	var updates []Update
	if len(result) > 0 {
		if err := json.Unmarshal(result, &updates); err != nil {
			return fmt.Errorf("failed to parse updates: %w", err)
		}
	}

	for _, update := range updates {
		ch.mu.Lock()
		if update.UpdateID > ch.lastUpdateID {
			ch.lastUpdateID = update.UpdateID
		}
		ch.mu.Unlock()

		if update.Message != nil {
			ch.handleMessage(ctx, update.Message)
		}
	}
	return nil
}

// handleMessage dispatches a command from the authorized chat
func (ch *CommandHandler) handleMessage(ctx context.Context, msg *TelegramMessage) {
	if msg.Chat == nil {
		return
	}

	chatID := strconv.FormatInt(msg.Chat.ID, 10)
	if chatID != ch.bot.ChatID() {
		log.Warnf("[Telegram] Ignoring message from unauthorized chat %s", chatID)
		return
	}

	if !strings.HasPrefix(msg.Text, "/") {
		return
	}

	parts := strings.Fields(msg.Text)
	command := strings.ToLower(parts[0])
	args := parts[1:]

	// /status@mybot
	if at := strings.Index(command, "@"); at != -1 {
		command = command[:at]
	}

	log.Debugf("[Telegram] Processing command %s", command)

	var response string
	switch command {
	case "/start":
		response = "🤖 <b>Welcome to Hound!</b>\n\nI send annotated snapshots when people or vehicles are detected.\n\nUse /help to see available commands."
	case "/help":
		response = ch.handleHelp()
	case "/status":
		response = ch.handleStatus()
	case "/entities":
		response = ch.handleEntities()
	case "/scan":
		response = ch.handleScan(ctx, args)
	case "/events":
		response = ch.handleEvents(args)
	case "/test":
		err := ch.bot.SendTestMessage(ctx)
		if err == nil {
			return
		}
		response = fmt.Sprintf("❌ Test message failed: %v", err)
	default:
		response = fmt.Sprintf("Unknown command: %s\nUse /help to see available commands.", command)
	}

	if err := ch.bot.sendText(ctx, response); err != nil {
		log.Warnf("[Telegram] Failed to send reply: %v", err)
	}
}

func (ch *CommandHandler) handleHelp() string {
	return "📋 <b>Available Commands</b>\n\n" +
		"/status - System status\n" +
		"/entities - List detection entities\n" +
		"/scan &lt;entity&gt; - Run detection now\n" +
		"/events [limit] - Show recent detection events\n" +
		"/test - Send a test message\n" +
		"/help - Show this help"
}

func (ch *CommandHandler) handleStatus() string {
	entities := ch.registry.All()
	detecting := 0
	for _, e := range entities {
		if e.State() > 0 {
			detecting++
		}
	}

	return fmt.Sprintf(
		"📊 <b>System Status</b>\n\n"+
			"📹 Entities: %d total, %d with detections\n"+
			"⏱️ Uptime: %s",
		len(entities), detecting,
		formatDuration(ch.bot.clock.Since(ch.startTime)),
	)
}

func (ch *CommandHandler) handleEntities() string {
	entities := ch.registry.All()
	if len(entities) == 0 {
		return "📹 <b>Entities</b>\n\nNo entities configured."
	}

	var sb strings.Builder
	sb.WriteString("📹 <b>Entities</b>\n\n")
	for _, e := range entities {
		sb.WriteString(fmt.Sprintf("<b>%s</b>: %d %s\n", e.EntityID(), e.State(), e.UnitOfMeasurement()))
		if last, ok := e.Attributes()["last_detection"]; ok {
			sb.WriteString(fmt.Sprintf("   Last detection: %v\n", last))
		}
	}
	return sb.String()
}

func (ch *CommandHandler) handleScan(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "Usage: /scan &lt;entity&gt;"
	}

	e, err := ch.lookup(args[0])
	if err != nil {
		return fmt.Sprintf("❌ %v", err)
	}
	if err := e.Scan(ctx); err != nil {
		return fmt.Sprintf("❌ Scan failed: %v", err)
	}
	return fmt.Sprintf("✅ %s: %d %s", e.EntityID(), e.State(), e.UnitOfMeasurement())
}

// lookup accepts a full entity ID or its object ID
func (ch *CommandHandler) lookup(name string) (*entity.DetectionEntity, error) {
	if e, err := ch.registry.Get(name); err == nil {
		return e, nil
	}
	return ch.registry.Get("image_processing." + name)
}

func (ch *CommandHandler) handleEvents(args []string) string {
	if ch.db == nil {
		return "Event journal is not configured."
	}

	limit := 5
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 || n > 50 {
			return "Usage: /events [1-50]"
		}
		limit = n
	}

	events, err := ch.db.ListEvents("", nil, limit)
	if err != nil {
		return fmt.Sprintf("❌ Failed to load events: %v", err)
	}
	if len(events) == 0 {
		return "📜 <b>Recent Events</b>\n\nNo events recorded."
	}

	var sb strings.Builder
	sb.WriteString("📜 <b>Recent Events</b>\n\n")
	for _, ev := range events {
		sb.WriteString(fmt.Sprintf("%s %s\n   %s\n",
			ev.Timestamp.Local().Format("02 Jan 15:04:05"), ev.EventType, ev.EntityID))
	}
	return sb.String()
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm %ds", minutes, int(d.Seconds())%60)
}
