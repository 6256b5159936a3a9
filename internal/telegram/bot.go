package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultAPIBase is the Telegram Bot API endpoint
const DefaultAPIBase = "https://api.telegram.org"

// TelegramBot handles Telegram bot operations
type TelegramBot struct {
	botToken        string
	chatID          string
	apiBase         string
	httpClient      *http.Client
	clock           clock.Clock
	mu              sync.RWMutex
	enabled         bool
	cooldownMu      sync.Mutex
	cooldownTracker map[string]time.Time
	cooldownPeriod  time.Duration
}

// Config holds Telegram bot configuration
type Config struct {
	BotToken        string
	ChatID          string
	Enabled         bool
	CooldownSeconds int
	APIBase         string
}

// TelegramResponse represents the response from Telegram API
type TelegramResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// NewTelegramBot creates a new Telegram bot instance
func NewTelegramBot(config Config, clk clock.Clock) *TelegramBot {
	cooldownPeriod := time.Duration(config.CooldownSeconds) * time.Second
	if cooldownPeriod == 0 {
		cooldownPeriod = 30 * time.Second
	}
	apiBase := strings.TrimRight(config.APIBase, "/")
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	if clk == nil {
		clk = clock.New()
	}

	return &TelegramBot{
		botToken:        config.BotToken,
		chatID:          config.ChatID,
		apiBase:         apiBase,
		enabled:         config.Enabled,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		clock:           clk,
		cooldownTracker: make(map[string]time.Time),
		cooldownPeriod:  cooldownPeriod,
	}
}

// IsEnabled returns whether the bot is enabled
func (tb *TelegramBot) IsEnabled() bool {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return tb.enabled
}

// SetEnabled enables or disables the bot
func (tb *TelegramBot) SetEnabled(enabled bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.enabled = enabled
}

// ChatID returns the authorized chat
func (tb *TelegramBot) ChatID() string {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return tb.chatID
}

func (tb *TelegramBot) ready() error {
	tb.mu.RLock()
	defer tb.mu.RUnlock()

	if !tb.enabled {
		return fmt.Errorf("telegram bot is disabled")
	}
	if tb.botToken == "" || tb.chatID == "" {
		return fmt.Errorf("telegram bot token or chat ID not configured")
	}
	return nil
}

// SendMessage sends a text message, subject to the cooldown for key
func (tb *TelegramBot) SendMessage(ctx context.Context, key, message string) error {
	if err := tb.ready(); err != nil {
		return err
	}
	if !tb.checkCooldown("message:" + key) {
		return fmt.Errorf("message cooldown period not yet elapsed")
	}

	err := tb.sendText(ctx, message)
	if err == nil {
		tb.updateCooldown("message:" + key)
	}
	return err
}

// SendPhoto sends a photo with optional caption, subject to the cooldown for key
func (tb *TelegramBot) SendPhoto(ctx context.Context, key string, photoData []byte, filename, caption string) error {
	if err := tb.ready(); err != nil {
		return err
	}
	if !tb.checkCooldown("photo:" + key) {
		return fmt.Errorf("photo cooldown period not yet elapsed")
	}

	err := tb.sendPhoto(ctx, photoData, filename, caption)
	if err == nil {
		tb.updateCooldown("photo:" + key)
	}
	return err
}

// SendTestMessage sends a test message to verify the bot configuration
func (tb *TelegramBot) SendTestMessage(ctx context.Context) error {
	message := fmt.Sprintf(
		"🤖 <b>Hound Test Message</b>\n\n"+
			"✅ Telegram bot is working correctly!\n"+
			"🕐 Test sent at: %s",
		formatTime(tb.clock.Now()),
	)
	return tb.SendMessage(ctx, "test", message)
}

// sendText sends a message without cooldown
func (tb *TelegramBot) sendText(ctx context.Context, message string) error {
	return tb.sendTelegramRequest(ctx, "sendMessage", map[string]interface{}{
		"chat_id":    tb.ChatID(),
		"text":       message,
		"parse_mode": "HTML",
	})
}

// sendPhoto sends a photo using multipart form data
func (tb *TelegramBot) sendPhoto(ctx context.Context, photoData []byte, filename, caption string) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("chat_id", tb.ChatID()); err != nil {
		return fmt.Errorf("failed to write chat_id field: %w", err)
	}

	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return fmt.Errorf("failed to write caption field: %w", err)
		}
		if err := writer.WriteField("parse_mode", "HTML"); err != nil {
			return fmt.Errorf("failed to write parse_mode field: %w", err)
		}
	}

	if filename == "" {
		filename = "detection.jpg"
	}
	part, err := writer.CreateFormFile("photo", filepath.Base(filename))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(photoData); err != nil {
		return fmt.Errorf("failed to write photo data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tb.methodURL("sendPhoto"), &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := tb.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send photo: %w", err)
	}
	defer resp.Body.Close()

	_, err = handleResponse(resp)
	return err
}

// sendTelegramRequest sends a generic JSON request to Telegram API
func (tb *TelegramBot) sendTelegramRequest(ctx context.Context, method string, payload map[string]interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tb.methodURL(method), bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tb.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	_, err = handleResponse(resp)
	return err
}

// GetBotInfo retrieves information about the bot
func (tb *TelegramBot) GetBotInfo(ctx context.Context) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tb.methodURL("getMe"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := tb.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get bot info: %w", err)
	}
	defer resp.Body.Close()

	result, err := handleResponse(resp)
	if err != nil {
		return nil, err
	}

	var info map[string]interface{}
	if err := json.Unmarshal(result, &info); err != nil {
		return nil, fmt.Errorf("unexpected response format: %w", err)
	}
	return info, nil
}

func (tb *TelegramBot) methodURL(method string) string {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return fmt.Sprintf("%s/bot%s/%s", tb.apiBase, tb.botToken, method)
}

// handleResponse processes the Telegram API response and returns its result
func handleResponse(resp *http.Response) (json.RawMessage, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var telegramResp TelegramResponse
	if err := json.Unmarshal(body, &telegramResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if !telegramResp.OK {
		return nil, fmt.Errorf("telegram API error %d: %s", telegramResp.ErrorCode, telegramResp.Description)
	}
	return telegramResp.Result, nil
}

// checkCooldown checks if the cooldown period has elapsed for a key
func (tb *TelegramBot) checkCooldown(key string) bool {
	tb.cooldownMu.Lock()
	defer tb.cooldownMu.Unlock()

	lastTime, exists := tb.cooldownTracker[key]
	if !exists {
		return true
	}
	return tb.clock.Since(lastTime) >= tb.cooldownPeriod
}

func (tb *TelegramBot) updateCooldown(key string) {
	tb.cooldownMu.Lock()
	defer tb.cooldownMu.Unlock()
	tb.cooldownTracker[key] = tb.clock.Now()
}

// CleanupCooldownTracking removes cooldown entries older than ten periods
func (tb *TelegramBot) CleanupCooldownTracking() {
	tb.cooldownMu.Lock()
	defer tb.cooldownMu.Unlock()

	cutoff := tb.clock.Now().Add(-10 * tb.cooldownPeriod)
	for key, last := range tb.cooldownTracker {
		if last.Before(cutoff) {
			delete(tb.cooldownTracker, key)
		}
	}
}

// ValidateConfig validates the Telegram bot configuration
func ValidateConfig(config Config) error {
	if config.Enabled {
		if config.BotToken == "" {
			return fmt.Errorf("telegram bot token is required when enabled")
		}
		if config.ChatID == "" {
			return fmt.Errorf("telegram chat ID is required when enabled")
		}
	}

	if config.CooldownSeconds < 0 {
		return fmt.Errorf("cooldown seconds cannot be negative")
	}
	return nil
}

func formatTime(t time.Time) string {
	zoneName, _ := t.Zone()
	return fmt.Sprintf("%s %s", t.Format("2 Jan 2006, 15:04:05"), zoneName)
}
