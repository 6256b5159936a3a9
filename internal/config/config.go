package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"hound/internal/auth"
	"hound/internal/detection"
	"hound/internal/entity"
	"hound/internal/mqtt"
	"hound/internal/pipeline"
	"hound/internal/telegram"
)

// Source binds a camera entity to a detection entity
type Source struct {
	EntityID     string `yaml:"entity_id"`
	Name         string `yaml:"name"`
	Category     string `yaml:"category"`
	SnapshotURL  string `yaml:"snapshot_url"`
	SnapshotFile string `yaml:"snapshot_file"`
}

// Device returns the snapshot device of the source, or "" if it has none
func (s Source) Device() string {
	if s.SnapshotURL != "" {
		return s.SnapshotURL
	}
	return s.SnapshotFile
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type GRPCConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Path           string        `yaml:"path"`
	EventRetention time.Duration `yaml:"event_retention"`
}

type AuthConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	JWTSecret string        `yaml:"jwt_secret"`
	JWTExpiry time.Duration `yaml:"jwt_expiry"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

type TelegramConfig struct {
	Enabled         bool   `yaml:"enabled"`
	BotToken        string `yaml:"bot_token"`
	ChatID          string `yaml:"chat_id"`
	CooldownSeconds int    `yaml:"cooldown_seconds"`
	Commands        bool   `yaml:"commands"`
}

// Config is the daemon configuration
type Config struct {
	APIKey              string        `yaml:"api_key"`
	AccountType         string        `yaml:"account_type"`
	SaveFileFolder      string        `yaml:"save_file_folder"`
	SaveTimestampedFile bool          `yaml:"save_timestamped_file"`
	AlwaysSaveLatest    bool          `yaml:"always_save_latest_jpg"`
	Sources             []Source      `yaml:"source"`
	ScanInterval        time.Duration `yaml:"scan_interval"`
	RequestsPerMinute   int           `yaml:"requests_per_minute"`
	LogLevel            string        `yaml:"log_level"`

	HTTP     HTTPConfig     `yaml:"http"`
	GRPC     GRPCConfig     `yaml:"grpc"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// LookupFunc resolves an environment variable
type LookupFunc func(key string) (string, bool)

// Load reads a YAML file, applies environment overrides and validates it
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data, os.LookupEnv)
}

// Parse decodes YAML, applies overrides from lookup and validates the result
func Parse(data []byte, lookup LookupFunc) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if lookup != nil {
		if err := cfg.applyEnv(lookup); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("SIGHTHOUND_API_KEY", &c.APIKey)
	str("AUTH_USERNAME", &c.Auth.Username)
	str("AUTH_PASSWORD", &c.Auth.Password)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("TELEGRAM_BOT_TOKEN", &c.Telegram.BotToken)
	str("TELEGRAM_CHAT_ID", &c.Telegram.ChatID)
	str("MQTT_PASSWORD", &c.MQTT.Password)

	if v, ok := lookup("AUTH_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid AUTH_ENABLED %q: %w", v, err)
		}
		c.Auth.Enabled = enabled
	}
	if v, ok := lookup("JWT_EXPIRY"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid JWT_EXPIRY %q: %w", v, err)
		}
		c.Auth.JWTExpiry = d
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.AccountType == "" {
		c.AccountType = detection.AccountDev
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.SaveFileFolder != "" {
		c.SaveFileFolder = filepath.Clean(c.SaveFileFolder)
	}
	for i := range c.Sources {
		if c.Sources[i].Category == "" {
			c.Sources[i].Category = string(pipeline.CategoryPerson)
		}
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}
	if c.AccountType != detection.AccountDev && c.AccountType != detection.AccountProd {
		return fmt.Errorf("account_type must be %q or %q, got %q", detection.AccountDev, detection.AccountProd, c.AccountType)
	}
	if c.SaveFileFolder != "" {
		info, err := os.Stat(c.SaveFileFolder)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("save_file_folder %q is not an existing directory", c.SaveFileFolder)
		}
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %w", err)
	}
	if c.ScanInterval < 0 {
		return fmt.Errorf("scan_interval cannot be negative")
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute cannot be negative")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}

	if len(c.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	seen := make(map[string]bool)
	for i, s := range c.Sources {
		if s.EntityID == "" {
			return fmt.Errorf("source %d: entity_id is required", i)
		}
		if !strings.Contains(s.EntityID, ".") {
			return fmt.Errorf("source %d: entity_id %q must be <domain>.<object_id>", i, s.EntityID)
		}
		switch pipeline.Category(s.Category) {
		case pipeline.CategoryPerson, pipeline.CategoryVehicle:
		default:
			return fmt.Errorf("source %d: category must be person or vehicle, got %q", i, s.Category)
		}
		if s.SnapshotURL != "" && s.SnapshotFile != "" {
			return fmt.Errorf("source %d: snapshot_url and snapshot_file are mutually exclusive", i)
		}

		id := entity.EntityIDFor(s.displayName())
		if seen[id] {
			return fmt.Errorf("source %d: duplicate entity %s", i, id)
		}
		seen[id] = true
	}

	return telegram.ValidateConfig(c.TelegramBot())
}

func (s Source) displayName() string {
	if s.Name != "" {
		return s.Name
	}
	return entity.DefaultName(s.EntityID)
}

// EntityConfig returns the entity configuration of a source
func (c *Config) EntityConfig(s Source) entity.Config {
	return entity.Config{
		CameraEntity:        s.EntityID,
		Name:                s.Name,
		Category:            pipeline.Category(s.Category),
		AccountType:         c.AccountType,
		SaveFileFolder:      c.SaveFileFolder,
		SaveTimestampedFile: c.SaveTimestampedFile,
		AlwaysSaveLatest:    c.AlwaysSaveLatest,
	}
}

// ClientConfig returns the detection service client configuration
func (c *Config) ClientConfig() detection.ClientConfig {
	return detection.ClientConfig{
		APIKey:            c.APIKey,
		AccountType:       c.AccountType,
		RequestsPerMinute: c.RequestsPerMinute,
	}
}

// AuthSettings returns the authenticator configuration
func (c *Config) AuthSettings() auth.Config {
	return auth.Config{
		Enabled:   c.Auth.Enabled,
		Username:  c.Auth.Username,
		Password:  c.Auth.Password,
		JWTSecret: c.Auth.JWTSecret,
		JWTExpiry: c.Auth.JWTExpiry,
	}
}

// MQTTEnabled reports whether a broker is configured
func (c *Config) MQTTEnabled() bool {
	return c.MQTT.Broker != ""
}

// MQTTClient returns the broker configuration
func (c *Config) MQTTClient() mqtt.Config {
	return mqtt.Config{
		Broker:      c.MQTT.Broker,
		ClientID:    c.MQTT.ClientID,
		Username:    c.MQTT.Username,
		Password:    c.MQTT.Password,
		TopicPrefix: c.MQTT.TopicPrefix,
		QoS:         c.MQTT.QoS,
	}
}

// TelegramBot returns the Telegram bot configuration
func (c *Config) TelegramBot() telegram.Config {
	return telegram.Config{
		BotToken:        c.Telegram.BotToken,
		ChatID:          c.Telegram.ChatID,
		Enabled:         c.Telegram.Enabled,
		CooldownSeconds: c.Telegram.CooldownSeconds,
	}
}
