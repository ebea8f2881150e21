package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ModeAll    = "ALL"
	ModeWeb    = "WEB"
	ModeWorker = "WORKER"
)

var (
	ErrMissingAdminToken    = errors.New("ADMIN_TOKEN is required")
	ErrMissingDatabaseDSN   = errors.New("DB_DSN is required")
	ErrMissingTelegramChat  = errors.New("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	ErrInvalidMediaMaxBytes = errors.New("MEDIA_MAX_BYTES must be > 0")
)

type Config struct {
	AppMode    string
	AdminToken string

	HTTP     HTTPConfig
	Redis    RedisConfig
	DB       DBConfig
	Worker   WorkerConfig
	Chat     ChatConfig
	Media    MediaConfig
	Company  CompanyConfig
	Telegram TelegramConfig
	Crypto   CryptoConfig
	Log      LogConfig
}

type HTTPConfig struct {
	ListenAddr     string
	HealthPath     string
	MetricsPath    string
	RequestTimeout time.Duration
}

type RedisConfig struct {
	Addr            string
	Password        string
	DB              int
	QueueStream     string
	QueueGroup      string
	QueueBlock      time.Duration
	EventsChannel   string
	NotifyDedupeTTL time.Duration
}

type DBConfig struct {
	Driver      string
	DSN         string
	AutoMigrate bool
}

type WorkerConfig struct {
	Concurrency  int
	ConsumerName string
	MaxRetries   int
}

type ChatConfig struct {
	ClientTimeout time.Duration
	DemoAPIKey    string
	RatePerHour   int64
}

type MediaConfig struct {
	MaxBytes int
}

type CompanyConfig struct {
	Phone string
	Email string
}

type TelegramConfig struct {
	BotToken string
	ChatID   int64
}

// CryptoConfig is empty when no master key is configured; provider API keys
// are then stored as plain text.
type CryptoConfig struct {
	CurrentKeyID string
	Keys         map[string][]byte
}

type LogConfig struct {
	Level string
}

// Load reads the process environment. A .env file (or the file named by
// DOTENV_PATH) is applied first without overriding variables already set.
func Load() (*Config, error) {
	if err := loadDotenv(); err != nil {
		return nil, err
	}

	cfg := &Config{
		AppMode:    strings.ToUpper(mustEnv("APP_MODE", ModeAll)),
		AdminToken: mustEnv("ADMIN_TOKEN", ""),
		HTTP: HTTPConfig{
			ListenAddr:     mustEnv("HTTP_LISTEN_ADDR", ":8080"),
			HealthPath:     mustEnv("HEALTH_PATH", "/healthz"),
			MetricsPath:    mustEnv("METRICS_PATH", "/metrics"),
			RequestTimeout: mustDuration("HTTP_REQUEST_TIMEOUT", 60*time.Second),
		},
		Redis: RedisConfig{
			Addr:            mustEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:        mustEnv("REDIS_PASSWORD", ""),
			DB:              mustInt("REDIS_DB", 0),
			QueueStream:     mustEnv("QUEUE_STREAM", "bouwsite:notify"),
			QueueGroup:      mustEnv("QUEUE_GROUP", "bouwsite-workers"),
			QueueBlock:      mustDuration("QUEUE_BLOCK", 5*time.Second),
			EventsChannel:   mustEnv("EVENTS_CHANNEL", "bouwsite:events"),
			NotifyDedupeTTL: mustDuration("NOTIFY_DEDUPE_TTL", 24*time.Hour),
		},
		DB: DBConfig{
			Driver:      strings.ToLower(mustEnv("DB_DRIVER", "sqlite")),
			DSN:         mustEnv("DB_DSN", "file:bouwsite.db"),
			AutoMigrate: mustBool("AUTO_MIGRATE", true),
		},
		Worker: WorkerConfig{
			Concurrency:  mustInt("WORKER_CONCURRENCY", 2),
			ConsumerName: mustEnv("WORKER_CONSUMER_NAME", hostnameOr("worker")),
			MaxRetries:   mustInt("WORKER_MAX_RETRIES", 3),
		},
		Chat: ChatConfig{
			ClientTimeout: mustDuration("CHAT_HTTP_TIMEOUT", 0),
			DemoAPIKey:    mustEnv("CHAT_DEMO_API_KEY", ""),
			RatePerHour:   int64(mustInt("RATE_LIMIT_PER_HOUR", 30)),
		},
		Media: MediaConfig{
			MaxBytes: mustInt("MEDIA_MAX_BYTES", 4*1024*1024),
		},
		Company: CompanyConfig{
			Phone: mustEnv("COMPANY_PHONE", "+32 3 123 45 67"),
			Email: mustEnv("COMPANY_EMAIL", "info@bouwsite.be"),
		},
		Telegram: TelegramConfig{
			BotToken: mustEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:   mustInt64("TELEGRAM_CHAT_ID", 0),
		},
		Log: LogConfig{
			Level: strings.ToLower(mustEnv("LOG_LEVEL", "info")),
		},
	}

	if cfg.AppMode != ModeAll && cfg.AppMode != ModeWeb && cfg.AppMode != ModeWorker {
		return nil, fmt.Errorf("unsupported APP_MODE %q", cfg.AppMode)
	}
	if cfg.AdminToken == "" && cfg.AppMode != ModeWorker {
		return nil, ErrMissingAdminToken
	}
	if cfg.DB.DSN == "" {
		return nil, ErrMissingDatabaseDSN
	}
	if cfg.Media.MaxBytes <= 0 {
		return nil, ErrInvalidMediaMaxBytes
	}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID == 0 {
		return nil, ErrMissingTelegramChat
	}

	cc, err := loadCryptoConfig()
	if err != nil {
		return nil, err
	}
	cfg.Crypto = cc

	return cfg, nil
}

func loadDotenv() error {
	path := mustEnv("DOTENV_PATH", ".env")
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func loadCryptoConfig() (CryptoConfig, error) {
	keysB64 := map[string]string{}

	if raw := mustEnv("MASTER_KEYS_JSON", ""); raw != "" {
		var parsed map[string]string
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return CryptoConfig{}, fmt.Errorf("parse MASTER_KEYS_JSON: %w", err)
		}
		for id, val := range parsed {
			if strings.TrimSpace(id) == "" || strings.TrimSpace(val) == "" {
				continue
			}
			keysB64[id] = val
		}
	}

	for _, e := range os.Environ() {
		k, v, ok := strings.Cut(e, "=")
		if !ok || k == "MASTER_KEY_B64" {
			continue
		}
		if !strings.HasPrefix(k, "MASTER_KEY_") || !strings.HasSuffix(k, "_B64") {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(k, "MASTER_KEY_"), "_B64")
		if id == "" || v == "" {
			continue
		}
		keysB64[id] = v
	}

	current := mustEnv("MASTER_KEY_CURRENT_ID", "")
	if single := mustEnv("MASTER_KEY_B64", ""); single != "" {
		if current == "" {
			current = "default"
		}
		keysB64[current] = single
	}

	if len(keysB64) == 0 {
		return CryptoConfig{}, nil
	}

	keys := make(map[string][]byte, len(keysB64))
	for id, b64 := range keysB64 {
		raw, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return CryptoConfig{}, fmt.Errorf("decode master key %q: %w", id, err)
		}
		if len(raw) != 32 {
			return CryptoConfig{}, fmt.Errorf("master key %q must be 32 bytes after base64 decode", id)
		}
		keys[id] = raw
	}

	if current == "" {
		for id := range keys {
			current = id
			break
		}
	}
	if _, ok := keys[current]; !ok {
		return CryptoConfig{}, fmt.Errorf("MASTER_KEY_CURRENT_ID=%q does not exist in provided keys", current)
	}

	return CryptoConfig{CurrentKeyID: current, Keys: keys}, nil
}

// Enabled reports whether API keys should be sealed at rest.
func (c CryptoConfig) Enabled() bool {
	return len(c.Keys) > 0
}

func mustEnv(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func mustInt(key string, def int) int {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func mustInt64(key string, def int64) int64 {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func mustBool(key string, def bool) bool {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func mustDuration(key string, def time.Duration) time.Duration {
	v := mustEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func hostnameOr(def string) string {
	h, err := os.Hostname()
	if err != nil || strings.TrimSpace(h) == "" {
		return def
	}
	return h
}
