package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from the environment.
type Config struct {
	AppEnv           string
	LogLevel         string
	HTTPListenAddr   string
	PublicBaseURL    string
	MetricsNamespace string

	DatabaseURL    string
	DatabaseSchema string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool

	// BusinessTimezone governs the once-per-day automation gate.
	BusinessTimezone *time.Location

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAITimeout time.Duration

	SendGridAPIKey     string
	FromEmail          string
	FromName           string
	SenderName         string
	SenderCompany      string
	CompanyDescription string

	IMAPAddr     string
	IMAPUsername string
	IMAPPassword string

	WhatsAppStorePath string
	WhatsAppLogLevel  string

	GoogleAPIKey         string
	GoogleSearchEngineID string
	GoogleSearchEnabled  bool

	AutomationInterval time.Duration
	DeliveryInterval   time.Duration
	ReplyPollInterval  time.Duration
	SendBatchSize      int
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	cfg := Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		HTTPListenAddr:   getEnv("HTTP_LISTEN_ADDR", ":8080"),
		PublicBaseURL:    getEnv("PUBLIC_BASE_URL", ""),
		MetricsNamespace: getEnv("METRICS_NAMESPACE", "salesh"),

		DatabaseURL:    os.Getenv("DATABASE_URL"),
		DatabaseSchema: getEnv("DATABASE_SCHEMA", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisTLS:      getEnvBool("REDIS_TLS", false),

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAITimeout: getEnvDuration("OPENAI_TIMEOUT", 30*time.Second),

		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		FromEmail:          getEnv("FROM_EMAIL", ""),
		FromName:           getEnv("FROM_NAME", "Automatic Sales"),
		SenderName:         getEnv("SENDER_NAME", ""),
		SenderCompany:      getEnv("SENDER_COMPANY", ""),
		CompanyDescription: getEnv("COMPANY_DESCRIPTION", "custom software solutions"),

		IMAPAddr:     getEnv("IMAP_ADDR", ""),
		IMAPUsername: getEnv("IMAP_USERNAME", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),

		WhatsAppStorePath: getEnv("WHATSAPP_STORE_PATH", "data/whatsapp.db"),
		WhatsAppLogLevel:  getEnv("WHATSAPP_LOG_LEVEL", "WARN"),

		GoogleAPIKey:         getEnv("GOOGLE_API_KEY", ""),
		GoogleSearchEngineID: getEnv("GOOGLE_SEARCH_ENGINE_ID", ""),
		GoogleSearchEnabled:  getEnvBool("GOOGLE_SEARCH_ENABLED", true),

		AutomationInterval: getEnvDuration("AUTOMATION_INTERVAL", 30*time.Minute),
		DeliveryInterval:   getEnvDuration("DELIVERY_INTERVAL", 30*time.Minute),
		ReplyPollInterval:  getEnvDuration("REPLY_POLL_INTERVAL", time.Hour),
		SendBatchSize:      getEnvInt("SEND_BATCH_SIZE", 100),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}

	tzName := getEnv("BUSINESS_TIMEZONE", "Asia/Kolkata")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return Config{}, fmt.Errorf("load business timezone %q: %w", tzName, err)
	}
	cfg.BusinessTimezone = loc

	if cfg.SendBatchSize <= 0 {
		cfg.SendBatchSize = 100
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}
