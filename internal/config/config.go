package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderGemini = "gemini"
	ProviderGroq   = "groq"
)

// Config holds the configuration for the application.
type Config struct {
	DatabasePath      string
	HealthDatabaseURL string

	// LLM Config
	LLMProvider    string
	LLMModel       string
	GeminiAPIKey   string
	GroqAPIKey     string
	LLMMaxAttempts int
	LLMCallTimeout time.Duration
	PricingFile    string

	// API Config
	JWTSecret          string
	HTTPPort           string
	RateLimitPerMinute int
	InsightTTL         time.Duration

	// Events Config
	NATSURL      string
	NATSStream   string
	NATSSubject  string
	NATSConsumer string

	AutoGenerateSchedule string

	LogLevel string
	LogFile  string

	// Telegram Config
	TelegramBotToken   string
	TelegramWebhookURL string
	// TelegramUsers maps allowed Telegram user IDs to engine user IDs.
	TelegramUsers map[int64]string
}

// Load reads an optional .env file and then builds the Config from the environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", f, err)
			}
		}
	}
	return NewFromEnv()
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	healthURL := os.Getenv("HEALTH_DATABASE_URL")
	if healthURL == "" {
		return nil, fmt.Errorf("HEALTH_DATABASE_URL environment variable not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable not set")
	}

	provider := strings.ToLower(getEnv("LLM_PROVIDER", ProviderGemini))
	geminiAPIKey := os.Getenv("GEMINI_API_KEY")
	groqAPIKey := os.Getenv("GROQ_API_KEY")
	var model string
	switch provider {
	case ProviderGemini:
		if geminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
		}
		model = getEnv("LLM_MODEL", "gemini-2.0-flash")
	case ProviderGroq:
		if groqAPIKey == "" {
			return nil, fmt.Errorf("GROQ_API_KEY environment variable not set")
		}
		model = getEnv("LLM_MODEL", "llama-3.3-70b-versatile")
	default:
		return nil, fmt.Errorf("LLM_PROVIDER must be %q or %q, got %q", ProviderGemini, ProviderGroq, provider)
	}

	maxAttempts, err := getInt("LLM_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	callTimeout, err := getDuration("LLM_CALL_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}
	rateLimit, err := getInt("RATE_LIMIT_PER_MINUTE", 30)
	if err != nil {
		return nil, err
	}
	insightTTL, err := getDuration("INSIGHT_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	telegramUsers, err := parseTelegramUsers(os.Getenv("TELEGRAM_USERS"))
	if err != nil {
		return nil, err
	}

	return &Config{
		DatabasePath:         getEnv("DATABASE_PATH", "data/db/planner.db"),
		HealthDatabaseURL:    healthURL,
		LLMProvider:          provider,
		LLMModel:             model,
		GeminiAPIKey:         geminiAPIKey,
		GroqAPIKey:           groqAPIKey,
		LLMMaxAttempts:       maxAttempts,
		LLMCallTimeout:       callTimeout,
		PricingFile:          os.Getenv("PRICING_FILE"),
		JWTSecret:            jwtSecret,
		HTTPPort:             getEnv("HTTP_PORT", "8080"),
		RateLimitPerMinute:   rateLimit,
		InsightTTL:           insightTTL,
		NATSURL:              os.Getenv("NATS_URL"),
		NATSStream:           getEnv("NATS_STREAM", "HEALTH_EVENTS"),
		NATSSubject:          getEnv("NATS_SUBJECT", "health.events.>"),
		NATSConsumer:         getEnv("NATS_CONSUMER", "plan-adapter"),
		AutoGenerateSchedule: os.Getenv("AUTO_GENERATE_SCHEDULE"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFile:              os.Getenv("LOG_FILE"),
		TelegramBotToken:     os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL:   os.Getenv("TELEGRAM_WEBHOOK_URL"),
		TelegramUsers:        telegramUsers,
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, v)
	}
	return d, nil
}

// parseTelegramUsers parses "telegramID:userID,..." pairs.
func parseTelegramUsers(raw string) (map[int64]string, error) {
	users := map[int64]string{}
	if strings.TrimSpace(raw) == "" {
		return users, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		tgID, userID, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || userID == "" {
			return nil, fmt.Errorf("TELEGRAM_USERS entry %q must be telegramID:userID", pair)
		}
		id, err := strconv.ParseInt(tgID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_USERS entry %q has invalid telegram id", pair)
		}
		users[id] = userID
	}
	return users, nil
}
