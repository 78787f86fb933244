package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Booking assistant (dialogue surfaces)
	ChatEndpointURL    string
	StudioSlug         string
	StudioName         string
	StudioVertical     string
	AssistantName      string
	FormFallbackURL    string
	BookingRef         string
	DemoMode           bool
	ChatRequestTimeout time.Duration
	ChatMaxAttempts    int
	ChatBackoffStep    time.Duration
	MaxTurns           int
	MaxInputChars      int
	AutoCloseDelay     time.Duration
	SettleDelay        time.Duration
	TUILogFile         string

	// Chat proxy (workflow webhook pass-through)
	WorkflowWebhookURL string
	DemoWebhookURL     string
	DemoWorkflow       bool
	WebhookTimeout     time.Duration
	StudiosJSON        string
	ChatRateLimit      float64
	ChatRateBurst      int
	CORSAllowedOrigins []string

	// Transcript archive
	TranscriptArchive bool
	RedisAddr         string
	RedisPassword     string
	RedisTLS          bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ChatEndpointURL:    getEnv("CHAT_ENDPOINT_URL", "http://localhost:8080/api/chat"),
		StudioSlug:         getEnv("STUDIO_SLUG", ""),
		StudioName:         getEnv("STUDIO_NAME", ""),
		StudioVertical:     strings.ToLower(strings.TrimSpace(getEnv("STUDIO_VERTICAL", ""))),
		AssistantName:      getEnv("ASSISTANT_NAME", ""),
		FormFallbackURL:    getEnv("FORM_FALLBACK_URL", ""),
		BookingRef:         getEnv("BOOKING_REF", ""),
		DemoMode:           getEnvAsBool("DEMO_MODE", false),
		ChatRequestTimeout: getEnvAsDuration("CHAT_REQUEST_TIMEOUT", 10*time.Second),
		ChatMaxAttempts:    getEnvAsInt("CHAT_MAX_ATTEMPTS", 3),
		ChatBackoffStep:    getEnvAsDuration("CHAT_BACKOFF_STEP", 500*time.Millisecond),
		MaxTurns:           getEnvAsInt("MAX_TURNS", 20),
		MaxInputChars:      getEnvAsInt("MAX_INPUT_CHARS", 2000),
		AutoCloseDelay:     getEnvAsDuration("AUTO_CLOSE_DELAY", 3*time.Second),
		SettleDelay:        getEnvAsDuration("SETTLE_DELAY", 300*time.Millisecond),
		TUILogFile:         getEnv("TUI_LOG_FILE", "bookchat.log"),

		WorkflowWebhookURL: getEnv("WORKFLOW_WEBHOOK_URL", ""),
		DemoWebhookURL:     getEnv("DEMO_WEBHOOK_URL", ""),
		DemoWorkflow:       getEnvAsBool("DEMO_WORKFLOW", false),
		WebhookTimeout:     getEnvAsDuration("WEBHOOK_TIMEOUT", 30*time.Second),
		StudiosJSON:        getEnv("STUDIOS_JSON", ""),
		ChatRateLimit:      getEnvAsFloat("CHAT_RATE_LIMIT", 1),
		ChatRateBurst:      getEnvAsInt("CHAT_RATE_BURST", 10),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		TranscriptArchive: getEnvAsBool("TRANSCRIPT_ARCHIVE", false),
		RedisAddr:         getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		RedisTLS:          getEnvAsBool("REDIS_TLS", false),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable, dropping empty entries.
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
