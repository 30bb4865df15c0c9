// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port           string
	Env            string
	PublicBaseURL  string
	LogLevel       string
	UseMemoryQueue bool
	WorkerCount    int

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	WhatsAppVerifyToken   string
	WhatsAppToken         string
	WhatsAppPhoneNumberID string
	WhatsAppAppSecret     string
	WhatsAppGraphBaseURL  string
	WhatsAppGraphVersion  string
	WebhookRateLimitRPS   float64
	WebhookRateLimitBurst int
	DefaultPhoneRegion    string

	GroqAPIKey                string
	GroqBaseURL               string
	GroqExtractionModel       string
	GroqReplyModel            string
	SemanticExtractionTimeout time.Duration
	ReplyTimeout              time.Duration
	GeminiAPIKey              string
	GeminiModel               string
	BedrockModelID            string
	LLMFallbackProvider       string

	AutoCallbackOnProgress bool
	ResetClearsContactInfo bool
	ExtractionStrategy     string
	HistoryTurns           int
	EnquiryLockTTL         time.Duration
	EnquiryLockWait        time.Duration

	AWSRegion             string
	AWSAccessKeyID        string
	AWSSecretAccessKey    string
	AWSEndpointOverride   string
	ConversationQueueURL  string
	ConversationJobsTable string
	HandoffArchiveBucket  string

	AdminJWTSecret     string
	CORSAllowedOrigins []string

	SalesNotifyEmails  []string
	SalesNotifyPhones  []string
	EmailProvider      string
	SendGridAPIKey     string
	SendGridFromEmail  string
	SendGridFromName   string
	SESFromEmail       string
	SESFromName        string
	SESConfigSet       string
	ExcludePhones      []string
	ProcessedRetention time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		UseMemoryQueue: getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:    getEnvAsInt("WORKER_COUNT", 2),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		WhatsAppVerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppToken:         getEnv("WHATSAPP_TOKEN", ""),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppAppSecret:     getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppGraphBaseURL:  getEnv("WHATSAPP_GRAPH_BASE_URL", "https://graph.facebook.com"),
		WhatsAppGraphVersion:  getEnv("WHATSAPP_GRAPH_VERSION", "v19.0"),
		WebhookRateLimitRPS:   getEnvAsFloat("WEBHOOK_RATE_LIMIT_RPS", 20),
		WebhookRateLimitBurst: getEnvAsInt("WEBHOOK_RATE_LIMIT_BURST", 40),
		DefaultPhoneRegion:    getEnv("DEFAULT_PHONE_REGION", "IN"),

		GroqAPIKey:                getEnv("GROQ_API_KEY", ""),
		GroqBaseURL:               getEnv("GROQ_BASE_URL", "https://api.groq.com/openai/v1"),
		GroqExtractionModel:       getEnv("GROQ_EXTRACTION_MODEL", "llama-3.1-8b-instant"),
		GroqReplyModel:            getEnv("GROQ_REPLY_MODEL", "llama-3.1-8b-instant"),
		SemanticExtractionTimeout: getEnvAsDuration("SEMANTIC_EXTRACTION_TIMEOUT", 8*time.Second),
		ReplyTimeout:              getEnvAsDuration("REPLY_TIMEOUT", 20*time.Second),
		GeminiAPIKey:              getEnv("GEMINI_API_KEY", ""),
		GeminiModel:               getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
		BedrockModelID:            getEnv("BEDROCK_MODEL_ID", ""),
		LLMFallbackProvider:       strings.ToLower(getEnv("LLM_FALLBACK_PROVIDER", "")),

		AutoCallbackOnProgress: getEnvAsBool("AUTO_CALLBACK_ON_PROGRESS", true),
		ResetClearsContactInfo: getEnvAsBool("RESET_CLEARS_CONTACT_INFO", false),
		ExtractionStrategy:     getEnv("EXTRACTION_STRATEGY", "comprehensive"),
		HistoryTurns:           getEnvAsInt("HISTORY_TURNS", 5),
		EnquiryLockTTL:         getEnvAsDuration("ENQUIRY_LOCK_TTL", 30*time.Second),
		EnquiryLockWait:        getEnvAsDuration("ENQUIRY_LOCK_WAIT", 10*time.Second),

		AWSRegion:             getEnv("AWS_REGION", "ap-south-1"),
		AWSAccessKeyID:        getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:    getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:   getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		ConversationQueueURL:  getEnv("CONVERSATION_QUEUE_URL", ""),
		ConversationJobsTable: getEnv("CONVERSATION_JOBS_TABLE", ""),
		HandoffArchiveBucket:  getEnv("HANDOFF_ARCHIVE_BUCKET", ""),

		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),

		SalesNotifyEmails:  getEnvAsList("SALES_NOTIFY_EMAIL", nil),
		SalesNotifyPhones:  getEnvAsList("SALES_NOTIFY_PHONES", nil),
		EmailProvider:      strings.ToLower(getEnv("EMAIL_PROVIDER", "")),
		SendGridAPIKey:     getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail:  getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:   getEnv("SENDGRID_FROM_NAME", ""),
		SESFromEmail:       getEnv("SES_FROM_EMAIL", ""),
		SESFromName:        getEnv("SES_FROM_NAME", ""),
		SESConfigSet:       getEnv("SES_CONFIGURATION_SET", ""),
		ExcludePhones:      getEnvAsList("CONVERSATION_EXCLUDE_PHONES", nil),
		ProcessedRetention: getEnvAsDuration("PROCESSED_EVENTS_RETENTION", 7*24*time.Hour),
	}
}

// IsProduction reports whether ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production") || strings.EqualFold(c.Env, "prod")
}

// Validate checks the settings a production API cannot run without.
func (c *Config) Validate() error {
	if !c.IsProduction() {
		return nil
	}
	var errs []error
	require := func(value, key string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required in production", key))
		}
	}
	require(c.WhatsAppVerifyToken, "WHATSAPP_VERIFY_TOKEN")
	require(c.WhatsAppToken, "WHATSAPP_TOKEN")
	require(c.WhatsAppPhoneNumberID, "WHATSAPP_PHONE_NUMBER_ID")
	require(c.WhatsAppAppSecret, "WHATSAPP_APP_SECRET")
	require(c.DatabaseURL, "DATABASE_URL")
	require(c.AdminJWTSecret, "ADMIN_JWT_SECRET")
	if !c.UseMemoryQueue {
		require(c.ConversationQueueURL, "CONVERSATION_QUEUE_URL")
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("config: %w", errors.Join(errs...))
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

// getEnvAsList splits a comma separated value, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
